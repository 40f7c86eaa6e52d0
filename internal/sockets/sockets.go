// File: internal/sockets/sockets.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thin, non-owning socket handle plus platform-neutral helpers.

package sockets

import "strconv"

// Socket is an OS socket handle. It does not own the descriptor.
type Socket int

// Invalid is the sentinel for "no socket".
const Invalid Socket = -1

// Valid reports whether s refers to a descriptor.
func (s Socket) Valid() bool { return s != Invalid }

func (s Socket) String() string {
	if !s.Valid() {
		return "invalid"
	}
	return strconv.Itoa(int(s))
}

// MaxDatagramSize bounds a single UDP read.
const MaxDatagramSize = 65535
