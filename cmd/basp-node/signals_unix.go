//go:build unix

// File: cmd/basp-node/signals_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// dumpSignals trigger a dump of the debug probes.
func dumpSignals() []os.Signal { return []os.Signal{unix.SIGUSR1} }
