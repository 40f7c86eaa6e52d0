// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations: node and actor identities, envelopes.

package api

import "strconv"

// NodeID identifies a node. The empty value is invalid.
type NodeID string

// Valid reports whether n names a node.
func (n NodeID) Valid() bool { return n != "" }

// ActorID identifies an actor within its node. Zero is invalid.
type ActorID uint64

func (id ActorID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Envelope is one actor message as seen by a receiver.
type Envelope struct {
	Sender    Actor
	MessageID uint64
	// Stages is the forwarding stack of the message.
	Stages  []Actor
	Content any
}

// ResolveResult answers a remote resolve. Actor is nil when the path did not
// resolve on the peer.
type ResolveResult struct {
	Actor      Actor
	Interfaces []string
}

// ActorDown is delivered to local observers when a monitored actor is gone.
type ActorDown struct {
	Source Actor
	Reason error
}
