// File: endpoint/event.go
// Author: momentics <momentics@gmail.com>
//
// Elements of the endpoint queue: control events and outbound messages.

package endpoint

import (
	"fmt"

	"github.com/momentics/hioload-basp/api"
)

// Locator names an actor on a remote node.
type Locator struct {
	Node api.NodeID
	// Path is "id/<actor-id>" or "name/<registered-name>".
	Path string
}

func (l Locator) String() string {
	return fmt.Sprintf("%s/%s", l.Node, l.Path)
}

// Element is anything stored in the endpoint queue.
type Element interface {
	// TaskSize is the deficit cost of the element.
	TaskSize() int
}

// Event is a control event. The set of events is closed.
type Event interface {
	Element
	isEvent()
}

// ResolveRequest asks the peer to resolve a path.
type ResolveRequest struct {
	Locator  Locator
	Listener api.Actor
}

// NewProxy announces that a local proxy for a peer actor exists.
type NewProxy struct {
	Peer api.NodeID
	ID   api.ActorID
}

// LocalActorDown tells a monitoring peer that a local actor terminated.
type LocalActorDown struct {
	ObservingPeer api.NodeID
	ID            api.ActorID
	Reason        error
}

// Timeout is a protocol timer that fired.
type Timeout struct {
	Tag string
	ID  uint64
}

func (*ResolveRequest) TaskSize() int { return 1 }
func (*NewProxy) TaskSize() int       { return 1 }
func (*LocalActorDown) TaskSize() int { return 1 }
func (*Timeout) TaskSize() int        { return 1 }

func (*ResolveRequest) isEvent() {}
func (*NewProxy) isEvent()       {}
func (*LocalActorDown) isEvent() {}
func (*Timeout) isEvent()        {}

// Message is an outbound actor message with its serialized content.
type Message struct {
	Envelope *api.Envelope
	Receiver api.Actor
	Payload  []byte
}

// TaskSize charges messages by payload size so bulk traffic cannot starve events.
func (m *Message) TaskSize() int { return max(1, len(m.Payload)) }
