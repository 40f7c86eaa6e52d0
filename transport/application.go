// File: transport/application.go
// Author: momentics <momentics@gmail.com>
//
// Contracts between a transport and the protocol application it drives.

package transport

import (
	"time"

	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/endpoint"
)

// PacketWriter is the transport surface handed to an application.
type PacketWriter interface {
	// ConfigureRead sets the policy for the next unit passed to HandleData.
	ConfigureRead(p ReceivePolicy)
	// WritePacket queues a frame. The writer takes ownership of the buffers.
	WritePacket(header []byte, payload ...[]byte)
	// NextHeaderBuffer returns an empty buffer from the header cache.
	NextHeaderBuffer() []byte
	// NextPayloadBuffer returns an empty buffer from the payload cache.
	NextPayloadBuffer() []byte
	// Manager returns the owning endpoint manager.
	Manager() *endpoint.Manager
	// System returns the hosting actor system.
	System() api.System
	// SetTimeout schedules a Timeout event routed back to this application.
	SetTimeout(tag string, d time.Duration) uint64
}

// Application interprets frames. Every method runs on the reactor thread.
type Application interface {
	Init(w PacketWriter) error
	HandleData(w PacketWriter, data []byte) error
	WriteMessage(w PacketWriter, msg *endpoint.Message) error
	Resolve(w PacketWriter, path string, listener api.Actor)
	NewProxy(w PacketWriter, peer api.NodeID, id api.ActorID)
	LocalActorDown(w PacketWriter, peer api.NodeID, id api.ActorID, reason error)
	Timeout(w PacketWriter, tag string, id uint64) error
	HandleError(err error)
}

// Peer is implemented by applications that learn their peer's node id.
type Peer interface {
	Peer() api.NodeID
}
