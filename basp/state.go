// File: basp/state.go
// Author: momentics <momentics@gmail.com>

package basp

// ConnectionState is the position of a connection in the protocol.
type ConnectionState uint8

const (
	AwaitHandshakeHeader ConnectionState = iota
	AwaitHandshakePayload
	AwaitHeader
	AwaitPayload
	Shutdown
)

func (s ConnectionState) String() string {
	switch s {
	case AwaitHandshakeHeader:
		return "await_handshake_header"
	case AwaitHandshakePayload:
		return "await_handshake_payload"
	case AwaitHeader:
		return "await_header"
	case AwaitPayload:
		return "await_payload"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
