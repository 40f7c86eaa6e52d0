// File: basp/header.go
// Author: momentics <momentics@gmail.com>
//
// Frame header: [1B type][4B payload length][8B operation data], big-endian.

package basp

import "encoding/binary"

// HeaderSize is the encoded size of a Header.
const HeaderSize = 13

// Version is the protocol version carried in handshake headers.
const Version uint64 = 1

// MessageType tags a frame.
type MessageType uint8

const (
	Handshake MessageType = iota
	ActorMessage
	ResolveRequest
	ResolveResponse
	MonitorMessage
	DownMessage
	Heartbeat
)

var messageTypeNames = [...]string{
	Handshake:       "handshake",
	ActorMessage:    "actor_message",
	ResolveRequest:  "resolve_request",
	ResolveResponse: "resolve_response",
	MonitorMessage:  "monitor_message",
	DownMessage:     "down_message",
	Heartbeat:       "heartbeat",
}

func (t MessageType) String() string {
	if int(t) >= len(messageTypeNames) {
		return "unknown"
	}
	return messageTypeNames[t]
}

// Header describes one frame. OperationData carries the protocol version
// (handshake), a correlation id (actor_message, resolve_*), or an actor id
// (monitor_message, down_message).
type Header struct {
	Type          MessageType
	PayloadLen    uint32
	OperationData uint64
}

// AppendTo appends the wire form of h to buf.
func (h Header) AppendTo(buf []byte) []byte {
	buf = append(buf, byte(h.Type))
	buf = binary.BigEndian.AppendUint32(buf, h.PayloadLen)
	return binary.BigEndian.AppendUint64(buf, h.OperationData)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h Header) MarshalBinary() ([]byte, error) {
	return h.AppendTo(make([]byte, 0, HeaderSize)), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) != HeaderSize {
		return ErrUnexpectedNumberOfBytes
	}
	h.Type = MessageType(b[0])
	h.PayloadLen = binary.BigEndian.Uint32(b[1:5])
	h.OperationData = binary.BigEndian.Uint64(b[5:13])
	return nil
}

// ParseHeader decodes exactly HeaderSize bytes.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	err := h.UnmarshalBinary(b)
	return h, err
}
