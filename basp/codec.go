// File: basp/codec.go
// Author: momentics <momentics@gmail.com>
//
// Payload codec. Payloads are CBOR with struct fields encoded as arrays, so
// field order is part of the wire format.

package basp

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/momentics/hioload-basp/api"
)

// Codec encodes and decodes frame payloads and actor message content.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCodec creates a codec with canonical encoding.
func NewCodec() (*Codec, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{MaxArrayElements: 1 << 20}.DecMode()
	if err != nil {
		return nil, err
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// DefaultCodec is shared by applications created without WithCodec.
var DefaultCodec = mustCodec()

func mustCodec() *Codec {
	c, err := NewCodec()
	if err != nil {
		panic(err)
	}
	return c
}

// Marshal encodes v.
func (c *Codec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }

// AppendMarshal encodes v into the spare capacity of dst.
func (c *Codec) AppendMarshal(dst []byte, v any) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	if err := c.enc.NewEncoder(buf).Encode(v); err != nil {
		return dst[:0], err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data into v. Decoding errors wrap ErrInvalidPayload.
func (c *Codec) Unmarshal(data []byte, v any) error {
	if err := c.dec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// MarshalContent encodes actor message content. It satisfies
// endpoint.SerializeFunc.
func (c *Codec) MarshalContent(content any) ([]byte, error) {
	return c.enc.Marshal(content)
}

type handshakePayload struct {
	_              struct{} `cbor:",toarray"`
	Node           string
	AppIdentifiers []string
}

type actorAddr struct {
	_    struct{} `cbor:",toarray"`
	Node string
	ID   uint64
}

type actorMessagePayload struct {
	_       struct{} `cbor:",toarray"`
	SrcNode string
	SrcID   uint64
	DstID   uint64
	Stages  []actorAddr
	Content cbor.RawMessage
}

type resolveResponsePayload struct {
	_          struct{} `cbor:",toarray"`
	ActorID    uint64
	Interfaces []string
}

// downPayload carries an exit reason. Code is an api.ExitReason, or zero for
// a free-form error described by Message.
type downPayload struct {
	_       struct{} `cbor:",toarray"`
	Code    uint8
	Message string
}

func encodeReason(reason error) downPayload {
	if reason == nil {
		return downPayload{Code: uint8(api.ExitNormal)}
	}
	var r api.ExitReason
	if errors.As(reason, &r) && r.Valid() {
		return downPayload{Code: uint8(r)}
	}
	return downPayload{Message: reason.Error()}
}

func decodeReason(p downPayload) error {
	if p.Code == 0 {
		return errors.New(p.Message)
	}
	r := api.ExitReason(p.Code)
	if !r.Valid() {
		return fmt.Errorf("unknown exit reason %d", p.Code)
	}
	return r
}
