package basp

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderWireFormat(t *testing.T) {
	h := Header{Type: ResolveResponse, PayloadLen: 0x01020304, OperationData: 0x1122334455667788}
	b, err := h.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{3, 1, 2, 3, 4, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	if !bytes.Equal(b, want) {
		t.Fatalf("encoded % x, want % x", b, want)
	}
	got, err := ParseHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("decoded %+v, want %+v", got, h)
	}
}

func TestHeaderRejectsWrongSize(t *testing.T) {
	for _, n := range []int{0, 12, 14} {
		if _, err := ParseHeader(make([]byte, n)); !errors.Is(err, ErrUnexpectedNumberOfBytes) {
			t.Errorf("%d bytes: err = %v", n, err)
		}
	}
}

func TestNames(t *testing.T) {
	if Heartbeat.String() != "heartbeat" || MessageType(42).String() != "unknown" {
		t.Error("message type names")
	}
	if ErrAppIdentifiersMismatch.Error() != "basp: app_identifiers_mismatch" {
		t.Errorf("got %q", ErrAppIdentifiersMismatch.Error())
	}
	if AwaitPayload.String() != "await_payload" {
		t.Error("state names")
	}
}
