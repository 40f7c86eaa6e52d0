// File: basp/errors.go
// Author: momentics <momentics@gmail.com>
//
// Protocol error codes. Any of them is fatal for the connection that raised it.

package basp

// Error is a BASP protocol error.
type Error uint8

const (
	ErrInvalidMagicNumber Error = iota + 1
	ErrUnexpectedNumberOfBytes
	ErrUnexpectedPayload
	ErrMissingPayload
	ErrIllegalState
	ErrInvalidHandshake
	ErrMissingHandshake
	ErrUnexpectedHandshake
	ErrVersionMismatch
	ErrUnimplemented
	ErrAppIdentifiersMismatch
	ErrInvalidPayload
	ErrInvalidScheme
	ErrInvalidLocator
)

var errorNames = [...]string{
	ErrInvalidMagicNumber:      "invalid_magic_number",
	ErrUnexpectedNumberOfBytes: "unexpected_number_of_bytes",
	ErrUnexpectedPayload:       "unexpected_payload",
	ErrMissingPayload:          "missing_payload",
	ErrIllegalState:            "illegal_state",
	ErrInvalidHandshake:        "invalid_handshake",
	ErrMissingHandshake:        "missing_handshake",
	ErrUnexpectedHandshake:     "unexpected_handshake",
	ErrVersionMismatch:         "version_mismatch",
	ErrUnimplemented:           "unimplemented",
	ErrAppIdentifiersMismatch:  "app_identifiers_mismatch",
	ErrInvalidPayload:          "invalid_payload",
	ErrInvalidScheme:           "invalid_scheme",
	ErrInvalidLocator:          "invalid_locator",
}

func (e Error) Error() string {
	if e == 0 || int(e) >= len(errorNames) {
		return "basp: unknown error"
	}
	return "basp: " + errorNames[e]
}
