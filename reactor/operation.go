// File: reactor/operation.go
// Author: momentics <momentics@gmail.com>
//
// Interest mask of a socket manager.

package reactor

// Operation is a bitset of I/O interests.
type Operation uint8

const (
	OpNone      Operation = 0
	OpRead      Operation = 1
	OpWrite     Operation = 2
	OpReadWrite Operation = OpRead | OpWrite
	OpShutdown  Operation = 4
)

func (o Operation) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpReadWrite:
		return "read_write"
	case OpShutdown:
		return "shutdown"
	default:
		return "invalid"
	}
}
