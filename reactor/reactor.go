// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Socket manager contract dispatched by the multiplexer.

package reactor

import "github.com/momentics/hioload-basp/internal/sockets"

// SocketManager owns exactly one socket and reacts to its readiness events.
// All methods except construction run on the reactor thread.
type SocketManager interface {
	// Handle returns the managed socket.
	Handle() sockets.Socket

	// Mask returns the current interest mask.
	Mask() Operation

	// MaskAdd adds op to the mask and reports whether the mask changed.
	MaskAdd(op Operation) bool

	// MaskDel removes op from the mask and reports whether the mask changed.
	MaskDel(op Operation) bool

	// HandleReadEvent returns false to drop read interest.
	HandleReadEvent() bool

	// HandleWriteEvent returns false to drop write interest.
	HandleWriteEvent() bool

	// HandleError is called once for a failure outside the regular handlers.
	HandleError(err error)

	// Close releases the socket. The multiplexer calls it after removing
	// the manager from the poll set.
	Close() error
}

// ManagerBase implements the bookkeeping part of SocketManager.
// Concrete managers embed it and provide the handlers.
type ManagerBase struct {
	handle sockets.Socket
	mpx    *Multiplexer
	mask   Operation
	closed bool
}

// NewManagerBase binds a socket to a multiplexer. An invalid handle is a
// programming error.
func NewManagerBase(handle sockets.Socket, mpx *Multiplexer) ManagerBase {
	if !handle.Valid() {
		panic("reactor: socket manager requires a valid socket")
	}
	if mpx == nil {
		panic("reactor: socket manager requires a multiplexer")
	}
	return ManagerBase{handle: handle, mpx: mpx}
}

func (b *ManagerBase) Handle() sockets.Socket { return b.handle }

func (b *ManagerBase) Multiplexer() *Multiplexer { return b.mpx }

func (b *ManagerBase) Mask() Operation { return b.mask }

func (b *ManagerBase) MaskAdd(op Operation) bool {
	x := b.mask | op
	if x == b.mask {
		return false
	}
	b.mask = x
	return true
}

func (b *ManagerBase) MaskDel(op Operation) bool {
	x := b.mask &^ op
	if x == b.mask {
		return false
	}
	b.mask = x
	return true
}

// Closed reports whether Close was called.
func (b *ManagerBase) Closed() bool { return b.closed }

// Close closes the socket once.
func (b *ManagerBase) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return sockets.Close(b.handle)
}
