// File: actor/mailbox.go
// Author: momentics <momentics@gmail.com>
//
// Mailbox is a local actor whose behavior is whatever goroutine calls
// Receive. Enqueue never blocks, so the reactor thread may deliver to it.

package actor

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-basp/api"
)

// ErrStopped is returned by Receive once the mailbox is stopped and empty.
var ErrStopped = errors.New("actor stopped")

// Mailbox is an unbounded message queue with an identity.
type Mailbox struct {
	id   api.ActorID
	node api.NodeID

	mu       sync.Mutex
	msgs     *queue.Queue
	notify   chan struct{}
	stopped  bool
	reason   error
	attached []func(reason error)
}

// NewMailbox creates an unregistered mailbox.
func NewMailbox(id api.ActorID, node api.NodeID) *Mailbox {
	return &Mailbox{
		id:     id,
		node:   node,
		msgs:   queue.New(),
		notify: make(chan struct{}, 1),
	}
}

func (m *Mailbox) ID() api.ActorID  { return m.id }
func (m *Mailbox) Node() api.NodeID { return m.node }

// Enqueue appends env. Messages to a stopped mailbox are dropped.
func (m *Mailbox) Enqueue(env *api.Envelope) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.msgs.Add(env)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// TryReceive returns the oldest message, or nil if none is queued.
func (m *Mailbox) TryReceive() *api.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.msgs.Length() == 0 {
		return nil
	}
	return m.msgs.Remove().(*api.Envelope)
}

// Receive waits for the next message.
func (m *Mailbox) Receive(ctx context.Context) (*api.Envelope, error) {
	for {
		m.mu.Lock()
		if m.msgs.Length() > 0 {
			env := m.msgs.Remove().(*api.Envelope)
			m.mu.Unlock()
			return env, nil
		}
		stopped := m.stopped
		m.mu.Unlock()
		if stopped {
			return nil, ErrStopped
		}
		select {
		case <-m.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msgs.Length()
}

// Attach runs fn with the exit reason when the mailbox stops, or right away
// if it already has.
func (m *Mailbox) Attach(fn func(reason error)) {
	m.mu.Lock()
	if m.stopped {
		reason := m.reason
		m.mu.Unlock()
		fn(reason)
		return
	}
	m.attached = append(m.attached, fn)
	m.mu.Unlock()
}

// Stop terminates the mailbox with reason and runs attached functions.
// Later calls are no-ops. Queued messages can still be received.
func (m *Mailbox) Stop(reason error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.reason = reason
	attached := m.attached
	m.attached = nil
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	for _, fn := range attached {
		fn(reason)
	}
}

// Stopped reports whether Stop was called.
func (m *Mailbox) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

var (
	_ api.Actor      = (*Mailbox)(nil)
	_ api.Attachable = (*Mailbox)(nil)
)
