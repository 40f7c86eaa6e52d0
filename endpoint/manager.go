// File: endpoint/manager.go
// Author: momentics <momentics@gmail.com>
//
// Manager is the socket manager for one peer connection. It owns the
// transport and the outbound queue; the transport pulls work from it.

package endpoint

import (
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/internal/sockets"
	"github.com/momentics/hioload-basp/reactor"
	"go.uber.org/zap"
)

// Transport turns socket readiness into frames. Every method runs on the
// reactor thread.
type Transport interface {
	Init(m *Manager) error
	HandleReadEvent(m *Manager) bool
	HandleWriteEvent(m *Manager) bool
	HandleError(err error)
	Resolve(m *Manager, loc Locator, listener api.Actor)
	NewProxy(m *Manager, peer api.NodeID, id api.ActorID)
	LocalActorDown(m *Manager, peer api.NodeID, id api.ActorID, reason error)
	Timeout(m *Manager, tag string, id uint64)
}

// SerializeFunc encodes message content for the wire.
type SerializeFunc func(content any) ([]byte, error)

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithQuantum sets the deficit round-robin quantum of the outbound queue.
func WithQuantum(q int) ManagerOption {
	return func(m *Manager) { m.quantum = q }
}

// WithSerializer sets the content serializer handed out by SerializeFunc.
func WithSerializer(fn SerializeFunc) ManagerOption {
	return func(m *Manager) { m.serialize = fn }
}

// WithCloseHook registers fn to run once the manager is closed.
func WithCloseHook(fn func(*Manager)) ManagerOption {
	return func(m *Manager) { m.onClose = append(m.onClose, fn) }
}

// Manager is one connection to one peer.
type Manager struct {
	reactor.ManagerBase
	transport Transport
	queue     *Queue
	sys       api.System
	serialize SerializeFunc
	quantum   int
	onClose   []func(*Manager)
	log       *zap.Logger

	timeoutIDs atomic.Uint64
	closed     atomic.Bool
	aborted    bool
}

// NewManager binds transport to handle. Call Init before the first poll.
func NewManager(handle sockets.Socket, mpx *reactor.Multiplexer, sys api.System, transport Transport, opts ...ManagerOption) *Manager {
	m := &Manager{
		ManagerBase: reactor.NewManagerBase(handle, mpx),
		transport:   transport,
		sys:         sys,
		log:         zap.L(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.queue = NewQueue(m.quantum)
	m.log = m.log.Named("endpoint").With(zap.Stringer("fd", handle))
	return m
}

// Init initializes the transport, which registers the manager for reading.
func (m *Manager) Init() error {
	return m.transport.Init(m)
}

// System returns the hosting actor system.
func (m *Manager) System() api.System { return m.sys }

// Transport returns the owned transport.
func (m *Manager) Transport() Transport { return m.transport }

// Queue returns the outbound queue.
func (m *Manager) Queue() *Queue { return m.queue }

// Logger returns the manager's logger.
func (m *Manager) Logger() *zap.Logger { return m.log }

// SerializeFunc returns the content serializer, or nil if none was configured.
func (m *Manager) SerializeFunc() SerializeFunc { return m.serialize }

// Resolve asks the peer to resolve loc and answers listener.
func (m *Manager) Resolve(loc Locator, listener api.Actor) {
	m.EnqueueEvent(&ResolveRequest{Locator: loc, Listener: listener})
}

// NewProxy announces a new local proxy for peer actor id.
func (m *Manager) NewProxy(peer api.NodeID, id api.ActorID) {
	m.EnqueueEvent(&NewProxy{Peer: peer, ID: id})
}

// LocalActorDown reports the termination of local actor id to peer.
func (m *Manager) LocalActorDown(peer api.NodeID, id api.ActorID, reason error) {
	m.EnqueueEvent(&LocalActorDown{ObservingPeer: peer, ID: id, Reason: reason})
}

// Enqueue schedules an outbound message. Safe from any thread.
func (m *Manager) Enqueue(env *api.Envelope, receiver api.Actor, payload []byte) {
	m.push(&Message{Envelope: env, Receiver: receiver, Payload: payload})
}

// EnqueueEvent schedules a control event. Safe from any thread.
func (m *Manager) EnqueueEvent(ev Event) {
	m.push(ev)
}

func (m *Manager) push(el Element) {
	if m.closed.Load() {
		m.log.Debug("dropping element for closed endpoint")
		return
	}
	if m.queue.Push(el) {
		m.Multiplexer().RegisterWriting(m)
	}
}

// SetTimeout schedules a Timeout event after d and returns its id.
func (m *Manager) SetTimeout(tag string, d time.Duration) uint64 {
	id := m.timeoutIDs.Add(1)
	m.sys.Clock().Schedule(d, func() {
		m.EnqueueEvent(&Timeout{Tag: tag, ID: id})
	})
	return id
}

// NextMessage returns the next outbound message. Control events met on the
// way are dispatched to the transport.
func (m *Manager) NextMessage() *Message {
	for !m.aborted {
		switch x := m.queue.Next().(type) {
		case nil:
			return nil
		case *Message:
			return x
		case *ResolveRequest:
			m.transport.Resolve(m, x.Locator, x.Listener)
		case *NewProxy:
			m.transport.NewProxy(m, x.Peer, x.ID)
		case *LocalActorDown:
			m.transport.LocalActorDown(m, x.ObservingPeer, x.ID, x.Reason)
		case *Timeout:
			m.transport.Timeout(m, x.Tag, x.ID)
		}
	}
	return nil
}

// Abort fails the connection: the transport sees err and the manager drops
// all interest, which removes it from the multiplexer.
func (m *Manager) Abort(err error) {
	if m.aborted {
		return
	}
	m.aborted = true
	m.log.Warn("connection aborted", zap.Error(err))
	m.transport.HandleError(err)
	m.MaskDel(reactor.OpReadWrite)
}

// Aborted reports whether Abort was called.
func (m *Manager) Aborted() bool { return m.aborted }

func (m *Manager) HandleReadEvent() bool {
	if m.aborted {
		return false
	}
	return m.transport.HandleReadEvent(m)
}

func (m *Manager) HandleWriteEvent() bool {
	if m.aborted {
		return false
	}
	if m.transport.HandleWriteEvent(m) {
		return true
	}
	if m.aborted {
		return false
	}
	// Keep write interest if messages arrived after the transport drained.
	return !m.queue.TryBlock()
}

func (m *Manager) HandleError(err error) {
	if m.aborted {
		return
	}
	m.aborted = true
	m.transport.HandleError(err)
}

// Closed reports whether the socket was released.
func (m *Manager) Closed() bool { return m.closed.Load() }

// Close releases the socket and runs the close hooks once.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := m.ManagerBase.Close()
	for _, fn := range m.onClose {
		fn(m)
	}
	return err
}
