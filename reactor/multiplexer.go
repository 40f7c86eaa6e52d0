// File: reactor/multiplexer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multiplexer owns the socket managers and the poll set. Only the reactor
// thread mutates either; other threads queue updates and wake the reactor
// through a self-pipe.

package reactor

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-basp/control"
	"github.com/momentics/hioload-basp/internal/sockets"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const defaultMaxEvents = 64

// Option customizes a Multiplexer.
type Option func(*Multiplexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Multiplexer) { m.log = l }
}

// WithMetrics publishes the number of active managers.
func WithMetrics(r *control.MetricsRegistry) Option {
	return func(m *Multiplexer) { m.metrics = r }
}

// WithMaxEvents bounds the number of events fetched per poll.
func WithMaxEvents(n int) Option {
	return func(m *Multiplexer) {
		if n > 0 {
			m.maxEvents = n
		}
	}
}

// update is one cross-thread request for the reactor thread.
type update struct {
	op  Operation
	mgr SocketManager
	fn  func()
}

// opExecute runs a function on the reactor thread. It never reaches a mask.
const opExecute Operation = 8

// Multiplexer polls sockets and dispatches readiness to their managers.
type Multiplexer struct {
	log       *zap.Logger
	metrics   *control.MetricsRegistry
	maxEvents int

	// reactor-thread state
	poller       *poller
	managers     []SocketManager
	registered   []Operation
	index        map[sockets.Socket]int
	ready        []readyEvent
	updater      *pollsetUpdater
	shuttingDown bool

	tid atomic.Int64

	mu          sync.Mutex
	writeFd     sockets.Socket
	pending     *queue.Queue
	wakePending bool
}

// NewMultiplexer creates an uninitialized multiplexer. Call Init before use.
func NewMultiplexer(opts ...Option) *Multiplexer {
	m := &Multiplexer{
		log:       zap.L(),
		maxEvents: defaultMaxEvents,
		index:     make(map[sockets.Socket]int),
		writeFd:   sockets.Invalid,
		pending:   queue.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("mpx")
	return m
}

// Init creates the poll set and installs the pollset updater.
func (m *Multiplexer) Init() error {
	p, err := newPoller(m.maxEvents)
	if err != nil {
		return err
	}
	rd, wr, err := sockets.MakePipe()
	if err != nil {
		p.close()
		return err
	}
	m.poller = p
	m.ready = make([]readyEvent, 0, m.maxEvents)
	m.mu.Lock()
	m.writeFd = wr
	m.mu.Unlock()
	m.updater = newPollsetUpdater(rd, m)
	m.apply(OpRead, m.updater)
	return nil
}

// SetThreadID binds the calling goroutine to its OS thread and marks that
// thread as the reactor thread.
func (m *Multiplexer) SetThreadID() {
	runtime.LockOSThread()
	m.tid.Store(currentThreadID())
}

func (m *Multiplexer) onReactorThread() bool {
	tid := m.tid.Load()
	return tid != 0 && tid == currentThreadID()
}

// NumSocketManagers returns the number of managers in the poll set.
// Reactor thread only.
func (m *Multiplexer) NumSocketManagers() int { return len(m.managers) }

// RegisterReading adds read interest for mgr. Safe from any thread.
func (m *Multiplexer) RegisterReading(mgr SocketManager) {
	m.request(OpRead, mgr)
}

// RegisterWriting adds write interest for mgr. Safe from any thread.
func (m *Multiplexer) RegisterWriting(mgr SocketManager) {
	m.request(OpWrite, mgr)
}

// Shutdown stops all managers. Safe from any thread; repeated calls are no-ops.
func (m *Multiplexer) Shutdown() {
	m.request(OpShutdown, nil)
}

// Execute runs fn on the reactor thread, immediately if called from it.
// It reports false if the pipe is closed and fn was dropped.
func (m *Multiplexer) Execute(fn func()) bool {
	if m.onReactorThread() {
		fn()
		return true
	}
	return m.enqueue(update{op: opExecute, fn: fn})
}

func (m *Multiplexer) request(op Operation, mgr SocketManager) {
	if m.onReactorThread() {
		m.apply(op, mgr)
		return
	}
	m.enqueue(update{op: op, mgr: mgr})
}

func (m *Multiplexer) enqueue(u update) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.writeFd.Valid() {
		return false
	}
	m.pending.Add(u)
	if m.wakePending {
		return true
	}
	m.wakePending = true
	if _, err := sockets.Write(m.writeFd, []byte{byte(u.op)}); err != nil {
		m.log.Error("failed to wake reactor", zap.Error(err))
	}
	return true
}

// ClosePipe closes the write end of the self-pipe. Later cross-thread
// registrations are dropped and the pollset updater leaves the poll set once
// it drains the pipe.
func (m *Multiplexer) ClosePipe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeFd.Valid() {
		sockets.Close(m.writeFd)
		m.writeFd = sockets.Invalid
	}
}

// drainPending applies queued cross-thread requests in submission order.
func (m *Multiplexer) drainPending() {
	m.mu.Lock()
	batch := make([]update, 0, m.pending.Length())
	for m.pending.Length() > 0 {
		batch = append(batch, m.pending.Remove().(update))
	}
	m.wakePending = false
	m.mu.Unlock()
	for _, u := range batch {
		if u.op == opExecute {
			u.fn()
			continue
		}
		m.apply(u.op, u.mgr)
	}
}

func (m *Multiplexer) apply(op Operation, mgr SocketManager) {
	if c, ok := mgr.(interface{ Closed() bool }); ok && c.Closed() {
		return
	}
	switch op {
	case OpRead:
		if m.shuttingDown {
			return
		}
		if mgr.MaskAdd(OpRead) {
			m.sync(mgr)
		}
	case OpWrite:
		if mgr.MaskAdd(OpWrite) {
			m.sync(mgr)
		}
	case OpShutdown:
		m.shutdown()
	}
}

func (m *Multiplexer) shutdown() {
	if m.shuttingDown {
		return
	}
	m.log.Debug("shutting down", zap.Int("managers", len(m.managers)))
	m.shuttingDown = true
	m.ClosePipe()
	managers := append([]SocketManager(nil), m.managers...)
	for _, mgr := range managers {
		if mgr == SocketManager(m.updater) {
			continue
		}
		if mgr.MaskDel(OpRead) {
			m.sync(mgr)
		}
	}
}

// sync brings the poll set in line with the manager's mask. A manager without
// interest is removed and closed.
func (m *Multiplexer) sync(mgr SocketManager) {
	fd := mgr.Handle()
	want := mgr.Mask() & OpReadWrite
	idx, known := m.index[fd]
	if known && m.managers[idx] != mgr {
		known = false
	}
	switch {
	case want == OpNone:
		if known {
			m.remove(idx)
		}
	case !known:
		if err := m.poller.add(fd, want); err != nil {
			m.log.Warn("failed to add socket", zap.Stringer("fd", fd), zap.Error(err))
			mgr.HandleError(err)
			mgr.MaskDel(OpReadWrite)
			m.closeManager(mgr)
			return
		}
		m.index[fd] = len(m.managers)
		m.managers = append(m.managers, mgr)
		m.registered = append(m.registered, want)
		m.publish()
	case m.registered[idx] != want:
		if err := m.poller.mod(fd, want); err != nil {
			m.log.Warn("failed to update socket", zap.Stringer("fd", fd), zap.Error(err))
			mgr.HandleError(err)
			mgr.MaskDel(OpReadWrite)
			m.remove(idx)
			return
		}
		m.registered[idx] = want
	}
}

func (m *Multiplexer) remove(idx int) {
	mgr := m.managers[idx]
	fd := mgr.Handle()
	if err := m.poller.del(fd); err != nil {
		m.log.Debug("failed to remove socket", zap.Stringer("fd", fd), zap.Error(err))
	}
	last := len(m.managers) - 1
	if idx != last {
		m.managers[idx] = m.managers[last]
		m.registered[idx] = m.registered[last]
		m.index[m.managers[idx].Handle()] = idx
	}
	m.managers[last] = nil
	m.managers = m.managers[:last]
	m.registered = m.registered[:last]
	delete(m.index, fd)
	m.closeManager(mgr)
	m.publish()
}

func (m *Multiplexer) closeManager(mgr SocketManager) {
	if err := mgr.Close(); err != nil {
		m.log.Debug("failed to close manager", zap.Error(err))
	}
}

func (m *Multiplexer) publish() {
	if m.metrics != nil {
		m.metrics.Set("mpx.managers", len(m.managers))
	}
}

// PollOnce runs one poll call and dispatches the ready events. It returns
// true if at least one event was handled.
func (m *Multiplexer) PollOnce(blocking bool) bool {
	if len(m.managers) == 0 {
		return false
	}
	timeout := 0
	if blocking {
		timeout = -1
	}
	ready, err := m.poller.wait(m.ready[:0], timeout)
	if err != nil {
		m.log.Error("poll failed", zap.Error(err))
		return false
	}
	for _, ev := range ready {
		idx, ok := m.index[ev.fd]
		if !ok {
			continue
		}
		m.handle(m.managers[idx], ev.flags)
	}
	return len(ready) > 0
}

func (m *Multiplexer) handle(mgr SocketManager, flags uint32) {
	checkError := true
	if flags&evRead != 0 && mgr.Mask()&OpRead != 0 {
		checkError = false
		if !mgr.HandleReadEvent() {
			mgr.MaskDel(OpRead)
		}
	}
	if flags&evWrite != 0 && mgr.Mask()&OpWrite != 0 {
		checkError = false
		if !mgr.HandleWriteEvent() {
			mgr.MaskDel(OpWrite)
		}
	}
	if checkError && flags&(evError|evHangup) != 0 {
		if flags&evHangup != 0 {
			mgr.HandleError(errHangup)
		} else {
			mgr.HandleError(errPollFailed)
		}
		mgr.MaskDel(OpReadWrite)
	}
	m.sync(mgr)
}

// Run polls until no managers remain.
func (m *Multiplexer) Run() {
	for len(m.managers) > 0 {
		m.PollOnce(true)
	}
}

// Close releases the poll set and every remaining manager.
func (m *Multiplexer) Close() error {
	var err error
	m.ClosePipe()
	for _, mgr := range m.managers {
		err = multierr.Append(err, mgr.Close())
	}
	m.managers = nil
	m.registered = nil
	clear(m.index)
	if m.poller != nil {
		err = multierr.Append(err, m.poller.close())
		m.poller = nil
	}
	return err
}
