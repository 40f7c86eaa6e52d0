// File: transport/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stream transport: accumulates bytes until the application's receive policy
// is satisfied and writes queued frames in order.

package transport

import (
	"errors"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/endpoint"
	"github.com/momentics/hioload-basp/internal/sockets"
	"github.com/momentics/hioload-basp/pool"
	"go.uber.org/zap"
)

type writeEntry struct {
	header bool
	buf    []byte
}

// StreamTransport drives one Application over a connected stream socket.
type StreamTransport struct {
	cfg config
	app Application
	mgr *endpoint.Manager

	readBuf   []byte
	collected int
	policy    ReceivePolicy

	writeQueue  *queue.Queue
	written     int
	headerBufs  *pool.BufferCache
	payloadBufs *pool.BufferCache
}

// NewStreamTransport creates a transport for app.
func NewStreamTransport(app Application, opts ...Option) *StreamTransport {
	cfg := newConfig(opts)
	cfg.log = cfg.log.Named("stream")
	return &StreamTransport{
		cfg:         cfg,
		app:         app,
		writeQueue:  queue.New(),
		headerBufs:  pool.NewBufferCache(cfg.maxHeaderBuffers, headerBufferSize),
		payloadBufs: pool.NewBufferCache(cfg.maxPayloadBuffers, payloadBufferSize),
	}
}

// Application returns the driven application.
func (t *StreamTransport) Application() Application { return t.app }

func (t *StreamTransport) Init(m *endpoint.Manager) error {
	t.mgr = m
	if err := sockets.SetNoDelay(m.Handle(), true); err != nil {
		t.cfg.log.Debug("TCP_NODELAY not applied", zap.Error(err))
	}
	t.ConfigureRead(Exactly(initialReadSize))
	if err := t.app.Init(t); err != nil {
		return err
	}
	m.Multiplexer().RegisterReading(m)
	return nil
}

func (t *StreamTransport) HandleReadEvent(m *endpoint.Manager) bool {
	for i := 0; i < t.cfg.maxConsecutiveReads; i++ {
		n, err := sockets.Read(m.Handle(), t.readBuf[t.collected:])
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return true
			}
			m.Abort(err)
			return false
		}
		t.cfg.count("transport.bytes_in", int64(n))
		t.collected += n
		if t.collected >= t.policy.Threshold() {
			data := t.readBuf[:t.collected]
			t.collected = 0
			if err := t.app.HandleData(t, data); err != nil {
				m.Abort(err)
				return false
			}
			if m.Aborted() {
				return false
			}
		}
	}
	return true
}

func (t *StreamTransport) HandleWriteEvent(m *endpoint.Manager) bool {
	for {
		if err := t.drain(m.Handle()); err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return true
			}
			m.Abort(err)
			return false
		}
		msg := m.NextMessage()
		if m.Aborted() {
			return false
		}
		if msg == nil {
			if t.writeQueue.Length() == 0 {
				return false
			}
			continue
		}
		if err := t.app.WriteMessage(t, msg); err != nil {
			t.cfg.log.Warn("dropping outbound message", zap.Error(err))
		}
	}
}

// drain writes queued buffers until the queue is empty or the socket blocks.
func (t *StreamTransport) drain(h sockets.Socket) error {
	for t.writeQueue.Length() > 0 {
		e := t.writeQueue.Peek().(writeEntry)
		n, err := sockets.Write(h, e.buf[t.written:])
		if err != nil {
			return err
		}
		t.cfg.count("transport.bytes_out", int64(n))
		t.written += n
		if t.written < len(e.buf) {
			return api.ErrWouldBlock
		}
		t.writeQueue.Remove()
		t.written = 0
		if e.header {
			t.headerBufs.Put(e.buf)
		} else {
			t.payloadBufs.Put(e.buf)
		}
	}
	return nil
}

func (t *StreamTransport) HandleError(err error) {
	t.app.HandleError(err)
}

func (t *StreamTransport) Resolve(m *endpoint.Manager, loc endpoint.Locator, listener api.Actor) {
	t.app.Resolve(t, loc.Path, listener)
}

func (t *StreamTransport) NewProxy(m *endpoint.Manager, peer api.NodeID, id api.ActorID) {
	t.app.NewProxy(t, peer, id)
}

func (t *StreamTransport) LocalActorDown(m *endpoint.Manager, peer api.NodeID, id api.ActorID, reason error) {
	t.app.LocalActorDown(t, peer, id, reason)
}

func (t *StreamTransport) Timeout(m *endpoint.Manager, tag string, id uint64) {
	if err := t.app.Timeout(t, tag, id); err != nil {
		m.Abort(err)
	}
}

// ConfigureRead implements PacketWriter.
func (t *StreamTransport) ConfigureRead(p ReceivePolicy) {
	t.policy = p
	size := p.BufferSize()
	if cap(t.readBuf) < size {
		buf := make([]byte, size)
		copy(buf, t.readBuf[:t.collected])
		t.readBuf = buf
		return
	}
	t.readBuf = t.readBuf[:size]
}

// WritePacket implements PacketWriter.
func (t *StreamTransport) WritePacket(header []byte, payload ...[]byte) {
	wasEmpty := t.writeQueue.Length() == 0
	t.writeQueue.Add(writeEntry{header: true, buf: header})
	for _, p := range payload {
		if len(p) > 0 {
			t.writeQueue.Add(writeEntry{buf: p})
		}
	}
	if wasEmpty {
		t.mgr.Multiplexer().RegisterWriting(t.mgr)
	}
}

// NextHeaderBuffer implements PacketWriter.
func (t *StreamTransport) NextHeaderBuffer() []byte { return t.headerBufs.Get() }

// NextPayloadBuffer implements PacketWriter.
func (t *StreamTransport) NextPayloadBuffer() []byte { return t.payloadBufs.Get() }

// Manager implements PacketWriter.
func (t *StreamTransport) Manager() *endpoint.Manager { return t.mgr }

// System implements PacketWriter.
func (t *StreamTransport) System() api.System { return t.mgr.System() }

// SetTimeout implements PacketWriter.
func (t *StreamTransport) SetTimeout(tag string, d time.Duration) uint64 {
	return t.mgr.SetTimeout(tag, d)
}

// BufferStats reports the header and payload cache counters.
func (t *StreamTransport) BufferStats() (headers, payloads pool.CacheStats) {
	return t.headerBufs.Stats(), t.payloadBufs.Stats()
}

var (
	_ endpoint.Transport = (*StreamTransport)(nil)
	_ PacketWriter       = (*StreamTransport)(nil)
)
