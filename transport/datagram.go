// File: transport/datagram.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Datagram transport: one frame per datagram, one application per remote
// endpoint. A dispatcher routes inbound datagrams by source address and
// outbound work by node id.

package transport

import (
	"errors"
	"net/netip"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/endpoint"
	"github.com/momentics/hioload-basp/internal/sockets"
	"github.com/momentics/hioload-basp/pool"
	"go.uber.org/zap"
)

// ErrTruncatedDatagram reports a datagram shorter than the configured read.
var ErrTruncatedDatagram = errors.New("datagram shorter than the configured read size")

// ApplicationFactory creates the application for a new remote endpoint.
type ApplicationFactory func(ep netip.AddrPort) Application

type datagram struct {
	ep     netip.AddrPort
	header []byte
	bufs   [][]byte
}

// DatagramTransport drives one application per remote endpoint over a
// single unconnected datagram socket.
type DatagramTransport struct {
	cfg     config
	factory ApplicationFactory
	mgr     *endpoint.Manager

	workers   map[netip.AddrPort]*datagramWorker
	byNode    map[api.NodeID]*datagramWorker
	byTimeout map[uint64]*datagramWorker

	readBuf     []byte
	packets     *queue.Queue
	headerBufs  *pool.BufferCache
	payloadBufs *pool.BufferCache
}

// NewDatagramTransport creates a transport. If factory is nil, datagrams from
// endpoints without a worker are dropped.
func NewDatagramTransport(factory ApplicationFactory, opts ...Option) *DatagramTransport {
	cfg := newConfig(opts)
	cfg.log = cfg.log.Named("datagram")
	return &DatagramTransport{
		cfg:         cfg,
		factory:     factory,
		workers:     make(map[netip.AddrPort]*datagramWorker),
		byNode:      make(map[api.NodeID]*datagramWorker),
		byTimeout:   make(map[uint64]*datagramWorker),
		readBuf:     make([]byte, sockets.MaxDatagramSize),
		packets:     queue.New(),
		headerBufs:  pool.NewBufferCache(cfg.maxHeaderBuffers, headerBufferSize),
		payloadBufs: pool.NewBufferCache(cfg.maxPayloadBuffers, payloadBufferSize),
	}
}

func (t *DatagramTransport) Init(m *endpoint.Manager) error {
	t.mgr = m
	m.Multiplexer().RegisterReading(m)
	return nil
}

// AddNewWorker starts an application for ep. A valid node routes outbound
// messages and resolves for that node to the new worker. Reactor thread only.
func (t *DatagramTransport) AddNewWorker(node api.NodeID, ep netip.AddrPort, app Application) error {
	w := &datagramWorker{t: t, ep: ep, app: app, policy: Exactly(sockets.MaxDatagramSize)}
	t.workers[ep] = w
	if node.Valid() {
		t.byNode[node] = w
	}
	if err := app.Init(w); err != nil {
		t.removeWorker(w)
		return err
	}
	return nil
}

// NumWorkers returns the number of remote endpoints with a worker.
func (t *DatagramTransport) NumWorkers() int { return len(t.workers) }

func (t *DatagramTransport) removeWorker(w *datagramWorker) {
	delete(t.workers, w.ep)
	for node, x := range t.byNode {
		if x == w {
			delete(t.byNode, node)
		}
	}
	for id, x := range t.byTimeout {
		if x == w {
			delete(t.byTimeout, id)
		}
	}
}

func (t *DatagramTransport) route(node api.NodeID) *datagramWorker {
	if w, ok := t.byNode[node]; ok {
		return w
	}
	for _, w := range t.workers {
		if p, ok := w.app.(Peer); ok && p.Peer() == node {
			t.byNode[node] = w
			return w
		}
	}
	return nil
}

func (t *DatagramTransport) HandleReadEvent(m *endpoint.Manager) bool {
	for i := 0; i < t.cfg.maxConsecutiveReads; i++ {
		n, ep, err := sockets.RecvFrom(m.Handle(), t.readBuf)
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return true
			}
			m.Abort(err)
			return false
		}
		t.cfg.count("transport.bytes_in", int64(n))
		w, ok := t.workers[ep]
		if !ok {
			if t.factory == nil {
				t.cfg.log.Debug("datagram from unknown endpoint", zap.Stringer("ep", ep))
				continue
			}
			if err := t.AddNewWorker("", ep, t.factory(ep)); err != nil {
				t.cfg.log.Warn("failed to start worker", zap.Stringer("ep", ep), zap.Error(err))
				continue
			}
			w = t.workers[ep]
		}
		if err := w.deliver(t.readBuf[:n]); err != nil {
			t.cfg.log.Warn("dropping endpoint", zap.Stringer("ep", ep), zap.Error(err))
			w.app.HandleError(err)
			t.removeWorker(w)
		}
	}
	return true
}

func (t *DatagramTransport) HandleWriteEvent(m *endpoint.Manager) bool {
	for {
		if err := t.flush(m.Handle()); err != nil {
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
			if t.packets.Length() == 0 {
				return false
			}
			continue
		}
		w := t.route(msg.Receiver.Node())
		if w == nil {
			t.cfg.log.Warn("no route for message", zap.String("node", string(msg.Receiver.Node())))
			continue
		}
		if err := w.app.WriteMessage(w, msg); err != nil {
			t.cfg.log.Warn("dropping outbound message", zap.Error(err))
		}
	}
}

// flush sends queued datagrams. Per-datagram failures drop that datagram
// only; a blocked socket ends the pass.
func (t *DatagramTransport) flush(h sockets.Socket) error {
	for t.packets.Length() > 0 {
		d := t.packets.Peek().(datagram)
		n, err := sockets.SendTo(h, d.bufs, d.ep)
		if errors.Is(err, api.ErrWouldBlock) {
			return err
		}
		t.packets.Remove()
		if err != nil {
			t.cfg.log.Warn("send failed", zap.Stringer("ep", d.ep), zap.Error(err))
		} else {
			t.cfg.count("transport.bytes_out", int64(n))
		}
		t.headerBufs.Put(d.header)
		for _, b := range d.bufs[1:] {
			t.payloadBufs.Put(b)
		}
	}
	return nil
}

func (t *DatagramTransport) HandleError(err error) {
	for _, w := range t.workers {
		w.app.HandleError(err)
	}
}

func (t *DatagramTransport) Resolve(m *endpoint.Manager, loc endpoint.Locator, listener api.Actor) {
	w := t.route(loc.Node)
	if w == nil {
		if listener != nil {
			listener.Enqueue(&api.Envelope{Content: api.ErrRemoteLookupFailed})
		}
		return
	}
	w.app.Resolve(w, loc.Path, listener)
}

func (t *DatagramTransport) NewProxy(m *endpoint.Manager, peer api.NodeID, id api.ActorID) {
	if w := t.route(peer); w != nil {
		w.app.NewProxy(w, peer, id)
	}
}

func (t *DatagramTransport) LocalActorDown(m *endpoint.Manager, peer api.NodeID, id api.ActorID, reason error) {
	if w := t.route(peer); w != nil {
		w.app.LocalActorDown(w, peer, id, reason)
	}
}

func (t *DatagramTransport) Timeout(m *endpoint.Manager, tag string, id uint64) {
	w, ok := t.byTimeout[id]
	if !ok {
		return
	}
	delete(t.byTimeout, id)
	if err := w.app.Timeout(w, tag, id); err != nil {
		w.app.HandleError(err)
		t.removeWorker(w)
	}
}

// datagramWorker is the PacketWriter of one remote endpoint.
type datagramWorker struct {
	t      *DatagramTransport
	ep     netip.AddrPort
	app    Application
	policy ReceivePolicy
}

// deliver slices one datagram into the units the application asks for.
func (w *datagramWorker) deliver(data []byte) error {
	for len(data) > 0 {
		limit := min(len(data), w.policy.BufferSize())
		if limit < w.policy.Threshold() {
			return ErrTruncatedDatagram
		}
		if w.policy.Kind == PolicyExactly {
			limit = w.policy.Size
		}
		chunk := data[:limit]
		data = data[limit:]
		if err := w.app.HandleData(w, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (w *datagramWorker) ConfigureRead(p ReceivePolicy) { w.policy = p }

func (w *datagramWorker) WritePacket(header []byte, payload ...[]byte) {
	t := w.t
	bufs := make([][]byte, 0, len(payload)+1)
	bufs = append(bufs, header)
	for _, p := range payload {
		if len(p) > 0 {
			bufs = append(bufs, p)
		}
	}
	wasEmpty := t.packets.Length() == 0
	t.packets.Add(datagram{ep: w.ep, header: header, bufs: bufs})
	if wasEmpty {
		t.mgr.Multiplexer().RegisterWriting(t.mgr)
	}
}

func (w *datagramWorker) NextHeaderBuffer() []byte   { return w.t.headerBufs.Get() }
func (w *datagramWorker) NextPayloadBuffer() []byte  { return w.t.payloadBufs.Get() }
func (w *datagramWorker) Manager() *endpoint.Manager { return w.t.mgr }
func (w *datagramWorker) System() api.System         { return w.t.mgr.System() }

func (w *datagramWorker) SetTimeout(tag string, d time.Duration) uint64 {
	id := w.t.mgr.SetTimeout(tag, d)
	w.t.byTimeout[id] = w
	return id
}

var (
	_ endpoint.Transport = (*DatagramTransport)(nil)
	_ PacketWriter       = (*datagramWorker)(nil)
)
