package basp

import (
	"testing"
	"time"

	"github.com/momentics/hioload-basp/actor"
	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/endpoint"
	"github.com/momentics/hioload-basp/transport"
	"go.uber.org/zap/zaptest"
)

type frame struct {
	hdr     Header
	payload []byte
}

type timeoutRequest struct {
	tag string
	id  uint64
	d   time.Duration
}

// recordingWriter captures frames instead of writing them to a socket.
type recordingWriter struct {
	sys      api.System
	policy   transport.ReceivePolicy
	frames   []frame
	timeouts []timeoutRequest
}

func (w *recordingWriter) ConfigureRead(p transport.ReceivePolicy) { w.policy = p }

func (w *recordingWriter) WritePacket(header []byte, payload ...[]byte) {
	hdr, err := ParseHeader(header)
	if err != nil {
		panic(err)
	}
	var body []byte
	for _, p := range payload {
		body = append(body, p...)
	}
	w.frames = append(w.frames, frame{hdr: hdr, payload: body})
}

func (w *recordingWriter) NextHeaderBuffer() []byte   { return make([]byte, 0, HeaderSize) }
func (w *recordingWriter) NextPayloadBuffer() []byte  { return nil }
func (w *recordingWriter) Manager() *endpoint.Manager { return nil }
func (w *recordingWriter) System() api.System         { return w.sys }

func (w *recordingWriter) SetTimeout(tag string, d time.Duration) uint64 {
	id := uint64(len(w.timeouts) + 1)
	w.timeouts = append(w.timeouts, timeoutRequest{tag: tag, id: id, d: d})
	return id
}

// take returns and forgets the recorded frames.
func (w *recordingWriter) take() []frame {
	f := w.frames
	w.frames = nil
	return f
}

type node struct {
	sys     *actor.System
	proxies *actor.ProxyRegistry
	app     *Application
	w       *recordingWriter
}

func newNode(t *testing.T, id api.NodeID, appIDs []string, opts ...Option) *node {
	t.Helper()
	log := zaptest.NewLogger(t)
	sys := actor.NewSystem(id, appIDs, actor.WithLogger(log), actor.WithWorkers(4))
	t.Cleanup(sys.Close)
	proxies := actor.NewProxyRegistry(nil)
	opts = append([]Option{WithLogger(log)}, opts...)
	n := &node{
		sys:     sys,
		proxies: proxies,
		app:     NewApplication(sys, proxies, opts...),
		w:       &recordingWriter{sys: sys},
	}
	if err := n.app.Init(n.w); err != nil {
		t.Fatal(err)
	}
	return n
}

// feed hands a frame to the application the way a stream transport would.
func (n *node) feed(f frame) error {
	if err := n.app.HandleData(n.w, f.hdr.AppendTo(nil)); err != nil {
		return err
	}
	if len(f.payload) == 0 {
		return nil
	}
	if n.w.policy.BufferSize() != len(f.payload) {
		panic("application asked for an unexpected payload size")
	}
	return n.app.HandleData(n.w, f.payload)
}

func handshakeFrame(t *testing.T, id string, appIDs ...string) frame {
	t.Helper()
	payload, err := DefaultCodec.Marshal(handshakePayload{Node: id, AppIdentifiers: appIDs})
	if err != nil {
		t.Fatal(err)
	}
	return frame{Header{Handshake, uint32(len(payload)), Version}, payload}
}

// connect exchanges handshakes between a and b and clears their output.
func connect(t *testing.T, a, b *node) {
	t.Helper()
	for _, f := range a.w.take() {
		if err := b.feed(f); err != nil {
			t.Fatalf("b: %v", err)
		}
	}
	for _, f := range b.w.take() {
		if err := a.feed(f); err != nil {
			t.Fatalf("a: %v", err)
		}
	}
	if a.app.State() != AwaitHeader || b.app.State() != AwaitHeader {
		t.Fatalf("states %s/%s after handshake", a.app.State(), b.app.State())
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := DefaultCodec.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
