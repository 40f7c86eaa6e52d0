//go:build linux

package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/momentics/hioload-basp/actor"
	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/control"
	"github.com/momentics/hioload-basp/endpoint"
	"github.com/momentics/hioload-basp/internal/sockets"
	"github.com/momentics/hioload-basp/reactor"
	"go.uber.org/zap/zaptest"
)

var errBoom = errors.New("boom")

// lengthApp frames messages as a 4-byte length followed by the payload.
type lengthApp struct {
	peer     api.NodeID
	inBody   bool
	got      [][]byte
	errs     []error
	resolves []string
	timeouts []string
}

func (a *lengthApp) Peer() api.NodeID { return a.peer }

func (a *lengthApp) Init(w PacketWriter) error {
	w.ConfigureRead(Exactly(4))
	return nil
}

func (a *lengthApp) HandleData(w PacketWriter, data []byte) error {
	if !a.inBody {
		n := binary.BigEndian.Uint32(data)
		if n == 0 {
			a.got = append(a.got, []byte{})
			return nil
		}
		a.inBody = true
		w.ConfigureRead(Exactly(int(n)))
		return nil
	}
	if string(data) == "fail" {
		return errBoom
	}
	a.got = append(a.got, bytes.Clone(data))
	a.inBody = false
	w.ConfigureRead(Exactly(4))
	return nil
}

func (a *lengthApp) WriteMessage(w PacketWriter, msg *endpoint.Message) error {
	hdr := binary.BigEndian.AppendUint32(w.NextHeaderBuffer(), uint32(len(msg.Payload)))
	w.WritePacket(hdr, append(w.NextPayloadBuffer(), msg.Payload...))
	return nil
}

func (a *lengthApp) Resolve(w PacketWriter, path string, listener api.Actor) {
	a.resolves = append(a.resolves, path)
}

func (a *lengthApp) NewProxy(PacketWriter, api.NodeID, api.ActorID)              {}
func (a *lengthApp) LocalActorDown(PacketWriter, api.NodeID, api.ActorID, error) {}

func (a *lengthApp) Timeout(w PacketWriter, tag string, id uint64) error {
	a.timeouts = append(a.timeouts, tag)
	return nil
}

func (a *lengthApp) HandleError(err error) { a.errs = append(a.errs, err) }

type harness struct {
	mpx *reactor.Multiplexer
	sys *actor.System
	reg *control.MetricsRegistry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	mpx := reactor.NewMultiplexer(reactor.WithLogger(log))
	if err := mpx.Init(); err != nil {
		t.Fatal(err)
	}
	mpx.SetThreadID()
	sys := actor.NewSystem("n1", []string{"app"}, actor.WithLogger(log), actor.WithWorkers(2))
	t.Cleanup(func() {
		sys.Close()
		mpx.Close()
	})
	return &harness{mpx: mpx, sys: sys, reg: control.NewMetricsRegistry()}
}

func (h *harness) pollUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		if !h.mpx.PollOnce(false) {
			time.Sleep(time.Millisecond)
		}
	}
}

func (h *harness) manager(t *testing.T, s sockets.Socket, tr endpoint.Transport, opts ...endpoint.ManagerOption) *endpoint.Manager {
	t.Helper()
	m := endpoint.NewManager(s, h.mpx, h.sys, tr, opts...)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestStreamTransportFraming(t *testing.T) {
	h := newHarness(t)
	a, b, err := sockets.StreamPair()
	if err != nil {
		t.Fatal(err)
	}
	appA, appB := &lengthApp{}, &lengthApp{}
	ta := NewStreamTransport(appA, WithMetrics(h.reg))
	ma := h.manager(t, a, ta)
	closed := 0
	h.manager(t, b, NewStreamTransport(appB, WithMetrics(h.reg), WithMaxConsecutiveReads(2)),
		endpoint.WithCloseHook(func(*endpoint.Manager) { closed++ }))

	big := bytes.Repeat([]byte("0123456789"), 30000)
	receiver := actor.NewProxy("n2", 1, nil)
	for _, p := range [][]byte{[]byte("hello"), big, nil} {
		ma.Enqueue(&api.Envelope{}, receiver, p)
	}
	ma.Resolve(endpoint.Locator{Node: "n2", Path: "name/x"}, nil)
	ma.SetTimeout("tick", time.Millisecond)

	h.pollUntil(t, func() bool { return len(appB.got) == 3 && len(appA.timeouts) == 1 })
	if string(appB.got[0]) != "hello" || !bytes.Equal(appB.got[1], big) || len(appB.got[2]) != 0 {
		t.Fatal("payloads corrupted or reordered")
	}
	if len(appA.resolves) != 1 || appA.resolves[0] != "name/x" || appA.timeouts[0] != "tick" {
		t.Fatalf("events: resolves %v timeouts %v", appA.resolves, appA.timeouts)
	}
	if in := h.reg.Counter("transport.bytes_in"); in < int64(len(big)) {
		t.Fatalf("bytes_in = %d", in)
	}
	if headers, _ := ta.BufferStats(); headers.Cached == 0 {
		t.Fatalf("header buffers not recycled: %+v", headers)
	}

	ma.Enqueue(&api.Envelope{}, receiver, []byte("fail"))
	h.pollUntil(t, func() bool { return closed == 1 && len(appA.errs) == 1 })
	if !errors.Is(appB.errs[0], errBoom) {
		t.Fatalf("receiver error %v", appB.errs)
	}
	if !errors.Is(appA.errs[0], api.ErrSocketDisconnected) {
		t.Fatalf("sender error %v", appA.errs)
	}
	h.pollUntil(t, func() bool { return h.mpx.NumSocketManagers() == 1 })
}

func TestDatagramTransportRouting(t *testing.T) {
	h := newHarness(t)
	loopback := netip.MustParseAddrPort("127.0.0.1:0")
	u1, err := sockets.ListenUDP(loopback)
	if err != nil {
		t.Fatal(err)
	}
	u2, err := sockets.ListenUDP(loopback)
	if err != nil {
		t.Fatal(err)
	}
	addr1, _ := sockets.LocalAddr(u1)

	var created []*lengthApp
	t1 := NewDatagramTransport(func(netip.AddrPort) Application {
		a := &lengthApp{}
		created = append(created, a)
		return a
	})
	t2 := NewDatagramTransport(nil)
	h.manager(t, u1, t1)
	m2 := h.manager(t, u2, t2)
	app2 := &lengthApp{peer: "n1"}
	if err := t2.AddNewWorker("n1", addr1, app2); err != nil {
		t.Fatal(err)
	}

	m2.Enqueue(&api.Envelope{}, actor.NewProxy("nowhere", 1, nil), []byte("lost"))
	m2.Enqueue(&api.Envelope{}, actor.NewProxy("n1", 1, nil), []byte("datagram"))
	m2.Enqueue(&api.Envelope{}, actor.NewProxy("n1", 1, nil), nil)
	h.pollUntil(t, func() bool { return len(created) == 1 && len(created[0].got) == 2 })
	if string(created[0].got[0]) != "datagram" || len(created[0].got[1]) != 0 {
		t.Fatalf("got %q", created[0].got)
	}
	if t1.NumWorkers() != 1 || t2.NumWorkers() != 1 {
		t.Fatalf("workers %d/%d", t1.NumWorkers(), t2.NumWorkers())
	}

	listener := actor.NewMailbox(7, "n1")
	m2.Resolve(endpoint.Locator{Node: "nobody", Path: "name/x"}, listener)
	m2.Resolve(endpoint.Locator{Node: "n1", Path: "name/y"}, listener)
	h.pollUntil(t, func() bool { return listener.Len() == 1 && len(app2.resolves) == 1 })
	if env := listener.TryReceive(); !errors.Is(env.Content.(error), api.ErrRemoteLookupFailed) {
		t.Fatalf("listener got %v", env.Content)
	}
}

func TestReceivePolicies(t *testing.T) {
	tests := []struct {
		p                 ReceivePolicy
		buffer, threshold int
		name              string
	}{
		{Exactly(13), 13, 13, "exactly(13)"},
		{AtMost(64), 64, 1, "at_most(64)"},
		{AtLeast(10), 110, 10, "at_least(10)"},
		{AtLeast(5000), 5500, 5000, "at_least(5000)"},
	}
	for _, tt := range tests {
		if tt.p.BufferSize() != tt.buffer || tt.p.Threshold() != tt.threshold || tt.p.String() != tt.name {
			t.Errorf("%s: buffer %d threshold %d", tt.p, tt.p.BufferSize(), tt.p.Threshold())
		}
	}
}
