package basp

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/momentics/hioload-basp/actor"
	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/endpoint"
)

func TestInitSendsHandshake(t *testing.T) {
	n := newNode(t, "n1", []string{"app", "other"}, WithHandshakeTimeout(time.Second))
	frames := n.w.take()
	if len(frames) != 1 {
		t.Fatalf("got %d frames", len(frames))
	}
	f := frames[0]
	if f.hdr.Type != Handshake || f.hdr.OperationData != Version || int(f.hdr.PayloadLen) != len(f.payload) {
		t.Fatalf("header %+v", f.hdr)
	}
	var hs handshakePayload
	if err := DefaultCodec.Unmarshal(f.payload, &hs); err != nil {
		t.Fatal(err)
	}
	if hs.Node != "n1" || len(hs.AppIdentifiers) != 2 {
		t.Fatalf("handshake %+v", hs)
	}
	if n.w.policy.BufferSize() != HeaderSize {
		t.Fatalf("first read %s", n.w.policy)
	}
	if len(n.w.timeouts) != 1 || n.w.timeouts[0].tag != TimeoutHandshake {
		t.Fatalf("timeouts %+v", n.w.timeouts)
	}
}

func TestHandshakeRejections(t *testing.T) {
	valid := handshakeFrame(t, "peer", "app")
	tests := []struct {
		name   string
		frames func(t *testing.T) []frame
		want   error
	}{
		{"wrong kind", func(*testing.T) []frame {
			return []frame{{hdr: Header{Type: Heartbeat, OperationData: Version}}}
		}, ErrMissingHandshake},
		{"wrong version", func(*testing.T) []frame {
			f := valid
			f.hdr.OperationData = Version + 1
			return []frame{f}
		}, ErrVersionMismatch},
		{"no payload", func(*testing.T) []frame {
			return []frame{{hdr: Header{Type: Handshake, OperationData: Version}}}
		}, ErrMissingPayload},
		{"empty node", func(t *testing.T) []frame {
			return []frame{handshakeFrame(t, "", "app")}
		}, ErrInvalidHandshake},
		{"empty app ids", func(t *testing.T) []frame {
			return []frame{handshakeFrame(t, "peer")}
		}, ErrInvalidHandshake},
		{"disjoint app ids", func(t *testing.T) []frame {
			return []frame{handshakeFrame(t, "peer", "x", "y")}
		}, ErrAppIdentifiersMismatch},
		{"garbage payload", func(*testing.T) []frame {
			return []frame{{hdr: Header{Type: Handshake, PayloadLen: 2, OperationData: Version}, payload: []byte{0xff, 0xff}}}
		}, ErrInvalidPayload},
		{"second handshake", func(*testing.T) []frame {
			return []frame{valid, valid}
		}, ErrUnexpectedHandshake},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newNode(t, "n1", []string{"app"})
			var err error
			for _, f := range tt.frames(t) {
				if err = n.feed(f); err != nil {
					break
				}
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if n.app.State() != Shutdown {
				t.Fatalf("state %s after error", n.app.State())
			}
			if err := n.app.HandleData(n.w, make([]byte, HeaderSize)); !errors.Is(err, ErrIllegalState) {
				t.Fatalf("data after shutdown: %v", err)
			}
		})
	}
}

func TestHandshakeHookAndHeartbeat(t *testing.T) {
	var peers []api.NodeID
	n := newNode(t, "n1", []string{"app"},
		WithHeartbeatInterval(time.Second),
		WithHandshakeHook(func(p api.NodeID) { peers = append(peers, p) }))
	n.w.take()
	if err := n.feed(handshakeFrame(t, "n2", "app")); err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 || peers[0] != "n2" || n.app.Peer() != "n2" {
		t.Fatalf("peer %q hooks %v", n.app.Peer(), peers)
	}
	if len(n.w.timeouts) != 1 || n.w.timeouts[0].tag != TimeoutHeartbeat {
		t.Fatalf("timeouts %+v", n.w.timeouts)
	}
	if err := n.app.Timeout(n.w, TimeoutHeartbeat, n.w.timeouts[0].id); err != nil {
		t.Fatal(err)
	}
	frames := n.w.take()
	if len(frames) != 1 || frames[0].hdr.Type != Heartbeat || frames[0].hdr.PayloadLen != 0 {
		t.Fatalf("frames %+v", frames)
	}
	if len(n.w.timeouts) != 2 {
		t.Fatal("heartbeat not rescheduled")
	}
	if err := n.feed(frame{hdr: Header{Type: Heartbeat}}); err != nil {
		t.Fatalf("inbound heartbeat: %v", err)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	n := newNode(t, "n1", []string{"app"}, WithHandshakeTimeout(time.Second))
	if err := n.app.Timeout(n.w, TimeoutHandshake, 1); !errors.Is(err, ErrMissingHandshake) {
		t.Fatalf("err = %v", err)
	}

	done := newNode(t, "n1", []string{"app"}, WithHandshakeTimeout(time.Second))
	if err := done.feed(handshakeFrame(t, "n2", "app")); err != nil {
		t.Fatal(err)
	}
	if err := done.app.Timeout(done.w, TimeoutHandshake, 1); err != nil {
		t.Fatalf("timeout after handshake: %v", err)
	}
}

func TestResolveRoundTrip(t *testing.T) {
	a := newNode(t, "a", []string{"app"})
	b := newNode(t, "b", []string{"app"})
	connect(t, a, b)

	target := b.sys.Spawn("echo")
	listener := actor.NewMailbox(99, "a")
	paths := []string{"name/echo", fmt.Sprintf("id/%d", target.ID()), "name/missing", "bogus"}
	for _, p := range paths {
		a.app.Resolve(a.w, p, listener)
	}
	requests := a.w.take()
	if len(requests) != len(paths) {
		t.Fatalf("%d requests", len(requests))
	}
	for i, f := range requests {
		if f.hdr.Type != ResolveRequest || f.hdr.OperationData != uint64(i+1) {
			t.Fatalf("request %d header %+v", i, f.hdr)
		}
		if err := b.feed(f); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range b.w.take() {
		if f.hdr.Type != ResolveResponse {
			t.Fatalf("response header %+v", f.hdr)
		}
		if err := a.feed(f); err != nil {
			t.Fatal(err)
		}
	}
	if a.app.PendingResolves() != 0 {
		t.Fatalf("%d resolves still pending", a.app.PendingResolves())
	}
	for i, p := range paths {
		env := listener.TryReceive()
		if env == nil {
			t.Fatalf("no answer for %q", p)
		}
		res, ok := env.Content.(api.ResolveResult)
		if !ok {
			t.Fatalf("%q: content %T", p, env.Content)
		}
		found := res.Actor != nil
		if found != (i < 2) {
			t.Fatalf("%q: resolved to %v", p, res.Actor)
		}
		if found && (res.Actor.Node() != "b" || res.Actor.ID() != target.ID()) {
			t.Fatalf("%q: proxy %s/%s", p, res.Actor.Node(), res.Actor.ID())
		}
	}
	if a.proxies.Len() != 1 {
		t.Fatalf("%d proxies, want 1", a.proxies.Len())
	}
}

func TestResolveResponseEdgeCases(t *testing.T) {
	a := newNode(t, "a", []string{"app"})
	connect(t, a, newNode(t, "b", []string{"app"}))

	// Unknown correlation ids are ignored.
	resp := mustMarshal(t, resolveResponsePayload{ActorID: 3, Interfaces: []string{}})
	if err := a.feed(frame{Header{ResolveResponse, uint32(len(resp)), 42}, resp}); err != nil {
		t.Fatal(err)
	}

	listener := actor.NewMailbox(99, "a")
	a.app.Resolve(a.w, "name/x", listener)
	garbage := []byte{0x01}
	if err := a.feed(frame{Header{ResolveResponse, 1, 1}, garbage}); err != nil {
		t.Fatalf("undecodable response must not fail the connection: %v", err)
	}
	env := listener.TryReceive()
	if env == nil {
		t.Fatal("listener not notified")
	}
	if err, _ := env.Content.(error); !errors.Is(err, api.ErrRemoteLookupFailed) {
		t.Fatalf("content %v", env.Content)
	}
	if a.app.PendingResolves() != 0 {
		t.Fatal("entry not erased")
	}
}

func TestResolveTimeout(t *testing.T) {
	a := newNode(t, "a", []string{"app"}, WithResolveTimeout(time.Second))
	connect(t, a, newNode(t, "b", []string{"app"}))
	listener := actor.NewMailbox(99, "a")
	a.app.Resolve(a.w, "name/x", listener)
	tm := a.w.timeouts[len(a.w.timeouts)-1]
	if tm.tag != TimeoutResolve {
		t.Fatalf("timeout %+v", tm)
	}
	if err := a.app.Timeout(a.w, tm.tag, tm.id); err != nil {
		t.Fatal(err)
	}
	env := listener.TryReceive()
	if env == nil || !errors.Is(env.Content.(error), api.ErrRemoteLookupFailed) {
		t.Fatalf("listener got %+v", env)
	}
	// A late response finds no entry.
	resp := mustMarshal(t, resolveResponsePayload{ActorID: 3, Interfaces: []string{}})
	if err := a.feed(frame{Header{ResolveResponse, uint32(len(resp)), 1}, resp}); err != nil {
		t.Fatal(err)
	}
	if listener.Len() != 0 {
		t.Fatal("late response delivered")
	}
}

func TestHandleErrorFailsPendingResolves(t *testing.T) {
	a := newNode(t, "a", []string{"app"})
	listener := actor.NewMailbox(99, "a")
	a.app.Resolve(a.w, "name/x", listener)
	a.app.HandleError(api.ErrSocketDisconnected)
	if listener.Len() != 1 || a.app.PendingResolves() != 0 {
		t.Fatal("pending resolve not failed")
	}
}

// watched is a local actor that records attached functions.
type watched struct {
	*actor.Mailbox
	attached []func(error)
}

func (w *watched) Attach(fn func(error)) { w.attached = append(w.attached, fn) }

func TestMonitorMessage(t *testing.T) {
	n := newNode(t, "n1", []string{"app"})
	connect(t, n, newNode(t, "n2", []string{"app"}))

	w := &watched{Mailbox: actor.NewMailbox(5, "n1")}
	n.sys.Registry().Put(5, w)
	if err := n.feed(frame{hdr: Header{Type: MonitorMessage, OperationData: 5}}); err != nil {
		t.Fatal(err)
	}
	if len(w.attached) != 1 || len(n.w.frames) != 0 {
		t.Fatalf("attached %d, frames %d", len(w.attached), len(n.w.frames))
	}

	if err := n.feed(frame{hdr: Header{Type: MonitorMessage, OperationData: 6}}); err != nil {
		t.Fatal(err)
	}
	frames := n.w.take()
	if len(frames) != 1 || frames[0].hdr.Type != DownMessage || frames[0].hdr.OperationData != 6 {
		t.Fatalf("frames %+v", frames)
	}
	var reason downPayload
	if err := DefaultCodec.Unmarshal(frames[0].payload, &reason); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(decodeReason(reason), api.ExitUnknown) {
		t.Fatalf("reason %+v", reason)
	}

	err := n.feed(frame{Header{MonitorMessage, 1, 5}, []byte{0}})
	if !errors.Is(err, ErrUnexpectedPayload) {
		t.Fatalf("monitor with payload: %v", err)
	}
}

func TestDownMessageErasesProxy(t *testing.T) {
	n := newNode(t, "n1", []string{"app"})
	connect(t, n, newNode(t, "n2", []string{"app"}))
	p := n.proxies.GetOrPut("n2", 9).(*actor.Proxy)

	payload := mustMarshal(t, encodeReason(api.ExitKill))
	if err := n.feed(frame{Header{DownMessage, uint32(len(payload)), 9}, payload}); err != nil {
		t.Fatal(err)
	}
	if !p.Killed() || n.proxies.Len() != 0 {
		t.Fatal("proxy not erased")
	}
}

func TestProxyAndDownFrames(t *testing.T) {
	n := newNode(t, "n1", []string{"app"})
	connect(t, n, newNode(t, "n2", []string{"app"}))
	n.app.NewProxy(n.w, "n2", 11)
	n.app.LocalActorDown(n.w, "n2", 12, errors.New("crashed"))
	frames := n.w.take()
	if len(frames) != 2 {
		t.Fatalf("%d frames", len(frames))
	}
	if f := frames[0]; f.hdr.Type != MonitorMessage || f.hdr.OperationData != 11 || f.hdr.PayloadLen != 0 {
		t.Fatalf("monitor frame %+v", f.hdr)
	}
	var reason downPayload
	if err := DefaultCodec.Unmarshal(frames[1].payload, &reason); err != nil {
		t.Fatal(err)
	}
	if frames[1].hdr.OperationData != 12 || decodeReason(reason).Error() != "crashed" {
		t.Fatalf("down frame %+v %+v", frames[1].hdr, reason)
	}
}

func TestUnknownFrameKind(t *testing.T) {
	n := newNode(t, "n1", []string{"app"})
	connect(t, n, newNode(t, "n2", []string{"app"}))
	if err := n.feed(frame{hdr: Header{Type: 42}}); !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("err = %v", err)
	}
}

func sendMessages(t *testing.T, from, to *node, receiver api.Actor, sender api.Actor, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		msg := &endpoint.Message{
			Envelope: &api.Envelope{Sender: sender, MessageID: uint64(i), Content: fmt.Sprintf("msg-%d", i)},
			Receiver: receiver,
		}
		if err := from.app.WriteMessage(from.w, msg); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range from.w.take() {
		if err := to.feed(f); err != nil {
			t.Fatal(err)
		}
	}
}

func checkDelivery(t *testing.T, box *actor.Mailbox, count int, senderNode api.NodeID) {
	t.Helper()
	for i := 0; i < count; i++ {
		env := box.TryReceive()
		if env == nil {
			t.Fatalf("message %d missing", i)
		}
		if env.MessageID != uint64(i) || env.Content != fmt.Sprintf("msg-%d", i) {
			t.Fatalf("message %d: id %d content %v", i, env.MessageID, env.Content)
		}
		if env.Sender == nil || env.Sender.Node() != senderNode {
			t.Fatalf("message %d: sender %v", i, env.Sender)
		}
	}
	if box.Len() != 0 {
		t.Fatalf("%d extra messages", box.Len())
	}
}

func TestActorMessagesInlineFallback(t *testing.T) {
	a := newNode(t, "a", []string{"app"})
	b := newNode(t, "b", []string{"app"}, WithWorkers(0))
	connect(t, a, b)
	box := b.sys.Spawn("")
	dst := a.proxies.GetOrPut("b", box.ID())
	sender := a.sys.Spawn("")

	sendMessages(t, a, b, dst, sender, 50)
	if b.app.Hub().Size() != 0 {
		t.Fatal("hub should be empty")
	}
	checkDelivery(t, box, 50, "a")
	if a.sys.Registry().Get(sender.ID()) == nil {
		t.Fatal("sender not registered for replies")
	}
}

func TestActorMessagesThroughWorkers(t *testing.T) {
	a := newNode(t, "a", []string{"app"})
	b := newNode(t, "b", []string{"app"}, WithWorkers(4))
	connect(t, a, b)
	box := b.sys.Spawn("")
	dst := a.proxies.GetOrPut("b", box.ID())

	sendMessages(t, a, b, dst, a.sys.Spawn(""), 500)
	b.app.Hub().AwaitIdle()
	checkDelivery(t, box, 500, "a")
	if b.app.Hub().Idle() != 4 {
		t.Fatalf("%d idle workers", b.app.Hub().Idle())
	}
}

func TestActorMessageDropsDoNotStall(t *testing.T) {
	a := newNode(t, "a", []string{"app"})
	b := newNode(t, "b", []string{"app"}, WithWorkers(2))
	connect(t, a, b)
	box := b.sys.Spawn("")
	sender := a.sys.Spawn("")

	sendMessages(t, a, b, a.proxies.GetOrPut("b", 12345), sender, 1)
	bad := []byte{0xff}
	if err := b.feed(frame{Header{ActorMessage, 1, 0}, bad}); err != nil {
		t.Fatal(err)
	}
	sendMessages(t, a, b, a.proxies.GetOrPut("b", box.ID()), sender, 3)
	b.app.Hub().AwaitIdle()
	checkDelivery(t, box, 3, "a")
	if b.app.Queue().Pending() != 0 {
		t.Fatal("queue stalled behind dropped messages")
	}
}

func TestPayloadSizeLimit(t *testing.T) {
	t.Run("handshake", func(t *testing.T) {
		n := newNode(t, "n1", []string{"app"}, WithMaxPayloadSize(64))
		hdr := Header{Type: Handshake, PayloadLen: 1 << 30, OperationData: Version}
		if err := n.app.HandleData(n.w, hdr.AppendTo(nil)); !errors.Is(err, ErrUnexpectedPayload) {
			t.Fatalf("err = %v", err)
		}
		if n.app.State() != Shutdown {
			t.Fatalf("state %s", n.app.State())
		}
	})
	t.Run("actor message", func(t *testing.T) {
		n := newNode(t, "n1", []string{"app"}, WithMaxPayloadSize(64))
		connect(t, n, newNode(t, "n2", []string{"app"}))
		hdr := Header{Type: ActorMessage, PayloadLen: 65, OperationData: 1}
		if err := n.app.HandleData(n.w, hdr.AppendTo(nil)); !errors.Is(err, ErrUnexpectedPayload) {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("at the limit", func(t *testing.T) {
		n := newNode(t, "n1", []string{"app"}, WithMaxPayloadSize(64))
		connect(t, n, newNode(t, "n2", []string{"app"}))
		hdr := Header{Type: ActorMessage, PayloadLen: 64, OperationData: 1}
		if err := n.app.HandleData(n.w, hdr.AppendTo(nil)); err != nil {
			t.Fatal(err)
		}
		if n.app.State() != AwaitPayload {
			t.Fatalf("state %s", n.app.State())
		}
	})
}
