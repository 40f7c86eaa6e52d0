// File: basp/application.go
// Author: momentics <momentics@gmail.com>
//
// Application is the BASP state machine of one connection. It runs on the
// reactor thread; only actor message deserialization leaves it.

package basp

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/control"
	"github.com/momentics/hioload-basp/endpoint"
	"github.com/momentics/hioload-basp/transport"
	"go.uber.org/zap"
)

// Timeout tags.
const (
	TimeoutHandshake = "handshake"
	TimeoutResolve   = "resolve"
	TimeoutHeartbeat = "heartbeat"
)

type pendingResolve struct {
	listener api.Actor
	timerID  uint64
}

// Application speaks BASP over one transport.
type Application struct {
	sys     api.System
	proxies api.ProxyRegistry
	codec   *Codec
	log     *zap.Logger
	metrics *control.MetricsRegistry

	workers          int
	heartbeat        time.Duration
	handshakeTimeout time.Duration
	resolveTimeout   time.Duration
	maxPayload       int
	onHandshake      []func(peer api.NodeID)

	state ConnectionState
	hdr   Header
	peer  api.NodeID

	nextRequestID uint64
	pending       map[uint64]pendingResolve
	resolveTimers map[uint64]uint64

	queue    *MessageQueue
	hub      *WorkerHub
	delivery *deliveryContext
}

// NewApplication creates the protocol state for a new connection.
func NewApplication(sys api.System, proxies api.ProxyRegistry, opts ...Option) *Application {
	a := &Application{
		sys:           sys,
		proxies:       proxies,
		codec:         DefaultCodec,
		log:           zap.L(),
		nextRequestID: 1,
		pending:       make(map[uint64]pendingResolve),
		resolveTimers: make(map[uint64]uint64),
		queue:         NewMessageQueue(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.Named("basp")
	a.delivery = &deliveryContext{
		sys:     sys,
		proxies: proxies,
		codec:   a.codec,
		queue:   a.queue,
		log:     a.log,
		metrics: a.metrics,
	}
	a.hub = newWorkerHub(a.workers, sys.Executor(), a.delivery)
	return a
}

// State returns the connection state.
func (a *Application) State() ConnectionState { return a.state }

// Peer returns the peer node id, empty before the handshake.
func (a *Application) Peer() api.NodeID { return a.peer }

// Queue returns the inbound ordering queue.
func (a *Application) Queue() *MessageQueue { return a.queue }

// Hub returns the deserialization workers.
func (a *Application) Hub() *WorkerHub { return a.hub }

// PendingResolves returns the number of unanswered resolve requests.
func (a *Application) PendingResolves() int { return len(a.pending) }

// Init sends the handshake. It is the first frame on the connection.
func (a *Application) Init(w transport.PacketWriter) error {
	a.state = AwaitHandshakeHeader
	w.ConfigureRead(transport.Exactly(HeaderSize))
	if a.handshakeTimeout > 0 {
		w.SetTimeout(TimeoutHandshake, a.handshakeTimeout)
	}
	return a.generateHandshake(w)
}

func (a *Application) generateHandshake(w transport.PacketWriter) error {
	hs := handshakePayload{Node: string(a.sys.Node()), AppIdentifiers: a.sys.AppIdentifiers()}
	return a.writeEncoded(w, Handshake, Version, hs)
}

// HandleData consumes the unit requested by the last ConfigureRead.
func (a *Application) HandleData(w transport.PacketWriter, data []byte) error {
	err := a.handleData(w, data)
	if err != nil {
		a.state = Shutdown
	}
	return err
}

func (a *Application) handleData(w transport.PacketWriter, data []byte) error {
	switch a.state {
	case AwaitHandshakeHeader:
		hdr, err := ParseHeader(data)
		if err != nil {
			return err
		}
		if hdr.Type != Handshake {
			return ErrMissingHandshake
		}
		if hdr.OperationData != Version {
			return ErrVersionMismatch
		}
		if hdr.PayloadLen == 0 {
			return ErrMissingPayload
		}
		if err := a.checkPayloadLen(hdr); err != nil {
			return err
		}
		a.state = AwaitHandshakePayload
		w.ConfigureRead(transport.Exactly(int(hdr.PayloadLen)))
		return nil
	case AwaitHandshakePayload:
		if err := a.handleHandshake(w, data); err != nil {
			return err
		}
		a.state = AwaitHeader
		w.ConfigureRead(transport.Exactly(HeaderSize))
		return nil
	case AwaitHeader:
		hdr, err := ParseHeader(data)
		if err != nil {
			return err
		}
		if hdr.PayloadLen == 0 {
			return a.handle(w, hdr, nil)
		}
		if err := a.checkPayloadLen(hdr); err != nil {
			return err
		}
		a.hdr = hdr
		a.state = AwaitPayload
		w.ConfigureRead(transport.Exactly(int(hdr.PayloadLen)))
		return nil
	case AwaitPayload:
		if len(data) != int(a.hdr.PayloadLen) {
			return ErrUnexpectedNumberOfBytes
		}
		a.state = AwaitHeader
		w.ConfigureRead(transport.Exactly(HeaderSize))
		return a.handle(w, a.hdr, data)
	default:
		return ErrIllegalState
	}
}

// checkPayloadLen rejects frames announcing more than the configured limit
// before any buffer is sized for them.
func (a *Application) checkPayloadLen(hdr Header) error {
	if a.maxPayload > 0 && int64(hdr.PayloadLen) > int64(a.maxPayload) {
		a.log.Warn("payload exceeds limit",
			zap.Stringer("type", hdr.Type), zap.Uint32("len", hdr.PayloadLen), zap.Int("max", a.maxPayload))
		return ErrUnexpectedPayload
	}
	return nil
}

func (a *Application) handleHandshake(w transport.PacketWriter, data []byte) error {
	var hs handshakePayload
	if err := a.codec.Unmarshal(data, &hs); err != nil {
		return err
	}
	peer := api.NodeID(hs.Node)
	if !peer.Valid() || len(hs.AppIdentifiers) == 0 {
		return ErrInvalidHandshake
	}
	local := a.sys.AppIdentifiers()
	if !slices.ContainsFunc(hs.AppIdentifiers, func(id string) bool { return slices.Contains(local, id) }) {
		return ErrAppIdentifiersMismatch
	}
	a.peer = peer
	a.count("basp.frames_in.handshake")
	a.log.Info("handshake completed", zap.String("peer", hs.Node))
	if a.heartbeat > 0 {
		w.SetTimeout(TimeoutHeartbeat, a.heartbeat)
	}
	for _, fn := range a.onHandshake {
		fn(peer)
	}
	return nil
}

func (a *Application) handle(w transport.PacketWriter, hdr Header, payload []byte) error {
	a.count("basp.frames_in." + hdr.Type.String())
	switch hdr.Type {
	case Handshake:
		return ErrUnexpectedHandshake
	case ActorMessage:
		return a.handleActorMessage(hdr, payload)
	case ResolveRequest:
		return a.handleResolveRequest(w, hdr, payload)
	case ResolveResponse:
		return a.handleResolveResponse(hdr, payload)
	case MonitorMessage:
		return a.handleMonitorMessage(w, hdr, payload)
	case DownMessage:
		return a.handleDownMessage(hdr, payload)
	case Heartbeat:
		return nil
	default:
		return ErrUnimplemented
	}
}

func (a *Application) handleActorMessage(hdr Header, payload []byte) error {
	if len(payload) == 0 {
		return ErrMissingPayload
	}
	if wk := a.hub.Pop(); wk != nil {
		wk.Launch(a.peer, hdr, payload)
		return nil
	}
	a.count("basp.inline_fallbacks")
	a.delivery.deliver(a.queue.NewID(), a.peer, hdr, payload)
	return nil
}

func (a *Application) handleResolveRequest(w transport.PacketWriter, hdr Header, payload []byte) error {
	var path string
	if err := a.codec.Unmarshal(payload, &path); err != nil {
		return err
	}
	var resp resolveResponsePayload
	if found := a.resolveLocalPath(path); found != nil {
		resp.ActorID = uint64(found.ID())
		resp.Interfaces = interfacesOf(found)
	}
	if resp.Interfaces == nil {
		resp.Interfaces = []string{}
	}
	return a.writeEncoded(w, ResolveResponse, hdr.OperationData, resp)
}

// resolveLocalPath looks up "id/<n>" or "name/<s>". A hit is also stored in
// the registry under its id.
func (a *Application) resolveLocalPath(path string) api.Actor {
	kind, key, ok := strings.Cut(path, "/")
	if !ok {
		return nil
	}
	reg := a.sys.Registry()
	var found api.Actor
	switch kind {
	case "id":
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil || id == 0 {
			return nil
		}
		found = reg.Get(api.ActorID(id))
	case "name":
		found = reg.GetByName(key)
	}
	if found != nil {
		reg.Put(found.ID(), found)
	}
	return found
}

func interfacesOf(x api.Actor) []string {
	t, ok := x.(api.Typed)
	if !ok {
		return nil
	}
	ifs := slices.Clone(t.Interfaces())
	slices.Sort(ifs)
	return slices.Compact(ifs)
}

func (a *Application) handleResolveResponse(hdr Header, payload []byte) error {
	p, ok := a.pending[hdr.OperationData]
	if !ok {
		a.log.Warn("resolve response without request", zap.Uint64("rid", hdr.OperationData))
		return nil
	}
	delete(a.pending, hdr.OperationData)
	delete(a.resolveTimers, p.timerID)
	var resp resolveResponsePayload
	if err := a.codec.Unmarshal(payload, &resp); err != nil {
		a.log.Debug("undecodable resolve response", zap.Uint64("rid", hdr.OperationData), zap.Error(err))
		notify(p.listener, fmt.Errorf("%w: %v", api.ErrRemoteLookupFailed, err))
		return nil
	}
	var proxy api.Actor
	if resp.ActorID != 0 {
		proxy = a.proxies.GetOrPut(a.peer, api.ActorID(resp.ActorID))
	}
	notify(p.listener, api.ResolveResult{Actor: proxy, Interfaces: resp.Interfaces})
	return nil
}

func (a *Application) handleMonitorMessage(w transport.PacketWriter, hdr Header, payload []byte) error {
	if len(payload) != 0 {
		return ErrUnexpectedPayload
	}
	id := api.ActorID(hdr.OperationData)
	found := a.sys.Registry().Get(id)
	if found == nil {
		return a.writeEncoded(w, DownMessage, uint64(id), encodeReason(api.ExitUnknown))
	}
	at, ok := found.(api.Attachable)
	if !ok {
		a.log.Debug("monitored actor does not report termination", zap.Stringer("aid", id))
		return nil
	}
	mgr, peer := w.Manager(), a.peer
	at.Attach(func(reason error) {
		mgr.LocalActorDown(peer, id, reason)
	})
	return nil
}

func (a *Application) handleDownMessage(hdr Header, payload []byte) error {
	var p downPayload
	if err := a.codec.Unmarshal(payload, &p); err != nil {
		return err
	}
	a.proxies.Erase(a.peer, api.ActorID(hdr.OperationData), decodeReason(p))
	return nil
}

// WriteMessage frames an outbound actor message. A message without payload
// has its content encoded here.
func (a *Application) WriteMessage(w transport.PacketWriter, msg *endpoint.Message) error {
	if msg == nil || msg.Receiver == nil || msg.Envelope == nil {
		return nil
	}
	env := msg.Envelope
	p := actorMessagePayload{DstID: uint64(msg.Receiver.ID())}
	if src := env.Sender; src != nil {
		if src.Node() == a.sys.Node() {
			a.sys.Registry().Put(src.ID(), src)
		}
		p.SrcNode, p.SrcID = string(src.Node()), uint64(src.ID())
	}
	for _, s := range env.Stages {
		if s != nil {
			p.Stages = append(p.Stages, actorAddr{Node: string(s.Node()), ID: uint64(s.ID())})
		}
	}
	p.Content = msg.Payload
	if len(p.Content) == 0 {
		content, err := a.codec.MarshalContent(env.Content)
		if err != nil {
			return fmt.Errorf("encode content: %w", err)
		}
		p.Content = content
	}
	return a.writeEncoded(w, ActorMessage, env.MessageID, p)
}

// Resolve asks the peer for path. The listener receives an
// api.ResolveResult or an error.
func (a *Application) Resolve(w transport.PacketWriter, path string, listener api.Actor) {
	rid := a.nextRequestID
	a.nextRequestID++
	p := pendingResolve{listener: listener}
	if a.resolveTimeout > 0 {
		p.timerID = w.SetTimeout(TimeoutResolve, a.resolveTimeout)
		a.resolveTimers[p.timerID] = rid
	}
	a.pending[rid] = p
	if err := a.writeEncoded(w, ResolveRequest, rid, path); err != nil {
		delete(a.pending, rid)
		delete(a.resolveTimers, p.timerID)
		notify(listener, fmt.Errorf("%w: %v", api.ErrRemoteLookupFailed, err))
	}
}

// NewProxy asks the peer to report the termination of actor id.
func (a *Application) NewProxy(w transport.PacketWriter, peer api.NodeID, id api.ActorID) {
	if err := a.writeFrame(w, MonitorMessage, uint64(id), nil); err != nil {
		a.log.Warn("failed to send monitor message", zap.Stringer("aid", id), zap.Error(err))
	}
}

// LocalActorDown reports the termination of local actor id to the peer.
func (a *Application) LocalActorDown(w transport.PacketWriter, peer api.NodeID, id api.ActorID, reason error) {
	if err := a.writeEncoded(w, DownMessage, uint64(id), encodeReason(reason)); err != nil {
		a.log.Warn("failed to send down message", zap.Stringer("aid", id), zap.Error(err))
	}
}

// Timeout handles a timeout scheduled through the writer.
func (a *Application) Timeout(w transport.PacketWriter, tag string, id uint64) error {
	switch tag {
	case TimeoutHandshake:
		if a.state == AwaitHandshakeHeader || a.state == AwaitHandshakePayload {
			a.state = Shutdown
			return ErrMissingHandshake
		}
	case TimeoutResolve:
		rid, ok := a.resolveTimers[id]
		if !ok {
			return nil
		}
		delete(a.resolveTimers, id)
		if p, ok := a.pending[rid]; ok {
			delete(a.pending, rid)
			a.log.Debug("resolve timed out", zap.Uint64("rid", rid))
			notify(p.listener, api.ErrRemoteLookupFailed)
		}
	case TimeoutHeartbeat:
		if a.state == Shutdown {
			return nil
		}
		if err := a.writeFrame(w, Heartbeat, 0, nil); err != nil {
			return err
		}
		w.SetTimeout(TimeoutHeartbeat, a.heartbeat)
	}
	return nil
}

// HandleError marks the connection as failed and fails outstanding resolves.
func (a *Application) HandleError(err error) {
	if errors.Is(err, api.ErrSocketDisconnected) {
		a.log.Debug("peer disconnected", zap.String("peer", string(a.peer)))
	} else {
		a.log.Debug("connection failed", zap.String("peer", string(a.peer)), zap.Error(err))
	}
	a.state = Shutdown
	for rid, p := range a.pending {
		notify(p.listener, api.ErrRemoteLookupFailed)
		delete(a.pending, rid)
	}
	clear(a.resolveTimers)
}

func (a *Application) writeEncoded(w transport.PacketWriter, t MessageType, op uint64, v any) error {
	payload, err := a.codec.AppendMarshal(w.NextPayloadBuffer(), v)
	if err != nil {
		return err
	}
	return a.writeFrame(w, t, op, payload)
}

func (a *Application) writeFrame(w transport.PacketWriter, t MessageType, op uint64, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%s payload of %d bytes exceeds the frame limit", t, len(payload))
	}
	hdr := Header{Type: t, PayloadLen: uint32(len(payload)), OperationData: op}
	w.WritePacket(hdr.AppendTo(w.NextHeaderBuffer()), payload)
	a.count("basp.frames_out." + t.String())
	return nil
}

func (a *Application) count(key string) {
	if a.metrics != nil {
		a.metrics.Add(key, 1)
	}
}

func notify(listener api.Actor, content any) {
	if listener != nil {
		listener.Enqueue(&api.Envelope{Content: content})
	}
}

var (
	_ transport.Application = (*Application)(nil)
	_ transport.Peer        = (*Application)(nil)
)
