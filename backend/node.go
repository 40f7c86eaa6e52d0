// File: backend/node.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Node runs one multiplexer thread with every connection of the local node.

package backend

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sync"

	"github.com/momentics/hioload-basp/actor"
	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/basp"
	"github.com/momentics/hioload-basp/control"
	"github.com/momentics/hioload-basp/endpoint"
	"github.com/momentics/hioload-basp/internal/concurrency"
	"github.com/momentics/hioload-basp/internal/sockets"
	"github.com/momentics/hioload-basp/reactor"
	"github.com/momentics/hioload-basp/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const listenBacklog = 128

// ErrNoRoute reports a node without an established connection.
var ErrNoRoute = errors.New("no connection to node")

type udpEndpoint struct {
	mgr       *endpoint.Manager
	transport *transport.DatagramTransport
}

// Node is a running actor system node.
type Node struct {
	cfg     control.Config
	log     *zap.Logger
	metrics *control.MetricsRegistry

	sys     *actor.System
	proxies *actor.ProxyRegistry
	mpx     *reactor.Multiplexer
	codec   *basp.Codec

	mu    sync.RWMutex
	peers map[api.NodeID]*endpoint.Manager
	udp   *udpEndpoint

	startOnce sync.Once
	done      chan struct{}
}

// New creates a node from cfg. Start opens the configured sockets.
func New(cfg control.Config, opts ...Option) (*Node, error) {
	n := &Node{
		cfg:   cfg,
		log:   zap.L(),
		peers: make(map[api.NodeID]*endpoint.Manager),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	codec, err := basp.NewCodec()
	if err != nil {
		return nil, err
	}
	n.codec = codec
	id := api.NodeID(cfg.Node.ID)
	if !id.Valid() {
		id = defaultNodeID()
	}
	n.sys = actor.NewSystem(id, cfg.Node.AppIdentifiers,
		actor.WithLogger(n.log), actor.WithWorkers(max(cfg.Middleman.Workers, 1)))
	n.proxies = actor.NewProxyRegistry(n.makeProxy)
	mpxOpts := []reactor.Option{reactor.WithLogger(n.log)}
	if n.metrics != nil {
		mpxOpts = append(mpxOpts, reactor.WithMetrics(n.metrics))
	}
	n.mpx = reactor.NewMultiplexer(mpxOpts...)
	n.log = n.log.Named("node").With(zap.String("node", string(id)))
	return n, nil
}

func defaultNodeID() api.NodeID {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return api.NodeID(fmt.Sprintf("%s#%d", host, os.Getpid()))
}

// System returns the local actor system.
func (n *Node) System() *actor.System { return n.sys }

// Proxies returns the proxy registry.
func (n *Node) Proxies() *actor.ProxyRegistry { return n.proxies }

// Done is closed once the multiplexer thread has stopped.
func (n *Node) Done() <-chan struct{} { return n.done }

// Start initializes the multiplexer, launches its thread and opens every
// socket named in the configuration.
func (n *Node) Start() error {
	var err error
	n.startOnce.Do(func() {
		if err = n.mpx.Init(); err != nil {
			close(n.done)
			return
		}
		go n.run()
		err = n.openConfigured()
	})
	return err
}

func (n *Node) run() {
	defer close(n.done)
	if cpu := n.cfg.Middleman.ReactorCPU; cpu >= 0 {
		if err := concurrency.PinCurrentThread(cpu); err != nil {
			n.log.Warn("multiplexer thread not pinned", zap.Int("cpu", cpu), zap.Error(err))
		}
	}
	n.mpx.SetThreadID()
	n.log.Info("multiplexer running")
	n.mpx.Run()
	n.log.Info("multiplexer stopped")
}

func (n *Node) openConfigured() error {
	var err error
	nc := n.cfg.Network
	if nc.Listen != "" {
		if _, e := n.Listen(nc.Listen); e != nil {
			err = multierr.Append(err, e)
		}
	}
	if nc.UDPListen != "" {
		if _, e := n.ListenUDP(nc.UDPListen); e != nil {
			err = multierr.Append(err, e)
		}
	}
	for _, p := range nc.Peers {
		err = multierr.Append(err, n.Connect(p))
	}
	for _, p := range nc.UDPPeers {
		err = multierr.Append(err, n.ConnectUDP(p))
	}
	return err
}

// Listen accepts stream connections on addr and returns the bound address.
func (n *Node) Listen(addr string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("listen %q: %w", addr, err)
	}
	s, err := sockets.ListenTCP(ap, listenBacklog)
	if err != nil {
		return netip.AddrPort{}, err
	}
	bound, err := sockets.LocalAddr(s)
	if err != nil {
		sockets.Close(s)
		return netip.AddrPort{}, err
	}
	d := &doorman{ManagerBase: reactor.NewManagerBase(s, n.mpx), node: n, log: n.log.Named("doorman")}
	n.mpx.RegisterReading(d)
	n.log.Info("listening", zap.Stringer("addr", bound))
	return bound, nil
}

// Connect opens a stream connection to addr. The peer becomes routable once
// the handshake completes.
func (n *Node) Connect(addr string) error {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return fmt.Errorf("connect %q: %w", addr, err)
	}
	s, err := sockets.DialTCP(ap)
	if err != nil {
		return err
	}
	n.log.Debug("connected", zap.Stringer("remote", ap))
	n.addConnection(s)
	return nil
}

func (n *Node) appOptions(extra ...basp.Option) []basp.Option {
	mm := n.cfg.Middleman
	opts := []basp.Option{
		basp.WithLogger(n.log),
		basp.WithCodec(n.codec),
		basp.WithWorkers(mm.Workers),
		basp.WithHeartbeatInterval(mm.HeartbeatInterval),
		basp.WithHandshakeTimeout(mm.HandshakeTimeout),
		basp.WithResolveTimeout(mm.ResolveTimeout),
		basp.WithMaxPayloadSize(mm.MaxPayloadSize),
	}
	if n.metrics != nil {
		opts = append(opts, basp.WithMetrics(n.metrics))
	}
	return append(opts, extra...)
}

func (n *Node) transportOptions() []transport.Option {
	mm := n.cfg.Middleman
	opts := []transport.Option{
		transport.WithLogger(n.log),
		transport.WithMaxConsecutiveReads(mm.MaxConsecutiveReads),
		transport.WithBufferCaches(mm.MaxHeaderBuffers, mm.MaxPayloadBuffers),
	}
	if n.metrics != nil {
		opts = append(opts, transport.WithMetrics(n.metrics))
	}
	return opts
}

func (n *Node) managerOptions(hook func(*endpoint.Manager)) []endpoint.ManagerOption {
	return []endpoint.ManagerOption{
		endpoint.WithLogger(n.log),
		endpoint.WithQuantum(n.cfg.Middleman.QueueQuantum),
		endpoint.WithSerializer(n.codec.MarshalContent),
		endpoint.WithCloseHook(hook),
	}
}

// addConnection starts the protocol on a connected stream socket. Init runs
// on the multiplexer thread.
func (n *Node) addConnection(s sockets.Socket) {
	var mgr *endpoint.Manager
	app := basp.NewApplication(n.sys, n.proxies, n.appOptions(
		basp.WithHandshakeHook(func(peer api.NodeID) { n.addPeer(peer, mgr) }))...)
	tr := transport.NewStreamTransport(app, n.transportOptions()...)
	mgr = endpoint.NewManager(s, n.mpx, n.sys, tr, n.managerOptions(func(m *endpoint.Manager) {
		n.removePeer(app.Peer(), m)
	})...)
	if !n.mpx.Execute(func() {
		if err := mgr.Init(); err != nil {
			n.log.Warn("connection init failed", zap.Error(err))
			mgr.Abort(err)
			mgr.Close()
		}
	}) {
		n.log.Warn("multiplexer is shutting down, dropping connection")
		mgr.Close()
	}
}

// ListenUDP serves the protocol on a datagram socket bound to addr.
func (n *Node) ListenUDP(addr string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("listen udp %q: %w", addr, err)
	}
	s, err := sockets.ListenUDP(ap)
	if err != nil {
		return netip.AddrPort{}, err
	}
	bound, err := sockets.LocalAddr(s)
	if err != nil {
		sockets.Close(s)
		return netip.AddrPort{}, err
	}
	var mgr *endpoint.Manager
	dt := transport.NewDatagramTransport(func(netip.AddrPort) transport.Application {
		return n.datagramApp(&mgr)
	}, n.transportOptions()...)
	mgr = endpoint.NewManager(s, n.mpx, n.sys, dt, n.managerOptions(func(m *endpoint.Manager) {
		n.removeManager(m)
	})...)
	n.mu.Lock()
	n.udp = &udpEndpoint{mgr: mgr, transport: dt}
	n.mu.Unlock()
	if !n.mpx.Execute(func() {
		if err := mgr.Init(); err != nil {
			n.log.Warn("datagram init failed", zap.Error(err))
			mgr.Abort(err)
			mgr.Close()
		}
	}) {
		mgr.Close()
		return netip.AddrPort{}, api.ErrMultiplexerClosed
	}
	n.log.Info("listening for datagrams", zap.Stringer("addr", bound))
	return bound, nil
}

func (n *Node) datagramApp(mgr **endpoint.Manager) transport.Application {
	return basp.NewApplication(n.sys, n.proxies, n.appOptions(
		basp.WithHandshakeHook(func(peer api.NodeID) { n.addPeer(peer, *mgr) }))...)
}

// ConnectUDP starts the protocol with the datagram peer at addr. ListenUDP
// must have been called.
func (n *Node) ConnectUDP(addr string) error {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return fmt.Errorf("connect udp %q: %w", addr, err)
	}
	n.mu.RLock()
	u := n.udp
	n.mu.RUnlock()
	if u == nil {
		return errors.New("connect udp: no datagram socket")
	}
	errc := make(chan error, 1)
	if !n.mpx.Execute(func() {
		errc <- u.transport.AddNewWorker("", ap, n.datagramApp(&u.mgr))
	}) {
		return api.ErrMultiplexerClosed
	}
	return <-errc
}

func (n *Node) addPeer(peer api.NodeID, mgr *endpoint.Manager) {
	n.mu.Lock()
	n.peers[peer] = mgr
	n.mu.Unlock()
	n.log.Info("peer connected", zap.String("peer", string(peer)))
}

func (n *Node) removePeer(peer api.NodeID, mgr *endpoint.Manager) {
	if !peer.Valid() {
		return
	}
	n.mu.Lock()
	current := n.peers[peer] == mgr
	if current {
		delete(n.peers, peer)
	}
	n.mu.Unlock()
	if current {
		n.log.Info("peer disconnected", zap.String("peer", string(peer)))
		n.proxies.EraseNode(peer, api.ExitRemoteLinkUnreachable)
	}
}

func (n *Node) removeManager(mgr *endpoint.Manager) {
	var lost []api.NodeID
	n.mu.Lock()
	for peer, m := range n.peers {
		if m == mgr {
			lost = append(lost, peer)
			delete(n.peers, peer)
		}
	}
	if n.udp != nil && n.udp.mgr == mgr {
		n.udp = nil
	}
	n.mu.Unlock()
	for _, peer := range lost {
		n.proxies.EraseNode(peer, api.ExitRemoteLinkUnreachable)
	}
}

func (n *Node) endpointFor(node api.NodeID) *endpoint.Manager {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[node]
}

// Peers returns the nodes with an established connection.
func (n *Node) Peers() []api.NodeID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]api.NodeID, 0, len(n.peers))
	for p := range n.peers {
		out = append(out, p)
	}
	return out
}

// Resolve asks node for the actor at path. The listener receives an
// api.ResolveResult or an error.
func (n *Node) Resolve(node api.NodeID, path string, listener api.Actor) error {
	mgr := n.endpointFor(node)
	if mgr == nil {
		return fmt.Errorf("resolve %s on %s: %w", path, node, ErrNoRoute)
	}
	mgr.Resolve(endpoint.Locator{Node: node, Path: path}, listener)
	return nil
}

// makeProxy builds the proxy of a remote actor. It runs under the proxy
// registry lock and must not call back into the registry.
func (n *Node) makeProxy(node api.NodeID, id api.ActorID) *actor.Proxy {
	if mgr := n.endpointFor(node); mgr != nil {
		mgr.NewProxy(node, id)
	}
	return actor.NewProxy(node, id, func(env *api.Envelope, receiver api.Actor) {
		n.send(node, env, receiver)
	})
}

// send serializes on the calling goroutine and hands the frame to the
// endpoint of node.
func (n *Node) send(node api.NodeID, env *api.Envelope, receiver api.Actor) {
	mgr := n.endpointFor(node)
	if mgr == nil {
		n.log.Debug("dropping message for unreachable node", zap.String("peer", string(node)))
		return
	}
	var payload []byte
	if serialize := mgr.SerializeFunc(); serialize != nil {
		p, err := serialize(env.Content)
		if err != nil {
			n.log.Warn("dropping unserializable message", zap.Error(err))
			return
		}
		payload = p
	}
	mgr.Enqueue(env, receiver, payload)
}

// Shutdown stops every connection, waits for the multiplexer thread and
// releases the actor system.
func (n *Node) Shutdown(ctx context.Context) error {
	n.startOnce.Do(func() { close(n.done) })
	n.mpx.Shutdown()
	var err error
	select {
	case <-n.done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	n.sys.Close()
	if err == nil {
		err = n.mpx.Close()
	}
	return err
}
