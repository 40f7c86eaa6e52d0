// File: actor/proxy.go
// Author: momentics <momentics@gmail.com>
//
// Proxies stand in for remote actors and the registry that owns them.

package actor

import (
	"sync"

	"github.com/momentics/hioload-basp/api"
)

// SendFunc ships an envelope to the remote actor represented by receiver.
type SendFunc func(env *api.Envelope, receiver api.Actor)

// Proxy forwards envelopes to a remote actor until it is killed.
type Proxy struct {
	node api.NodeID
	id   api.ActorID
	send SendFunc

	mu       sync.Mutex
	killed   bool
	reason   error
	attached []func(reason error)
}

// NewProxy creates a proxy. A nil send drops every message.
func NewProxy(node api.NodeID, id api.ActorID, send SendFunc) *Proxy {
	return &Proxy{node: node, id: id, send: send}
}

func (p *Proxy) ID() api.ActorID  { return p.id }
func (p *Proxy) Node() api.NodeID { return p.node }

func (p *Proxy) Enqueue(env *api.Envelope) {
	p.mu.Lock()
	killed := p.killed
	p.mu.Unlock()
	if killed || p.send == nil {
		return
	}
	p.send(env, p)
}

// Attach runs fn when the proxy is killed.
func (p *Proxy) Attach(fn func(reason error)) {
	p.mu.Lock()
	if p.killed {
		reason := p.reason
		p.mu.Unlock()
		fn(reason)
		return
	}
	p.attached = append(p.attached, fn)
	p.mu.Unlock()
}

// Kill marks the remote actor as terminated.
func (p *Proxy) Kill(reason error) {
	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return
	}
	p.killed = true
	p.reason = reason
	attached := p.attached
	p.attached = nil
	p.mu.Unlock()
	for _, fn := range attached {
		fn(reason)
	}
}

// Killed reports whether Kill was called.
func (p *Proxy) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// ProxyFactory creates the proxy for a remote actor.
type ProxyFactory func(node api.NodeID, id api.ActorID) *Proxy

type proxyKey struct {
	node api.NodeID
	id   api.ActorID
}

// ProxyRegistry owns the proxies of all remote actors known to this node.
type ProxyRegistry struct {
	mu      sync.Mutex
	proxies map[proxyKey]*Proxy
	factory ProxyFactory
}

// NewProxyRegistry creates a registry that builds proxies with factory.
func NewProxyRegistry(factory ProxyFactory) *ProxyRegistry {
	return &ProxyRegistry{proxies: make(map[proxyKey]*Proxy), factory: factory}
}

// SetFactory replaces the proxy factory.
func (r *ProxyRegistry) SetFactory(factory ProxyFactory) {
	r.mu.Lock()
	r.factory = factory
	r.mu.Unlock()
}

func (r *ProxyRegistry) GetOrPut(node api.NodeID, id api.ActorID) api.Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := proxyKey{node, id}
	if p, ok := r.proxies[k]; ok {
		return p
	}
	p := r.make(node, id)
	r.proxies[k] = p
	return p
}

// Get returns the proxy for (node, id) if one exists.
func (r *ProxyRegistry) Get(node api.NodeID, id api.ActorID) *Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proxies[proxyKey{node, id}]
}

func (r *ProxyRegistry) Erase(node api.NodeID, id api.ActorID, reason error) {
	r.mu.Lock()
	k := proxyKey{node, id}
	p, ok := r.proxies[k]
	delete(r.proxies, k)
	r.mu.Unlock()
	if ok {
		p.Kill(reason)
	}
}

// EraseNode kills every proxy of node.
func (r *ProxyRegistry) EraseNode(node api.NodeID, reason error) {
	var killed []*Proxy
	r.mu.Lock()
	for k, p := range r.proxies {
		if k.node == node {
			killed = append(killed, p)
			delete(r.proxies, k)
		}
	}
	r.mu.Unlock()
	for _, p := range killed {
		p.Kill(reason)
	}
}

func (r *ProxyRegistry) MakeProxy(node api.NodeID, id api.ActorID) api.Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.make(node, id)
}

func (r *ProxyRegistry) make(node api.NodeID, id api.ActorID) *Proxy {
	if r.factory == nil {
		return NewProxy(node, id, nil)
	}
	return r.factory(node, id)
}

// Len returns the number of registered proxies.
func (r *ProxyRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}

var (
	_ api.Actor         = (*Proxy)(nil)
	_ api.Attachable    = (*Proxy)(nil)
	_ api.ProxyRegistry = (*ProxyRegistry)(nil)
)
