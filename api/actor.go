// Package api
// Author: momentics <momentics@gmail.com>
//
// Contracts of the actor system the protocol engine is embedded in.

package api

// Actor is a handle to a local actor or to a proxy of a remote one.
type Actor interface {
	ID() ActorID
	Node() NodeID
	Enqueue(env *Envelope)
}

// Attachable actors run attached functions exactly once when they terminate.
type Attachable interface {
	Attach(fn func(reason error))
}

// Registry is the node-local actor registry.
type Registry interface {
	Get(id ActorID) Actor
	GetByName(name string) Actor
	Put(id ActorID, a Actor)
	PutName(name string, a Actor)
}

// ProxyRegistry maps remote actor identities to local proxies.
type ProxyRegistry interface {
	// GetOrPut returns the proxy for (node, id), creating it on first use.
	GetOrPut(node NodeID, id ActorID) Actor
	// Erase removes the proxy and terminates it with reason.
	Erase(node NodeID, id ActorID, reason error)
	// MakeProxy creates a proxy without registering it.
	MakeProxy(node NodeID, id ActorID) Actor
}

// System is the hosting actor system.
type System interface {
	Node() NodeID
	AppIdentifiers() []string
	Registry() Registry
	Executor() Executor
	Clock() Clock
}

// Typed actors report the message interfaces they implement.
type Typed interface {
	Interfaces() []string
}
