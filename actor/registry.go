// File: actor/registry.go
// Author: momentics <momentics@gmail.com>

package actor

import (
	"sync"

	"github.com/momentics/hioload-basp/api"
)

// Registry maps ids and names to local actors.
type Registry struct {
	mu    sync.RWMutex
	byID  map[api.ActorID]api.Actor
	names map[string]api.Actor
}

func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[api.ActorID]api.Actor),
		names: make(map[string]api.Actor),
	}
}

func (r *Registry) Get(id api.ActorID) api.Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

func (r *Registry) GetByName(name string) api.Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[name]
}

func (r *Registry) Put(id api.ActorID, a api.Actor) {
	r.mu.Lock()
	r.byID[id] = a
	r.mu.Unlock()
}

func (r *Registry) PutName(name string, a api.Actor) {
	r.mu.Lock()
	r.names[name] = a
	r.mu.Unlock()
}

func (r *Registry) Erase(id api.ActorID) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

func (r *Registry) EraseName(name string) {
	r.mu.Lock()
	delete(r.names, name)
	r.mu.Unlock()
}

// Len returns the number of actors registered by id.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

var _ api.Registry = (*Registry)(nil)
