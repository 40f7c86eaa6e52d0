// File: actor/system.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package actor

import (
	"slices"
	"sync/atomic"

	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/internal/concurrency"
	"go.uber.org/zap"
)

// Option customizes a System.
type Option func(*System)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *System) { s.log = l }
}

// WithWorkers sets the size of the shared executor.
func WithWorkers(n int) Option {
	return func(s *System) { s.workers = n }
}

// System hosts local actors and the scheduling resources shared by all
// connections of a node.
type System struct {
	node    api.NodeID
	appIDs  []string
	workers int
	log     *zap.Logger

	registry *Registry
	exec     *concurrency.Executor
	clock    *concurrency.Scheduler
	ids      atomic.Uint64
}

// NewSystem starts a system for node.
func NewSystem(node api.NodeID, appIDs []string, opts ...Option) *System {
	s := &System{
		node:     node,
		appIDs:   slices.Clone(appIDs),
		log:      zap.L(),
		registry: NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("actor")
	s.exec = concurrency.NewExecutor(s.workers, s.log)
	s.clock = concurrency.NewScheduler()
	return s
}

func (s *System) Node() api.NodeID         { return s.node }
func (s *System) AppIdentifiers() []string { return s.appIDs }
func (s *System) Registry() api.Registry   { return s.registry }
func (s *System) Executor() api.Executor   { return s.exec }
func (s *System) Clock() api.Clock         { return s.clock }
func (s *System) Logger() *zap.Logger      { return s.log }

// LocalRegistry returns the concrete registry.
func (s *System) LocalRegistry() *Registry { return s.registry }

// Spawn creates a mailbox with a fresh id and registers it. A non-empty name
// is registered too.
func (s *System) Spawn(name string) *Mailbox {
	m := NewMailbox(api.ActorID(s.ids.Add(1)), s.node)
	s.registry.Put(m.ID(), m)
	if name != "" {
		s.registry.PutName(name, m)
	}
	m.Attach(func(error) {
		s.registry.Erase(m.ID())
		if name != "" {
			s.registry.EraseName(name)
		}
	})
	return m
}

// Close stops the clock and drains the executor.
func (s *System) Close() {
	s.clock.Close()
	s.exec.Close()
}

var _ api.System = (*System)(nil)
