// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Debug probes: named functions sampled on demand, e.g. on SIGUSR1.

package control

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// RegisterMetrics exposes every metric of mr as a probe named "metrics".
func (dp *DebugProbes) RegisterMetrics(mr *MetricsRegistry) {
	dp.RegisterProbe("metrics", func() any { return mr.GetSnapshot() })
}

// DumpState returns output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes))
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// Fields renders the current state as zap fields in name order.
func (dp *DebugProbes) Fields() []zap.Field {
	state := dp.DumpState()
	names := make([]string, 0, len(state))
	for k := range state {
		names = append(names, k)
	}
	sort.Strings(names)
	fields := make([]zap.Field, 0, len(names))
	for _, k := range names {
		fields = append(fields, zap.Any(k, state[k]))
	}
	return fields
}
