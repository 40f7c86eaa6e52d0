// File: backend/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package backend

import (
	"github.com/momentics/hioload-basp/control"
	"go.uber.org/zap"
)

// Option customizes a Node.
type Option func(*Node)

// WithLogger sets the logger shared by all components of the node.
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) { n.log = l }
}

// WithMetrics publishes counters of every component into r.
func WithMetrics(r *control.MetricsRegistry) Option {
	return func(n *Node) { n.metrics = r }
}
