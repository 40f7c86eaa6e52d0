// File: basp/options.go
// Author: momentics <momentics@gmail.com>
//
// Functional options for Application.

package basp

import (
	"time"

	"github.com/momentics/hioload-basp/api"
	"github.com/momentics/hioload-basp/control"
	"go.uber.org/zap"
)

// Option customizes an Application.
type Option func(*Application)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Application) { a.log = l }
}

// WithMetrics counts frames, deliveries and drops.
func WithMetrics(r *control.MetricsRegistry) Option {
	return func(a *Application) { a.metrics = r }
}

// WithCodec replaces DefaultCodec.
func WithCodec(c *Codec) Option {
	return func(a *Application) { a.codec = c }
}

// WithWorkers sets the number of deserialization workers. Zero delivers
// every message inline on the reactor thread.
func WithWorkers(n int) Option {
	return func(a *Application) { a.workers = n }
}

// WithHeartbeatInterval enables heartbeats after the handshake.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(a *Application) { a.heartbeat = d }
}

// WithHandshakeTimeout fails connections that do not complete the handshake
// within d.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(a *Application) { a.handshakeTimeout = d }
}

// WithResolveTimeout fails resolves that are not answered within d.
func WithResolveTimeout(d time.Duration) Option {
	return func(a *Application) { a.resolveTimeout = d }
}

// WithMaxPayloadSize fails connections whose frames announce more than n
// payload bytes. Zero disables the limit.
func WithMaxPayloadSize(n int) Option {
	return func(a *Application) { a.maxPayload = n }
}

// WithHandshakeHook runs fn on the reactor thread once the peer is known.
func WithHandshakeHook(fn func(peer api.NodeID)) Option {
	return func(a *Application) { a.onHandshake = append(a.onHandshake, fn) }
}
