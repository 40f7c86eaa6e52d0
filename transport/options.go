// File: transport/options.go
// Author: momentics <momentics@gmail.com>
//
// Functional options shared by stream and datagram transports.

package transport

import (
	"github.com/momentics/hioload-basp/control"
	"go.uber.org/zap"
)

// Defaults for transport tuning.
const (
	DefaultMaxConsecutiveReads = 50
	DefaultMaxHeaderBuffers    = 10
	DefaultMaxPayloadBuffers   = 100
	initialReadSize            = 1024
	headerBufferSize           = 16
	payloadBufferSize          = 1024
)

type config struct {
	log                 *zap.Logger
	metrics             *control.MetricsRegistry
	maxConsecutiveReads int
	maxHeaderBuffers    int
	maxPayloadBuffers   int
}

func newConfig(opts []Option) config {
	c := config{
		log:                 zap.L(),
		maxConsecutiveReads: DefaultMaxConsecutiveReads,
		maxHeaderBuffers:    DefaultMaxHeaderBuffers,
		maxPayloadBuffers:   DefaultMaxPayloadBuffers,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option customizes a transport.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithMetrics counts bytes and frames.
func WithMetrics(r *control.MetricsRegistry) Option {
	return func(c *config) { c.metrics = r }
}

// WithMaxConsecutiveReads bounds the reads per reactor pass.
func WithMaxConsecutiveReads(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConsecutiveReads = n
		}
	}
}

// WithBufferCaches bounds the header and payload buffer caches.
func WithBufferCaches(headers, payloads int) Option {
	return func(c *config) {
		c.maxHeaderBuffers = headers
		c.maxPayloadBuffers = payloads
	}
}

func (c *config) count(key string, delta int64) {
	if c.metrics != nil {
		c.metrics.Add(key, delta)
	}
}
