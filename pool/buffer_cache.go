// File: pool/buffer_cache.go
// Package pool implements bounded buffer recycling for connection transports.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

// CacheStats reports buffer cache activity.
type CacheStats struct {
	Allocs  uint64 // buffers created because the cache was empty
	Reuses  uint64 // buffers served from the cache
	Dropped uint64 // buffers released because the cache was full
	Cached  int    // buffers currently held
}

// BufferCache is a fixed-capacity free list of byte slices owned by a single
// connection. It is not safe for concurrent use.
type BufferCache struct {
	free     [][]byte
	capacity int
	initSize int
	stats    CacheStats
}

// NewBufferCache creates a cache holding at most capacity buffers. New
// buffers are allocated with initSize bytes of capacity.
func NewBufferCache(capacity, initSize int) *BufferCache {
	if capacity < 0 {
		capacity = 0
	}
	return &BufferCache{
		free:     make([][]byte, 0, capacity),
		capacity: capacity,
		initSize: initSize,
	}
}

// Get returns an empty buffer, reusing a cached one when available.
func (c *BufferCache) Get() []byte {
	if n := len(c.free); n > 0 {
		buf := c.free[n-1]
		c.free[n-1] = nil
		c.free = c.free[:n-1]
		c.stats.Reuses++
		return buf[:0]
	}
	c.stats.Allocs++
	return make([]byte, 0, c.initSize)
}

// Put returns buf to the cache. A full cache drops the buffer.
func (c *BufferCache) Put(buf []byte) {
	if buf == nil {
		return
	}
	if len(c.free) >= c.capacity {
		c.stats.Dropped++
		return
	}
	c.free = append(c.free, buf[:0])
}

// Len returns the number of cached buffers.
func (c *BufferCache) Len() int { return len(c.free) }

// Cap returns the maximum number of cached buffers.
func (c *BufferCache) Cap() int { return c.capacity }

// Stats returns activity counters.
func (c *BufferCache) Stats() CacheStats {
	s := c.stats
	s.Cached = len(c.free)
	return s
}
