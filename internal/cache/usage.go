package cache

import (
	"sync"
	"sync/atomic"
)

// UsageCounter tracks cache hits per key for the life of the process.
type UsageCounter interface {
	Increment(key string) int64
	Count(key string) int64
	// Len returns the number of tracked keys.
	Len() int
}

// MemoryUsageCounter is a concurrency-safe in-memory UsageCounter.
type MemoryUsageCounter struct {
	counts sync.Map // string -> *atomic.Int64
	size   atomic.Int64
}

// NewMemoryUsageCounter creates an empty counter.
func NewMemoryUsageCounter() *MemoryUsageCounter {
	return &MemoryUsageCounter{}
}

// Increment adds one hit to key and returns the new count.
func (c *MemoryUsageCounter) Increment(key string) int64 {
	v, ok := c.counts.Load(key)
	if !ok {
		var loaded bool
		v, loaded = c.counts.LoadOrStore(key, new(atomic.Int64))
		if !loaded {
			c.size.Add(1)
		}
	}
	return v.(*atomic.Int64).Add(1)
}

// Count returns the hits recorded for key.
func (c *MemoryUsageCounter) Count(key string) int64 {
	v, ok := c.counts.Load(key)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Len implements UsageCounter.
func (c *MemoryUsageCounter) Len() int {
	return int(c.size.Load())
}
