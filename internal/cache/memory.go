// In-process replay cache.
//
// A mutex-guarded map with per-entry deadlines. Suitable for single-process
// deployments and tests; expired entries are dropped lazily on Get.
package cache

import (
	"context"
	"sync"
	"time"
)

// Memory implements ReplayCache with an in-process map. It is safe for
// concurrent use.
type Memory struct {
	mu sync.RWMutex
	m  map[string]memoryEntry
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemory constructs an empty in-process replay cache.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]memoryEntry)}
}

// Get returns the cached entry, or (nil, nil) when absent or expired.
// Expired entries are evicted on access.
func (c *Memory) Get(_ context.Context, key string) (*Entry, error) {
	c.mu.RLock()
	me, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !me.expiresAt.IsZero() && time.Now().After(me.expiresAt) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, nil
	}
	e := me.entry
	return &e, nil
}

// Set stores the entry. A non-positive TTL stores the entry without an
// expiry deadline. Concurrent writers to the same key follow last-write-wins;
// the durable store stays authoritative either way.
func (c *Memory) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	var deadline time.Time
	if ttl > 0 {
		deadline = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.m[key] = memoryEntry{entry: entry, expiresAt: deadline}
	c.mu.Unlock()
	return nil
}
