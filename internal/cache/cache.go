// Package cache provides a bounded in-memory key/value cache with TTL
// eviction. It replaces ambient module-level caches with an explicitly
// constructed component owned by the caller's process-lifetime context.
// Expired entries are recomputed on next access; there is no background
// refresh.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	savedAt time.Time
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	entries  map[string]entry[V]
	capacity int
	ttl      time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// New builds a cache holding at most capacity entries, each valid for ttl.
// Non-positive capacity defaults to 1000; non-positive ttl to one hour.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache[V]{
		entries:  make(map[string]entry[V]),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the cached value for key when present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.savedAt) >= c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, evicting the oldest entry at capacity.
func (c *Cache[V]) Set(key string, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[key] = entry[V]{value: value, savedAt: c.now()}
}

// Len reports the number of entries, expired ones included.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.savedAt.Before(oldestAt) {
			first = false
			oldestKey = k
			oldestAt = e.savedAt
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
