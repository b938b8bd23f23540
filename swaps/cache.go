package swaps

import (
	"sync"
	"time"
)

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache is an in-memory TTL cache keyed by string. Failed fetches are not cached.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[T]
	ttl     time.Duration
}

func NewCache[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		entries: make(map[string]cacheEntry[T]),
		ttl:     ttl,
	}
}

// GetOrFetch returns a cached value or calls fetch to populate it.
func (c *Cache[T]) GetOrFetch(key string, fetch func() (T, error)) (T, error) {
	c.mu.RLock()
	if e, ok := c.entries[key]; ok && time.Since(e.fetchedAt) < c.ttl {
		c.mu.RUnlock()
		return e.value, nil
	}
	c.mu.RUnlock()

	val, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{value: val, fetchedAt: time.Now()}
	c.mu.Unlock()
	return val, nil
}

// Invalidate drops key so the next lookup fetches again.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *Cache[T]) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[T])
	c.mu.Unlock()
}
