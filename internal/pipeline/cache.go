package pipeline

import (
	"sync"
	"time"
)

// Cache holds the latest result of each engine, keyed by result key. It is
// invalidated whenever the active dataset changes.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]interface{}
	updated time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]interface{})}
}

// Get returns the cached result for key.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.entries[key]
	return v, ok
}

// Put stores a single result.
func (c *Cache) Put(key string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = v
	c.updated = time.Now()
}

// Replace swaps in the results of a finished run. Entries the run did not
// produce, such as those of failed or skipped stages, are dropped.
func (c *Cache) Replace(results map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]interface{}, len(results))
	for k, v := range results {
		c.entries[k] = v
	}
	c.updated = time.Now()
}

// All returns a copy of every cached result.
func (c *Cache) All() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]interface{})
	c.updated = time.Time{}
}

// LastUpdated returns when the cache was last written; zero when empty.
func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.updated
}
