// Package rulecache is the in-process TTL rule cache shared by the
// Scoring Engine, Intent Detector, and Automation Engine (spec.md §5
// "Rule caches ... live in-process with a TTL-based reload (default 60s)
// and a manual invalidate signal from the admin surface").
package rulecache

import (
	"context"
	"sync"
	"time"
)

// Cache holds the last loaded slice of rules of type T, reloading lazily
// once the TTL has elapsed or after an explicit Invalidate.
type Cache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	loadedAt time.Time
	rules   []T
	load    func(ctx context.Context) ([]T, error)
}

func New[T any](ttl time.Duration, load func(ctx context.Context) ([]T, error)) *Cache[T] {
	return &Cache[T]{ttl: ttl, load: load}
}

// Get returns the cached rules, reloading first if the TTL has elapsed.
func (c *Cache[T]) Get(ctx context.Context) ([]T, error) {
	c.mu.RLock()
	stale := time.Since(c.loadedAt) > c.ttl
	rules := c.rules
	c.mu.RUnlock()
	if !stale {
		return rules, nil
	}
	return c.reload(ctx)
}

// Invalidate forces the next Get to reload regardless of TTL — the manual
// invalidate signal from the admin surface.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Cache[T]) reload(ctx context.Context) ([]T, error) {
	rules, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.rules = rules
	c.loadedAt = time.Now()
	c.mu.Unlock()
	return rules, nil
}
