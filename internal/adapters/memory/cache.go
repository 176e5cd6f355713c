// Package memory is the in-process cache backend.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/forestlens/internal/core/ports"
)

var _ ports.CacheService = (*Cache)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache implements ports.CacheService over a sync.Map. Entries are immutable
// once written; a Set swaps the whole entry, so readers of distinct keys never
// contend on a shared lock.
type Cache struct {
	entries sync.Map // string -> *entry
	now     func() time.Time
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the value for key, or ports.ErrCacheMiss when absent or expired.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, ports.ErrCacheMiss
	}
	e := v.(*entry)
	if !c.now().Before(e.expiresAt) {
		return nil, ports.ErrCacheMiss
	}
	return e.value, nil
}

// Set stores a copy of value for ttl. A non-positive ttl stores nothing.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	v := make([]byte, len(value))
	copy(v, value)

	c.entries.Store(key, &entry{value: v, expiresAt: c.now().Add(ttl)})
	return nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.entries.Delete(key)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	removed := 0

	c.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		if !now.Before(e.expiresAt) {
			// Only drop the entry we inspected; a concurrent Set may have replaced it.
			if c.entries.CompareAndDelete(k, e) {
				removed++
			}
		}
		return true
	})
	return removed
}

// StartJanitor sweeps every interval until ctx is done.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					slog.Debug("cache sweep", "removed", n, "remaining", c.Len())
				}
			}
		}
	}()
}
