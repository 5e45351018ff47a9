package snapshot

import (
	"context"
	"sync"
	"time"

	"restore-manager/core/reconcile"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads a snapshot by object path.
type Fetcher interface {
	Fetch(ctx context.Context, objectPath string) (reconcile.Snapshot, error)
}

type cacheEntry struct {
	snap  reconcile.Snapshot
	built time.Time
}

// Cache keeps fetched snapshots for a TTL. Concurrent misses for the same path
// share one fetch.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	sf      singleflight.Group
}

// NewCache wraps a fetcher. A zero TTL disables caching but still
// deduplicates concurrent fetches.
func NewCache(fetcher Fetcher, ttl time.Duration) *Cache {
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) fresh(e cacheEntry) bool {
	if c.ttl == 0 {
		return false
	}
	return c.now().Sub(e.built) <= c.ttl
}

// Fetch returns the cached snapshot or loads it.
func (c *Cache) Fetch(ctx context.Context, objectPath string) (reconcile.Snapshot, error) {
	// Fast path
	c.mu.RLock()
	e, ok := c.entries[objectPath]
	c.mu.RUnlock()
	if ok && c.fresh(e) {
		return e.snap, nil
	}

	result, err, _ := c.sf.Do(objectPath, func() (interface{}, error) {
		c.mu.RLock()
		e, ok := c.entries[objectPath]
		c.mu.RUnlock()
		if ok && c.fresh(e) {
			return e.snap, nil
		}

		snap, err := c.fetcher.Fetch(ctx, objectPath)
		if err != nil {
			return nil, err
		}

		if c.ttl > 0 {
			c.mu.Lock()
			c.entries[objectPath] = cacheEntry{snap: snap, built: c.now()}
			c.mu.Unlock()
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(reconcile.Snapshot), nil
}

// Invalidate drops a cached path. An empty path drops everything.
func (c *Cache) Invalidate(objectPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if objectPath == "" {
		c.entries = make(map[string]cacheEntry)
		return
	}
	delete(c.entries, objectPath)
}
