package cache

import (
	"context"
	"sync"
	"time"

	"github.com/okian/campusfeed/internal/domain/model"
	"github.com/okian/campusfeed/pkg/metrics"
)

type memoryEntry struct {
	feed    []model.RankedPost
	expires time.Time
}

// MemoryCache is a process-local Cache with per-entry TTL.
type MemoryCache struct {
	settings
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	generation int64
	versions   map[string]int64
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache(opts ...Option) *MemoryCache {
	return &MemoryCache{
		settings: newSettings(opts),
		entries:  make(map[string]memoryEntry),
		versions: make(map[string]int64),
	}
}

// Get implements Cache. Expired entries count as misses.
func (c *MemoryCache) Get(_ context.Context, viewerID string) ([]model.RankedPost, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[viewerID]
	c.mu.RUnlock()
	if !ok || (!e.expires.IsZero() && !c.now().Before(e.expires)) {
		metrics.RecordCacheMiss()
		return nil, false, nil
	}
	metrics.RecordCacheHit()
	return cloneFeed(e.feed), true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, viewerID string, feed []model.RankedPost) error {
	e := c.entry(feed)
	c.mu.Lock()
	c.entries[viewerID] = e
	c.mu.Unlock()
	return nil
}

// Version implements Cache.
func (c *MemoryCache) Version(_ context.Context, viewerID string) (Version, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Version{Generation: c.generation, Viewer: c.versions[viewerID]}, nil
}

// SetIfVersion implements Cache. The version check and the write happen
// under one lock.
func (c *MemoryCache) SetIfVersion(_ context.Context, viewerID string, v Version, feed []model.RankedPost) (bool, error) {
	e := c.entry(feed)
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.Generation != c.generation || v.Viewer != c.versions[viewerID] {
		metrics.RecordCacheStaleWrite()
		return false, nil
	}
	c.entries[viewerID] = e
	return true, nil
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(_ context.Context, viewerID string) error {
	c.mu.Lock()
	delete(c.entries, viewerID)
	c.versions[viewerID]++
	c.mu.Unlock()
	metrics.RecordCacheInvalidation(scopeViewer)
	return nil
}

// InvalidateAll implements Cache. Per-viewer versions restart because the
// generation alone already tells old versions apart.
func (c *MemoryCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.versions = make(map[string]int64)
	c.generation++
	c.mu.Unlock()
	metrics.RecordCacheInvalidation(scopeAll)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) entry(feed []model.RankedPost) memoryEntry {
	e := memoryEntry{feed: cloneFeed(feed)}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	return e
}
