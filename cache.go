package hier

import (
	"context"
	"sync"
	"time"
)

type cacheKey struct {
	owner string
	level Level
	id    string
}

type cacheEntry struct {
	resolution  *Resolution
	fingerprint string
	storedAt    time.Time
}

// ResolutionCache memoizes resolved documents per context and tracks which
// cached descendants were resolved through which ancestors so a write
// anywhere evicts every affected resolution. It is the only shared mutable
// state in the engine and is safe for concurrent use.
//
// Lifecycle is tied to the owning Service instance; construct a fresh cache
// per service so tests stay isolated.
type ResolutionCache struct {
	mu       sync.RWMutex
	entries  map[cacheKey]cacheEntry
	children map[cacheKey]map[cacheKey]struct{}
	ttl      time.Duration
	clock    func() time.Time
}

// CacheOption configures a ResolutionCache.
type CacheOption func(*ResolutionCache)

// WithCacheTTL bounds how long entries stay cached. The TTL is a hygiene
// measure for the optional sweep; invalidation-on-write remains the
// correctness mechanism regardless of the TTL.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *ResolutionCache) {
		c.ttl = ttl
	}
}

// WithCacheClock overrides the time source, for tests.
func WithCacheClock(clock func() time.Time) CacheOption {
	return func(c *ResolutionCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewResolutionCache constructs an empty cache.
func NewResolutionCache(opts ...CacheOption) *ResolutionCache {
	cache := &ResolutionCache{
		entries:  map[cacheKey]cacheEntry{},
		children: map[cacheKey]map[cacheKey]struct{}{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

// Lookup returns the cached resolution for (owner, level, id) when present,
// unexpired, and still carrying the expected fingerprint.
func (c *ResolutionCache) Lookup(owner string, level Level, id string, fingerprint string) (*Resolution, bool) {
	key := cacheKey{owner: owner, level: level, id: id}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || entry.fingerprint != fingerprint {
		return nil, false
	}
	if c.ttl > 0 && c.clock().Sub(entry.storedAt) > c.ttl {
		return nil, false
	}
	return entry.resolution, true
}

// Store caches res and registers its leaf as a child of every ancestor
// layer that contributed to it, so invalidating any of them cascades here.
func (c *ResolutionCache) Store(res *Resolution) {
	if res == nil {
		return
	}
	leaf := cacheKey{owner: res.Owner, level: res.Level, id: res.ID}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[leaf] = cacheEntry{
		resolution:  res,
		fingerprint: res.fingerprint,
		storedAt:    c.clock(),
	}
	for _, layer := range res.Layers {
		ancestor := cacheKey{owner: res.Owner, level: layer.Level, id: layer.ID}
		if ancestor == leaf {
			continue
		}
		set, ok := c.children[ancestor]
		if !ok {
			set = map[cacheKey]struct{}{}
			c.children[ancestor] = set
		}
		set[leaf] = struct{}{}
	}
}

// Invalidate evicts the entry for (owner, level, id) and, transitively,
// every entry that was resolved through it. Returns the number of entries
// evicted.
func (c *ResolutionCache) Invalidate(owner string, level Level, id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(cacheKey{owner: owner, level: level, id: id}, map[cacheKey]struct{}{})
}

func (c *ResolutionCache) evictLocked(key cacheKey, seen map[cacheKey]struct{}) int {
	if _, done := seen[key]; done {
		return 0
	}
	seen[key] = struct{}{}

	evicted := 0
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		evicted++
	}
	descendants := c.children[key]
	delete(c.children, key)
	for child := range descendants {
		evicted += c.evictLocked(child, seen)
	}
	return evicted
}

// Len returns the number of cached resolutions.
func (c *ResolutionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes entries older than the configured TTL and returns how many
// were dropped. A zero TTL makes Sweep a no-op.
func (c *ResolutionCache) Sweep() int {
	if c.ttl <= 0 {
		return 0
	}
	cutoff := c.clock().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, entry := range c.entries {
		if entry.storedAt.Before(cutoff) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs Sweep every interval until ctx is cancelled. The sweep
// only removes already-stale entries; nothing depends on it for
// correctness.
func (c *ResolutionCache) StartSweeper(ctx context.Context, interval time.Duration) {
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
				c.Sweep()
			}
		}
	}()
}
