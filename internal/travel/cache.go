package travel

import (
	"context"
	"sync"
	"time"

	"github.com/fieldworks/dispatchd/internal/dispatch/domain"
)

// DurationCache memoizes oracle answers keyed by rounded coordinate
// pairs. Implementations must be safe for concurrent use; the matrix
// builder fills cells in parallel.
type DurationCache interface {
	Get(ctx context.Context, key string) (int64, bool)
	Set(ctx context.Context, key string, seconds int64)
}

// CacheKey builds the memoization key for an origin/destination pair.
func CacheKey(origin, destination domain.Coordinate) string {
	return origin.Key() + "|" + destination.Key()
}

type memoryEntry struct {
	seconds int64
	expires time.Time
}

// MemoryCache is the process-local TTL cache. It lives for the process
// lifetime and is shared across passes and cycles.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   func() time.Time
}

// NewMemoryCache creates a cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		clock:   time.Now,
	}
}

// Get returns the cached duration if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) (int64, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.clock().After(e.expires) {
		return 0, false
	}
	return e.seconds, true
}

// Set stores a duration, restarting its TTL.
func (c *MemoryCache) Set(_ context.Context, key string, seconds int64) {
	c.mu.Lock()
	c.entries[key] = memoryEntry{seconds: seconds, expires: c.clock().Add(c.ttl)}
	c.mu.Unlock()
}

// Evict drops expired entries. Callers may run it periodically; Get
// never returns stale values regardless.
func (c *MemoryCache) Evict() int {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
