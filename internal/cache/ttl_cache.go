// Package cache provides the bounded, TTL-bound caches used by identity
// resolution, discovery, ownership, and metrics lookups.
package cache

import (
	"sync"
	"time"

	"github.com/rsionnach/nthlayer/internal/logging"
)

// Entry is one cached value plus its bookkeeping.
type Entry struct {
	Value      interface{}
	ExpiresAt  time.Time
	CreatedAt  time.Time
	AccessedAt time.Time
	HitCount   int64
}

// Stats tracks a cache's lifetime performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	Sets      int64
}

// TTLCache is a thread-safe, size-bounded cache with per-entry expiry
// and least-recently-accessed eviction once MaxSize is reached.
type TTLCache struct {
	mu         sync.RWMutex
	items      map[string]*Entry
	defaultTTL time.Duration
	maxSize    int
	stats      Stats
	stopCh     chan struct{}
}

// New creates a TTL cache and starts its background expiry sweep.
func New(defaultTTL time.Duration, maxSize int) *TTLCache {
	c := &TTLCache{
		items:      make(map[string]*Entry),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		stopCh:     make(chan struct{}),
	}
	go c.sweepExpired()
	return c
}

// Set stores value under key, defaulting to the cache's TTL unless an
// override is given.
func (c *TTLCache) Set(key string, value interface{}, ttl ...time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry := c.defaultTTL
	if len(ttl) > 0 {
		expiry = ttl[0]
	}

	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		if _, exists := c.items[key]; !exists {
			c.evictOldestLocked()
		}
	}

	now := time.Now()
	c.items[key] = &Entry{Value: value, ExpiresAt: now.Add(expiry), CreatedAt: now, AccessedAt: now}
	c.stats.Sets++
}

// Get returns the cached value for key, or (nil, false) on a miss or
// expired entry.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		delete(c.items, key)
		c.stats.Expired++
		c.stats.Misses++
		return nil, false
	}

	entry.AccessedAt = time.Now()
	entry.HitCount++
	c.stats.Hits++
	return entry.Value, true
}

// GetWithLoader returns the cached value, populating it via loader on a
// miss — the cache-aside pattern used by every provider client.
func (c *TTLCache) GetWithLoader(key string, ttl time.Duration, loader func() (interface{}, error)) (interface{}, error) {
	if val, ok := c.Get(key); ok {
		return val, nil
	}

	val, err := loader()
	if err != nil {
		return nil, err
	}
	c.Set(key, val, ttl)
	return val, nil
}

func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*Entry)
}

func (c *TTLCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *TTLCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Close stops the background expiry sweep. Caches that live for the
// process lifetime never need to call it.
func (c *TTLCache) Close() {
	close(c.stopCh)
}

func (c *TTLCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time

	for key, entry := range c.items {
		if oldestKey == "" || entry.AccessedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.AccessedAt
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.stats.Evictions++
	}
}

func (c *TTLCache) sweepExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			var expired []string
			for key, entry := range c.items {
				if now.After(entry.ExpiresAt) {
					expired = append(expired, key)
				}
			}
			for _, key := range expired {
				delete(c.items, key)
			}
			c.stats.Expired += int64(len(expired))
			c.mu.Unlock()

			if len(expired) > 0 {
				logging.GetLogger().Debug("swept expired cache entries", logging.Int("count", len(expired)))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Set of named caches, one per resolution concern, created together so
// components share a single lifetime and can report combined stats.
type Set struct {
	Identity  *TTLCache
	Discovery *TTLCache
	Ownership *TTLCache
	Metrics   *TTLCache
}

// DefaultTTL is applied when NewSet is called with a zero duration —
// the `cache_ttl` config default of 300s that governs the resolver and
// discovery caches.
const DefaultTTL = 300 * time.Second

// NewSet builds the standard cache set. resolverTTL drives the Identity
// and Discovery caches (the `cache_ttl` config key); Ownership and
// Metrics keep their own tuned lifetimes since ownership data changes
// rarely and metrics lookups need to stay fresh for drift analysis.
func NewSet(resolverTTL time.Duration) *Set {
	if resolverTTL <= 0 {
		resolverTTL = DefaultTTL
	}
	return &Set{
		Identity:  New(resolverTTL, 5000),
		Discovery: New(resolverTTL, 2000),
		Ownership: New(10*time.Minute, 2000),
		Metrics:   New(30*time.Second, 1000),
	}
}

func (s *Set) AllStats() map[string]Stats {
	return map[string]Stats{
		"identity":  s.Identity.Stats(),
		"discovery": s.Discovery.Stats(),
		"ownership": s.Ownership.Stats(),
		"metrics":   s.Metrics.Stats(),
	}
}

var (
	globalSet  *Set
	globalOnce sync.Once
)

// GetGlobalSet returns the process-wide cache set, lazily initializing
// it with DefaultTTL. Callers that have a configured `cache_ttl` should
// build their own Set via NewSet instead of going through the global.
func GetGlobalSet() *Set {
	globalOnce.Do(func() { globalSet = NewSet(DefaultTTL) })
	return globalSet
}
