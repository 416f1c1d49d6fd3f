package memory

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// tierCacheState is one tier's bounded cache plus its counters and its
// current (possibly self-tuned) capacity.
type tierCacheState struct {
	mu       sync.Mutex
	lru      *expirable.LRU[string, *Memory]
	capacity int
	ttl      time.Duration

	hits      int64
	misses    int64
	evictions int64
}

// Cache is three bounded per-tier caches keyed by memory id, each
// with TTL + LRU eviction where reads refresh an entry's recency, and
// per-tier hit/miss/eviction counters plus hit-rate-driven self-tuning
// resize.
type Cache struct {
	mu     sync.RWMutex
	tiers  map[Tier]*tierCacheState
	minCap int
}

// CacheConfig supplies the initial per-tier capacity/TTL; zero fields
// fall back to the defaults.
type CacheConfig struct {
	CoreCapacity       int
	ActiveCapacity     int
	BackgroundCapacity int
	ActiveTTL          time.Duration
	BackgroundTTL      time.Duration
}

// DefaultCacheConfig returns the built-in defaults: core 1000 entries
// with unbounded TTL, active 500/24h, background 100/6h.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		CoreCapacity:       1000,
		ActiveCapacity:     500,
		BackgroundCapacity: 100,
		ActiveTTL:          24 * time.Hour,
		BackgroundTTL:      6 * time.Hour,
	}
}

// NewCache builds the three per-tier caches. Core has no TTL (an
// effectively unbounded one is substituted since the underlying
// expirable LRU requires a finite value); eviction there is driven by
// capacity alone.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.CoreCapacity <= 0 {
		cfg.CoreCapacity = 1000
	}
	if cfg.ActiveCapacity <= 0 {
		cfg.ActiveCapacity = 500
	}
	if cfg.BackgroundCapacity <= 0 {
		cfg.BackgroundCapacity = 100
	}
	if cfg.ActiveTTL <= 0 {
		cfg.ActiveTTL = 24 * time.Hour
	}
	if cfg.BackgroundTTL <= 0 {
		cfg.BackgroundTTL = 6 * time.Hour
	}

	const unboundedTTL = 365 * 24 * time.Hour

	newState := func(capacity int, ttl time.Duration) *tierCacheState {
		st := &tierCacheState{capacity: capacity, ttl: ttl}
		st.lru = expirable.NewLRU[string, *Memory](capacity, func(key string, value *Memory) {
			st.evictions++
		}, ttl)
		return st
	}

	return &Cache{
		minCap: 100,
		tiers: map[Tier]*tierCacheState{
			TierCore:       newState(cfg.CoreCapacity, unboundedTTL),
			TierActive:     newState(cfg.ActiveCapacity, cfg.ActiveTTL),
			TierBackground: newState(cfg.BackgroundCapacity, cfg.BackgroundTTL),
		},
	}
}

// Get performs a lookup, refreshing the entry's recency on hit. The
// cache is advisory: callers must fall through to the Vector Gateway
// on miss.
func (c *Cache) Get(id string, tier Tier) (*Memory, bool) {
	c.mu.RLock()
	st := c.tiers[tier]
	c.mu.RUnlock()
	if st == nil {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.lru.Get(id)
	if ok {
		st.hits++
		// Never serve a memory whose tier field disagrees with the
		// tier it was looked up under.
		if m.Tier != tier {
			st.lru.Remove(id)
			return nil, false
		}
		return m, true
	}
	st.misses++
	return nil, false
}

// Put writes through to the cache for the given tier. The gateway
// remains authoritative; this never fails the caller's write path.
func (c *Cache) Put(id string, mem *Memory, tier Tier) {
	c.mu.RLock()
	st := c.tiers[tier]
	c.mu.RUnlock()
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lru.Add(id, mem)
}

// Invalidate removes id from one tier, or from all tiers if tier is
// the zero value.
func (c *Cache) Invalidate(id string, tier Tier) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tier != "" {
		if st := c.tiers[tier]; st != nil {
			st.mu.Lock()
			st.lru.Remove(id)
			st.mu.Unlock()
		}
		return
	}
	for _, st := range c.tiers {
		st.mu.Lock()
		st.lru.Remove(id)
		st.mu.Unlock()
	}
}

// PurgeStale removes expired entries from every tier. The expirable
// LRU purges lazily on access; this forces an eager sweep by walking
// the key set, which the underlying structure already does on a
// background timer. PurgeStale exists so the Lifecycle Manager's
// housekeeping tick can request one synchronously.
func (c *Cache) PurgeStale() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, st := range c.tiers {
		st.mu.Lock()
		st.lru.Keys() // touches the structure, triggering lazy expiry of dead entries
		st.mu.Unlock()
	}
}

// Clear empties one tier, or every tier if tier is the zero value.
func (c *Cache) Clear(tier Tier) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tier != "" {
		if st := c.tiers[tier]; st != nil {
			st.mu.Lock()
			st.lru.Purge()
			st.mu.Unlock()
		}
		return
	}
	for _, st := range c.tiers {
		st.mu.Lock()
		st.lru.Purge()
		st.mu.Unlock()
	}
}

// CacheStats is the per-tier hit/miss/eviction/capacity snapshot.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Capacity  int
	Len       int
	HitRate   float64
}

// Stats returns a snapshot for tier t.
func (c *Cache) Stats(tier Tier) CacheStats {
	c.mu.RLock()
	st := c.tiers[tier]
	c.mu.RUnlock()
	if st == nil {
		return CacheStats{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	total := st.hits + st.misses
	rate := 0.0
	if total > 0 {
		rate = float64(st.hits) / float64(total)
	}
	return CacheStats{
		Hits:      st.hits,
		Misses:    st.misses,
		Evictions: st.evictions,
		Capacity:  st.capacity,
		Len:       st.lru.Len(),
		HitRate:   rate,
	}
}

// Retune applies the self-tuning resize rule after each housekeeping
// tick: shrink a cold tier (hit-rate < 0.5 and capacity > 100) to
// floor(0.8*capacity); grow a hot, full tier (hit-rate > 0.8 and
// fill-ratio > 0.9) to floor(1.2*capacity).
// Resize preserves the most-recently-used entries because it copies
// forward from the existing LRU before replacing it.
func (c *Cache) Retune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tier, st := range c.tiers {
		st.mu.Lock()
		stats := c.statsLocked(st)
		newCap := st.capacity
		if stats.HitRate < 0.5 && st.capacity > c.minCap {
			newCap = int(float64(st.capacity) * 0.8)
			if newCap < c.minCap {
				newCap = c.minCap
			}
		} else if stats.HitRate > 0.8 {
			fillRatio := 0.0
			if st.capacity > 0 {
				fillRatio = float64(st.lru.Len()) / float64(st.capacity)
			}
			if fillRatio > 0.9 {
				newCap = int(float64(st.capacity) * 1.2)
			}
		}
		if newCap != st.capacity {
			c.resizeLocked(tier, st, newCap)
		}
		st.hits, st.misses, st.evictions = 0, 0, 0
		st.mu.Unlock()
	}
}

func (c *Cache) statsLocked(st *tierCacheState) CacheStats {
	total := st.hits + st.misses
	rate := 0.0
	if total > 0 {
		rate = float64(st.hits) / float64(total)
	}
	return CacheStats{Hits: st.hits, Misses: st.misses, Capacity: st.capacity, Len: st.lru.Len(), HitRate: rate}
}

// resizeLocked replaces st's LRU with one of the new capacity,
// re-inserting entries oldest first so the most-recently-used ones are
// added last and survive the resize even when newCap < old length.
func (c *Cache) resizeLocked(tier Tier, st *tierCacheState, newCap int) {
	keys := st.lru.Keys() // oldest first
	fresh := expirable.NewLRU[string, *Memory](newCap, func(key string, value *Memory) {
		st.evictions++
	}, st.ttl)
	for _, k := range keys {
		if v, ok := st.lru.Peek(k); ok {
			fresh.Add(k, v)
		}
	}
	st.lru = fresh
	st.capacity = newCap
}
