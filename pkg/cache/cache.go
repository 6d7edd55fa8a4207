// Package cache keeps per-server dashboard sessions in a bounded LRU.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache defines a bounded key/value store with least-recently-used eviction
type Cache[V any] interface {
	// Get retrieves a value from the cache
	Get(key string) (V, bool)
	// GetOrCreate returns the cached value or stores the result of create
	GetOrCreate(key string, create func() V) V
	// Put stores a value in the cache
	Put(key string, value V)
	// Delete removes a value from the cache
	Delete(key string)
	// Keys returns the cached keys, oldest first
	Keys() []string
	// Len returns the number of cached values
	Len() int
	// Clear removes all entries from the cache
	Clear()
	// Stats returns a copy of the cache statistics
	Stats() Stats
}

type entry[V any] struct {
	value    V
	lastUsed time.Time
}

// LRUCache implements Cache on top of golang-lru.
type LRUCache[V any] struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *entry[V]]
	ttl   time.Duration
	stats *StatsCollector
	now   func() time.Time
}

// New creates a cache from cfg. A nil cfg uses DefaultConfig.
func New[V any](cfg *Config) (*LRUCache[V], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	size := cfg.MaxEntries
	if size <= 0 {
		size = DefaultConfig().MaxEntries
	}

	inner, err := lru.New[string, *entry[V]](size)
	if err != nil {
		return nil, err
	}

	c := &LRUCache[V]{
		lru: inner,
		ttl: cfg.TTL,
		now: time.Now,
	}
	if cfg.EnableStats {
		c.stats = NewStatsCollector()
	}
	return c, nil
}

// Get retrieves a value and marks it recently used.
func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetOrCreate returns the value for key, creating and storing it on a miss.
func (c *LRUCache[V]) GetOrCreate(key string, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lookup(key); ok {
		return e.value
	}
	value := create()
	c.add(key, value)
	return value
}

// Put stores a value, evicting the least recently used entry when full.
func (c *LRUCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(key, value)
}

// Delete removes a value from the cache
func (c *LRUCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
	c.updateSize()
}

// Keys returns the cached keys, oldest first
func (c *LRUCache[V]) Keys() []string {
	return c.lru.Keys()
}

// Len returns the number of cached values
func (c *LRUCache[V]) Len() int {
	return c.lru.Len()
}

// Clear removes all entries from the cache
func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.updateSize()
}

// Stats returns the cache statistics. It is empty when stats are disabled.
func (c *LRUCache[V]) Stats() Stats {
	if c.stats == nil {
		return Stats{Size: int64(c.lru.Len())}
	}
	return c.stats.GetStats()
}

// lookup must be called with mu held.
func (c *LRUCache[V]) lookup(key string) (*entry[V], bool) {
	e, ok := c.lru.Get(key)
	if ok && c.ttl > 0 && c.now().Sub(e.lastUsed) > c.ttl {
		c.lru.Remove(key)
		if c.stats != nil {
			c.stats.RecordExpiration()
		}
		c.updateSize()
		ok = false
	}

	if !ok {
		if c.stats != nil {
			c.stats.RecordMiss()
		}
		return nil, false
	}

	e.lastUsed = c.now()
	if c.stats != nil {
		c.stats.RecordHit()
	}
	return e, true
}

// add must be called with mu held.
func (c *LRUCache[V]) add(key string, value V) {
	if evicted := c.lru.Add(key, &entry[V]{value: value, lastUsed: c.now()}); evicted && c.stats != nil {
		c.stats.RecordEviction()
	}
	c.updateSize()
}

func (c *LRUCache[V]) updateSize() {
	if c.stats != nil {
		c.stats.UpdateSize(int64(c.lru.Len()))
	}
}
