package block

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the default maximum number of cached fragments.
const DefaultCapacity = 200

// Key addresses a cached fragment by content.
//
// The byte length rides along with the hash so that a hash collision
// between blocks of different sizes can never produce a false hit.
type Key struct {
	Hash   uint64
	Length int
}

// KeyFor returns the cache key for a block.
func KeyFor(b Block) Key {
	return Key{Hash: b.Hash, Length: b.Length()}
}

// Cache is a content-addressed fragment cache with strict LRU eviction.
//
// All methods are safe for concurrent use. The lock covers only map and
// list manipulation; callers render fragments outside it.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*list.Element
	order    *list.List // front = most recently used
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type cacheEntry struct {
	key        Key
	fragment   string
	lastAccess time.Time
}

// NewCache creates a cache bounded at capacity entries.
// A non-positive capacity falls back to DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		entries:  make(map[Key]*list.Element),
		order:    list.New(),
		capacity: capacity,
	}
}

// Lookup returns the fragment cached under key, refreshing its recency.
func (c *Cache) Lookup(key Key) (string, bool) {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		return "", false
	}
	entry := elem.Value.(*cacheEntry)
	entry.lastAccess = time.Now()
	c.order.MoveToFront(elem)
	c.mu.Unlock()

	c.hits.Add(1)
	return entry.fragment, true
}

// Insert stores fragment under key, evicting the least-recently-used
// entries if the cache exceeds its capacity.
func (c *Cache) Insert(key Key, fragment string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.fragment = fragment
		entry.lastAccess = time.Now()
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{
		key:        key,
		fragment:   fragment,
		lastAccess: time.Now(),
	})
	c.entries[key] = elem

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions.Add(1)
	}
}

// Contains reports whether key is cached without refreshing recency.
func (c *Cache) Contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Len returns the number of cached fragments.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the configured maximum size.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Clear drops every cached fragment.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*list.Element)
	c.order.Init()
}

// Stats returns a point-in-time snapshot of cache counters.
func (c *Cache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	c.mu.Lock()
	size := c.order.Len()
	c.mu.Unlock()

	return CacheStats{
		Size:      size,
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   hitRate,
	}
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}
