package cache

import (
	"sync"
	"sync/atomic"
)

// DefaultEmbeddingCapacity is the capacity used when none is configured.
const DefaultEmbeddingCapacity = 1000

// entry is a node in the insertion-ordered list.
type entry struct {
	key   string
	value []float32
	prev  *entry
	next  *entry
}

// EmbeddingCache stores query embeddings with a fixed capacity. When full,
// inserting a new key evicts the oldest-inserted entry. Lookups never change
// eviction order, and overwriting a key keeps its original position.
//
// All operations take a single lock, so insert and eviction happen as one
// step even when abandoned workers are still writing after a timeout.
// Returned vectors are shared and must not be modified.
type EmbeddingCache struct {
	mu       sync.Mutex
	items    map[string]*entry
	newest   *entry
	oldest   *entry
	capacity int

	hits   atomic.Int64
	misses atomic.Int64
}

// EmbeddingStats reports cache effectiveness.
type EmbeddingStats struct {
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

// NewEmbeddingCache creates a cache holding at most capacity entries.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = DefaultEmbeddingCapacity
	}
	return &EmbeddingCache{
		items:    make(map[string]*entry, capacity),
		capacity: capacity,
	}
}

// Get returns the vector stored under key.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	var value []float32
	e, ok := c.items[key]
	if ok {
		value = e.value
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return value, true
}

// Has reports whether key is present.
func (c *EmbeddingCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Set stores value under key, evicting the oldest entry first if the cache
// is full and key is new.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		return
	}

	if len(c.items) >= c.capacity {
		c.evictOldest()
	}

	e := &entry{key: key, value: value}
	c.items[key] = e
	c.pushNewest(e)
}

// Size returns the number of cached entries.
func (c *EmbeddingCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Capacity returns the maximum number of entries.
func (c *EmbeddingCache) Capacity() int {
	return c.capacity
}

// Keys returns the cached keys from oldest to newest.
func (c *EmbeddingCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for e := c.oldest; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Stats returns a snapshot of cache counters.
func (c *EmbeddingCache) Stats() EmbeddingStats {
	return EmbeddingStats{
		Size:     c.Size(),
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}

// pushNewest appends e after the newest entry.
func (c *EmbeddingCache) pushNewest(e *entry) {
	e.prev = c.newest
	e.next = nil
	if c.newest != nil {
		c.newest.next = e
	}
	c.newest = e
	if c.oldest == nil {
		c.oldest = e
	}
}

// evictOldest drops the first-inserted entry.
func (c *EmbeddingCache) evictOldest() {
	e := c.oldest
	if e == nil {
		return
	}
	delete(c.items, e.key)

	c.oldest = e.next
	if c.oldest != nil {
		c.oldest.prev = nil
	} else {
		c.newest = nil
	}
	e.next = nil
}
