// Package cache holds the snapshot caches: a bounded in-process LRU, a Redis
// client, and a tiered cache that layers the two.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

var errEmptyKey = errors.New("cache: empty key")

// LRUStats describes the occupancy of an LRUCache.
type LRUStats struct {
	Entries   int
	Capacity  int
	Evictions int64
	Expired   int64
}

// LRUCache is a bounded, mutex-guarded cache. Every entry carries its own
// deadline; the least recently read entry goes first when the cache is full.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	index    map[string]*list.Element
	recency  *list.List // front = most recently used
	now      func() time.Time

	evictions int64
	expired   int64
}

type lruEntry struct {
	key      string
	data     []byte
	deadline time.Time
}

// NewLRUCache returns a cache holding at most capacity entries. A
// non-positive capacity falls back to 10000.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LRUCache{
		capacity: capacity,
		index:    make(map[string]*list.Element, capacity),
		recency:  list.New(),
		now:      time.Now,
	}
}

// Get returns the stored bytes or nil on a miss. Entries past their deadline
// count as misses and are dropped.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.index[key]
	if !found {
		return nil, nil
	}
	e := el.Value.(*lruEntry)
	if !c.now().Before(e.deadline) {
		c.unlink(el)
		c.expired++
		return nil, nil
	}
	c.recency.MoveToFront(el)
	return e.data, nil
}

// Set stores data under key until ttl elapses.
func (c *LRUCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := c.now().Add(ttl)
	if el, found := c.index[key]; found {
		e := el.Value.(*lruEntry)
		e.data, e.deadline = data, deadline
		c.recency.MoveToFront(el)
		return nil
	}

	c.index[key] = c.recency.PushFront(&lruEntry{key: key, data: data, deadline: deadline})
	for c.recency.Len() > c.capacity {
		c.unlink(c.recency.Back())
		c.evictions++
	}
	return nil
}

// Delete drops key if present.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	if el, found := c.index[key]; found {
		c.unlink(el)
	}
	c.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(context.Context) error { return nil }

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	c.index = make(map[string]*list.Element)
	c.recency.Init()
	c.mu.Unlock()
	return nil
}

// Stats reports occupancy and churn counters.
func (c *LRUCache) Stats() LRUStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return LRUStats{
		Entries:   c.recency.Len(),
		Capacity:  c.capacity,
		Evictions: c.evictions,
		Expired:   c.expired,
	}
}

func (c *LRUCache) unlink(el *list.Element) {
	c.recency.Remove(el)
	delete(c.index, el.Value.(*lruEntry).key)
}
