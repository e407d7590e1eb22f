package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Cache is a bounded, thread-safe set of already-seen event keys. It is a
// performance layer over the durable transaction check, never the source of
// truth: entries evict oldest-first at the capacity ceiling and expire after
// the TTL, and a cold cache after restart only costs a database lookup.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = oldest
}

type cacheEntry struct {
	key       string
	expiresAt time.Time
}

func NewCache(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Add records a key, evicting the oldest entry if the cache is full.
func (c *Cache) Add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		return
	}
	for c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	el := c.order.PushBack(&cacheEntry{key: key, expiresAt: time.Now().Add(c.ttl)})
	c.entries[key] = el
}

// Contains reports whether the key is present and unexpired.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(el.Value.(*cacheEntry).expiresAt) {
		c.remove(el)
		return false
	}
	return true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Sweep drops all expired entries. The janitor calls this periodically so
// idle keys do not pin memory until their next lookup.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if now.After(el.Value.(*cacheEntry).expiresAt) {
			c.remove(el)
		}
		el = next
	}
}

// StartJanitor sweeps expired entries on the given interval until ctx ends.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Cache) evictOldest() {
	if el := c.order.Front(); el != nil {
		c.remove(el)
	}
}

func (c *Cache) remove(el *list.Element) {
	delete(c.entries, el.Value.(*cacheEntry).key)
	c.order.Remove(el)
}
