// internal/cache/memory.go
package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned when a key is absent or expired at every level.
var ErrCacheMiss = errors.New("cache miss")

type memoryItem struct {
	key        string
	value      []byte
	expiration time.Time
	accesses   int
	element    *list.Element
}

// MemoryCache is the process-local L1: a thread-safe map with per-entry TTL
// and LRU eviction once the configured capacity is reached.
type MemoryCache struct {
	capacity int
	data     map[string]*memoryItem
	order    *list.List // front = most recently used
	mutex    sync.RWMutex
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates an L1 cache bounded to capacity entries.
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity < 1 {
		capacity = 1000
	}
	cache := &MemoryCache{
		capacity: capacity,
		data:     make(map[string]*memoryItem),
		order:    list.New(),
		stop:     make(chan struct{}),
	}

	// Cleanup goroutine removes expired entries periodically
	go cache.cleanupExpired()

	return cache
}

// Get retrieves a value, bumping its recency and access count.
func (c *MemoryCache) Get(key string) ([]byte, int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item, exists := c.data[key]
	if !exists {
		return nil, 0, ErrCacheMiss
	}

	if time.Now().After(item.expiration) {
		c.removeLocked(item)
		return nil, 0, ErrCacheMiss
	}

	item.accesses++
	c.order.MoveToFront(item.element)
	return item.value, item.accesses, nil
}

// Set stores a value with the given TTL, evicting the least recently used
// entry when the cache is full.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if item, exists := c.data[key]; exists {
		item.value = value
		item.expiration = time.Now().Add(ttl)
		c.order.MoveToFront(item.element)
		return
	}

	for len(c.data) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*memoryItem))
	}

	item := &memoryItem{
		key:        key,
		value:      value,
		expiration: time.Now().Add(ttl),
	}
	item.element = c.order.PushFront(item)
	c.data[key] = item
}

// Delete removes a single key.
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if item, exists := c.data[key]; exists {
		c.removeLocked(item)
	}
}

// DeleteFunc removes every key for which match returns true and reports how
// many entries were dropped. Used to invalidate all pair entries touching an
// entity after a price or match write.
func (c *MemoryCache) DeleteFunc(match func(key string) bool) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key, item := range c.data {
		if match(key) {
			c.removeLocked(item)
			removed++
		}
	}
	return removed
}

// AccessCount returns how often a live entry has been read, without bumping
// recency. Zero for absent or expired keys.
func (c *MemoryCache) AccessCount(key string) int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists || time.Now().After(item.expiration) {
		return 0
	}
	return item.accesses
}

// Size returns the current number of entries.
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[string]*memoryItem)
	c.order.Init()
}

// Close stops the cleanup goroutine.
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemoryCache) removeLocked(item *memoryItem) {
	c.order.Remove(item.element)
	delete(c.data, item.key)
}

func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			now := time.Now()
			for _, item := range c.data {
				if now.After(item.expiration) {
					c.removeLocked(item)
				}
			}
			c.mutex.Unlock()
		case <-c.stop:
			return
		}
	}
}
