package cache

import (
	"sync"
	"time"
)

// MemoryCache is the in-process cache backend with TTL support.
type MemoryCache struct {
	mu     sync.RWMutex
	items  map[string]item
	ttl    time.Duration
	stopCh chan struct{}
}

type item struct {
	value     interface{}
	expiresAt time.Time
}

// NewMemory creates an in-memory cache with the given default TTL.
func NewMemory(ttl time.Duration) *MemoryCache {
	c := &MemoryCache{
		items:  make(map[string]item),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || time.Now().After(it.expiresAt) {
		return nil, false
	}
	return it.value, true
}

func (c *MemoryCache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

func (c *MemoryCache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item)
}

// Stop terminates the background expiry sweep.
func (c *MemoryCache) Stop() {
	close(c.stopCh)
}

func (c *MemoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
		}
	}
}

var _ Cache = (*MemoryCache)(nil)
