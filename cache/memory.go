package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache 内存缓存，超过 maxEntries 时淘汰最早过期的条目
type MemoryCache struct {
	mu         sync.RWMutex
	items      map[string]*memoryItem
	maxEntries int
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func (i *memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// NewMemoryCache starts a janitor that drops expired entries every
// cleanupInterval. maxEntries <= 0 means unbounded.
func NewMemoryCache(maxEntries int, cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		items:      make(map[string]*memoryItem),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupExpired(cleanupInterval)
	}
	return c
}

// Get returns a copy of the stored bytes.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok || item.expired(c.now()) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), item.value...), nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	item := &memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}

	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.evict(now)
	}
	c.items[key] = item
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// Len counts stored entries, including expired ones not yet cleaned up.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// evict removes expired entries, or failing that the entry expiring
// soonest. Entries without TTL go last. Caller holds mu.
func (c *MemoryCache) evict(now time.Time) {
	removed := c.removeExpired(now)
	if removed > 0 {
		return
	}

	var victim string
	var victimItem *memoryItem
	for key, item := range c.items {
		if victimItem == nil || evictsBefore(key, item, victim, victimItem) {
			victim, victimItem = key, item
		}
	}
	if victimItem != nil {
		delete(c.items, victim)
	}
}

func evictsBefore(key string, item *memoryItem, otherKey string, other *memoryItem) bool {
	switch {
	case item.expiresAt.IsZero() != other.expiresAt.IsZero():
		return other.expiresAt.IsZero()
	case !item.expiresAt.Equal(other.expiresAt):
		return item.expiresAt.Before(other.expiresAt)
	default:
		return key < otherKey
	}
}

func (c *MemoryCache) removeExpired(now time.Time) int {
	removed := 0
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// cleanupExpired 定期清理过期缓存
func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.removeExpired(c.now())
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
