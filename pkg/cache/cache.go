// Package cache provides expiring byte caches for serialized search results.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTooLarge is returned when an item is too large to be stored in the cache.
var ErrTooLarge = errors.New("item too large for cache")

// Cache stores opaque values under string keys for a limited time.
type Cache interface {
	// Get retrieves a cached item by key.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores an item in the cache with the given key.
	// A non-positive ttl selects the cache's default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes an item from the cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all items from the cache.
	Clear(ctx context.Context) error
}

// entry represents a cached item.
type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryCache is an in-memory implementation of the Cache interface.
type MemoryCache struct {
	items       map[string]*entry
	mutex       sync.RWMutex
	defaultTTL  time.Duration
	maxSize     int64
	currentSize int64
	now         func() time.Time
}

// MemoryCacheOption is a function that configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithDefaultTTL sets the default time-to-live for cache entries.
func WithDefaultTTL(ttl time.Duration) MemoryCacheOption {
	return func(c *MemoryCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithMaxSize sets the maximum size of the cache in bytes.
func WithMaxSize(maxSize int64) MemoryCacheOption {
	return func(c *MemoryCache) {
		if maxSize > 0 {
			c.maxSize = maxSize
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(options ...MemoryCacheOption) *MemoryCache {
	cache := &MemoryCache{
		items:      make(map[string]*entry),
		defaultTTL: 5 * time.Minute,
		maxSize:    16 * 1024 * 1024, // 16 MB
		now:        time.Now,
	}

	for _, option := range options {
		option(cache)
	}

	return cache
}

// Get retrieves a cached item by key. Expired items are reported as missing
// and dropped on the next write.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, ok := c.items[key]
	if !ok || item.expired(c.now()) {
		return nil, false
	}
	return item.value, true
}

// Set stores an item in the cache with the given key.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	newSize := int64(len(value))
	if newSize > c.maxSize {
		return ErrTooLarge
	}

	if old, ok := c.items[key]; ok {
		c.currentSize -= int64(len(old.value))
		delete(c.items, key)
	}

	if c.currentSize+newSize > c.maxSize {
		c.evict(newSize)
	}

	c.items[key] = &entry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	c.currentSize += newSize

	return nil
}

// Delete removes an item from the cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if item, ok := c.items[key]; ok {
		c.currentSize -= int64(len(item.value))
		delete(c.items, key)
	}

	return nil
}

// Clear removes all items from the cache.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*entry)
	c.currentSize = 0

	return nil
}

// Purge drops expired entries and returns how many were removed.
func (c *MemoryCache) Purge() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.purgeLocked()
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.items)
}

func (c *MemoryCache) purgeLocked() int {
	now := c.now()
	removed := 0
	for key, item := range c.items {
		if item.expired(now) {
			c.currentSize -= int64(len(item.value))
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// evict removes entries until there's enough space for size more bytes:
// expired entries first, then those closest to expiry.
func (c *MemoryCache) evict(size int64) {
	c.purgeLocked()
	if c.currentSize+size <= c.maxSize {
		return
	}

	type keyExpiry struct {
		key       string
		expiresAt time.Time
	}
	entries := make([]keyExpiry, 0, len(c.items))
	for key, item := range c.items {
		entries = append(entries, keyExpiry{key, item.expiresAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].expiresAt.Before(entries[j].expiresAt)
	})

	for _, e := range entries {
		if c.currentSize+size <= c.maxSize {
			break
		}
		c.currentSize -= int64(len(c.items[e.key].value))
		delete(c.items, e.key)
	}
}
