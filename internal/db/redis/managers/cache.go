package managers

import (
	"context"
	"time"

	"norelock.dev/soundscope/internal/db/redis"
	"norelock.dev/soundscope/pkg/cache"
)

// CacheKeyPrefix namespaces cached search results.
const CacheKeyPrefix = "cache"

// Cache is a cache.Cache backed by Redis, shared by every scope daemon using the same server.
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

var _ cache.Cache = (*Cache)(nil)

// NewCache creates a Redis cache with the given default TTL.
func NewCache(client *redis.Client, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{client: client, defaultTTL: defaultTTL}
}

func (c *Cache) key(key string) string {
	return c.client.Key(CacheKeyPrefix, key)
}

// Get implements cache.Cache. Redis failures are reported as misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, c.key(key))
	if err != nil || value == "" {
		return nil, false
	}
	return []byte(value), true
}

// Set implements cache.Cache.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, c.key(key), string(value), ttl)
}

// Delete implements cache.Cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key))
}

// Clear implements cache.Cache by dropping every key under the cache namespace.
func (c *Cache) Clear(ctx context.Context) error {
	return c.client.DelKeys(ctx, c.key("*"))
}
