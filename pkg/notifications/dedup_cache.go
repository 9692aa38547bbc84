package notifications

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

// DedupCache remembers recently seen dedup keys for a limited time.
// A failing cache is treated as a miss by DuplicateGuard.
type DedupCache interface {
	Contains(ctx context.Context, key string) (bool, error)
	Add(ctx context.Context, key string, ttl time.Duration) error
}

// MemoryDedupCache is a process-local DedupCache with lazy expiry.
// Its size is bounded: the least recently added key is evicted at capacity.
type MemoryDedupCache struct {
	keys *cache.LRUCache[string, struct{}]
}

// NewMemoryDedupCache creates a cache holding at most capacity keys.
// A non-positive capacity falls back to the default.
func NewMemoryDedupCache(capacity int, opts ...cache.Option) *MemoryDedupCache {
	if capacity <= 0 {
		capacity = DefaultConfig().CacheCapacity
	}
	return &MemoryDedupCache{keys: cache.NewLRUCache[string, struct{}](capacity, opts...)}
}

func (c *MemoryDedupCache) Contains(_ context.Context, key string) (bool, error) {
	return c.keys.Contains(key), nil
}

func (c *MemoryDedupCache) Add(_ context.Context, key string, ttl time.Duration) error {
	c.keys.PutWithTTL(key, struct{}{}, ttl)
	return nil
}

// Len returns the number of cached keys, including expired keys not yet observed.
func (c *MemoryDedupCache) Len() int {
	return c.keys.Len()
}

// Prune drops expired keys and returns how many were removed.
func (c *MemoryDedupCache) Prune() int {
	return c.keys.DeleteExpired()
}

// RedisDedupCache shares dedup keys between processes through Redis.
type RedisDedupCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisDedupCache creates a Redis-backed cache. Keys are stored as prefix+key.
func NewRedisDedupCache(client redis.UniversalClient, prefix string) (*RedisDedupCache, error) {
	if client == nil {
		return nil, ErrNilRedisClient
	}
	if prefix == "" {
		prefix = DefaultConfig().RedisKeyPrefix
	}
	return &RedisDedupCache{client: client, prefix: prefix}, nil
}

func (c *RedisDedupCache) Contains(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisDedupCache) Add(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, 1, ttl).Err()
}
