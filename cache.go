package mongopager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the key-value interface the batch loader and optimizer consume.
// Entries are owned by the cache layer's own TTL expiry; this package never
// deletes them explicitly except implicitly via overwrite.
type Cache interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the value under the key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache implements Cache on top of a redis client.
type RedisCache struct {
	rc *redis.Client
}

func NewRedisCache(rc *redis.Client) *RedisCache {
	return &RedisCache{rc: rc}
}

// Get - implements Cache. A missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := c.rc.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to get cache: %w", err)
	}

	return result, true, nil
}

// Set - implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rc.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

var _ Cache = (*RedisCache)(nil)
