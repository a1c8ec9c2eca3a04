package utils

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = time.Hour
	cacheTimeout    = 2 * time.Second
)

// RedisCache stores byte values under a key prefix. Every failure is treated
// as a miss so callers fall back to recomputing.
type RedisCache struct {
	cli    redis.Cmdable
	prefix string
}

// NewRedisCache returns a cache on cli, or nil when cli is nil.
func NewRedisCache(cli *redis.Client, prefix string) *RedisCache {
	if cli == nil {
		return nil
	}
	return &RedisCache{cli: cli, prefix: prefix}
}

// Get returns cached bytes for key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	b, err := c.cli.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			Sugar.Debugf("cache get failed key=%s err=%v", key, err)
		}
		return nil, false
	}
	return b, true
}

// Set stores b for ttl, or the default hour when ttl is not positive.
func (c *RedisCache) Set(ctx context.Context, key string, b []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := c.cli.Set(ctx, c.prefix+key, b, ttl).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// Delete drops key.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := c.cli.Del(ctx, c.prefix+key).Err(); err != nil {
		Sugar.Warnf("cache delete failed key=%s err=%v", key, err)
	}
}
