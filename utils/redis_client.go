package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adminbjkai/img2/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

// NewRedis builds a client from cfg, or returns nil when no host is configured.
func NewRedis(cfg config.AppConfig) *redis.Client {
	if cfg.RedisHost == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// GetRedis returns a process-wide client, nil when Redis is not configured.
// An unreachable server only logs a warning; callers fail open.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		redisClient = NewRedis(config.Get())
		if redisClient == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			Sugar.Warnf("redis ping failed, upload quota will fail open: %v", err)
		}
	})
	return redisClient
}
