// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"menuranker/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the one redis handle the pipeline shares: the score cache
// and the persisted snapshot both live in the same instance, so they share a
// pool. The raw client stays exported for callers that need typed commands.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis builds the client; connectivity is verified separately via Ping so
// startup can retry without rebuilding the pool.
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	return &RedisClient{Client: rdb}, nil
}

// Ping verifies the connection; used at startup and by the readiness probe.
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// Get returns the string value at key; a missing key surfaces as redis.Nil.
func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

// Set writes value at key. expiration of zero stores without a TTL; every
// caller in this codebase passes one, keys here are meant to age out.
func (c *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.Client.Set(ctx, key, value, expiration).Err()
}

// Del removes keys, ignoring ones that do not exist.
func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}
