package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTimeout = 100 * time.Millisecond

type RedisConfig struct {
	Prefix  string
	Timeout time.Duration // per command; a slow redis must not hold up a request
}

// RedisExactCache shares cached responses between gateway replicas.
type RedisExactCache struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

func NewRedisExactCache(client redis.UniversalClient, cfg RedisConfig) *RedisExactCache {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}
	return &RedisExactCache{
		client:  client,
		prefix:  cfg.Prefix,
		timeout: cfg.Timeout,
	}
}

func (c *RedisExactCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get reports a missing key as a clean miss. Any other failure is returned
// so the caller can log it before treating it as a miss.
func (c *RedisExactCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return raw, true, nil
}

// Set writes value with ttl. A non-positive ttl stores nothing.
func (c *RedisExactCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection; used at startup to fail fast.
func (c *RedisExactCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
