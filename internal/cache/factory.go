package cache

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Backend      string // none, memory or redis
	Prefix       string
	MaxEntries   int
	RedisTimeout time.Duration
}

// NewExactCache returns nil for the "none" backend; callers treat a nil
// cache as disabled.
func NewExactCache(cfg Config, redisClient redis.UniversalClient) (ExactCache, error) {
	switch cfg.Backend {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis cache needs a client")
		}
		return NewRedisExactCache(redisClient, RedisConfig{
			Prefix:  cfg.Prefix,
			Timeout: cfg.RedisTimeout,
		}), nil
	case "memory":
		c, err := NewMemoryExactCache(MemoryConfig{MaxEntries: cfg.MaxEntries})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
