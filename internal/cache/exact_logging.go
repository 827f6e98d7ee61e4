package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dialectgate/internal/metrics"
	"dialectgate/pkg/logging/logging"
)

// LoggingExactCache wraps an ExactCache with logging + metrics.
type LoggingExactCache struct {
	inner ExactCache
}

// NewLoggingExactCache returns a cache that logs and records metrics. A nil
// inner cache stays nil so "none" keeps meaning disabled.
func NewLoggingExactCache(inner ExactCache) ExactCache {
	if inner == nil {
		return nil
	}
	return &LoggingExactCache{inner: inner}
}

func (c *LoggingExactCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "hit"
		metrics.ExactHitsTotal.Inc()
	}

	fields := append(keyFields(key, start), zap.String("cache_result", result))
	logCacheOp(ctx, "exact_cache_get", err, fields)

	return value, ok, err
}

func (c *LoggingExactCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.inner.Set(ctx, key, value, ttl)

	fields := append(keyFields(key, start),
		zap.Int("bytes", len(value)),
		zap.Duration("ttl", ttl),
	)
	logCacheOp(ctx, "exact_cache_set", err, fields)

	return err
}

// Close releases the wrapped cache when it holds resources.
func (c *LoggingExactCache) Close() error {
	if closer, ok := c.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func logCacheOp(ctx context.Context, op string, err error, fields []zap.Field) {
	logger := logging.FromContext(ctx)
	if err != nil {
		// a failing cache degrades to a miss; the request carries on
		logger.Warn(op, append(fields, zap.Error(err))...)
		return
	}
	logger.Debug(op, fields...)
}

func keyFields(key string, start time.Time) []zap.Field {
	fields := []zap.Field{
		zap.String("cache_tier", "exact"),
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
	}
	if k, ok := ParseExactCacheKey(key); ok {
		return append(fields,
			zap.String("backend", k.Backend),
			zap.String("model_id", k.ModelID),
			zap.String("version_id", k.VersionID),
			zap.String("hash", k.Hash),
		)
	}
	return append(fields, zap.String("hash_key", key))
}
