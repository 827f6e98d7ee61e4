// Package cache stores encoded canonical responses so identical requests,
// in whatever dialect they arrive, skip the backend.
package cache

import (
	"context"
	"strings"
	"time"
)

// ExactCache is implemented by the in-process LRU and by Redis.
type ExactCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

const exactKeyTier = "exact"

// ExactCacheKey renders as exact:<backend>:<model>:<version>:<sha256>.
type ExactCacheKey struct {
	Backend   string
	ModelID   string
	VersionID string
	Hash      string
}

func (k ExactCacheKey) String() string {
	return strings.Join([]string{exactKeyTier, k.Backend, k.ModelID, k.VersionID, k.Hash}, ":")
}

// ParseExactCacheKey reverses String. Model ids never contain ':' because
// the key builder replaces it.
func ParseExactCacheKey(s string) (ExactCacheKey, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != exactKeyTier {
		return ExactCacheKey{}, false
	}
	return ExactCacheKey{
		Backend:   parts[1],
		ModelID:   parts[2],
		VersionID: parts[3],
		Hash:      parts[4],
	}, true
}
