package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultMaxEntries      = 1024
	defaultCleanupInterval = 5 * time.Minute
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

type MemoryConfig struct {
	MaxEntries      int           // least recently used entries go first once full
	CleanupInterval time.Duration // janitor period
}

// MemoryExactCache is a bounded in-process cache. Entries leave on expiry or
// when the least recently used slot is needed for a newer response.
type MemoryExactCache struct {
	entries *lru.Cache[string, memoryEntry]

	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemoryExactCache(cfg MemoryConfig) (*MemoryExactCache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}

	entries, err := lru.New[string, memoryEntry](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}

	c := &MemoryExactCache{
		entries: entries,
		stop:    make(chan struct{}),
	}
	go c.janitor(cfg.CleanupInterval)

	return c, nil
}

// Get treats an expired entry as a miss and drops it.
func (c *MemoryExactCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		c.entries.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a copy of value; a non-positive ttl evicts the key.
func (c *MemoryExactCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		c.entries.Remove(key)
		return nil
	}

	c.entries.Add(key, memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (c *MemoryExactCache) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired(time.Now())
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryExactCache) removeExpired(now time.Time) {
	for _, key := range c.entries.Keys() {
		// Peek keeps the recency order untouched
		if e, ok := c.entries.Peek(key); ok && e.expired(now) {
			c.entries.Remove(key)
		}
	}
}

// Close stops the janitor. Safe to call more than once.
func (c *MemoryExactCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// Len returns the number of stored entries, expired ones included until the
// janitor or a Get removes them.
func (c *MemoryExactCache) Len() int {
	return c.entries.Len()
}
