package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"dialectgate/internal/canonical"
	"dialectgate/pkg/logging/logging"
)

func TestMemoryExactCache_TTL(t *testing.T) {
	t.Parallel()

	c := newMemory(t, MemoryConfig{})

	ctx := context.Background()
	key := "test:key"
	val := []byte("hello")

	if err := c.Set(ctx, key, val, 100*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val[0] = 'j'

	got, hit, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit {
		t.Fatalf("expected hit immediately after Set")
	}
	if string(got) != "hello" {
		t.Fatalf("cache must keep its own copy, got %q", got)
	}

	time.Sleep(150 * time.Millisecond)

	_, hit, err = c.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after TTL failed: %v", err)
	}
	if hit {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func newMemory(t *testing.T, cfg MemoryConfig) *MemoryExactCache {
	t.Helper()

	c, err := NewMemoryExactCache(cfg)
	if err != nil {
		t.Fatalf("NewMemoryExactCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMemoryExactCache_NonPositiveTTLEvicts(t *testing.T) {
	t.Parallel()

	c := newMemory(t, MemoryConfig{})

	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	_ = c.Set(ctx, "k", []byte("v"), 0)

	if c.Len() != 0 {
		t.Fatalf("expected eviction, %d items left", c.Len())
	}
}

func TestMemoryExactCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := newMemory(t, MemoryConfig{MaxEntries: 2})
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), time.Minute)
	_ = c.Set(ctx, "b", []byte("2"), time.Minute)
	if _, hit, _ := c.Get(ctx, "a"); !hit {
		t.Fatalf("expected hit for a")
	}
	_ = c.Set(ctx, "c", []byte("3"), time.Minute)

	if _, hit, _ := c.Get(ctx, "b"); hit {
		t.Fatalf("b was least recently used and should be gone")
	}
	for _, k := range []string{"a", "c"} {
		if _, hit, _ := c.Get(ctx, k); !hit {
			t.Fatalf("expected %s to survive", k)
		}
	}
}

func TestMemoryExactCache_JanitorRemovesExpired(t *testing.T) {
	t.Parallel()

	c := newMemory(t, MemoryConfig{CleanupInterval: time.Hour})
	ctx := context.Background()

	_ = c.Set(ctx, "old", []byte("x"), time.Millisecond)
	_ = c.Set(ctx, "new", []byte("y"), time.Minute)

	c.removeExpired(time.Now().Add(time.Second))

	if c.Len() != 1 {
		t.Fatalf("expected only the fresh entry, %d left", c.Len())
	}
}

func request(text string) *canonical.Request {
	return &canonical.Request{
		Model: "gpt-4",
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Content: []canonical.ContentBlock{canonical.TextBlock(text)}},
		},
	}
}

func TestBuildExactCacheKey(t *testing.T) {
	t.Parallel()

	a := request("hello")
	b := request("hello")
	b.Stream = true

	ka, err := BuildExactCacheKey(a, "openai", "v1")
	if err != nil {
		t.Fatalf("BuildExactCacheKey: %v", err)
	}
	kb, _ := BuildExactCacheKey(b, "openai", "v1")
	if ka != kb {
		t.Fatalf("stream flag must not change the key: %s vs %s", ka, kb)
	}
	if b.Stream != true {
		t.Fatalf("key building must not mutate the request")
	}

	kc, _ := BuildExactCacheKey(request("hello!"), "openai", "v1")
	if kc.Hash == ka.Hash {
		t.Fatalf("different prompts must hash differently")
	}

	temp := 0.2
	d := request("hello")
	d.Temperature = &temp
	kd, _ := BuildExactCacheKey(d, "openai", "v1")
	if kd.Hash == ka.Hash {
		t.Fatalf("sampling parameters must be part of the key")
	}

	e := request("hello")
	e.Model = "models/gemini:latest"
	ke, _ := BuildExactCacheKey(e, "gemini", "v1")
	parsed, ok := ParseExactCacheKey(ke.String())
	if !ok || parsed != ke || parsed.ModelID != "models/gemini_latest" {
		t.Fatalf("key must stay parseable, got %q", ke.String())
	}
}

func TestNewExactCache(t *testing.T) {
	t.Parallel()

	none, err := NewExactCache(Config{Backend: "none"}, nil)
	if err != nil {
		t.Fatalf("none backend: %v", err)
	}
	if c := NewLoggingExactCache(none); c != nil {
		t.Fatalf("none backend must disable caching, got %T", c)
	}

	mem, err := NewExactCache(Config{Backend: "memory", MaxEntries: 8}, nil)
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	defer mem.(*MemoryExactCache).Close()

	if _, err := NewExactCache(Config{Backend: "redis"}, nil); err == nil {
		t.Fatalf("redis backend without a client must fail")
	}
	if _, err := NewExactCache(Config{Backend: "memcached"}, nil); err == nil {
		t.Fatalf("unknown backend must fail")
	}
}

func TestLoggingExactCacheRecordsResult(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logging.WithLogger(context.Background(), zap.New(core))

	c := NewLoggingExactCache(newMemory(t, MemoryConfig{}))

	key := ExactCacheKey{Backend: "openai", ModelID: "gpt-4", VersionID: "v1", Hash: "abc"}.String()
	if _, hit, _ := c.Get(ctx, key); hit {
		t.Fatalf("unexpected hit on empty cache")
	}
	_ = c.Set(ctx, key, []byte("{}"), time.Minute)
	if _, hit, _ := c.Get(ctx, key); !hit {
		t.Fatalf("expected hit after Set")
	}

	var results []string
	for _, e := range logs.FilterMessage("exact_cache_get").All() {
		results = append(results, e.ContextMap()["cache_result"].(string))
		if e.ContextMap()["backend"] != "openai" {
			t.Fatalf("key parts not logged: %v", e.ContextMap())
		}
	}
	if strings.Join(results, ",") != "miss,hit" {
		t.Fatalf("unexpected cache results %v", results)
	}
}

func TestRedisExactCacheUnavailable(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedisExactCache(client, RedisConfig{Prefix: "test", Timeout: 200 * time.Millisecond})
	if got := c.key("k"); got != "test:k" {
		t.Fatalf("unexpected prefixed key %q", got)
	}

	_, hit, err := c.Get(context.Background(), "k")
	if err == nil || hit {
		t.Fatalf("expected an error from an unreachable redis, got hit=%v err=%v", hit, err)
	}
	if errors.Is(err, redis.Nil) {
		t.Fatalf("connection failure must not look like a miss")
	}

	if err := c.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("zero ttl must skip redis entirely, got %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("ping must fail against an unreachable redis")
	}
}
