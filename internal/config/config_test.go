package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for key, env := range envBindings {
		t.Setenv(env, "")
		t.Setenv("DIALECTGATE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), "")
	}
	t.Setenv("DIALECTGATE_BACKEND_KIND", "")
	t.Setenv("DIALECTGATE_STREAM_IDLE_TIMEOUT", "")
}

func TestLoadDefaultsWithOpenAIEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_BASE_URL", "https://llm.example.com/v1")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")

	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("PORT not applied, got %q", cfg.Server.Port)
	}
	if cfg.SelectedBackend() != BackendOpenAI {
		t.Fatalf("expected openai backend, got %q", cfg.SelectedBackend())
	}
	up := cfg.Upstream()
	if up.Model != "MBZUAI-IFM/K2-Think" || up.APIKey != "sk-test" {
		t.Fatalf("unexpected upstream %#v", up)
	}
	if cfg.Stream.IdleTimeout != 60*time.Second || cfg.Server.MaxBodyBytes != 4<<20 {
		t.Fatalf("defaults not applied: %#v", cfg)
	}
	if cfg.Cache.Backend != "none" || !cfg.Backend.OverrideModel {
		t.Fatalf("unexpected cache/override defaults: %#v", cfg)
	}
}

func TestAutoPrefersAnthropic(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_BASE_URL", "https://llm.example.com")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_BASE_URL", "https://claude.example.com")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "tok")
	t.Setenv("ANTHROPIC_MODEL", "claude-x")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SelectedBackend() != BackendAnthropic || cfg.Upstream().Model != "claude-x" {
		t.Fatalf("expected anthropic backend with env model, got %q %#v", cfg.SelectedBackend(), cfg.Upstream())
	}
}

func TestGeminiNeedsOnlyKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SelectedBackend() != BackendGemini {
		t.Fatalf("expected gemini backend, got %q", cfg.SelectedBackend())
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := `
server:
  port: "7000"
  max_body_bytes: 1024
backend:
  kind: openai
  override_model: false
  openai:
    base_url: https://llm.example.com
    api_key: from-file
stream:
  idle_timeout: 5s
cache:
  backend: memory
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DIALECTGATE_STREAM_IDLE_TIMEOUT", "7s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7000" || cfg.Server.MaxBodyBytes != 1024 {
		t.Fatalf("file values not applied: %#v", cfg.Server)
	}
	if cfg.Backend.OverrideModel || cfg.Upstream().APIKey != "from-file" {
		t.Fatalf("unexpected backend config %#v", cfg.Backend)
	}
	if cfg.Stream.IdleTimeout != 7*time.Second {
		t.Fatalf("environment must override the file, got %v", cfg.Stream.IdleTimeout)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("unexpected cache backend %q", cfg.Cache.Backend)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{MaxBodyBytes: 1},
			Backend: BackendConfig{Kind: BackendAuto, OpenAI: UpstreamConfig{BaseURL: "u", APIKey: "k"}},
			Cache:   CacheConfig{Backend: "none"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no backend", mutate: func(c *Config) { c.Backend.OpenAI = UpstreamConfig{} }, want: "no backend configured"},
		{name: "unknown kind", mutate: func(c *Config) { c.Backend.Kind = "bedrock" }, want: "backend.kind"},
		{name: "forced kind without key", mutate: func(c *Config) { c.Backend.Kind = BackendGemini }, want: "needs both"},
		{name: "unknown cache", mutate: func(c *Config) { c.Cache.Backend = "disk" }, want: "cache.backend"},
		{name: "memory without room", mutate: func(c *Config) { c.Cache.Backend = "memory" }, want: "max_entries"},
		{name: "negative idle", mutate: func(c *Config) { c.Stream.IdleTimeout = -time.Second }, want: "idle_timeout"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
