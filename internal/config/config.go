// Package config loads gateway settings from defaults, an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendAuto      = "auto"
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendGemini    = "gemini"
)

type Config struct {
	Server  ServerConfig
	Logging LoggingConfig
	Backend BackendConfig
	Stream  StreamConfig
	Cache   CacheConfig
}

type ServerConfig struct {
	Port           string
	Version        string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type UpstreamConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Configured reports whether both endpoint and credential are present.
func (u UpstreamConfig) Configured() bool {
	return u.BaseURL != "" && u.APIKey != ""
}

type BackendConfig struct {
	Kind          string
	OverrideModel bool
	Timeout       time.Duration
	MaxRetries    int
	Anthropic     UpstreamConfig
	OpenAI        UpstreamConfig
	Gemini        UpstreamConfig
}

type StreamConfig struct {
	IdleTimeout time.Duration
}

type CacheConfig struct {
	Backend      string // none, memory or redis
	TTL          time.Duration
	Prefix       string
	MaxEntries   int // memory backend only
	RedisAddr    string
	RedisTimeout time.Duration
}

// envBindings maps config keys to the variable names operators already use.
var envBindings = map[string]string{
	"server.port":                "PORT",
	"server.version":             "GATEWAY_VERSION",
	"logging.level":              "LOG_LEVEL",
	"backend.anthropic.base_url": "ANTHROPIC_BASE_URL",
	"backend.anthropic.api_key":  "ANTHROPIC_AUTH_TOKEN",
	"backend.anthropic.model":    "ANTHROPIC_MODEL",
	"backend.openai.base_url":    "OPENAI_BASE_URL",
	"backend.openai.api_key":     "OPENAI_API_KEY",
	"backend.openai.model":       "OPENAI_MODEL",
	"backend.gemini.base_url":    "GEMINI_BASE_URL",
	"backend.gemini.api_key":     "GEMINI_API_KEY",
	"backend.gemini.model":       "GEMINI_MODEL",
	"cache.backend":              "CACHE_BACKEND",
	"cache.redis_addr":           "REDIS_ADDR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.version", "v1")
	v.SetDefault("server.max_body_bytes", 4<<20)
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.shutdown_grace", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("backend.kind", BackendAuto)
	v.SetDefault("backend.override_model", true)
	v.SetDefault("backend.timeout", "60s")
	v.SetDefault("backend.max_retries", 2)
	v.SetDefault("backend.anthropic.model", "glm-4.6")
	v.SetDefault("backend.openai.model", "MBZUAI-IFM/K2-Think")
	v.SetDefault("backend.gemini.model", "gemini-2.5-flash")
	v.SetDefault("backend.gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("stream.idle_timeout", "60s")
	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.prefix", "dialectgate")
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis_timeout", "100ms")
}

// Load reads configuration. An empty path searches ./dialectgate.yaml and
// ./configs; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dialectgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// DIALECTGATE_STREAM_IDLE_TIMEOUT=30s
	v.SetEnvPrefix("DIALECTGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "DIALECTGATE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	upstream := func(prefix string) UpstreamConfig {
		return UpstreamConfig{
			BaseURL: strings.TrimSpace(v.GetString(prefix + ".base_url")),
			APIKey:  strings.TrimSpace(v.GetString(prefix + ".api_key")),
			Model:   strings.TrimSpace(v.GetString(prefix + ".model")),
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			Version:        v.GetString("server.version"),
			MaxBodyBytes:   v.GetInt64("server.max_body_bytes"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			ShutdownGrace:  v.GetDuration("server.shutdown_grace"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Backend: BackendConfig{
			Kind:          strings.ToLower(v.GetString("backend.kind")),
			OverrideModel: v.GetBool("backend.override_model"),
			Timeout:       v.GetDuration("backend.timeout"),
			MaxRetries:    v.GetInt("backend.max_retries"),
			Anthropic:     upstream("backend.anthropic"),
			OpenAI:        upstream("backend.openai"),
			Gemini:        upstream("backend.gemini"),
		},
		Stream: StreamConfig{
			IdleTimeout: v.GetDuration("stream.idle_timeout"),
		},
		Cache: CacheConfig{
			Backend:      strings.ToLower(v.GetString("cache.backend")),
			TTL:          v.GetDuration("cache.ttl"),
			Prefix:       v.GetString("cache.prefix"),
			MaxEntries:   v.GetInt("cache.max_entries"),
			RedisAddr:    v.GetString("cache.redis_addr"),
			RedisTimeout: v.GetDuration("cache.redis_timeout"),
		},
	}
}

// SelectedBackend resolves "auto" to the first configured upstream:
// Anthropic, then OpenAI, then Gemini. Empty means none is configured.
func (c *Config) SelectedBackend() string {
	switch c.Backend.Kind {
	case BackendAnthropic, BackendOpenAI, BackendGemini:
		return c.Backend.Kind
	}
	switch {
	case c.Backend.Anthropic.Configured():
		return BackendAnthropic
	case c.Backend.OpenAI.Configured():
		return BackendOpenAI
	case c.Backend.Gemini.Configured():
		return BackendGemini
	}
	return ""
}

// Upstream returns the settings of the selected backend.
func (c *Config) Upstream() UpstreamConfig {
	switch c.SelectedBackend() {
	case BackendAnthropic:
		return c.Backend.Anthropic
	case BackendOpenAI:
		return c.Backend.OpenAI
	case BackendGemini:
		return c.Backend.Gemini
	}
	return UpstreamConfig{}
}

func (c *Config) Validate() error {
	switch c.Backend.Kind {
	case BackendAuto, BackendAnthropic, BackendOpenAI, BackendGemini:
	default:
		return fmt.Errorf("backend.kind %q is not one of auto, anthropic, openai, gemini", c.Backend.Kind)
	}

	kind := c.SelectedBackend()
	if kind == "" {
		return errors.New("no backend configured: set ANTHROPIC_BASE_URL and ANTHROPIC_AUTH_TOKEN, OPENAI_BASE_URL and OPENAI_API_KEY, or GEMINI_API_KEY")
	}
	if up := c.Upstream(); !up.Configured() {
		return fmt.Errorf("backend %s needs both a base url and an api key", kind)
	}

	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("cache.backend %q is not one of none, memory, redis", c.Cache.Backend)
	}
	if c.Cache.Backend == "memory" && c.Cache.MaxEntries <= 0 {
		return errors.New("cache.max_entries must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if c.Stream.IdleTimeout < 0 {
		return errors.New("stream.idle_timeout must not be negative")
	}
	return nil
}
