// Package config loads and validates all runtime configuration for the
// assistant daemon.
//
// Configuration is read from environment variables or from a config.yaml
// file in the working directory. Environment variables take precedence
// over the YAML file. A .env file next to the binary is loaded first when
// present.
//
// Only OPENROUTER_API_KEY is strictly required. Redis is optional: set
// CACHE_MODE=memory (the default) to use the built-in in-process cache
// with no external dependencies.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/dishdazzle/assistant/internal/openrouter"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8176.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	// Default: info.
	LogLevel string

	// OpenRouter holds credentials for the upstream API.
	OpenRouter OpenRouterConfig

	// Model selects which model alias queries use by default.
	// One of: deepseek, llama. Default: deepseek.
	Model string

	// Redis holds the connection URL for the Redis-backed cache and rate
	// limiter. Required only when CacheMode is "redis".
	Redis RedisConfig

	// Cache controls response caching.
	Cache CacheConfig

	// Retry controls upstream retry behaviour.
	Retry RetryConfig

	// RateLimit bounds outbound API traffic.
	RateLimit RateLimitConfig

	// DBPath is the SQLite file holding recipes, the pantry, and chat
	// history. Default: "dishdazzle.db".
	DBPath string

	// CORSOrigins is the list of allowed CORS origins.
	// Use ["*"] to allow any origin (default).
	CORSOrigins []string
}

// OpenRouterConfig holds upstream API configuration.
type OpenRouterConfig struct {
	// APIKey is the OpenRouter API key. Required.
	APIKey string

	// BaseURL overrides the default API endpoint. Useful for local mocks.
	BaseURL string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Mode selects the cache backend:
	//   "redis"  - Redis-backed cache (requires REDIS_URL).
	//   "memory" - In-process LRU cache. No external deps.
	//   "none"   - Cache disabled entirely.
	// Default: "memory".
	Mode string

	// TTL is the time-to-live for cached responses. Default: 24h.
	TTL time.Duration

	// MaxSizeMB bounds the in-process cache by total value bytes.
	// 0 means unbounded. Default: 64.
	MaxSizeMB int

	// MaxEntries bounds the in-process cache by entry count.
	// 0 means unbounded. Default: 0.
	MaxEntries int

	// ExcludeExact lists exact model IDs that must never be cached.
	ExcludeExact []string

	// ExcludePatterns lists Go regular expressions matched against model
	// IDs. Requests whose model matches any pattern are not cached.
	ExcludePatterns []string
}

// RetryConfig controls upstream retry behaviour.
type RetryConfig struct {
	// MaxAttempts is the maximum number of upstream attempts per request
	// (including the first). Default: 3.
	MaxAttempts int

	// BaseDelay is the delay before the first retry; subsequent delays
	// grow by Multiplier. Default: 500ms.
	BaseDelay time.Duration

	// Multiplier is the exponential backoff factor. Default: 2.0.
	Multiplier float64

	// ProviderTimeout is the per-attempt HTTP timeout. Default: 60s.
	ProviderTimeout time.Duration
}

// RateLimitConfig controls outbound request-rate limiting.
type RateLimitConfig struct {
	// RPMLimit is the maximum upstream requests per minute.
	// 0 disables rate limiting. Default: 0.
	RPMLimit int
}

// Load reads configuration from environment variables and (optionally)
// from config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8176)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MODEL_SELECTED", "deepseek")

	v.SetDefault("CACHE_MODE", "memory")
	v.SetDefault("CACHE_TTL", "24h")
	v.SetDefault("CACHE_MAX_SIZE_MB", 64)
	v.SetDefault("CACHE_MAX_ENTRIES", 0)

	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_BASE_DELAY", "500ms")
	v.SetDefault("RETRY_MULTIPLIER", 2.0)
	v.SetDefault("PROVIDER_TIMEOUT", "60s")

	// Rate limit: 0 = disabled.
	v.SetDefault("RPM_LIMIT", 0)

	v.SetDefault("DB_PATH", "dishdazzle.db")
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	// ── Build config ──────────────────────────────────────────────────────────
	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		OpenRouter: OpenRouterConfig{
			APIKey:  v.GetString("OPENROUTER_API_KEY"),
			BaseURL: v.GetString("OPENROUTER_BASE_URL"),
		},

		Model: strings.ToLower(v.GetString("MODEL_SELECTED")),

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		Cache: CacheConfig{
			Mode:            strings.ToLower(v.GetString("CACHE_MODE")),
			TTL:             v.GetDuration("CACHE_TTL"),
			MaxSizeMB:       v.GetInt("CACHE_MAX_SIZE_MB"),
			MaxEntries:      v.GetInt("CACHE_MAX_ENTRIES"),
			ExcludeExact:    v.GetStringSlice("CACHE_EXCLUDE_EXACT"),
			ExcludePatterns: v.GetStringSlice("CACHE_EXCLUDE_PATTERNS"),
		},

		Retry: RetryConfig{
			MaxAttempts:     v.GetInt("RETRY_MAX_ATTEMPTS"),
			BaseDelay:       v.GetDuration("RETRY_BASE_DELAY"),
			Multiplier:      v.GetFloat64("RETRY_MULTIPLIER"),
			ProviderTimeout: v.GetDuration("PROVIDER_TIMEOUT"),
		},

		RateLimit: RateLimitConfig{
			RPMLimit: v.GetInt("RPM_LIMIT"),
		},

		DBPath:      v.GetString("DB_PATH"),
		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),
	}

	// ── Validation ────────────────────────────────────────────────────────────
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	if c.OpenRouter.APIKey == "" {
		return fmt.Errorf("config: OPENROUTER_API_KEY is required")
	}

	if _, err := openrouter.ResolveModel(c.Model); err != nil {
		return fmt.Errorf(
			"config: invalid MODEL_SELECTED %q; must be one of: %s",
			c.Model, strings.Join(openrouter.SupportedModels(), ", "),
		)
	}

	// Redis URL is required when cache mode is "redis".
	if c.Cache.Mode == "redis" && c.Redis.URL == "" {
		return fmt.Errorf(
			"config: REDIS_URL is required when CACHE_MODE=redis; " +
				"set CACHE_MODE=memory to use the built-in in-process cache",
		)
	}

	switch c.Cache.Mode {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf(
			"config: invalid CACHE_MODE %q; must be one of: redis, memory, none",
			c.Cache.Mode,
		)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: RETRY_MAX_ATTEMPTS must be ≥ 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("config: RETRY_MULTIPLIER must be ≥ 1, got %g", c.Retry.Multiplier)
	}
	if c.Cache.MaxSizeMB < 0 {
		return fmt.Errorf("config: CACHE_MAX_SIZE_MB must not be negative, got %d", c.Cache.MaxSizeMB)
	}
	if c.RateLimit.RPMLimit < 0 {
		return fmt.Errorf("config: RPM_LIMIT must not be negative, got %d", c.RateLimit.RPMLimit)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: DB_PATH must not be empty")
	}

	return nil
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
