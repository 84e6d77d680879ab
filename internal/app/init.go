package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dishdazzle/assistant/internal/assist"
	ddCache "github.com/dishdazzle/assistant/internal/cache"
	"github.com/dishdazzle/assistant/internal/logger"
	"github.com/dishdazzle/assistant/internal/metrics"
	"github.com/dishdazzle/assistant/internal/openrouter"
	"github.com/dishdazzle/assistant/internal/ratelimit"
	"github.com/dishdazzle/assistant/internal/retry"
	"github.com/dishdazzle/assistant/internal/server"
	"github.com/dishdazzle/assistant/internal/store"
)

// initInfra establishes external connections. Redis is only required when
// CACHE_MODE=redis; the SQLite store is always opened.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Cache.Mode == "redis" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	st, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	a.st = st
	a.log.Info("store opened", slog.String("path", a.cfg.DBPath))

	return nil
}

// initUpstream verifies the OpenRouter configuration. The client itself is
// built in initGateway; config.Load has already checked the API key and
// model choice.
func (a *App) initUpstream(_ context.Context) error {
	id, err := openrouter.ResolveModel(a.cfg.Model)
	if err != nil {
		return err
	}
	a.log.Info("model selected",
		slog.String("alias", a.cfg.Model),
		slog.String("model_id", id),
	)
	return nil
}

// initServices creates the cache backend, the Prometheus metrics registry,
// and the async event recorder.
func (a *App) initServices(ctx context.Context) error {
	switch a.cfg.Cache.Mode {
	case "redis":
		a.log.Info("cache backend: redis")

	case "memory":
		maxBytes := int64(a.cfg.Cache.MaxSizeMB) * 1024 * 1024
		a.lru = ddCache.NewLRUCache(ctx, maxBytes, a.cfg.Cache.MaxEntries)
		a.log.Info("cache backend: memory (in-process LRU)",
			slog.Int("max_size_mb", a.cfg.Cache.MaxSizeMB),
		)

	case "none":
		a.log.Info("cache backend: disabled")

	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	rec, err := logger.New(ctx, a.log)
	if err != nil {
		return err
	}
	a.recorder = rec

	return nil
}

// initGateway wires the assist gateway and the HTTP server together.
func (a *App) initGateway(_ context.Context) error {
	var cacheImpl ddCache.Cache
	switch a.cfg.Cache.Mode {
	case "redis":
		cacheImpl = ddCache.NewRedisCacheFromClient(a.rdb)
	case "memory":
		cacheImpl = a.lru
	case "none":
		// nil cache: the gateway skips caching entirely.
	}

	var clientOpts []openrouter.Option
	if a.cfg.OpenRouter.BaseURL != "" {
		clientOpts = append(clientOpts, openrouter.WithBaseURL(a.cfg.OpenRouter.BaseURL))
	}
	client := openrouter.New(a.cfg.OpenRouter.APIKey, clientOpts...)

	opts := assist.Options{
		Cache:   cacheImpl,
		Metrics: a.prom,
		Events:  a.recorder,
		Logger:  a.log,
		Retry: retry.Policy{
			MaxAttempts: a.cfg.Retry.MaxAttempts,
			BaseDelay:   a.cfg.Retry.BaseDelay,
			Multiplier:  a.cfg.Retry.Multiplier,
		},
		DefaultModel:    a.cfg.Model,
		CacheTTL:        a.cfg.Cache.TTL,
		ProviderTimeout: a.cfg.Retry.ProviderTimeout,
	}

	// Rate limiting requires Redis for the sliding window state.
	if a.rdb != nil && a.cfg.RateLimit.RPMLimit > 0 {
		opts.Limiter = ratelimit.NewRPMLimiter(a.rdb, a.cfg.RateLimit.RPMLimit)
		a.log.Info("rate limiting enabled", slog.Int("rpm_limit", a.cfg.RateLimit.RPMLimit))
	}

	// Cache exclusions.
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := ddCache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		opts.Exclusions = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	a.gw = assist.New(client, opts)

	a.srv = server.New(server.Options{
		Gateway:     a.gw,
		Store:       a.st,
		Metrics:     a.prom,
		Logger:      a.log,
		CORSOrigins: a.cfg.CORSOrigins,
		Version:     a.version,
	})

	return nil
}
