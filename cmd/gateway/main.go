package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"dialectgate/internal/cache"
	"dialectgate/internal/config"
	"dialectgate/internal/handlers"
	"dialectgate/internal/httpserver"
	"dialectgate/internal/llm/factory"
	"dialectgate/internal/metrics"
	"dialectgate/pkg/logging/logging"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run(configPath string) error {
	// ----- Config -----
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ----- Logger -----
	logging.Configure(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Server.Port),
		zap.String("version_id", cfg.Server.Version),
		zap.String("backend", cfg.SelectedBackend()),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Duration("stream_idle_timeout", cfg.Stream.IdleTimeout),
	)

	// ----- Redis client (only if needed) -----
	var redisClient redis.UniversalClient
	if cfg.Cache.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
		})
		defer redisClient.Close()
	}

	// ----- Cache (Tier 1 Exact Cache) -----
	exactCache, err := cache.NewExactCache(cache.Config{
		Backend:      cfg.Cache.Backend,
		Prefix:       cfg.Cache.Prefix,
		MaxEntries:   cfg.Cache.MaxEntries,
		RedisTimeout: cfg.Cache.RedisTimeout,
	}, redisClient)
	if err != nil {
		return err
	}
	if rc, ok := exactCache.(*cache.RedisExactCache); ok {
		// Fail fast if Redis is misconfigured
		if err := rc.Ping(context.Background()); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.Cache.RedisAddr),
		)
	}
	exactCache = cache.NewLoggingExactCache(exactCache)
	if closer, ok := exactCache.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Backend -----
	backend, err := factory.New(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, httpserver.Config{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Version:      cfg.Server.Version,
		Handlers: handlers.Options{
			Backend:        backend.Client,
			BackendKind:    backend.Kind,
			DefaultModel:   backend.Model,
			OverrideModel:  cfg.Backend.OverrideModel,
			Cache:          exactCache,
			CacheTTL:       cfg.Cache.TTL,
			VersionID:      cfg.Server.Version,
			RequestTimeout: cfg.Server.RequestTimeout,
			IdleTimeout:    cfg.Stream.IdleTimeout,
		},
	})

	// ----- HTTP server -----
	// no WriteTimeout: streams live as long as the backend keeps talking
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("backend", backend.Kind),
		zap.String("model", backend.Model),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
