// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/bookshelf/internal/auth"
	"github.com/yourusername/bookshelf/internal/catalog"
	"github.com/yourusername/bookshelf/internal/config"
	"github.com/yourusername/bookshelf/internal/logger"
	"github.com/yourusername/bookshelf/internal/middleware"
	"github.com/yourusername/bookshelf/internal/upstream"
	"github.com/yourusername/bookshelf/internal/users"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	base := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := middleware.InitTracing(ctx, middleware.TracingOptions{
			ServiceName: serviceName,
			Endpoint:    cfg.TracingEndpoint,
			SampleRate:  cfg.TracingSampleRate,
		})
		if err != nil {
			base.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			base.Info().
				Str("endpoint", cfg.TracingEndpoint).
				Float64("sample_rate", cfg.TracingSampleRate).
				Msg("Tracing initialized")
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					base.Error().Err(err).Msg("Tracer shutdown error")
				}
			}()
		}
	} else {
		base.Info().Msg("Tracing disabled (TRACING_ENABLED=false)")
	}

	sessionStore, closeSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		base.Fatal().Err(err).Str("backend", cfg.SessionBackend).Msg("Failed to initialize session store")
	}
	defer func() {
		if err := closeSessions(); err != nil {
			base.Error().Err(err).Msg("Session store close error")
		}
	}()

	books, err := catalog.NewSeededStore()
	if err != nil {
		base.Fatal().Err(err).Msg("Failed to load catalog seed")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var shuttingDown atomic.Bool
	router := buildRouter(cfg, base, dependencies{
		users:        users.NewMemoryStore(),
		sessions:     sessionStore,
		books:        books,
		fetcher:      upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout()),
		registry:     registry,
		shuttingDown: &shuttingDown,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		base.Info().
			Str("addr", srv.Addr).
			Str("mode", cfg.GinMode).
			Str("session_backend", cfg.SessionBackend).
			Msg("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			base.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	base.Info().Msg("Shutdown signal received")
	shuttingDown.Store(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		base.Error().Err(err).Msg("HTTP server shutdown error")
		return
	}
	base.Info().Msg("Graceful shutdown complete")
}

// newSessionStore は設定に応じたサーバー側セッションストアと、その終了処理を返します。
func newSessionStore(ctx context.Context, cfg *config.Config) (auth.SessionStore, func() error, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		opts, err := redis.ParseURL(cfg.SessionRedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse SESSION_REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return auth.NewRedisSessionStore(rdb), rdb.Close, nil
	default:
		return auth.NewMemorySessionStore(), func() error { return nil }, nil
	}
}
