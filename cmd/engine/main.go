// Package main provides the tutor engine entry point. It wires the credit
// ledger, credential pool, model fallback chain and feature executors, exposes
// metrics, and keeps the engine available to the embedding application until
// shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/TeacherMada/tutor-engine/internal/adapter/observability"
	"github.com/TeacherMada/tutor-engine/internal/adapter/provider/openrouter"
	"github.com/TeacherMada/tutor-engine/internal/adapter/repo/postgres"
	"github.com/TeacherMada/tutor-engine/internal/config"
	"github.com/TeacherMada/tutor-engine/internal/orchestrator"
	"github.com/TeacherMada/tutor-engine/internal/service/throttle"
	"github.com/TeacherMada/tutor-engine/internal/tokencount"
	"github.com/TeacherMada/tutor-engine/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting tutor engine", slog.String("env", cfg.AppEnv))

	// Credential pool and model fallback chain live for the process lifetime.
	// An empty credential pool is a configuration error: no request could
	// ever succeed, so fail at startup rather than per request.
	pool, err := orchestrator.NewPool(cfg.ProviderAPIKeys)
	if err != nil {
		slog.Error("credential pool init failed", slog.Any("error", err))
		os.Exit(1)
	}
	models, err := cfg.ResolveModels()
	if err != nil {
		slog.Error("model chain resolution failed", slog.Any("error", err))
		os.Exit(1)
	}
	chain, err := orchestrator.NewChain(models)
	if err != nil {
		slog.Error("model chain init failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("model fallback chain configured",
		slog.Any("models", chain.IDs()),
		slog.Int("credentials", pool.Size()))

	initialInterval, maxInterval, multiplier := cfg.GetRetryPacing()
	runner := orchestrator.New(pool, chain, orchestrator.Options{
		AttemptTimeout:  cfg.AttemptTimeout,
		InitialInterval: initialInterval,
		MaxInterval:     maxInterval,
		Multiplier:      multiplier,
	})

	dbPool, err := postgres.NewPool(context.Background(), cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbPool.Close()

	ledger := usecase.NewLedger(postgres.NewAccountRepo(dbPool))

	var userThrottle *throttle.RedisThrottle
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		userThrottle = throttle.New(rdb, throttle.PerMinute(cfg.UserRateLimitPerMin))
		slog.Info("per-user throttle enabled", slog.Int("per_minute", cfg.UserRateLimitPerMin))
	}

	provider := openrouter.New(cfg)
	counter := tokencount.NewCounter()

	svc := usecase.NewTutorService(ledger, runner, provider, userThrottle, counter,
		chain.Primary().ID, cfg.MaxReplyTokens, cfg.SpeechVoice, cfg.ImageSize)
	_ = svc // consumed by the embedding application's channel layer

	slog.Info("tutor engine ready, waiting for shutdown signal")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
}
