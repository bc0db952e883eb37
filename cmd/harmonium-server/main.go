// Package main is the entry point for the Harmonium server, the canonical
// tier of the media library: PostgreSQL catalog, content-addressed object
// storage, and the operational HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/harmonium-app/harmonium/internal/config"
	"github.com/harmonium-app/harmonium/internal/handler"
	"github.com/harmonium-app/harmonium/internal/lock"
	"github.com/harmonium-app/harmonium/internal/metrics"
	"github.com/harmonium-app/harmonium/internal/objectstore"
	"github.com/harmonium-app/harmonium/internal/repository/postgres"
	"github.com/harmonium-app/harmonium/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting harmonium server")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	repos := postgres.NewRepositories(db)

	// Object store
	store, err := newObjectStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	// Distributed locking
	locker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("locker: %w", err)
	}

	// Metrics
	var m *metrics.Metrics
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(registry)
		gatherer = registry
	}

	// Background reconciliation
	gc := service.NewGarbageCollector(repos.Files, store, locker, m, logger, service.GCConfig{
		Enabled:     cfg.GC.Enabled,
		Interval:    cfg.GC.Interval,
		GracePeriod: cfg.GC.GracePeriod,
		BatchSize:   cfg.GC.BatchSize,
		DryRun:      cfg.GC.DryRun,
	})
	if cfg.GC.Enabled {
		gc.Start()
		defer gc.Stop()
	}

	// HTTP server
	router := handler.NewRouter(handler.RouterConfig{
		DB:          db,
		GC:          gc,
		Gatherer:    gatherer,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func newObjectStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (objectstore.Store, error) {
	switch cfg.ObjectStore.Backend {
	case "memory":
		logger.Warn().Msg("using in-memory object store, data will not survive restarts")
		return objectstore.NewMemoryStore(), nil
	default:
		return objectstore.NewS3Store(ctx, objectstore.S3Config{
			Endpoint:        cfg.ObjectStore.S3.Endpoint,
			Region:          cfg.ObjectStore.S3.Region,
			Bucket:          cfg.ObjectStore.S3.Bucket,
			AccessKeyID:     cfg.ObjectStore.S3.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.S3.SecretAccessKey,
			UsePathStyle:    cfg.ObjectStore.S3.UsePathStyle,
		}, logger)
	}
}

func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (lock.Locker, error) {
	if !cfg.Redis.Enabled {
		logger.Info().Msg("redis disabled, using in-process locks")
		return lock.NewMemoryLocker(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr(),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info().Str("addr", cfg.Redis.Addr()).Msg("connected to redis")
	return lock.NewRedisLocker(client), nil
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(out)
	}

	return logger.Level(level).With().Timestamp().Logger()
}
