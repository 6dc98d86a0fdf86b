// Command publisher starts the segment publish service.
//
// The service consumes uploaded-segment records from Kafka, routes each
// record to a per-shard publisher actor, and commits segments into the
// PostgreSQL metastore with retries on transient failures. Publisher
// progress is observable via GET /api/v1/publishers.
//
// Usage:
//
//	go run ./cmd/publisher [-config configs/publisher.yaml]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-search/meridian/internal/metastore"
	"github.com/meridian-search/meridian/internal/publisher"
	"github.com/meridian-search/meridian/pkg/config"
	"github.com/meridian-search/meridian/pkg/health"
	"github.com/meridian-search/meridian/pkg/kafka"
	"github.com/meridian-search/meridian/pkg/logger"
	"github.com/meridian-search/meridian/pkg/metrics"
	"github.com/meridian-search/meridian/pkg/middleware"
	"github.com/meridian-search/meridian/pkg/postgres"
	"github.com/meridian-search/meridian/pkg/redis"
	"github.com/meridian-search/meridian/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting publisher service",
		"shards", cfg.Publisher.Shards,
		"retry_max_attempts", cfg.Publisher.RetryMaxAttempts,
	)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := metastore.NewPostgres(ctx, db)
	if err != nil {
		slog.Error("failed to initialize metastore", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	var dedup *publisher.DedupCache
	if cfg.Redis.Enabled {
		cache, err := redis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		dedup = publisher.NewDedupCache(cache, cfg.Publisher.DedupTTL)
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := cache.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
		slog.Info("publish dedup cache enabled", "ttl", cfg.Publisher.DedupTTL)
	}

	router := publisher.NewRouter(cfg.Publisher.Shards, publisher.Options{
		InboxSize: cfg.Publisher.InboxSize,
		Store:     store,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Publisher.RetryMaxAttempts,
			InitialDelay: cfg.Publisher.RetryInitialBackoff,
			MaxDelay:     cfg.Publisher.RetryMaxBackoff,
		},
		Dedup:   dedup,
		Metrics: m,
	})

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SegmentUploaded,
		publisher.HandleMessage(router))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/publishers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"publishers": router.Snapshots()})
	})
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var root http.Handler = mux
	root = middleware.Metrics(m)(root)
	root = middleware.RequestID()(root)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Start(ctx)
	})
	g.Go(func() error {
		return consumer.Start(ctx)
	})
	g.Go(func() error {
		slog.Info("publisher service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("publisher service error", "error", err)
		os.Exit(1)
	}
	slog.Info("publisher service stopped")
}
