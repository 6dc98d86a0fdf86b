// Command ingest starts the write-ingress HTTP service.
//
// The service accepts uploaded-segment records via POST /api/v1/segments,
// transparently inflating gzip, brotli, or zstd request bodies, validates
// them, and produces them to the Kafka topic that feeds the publisher. It
// also provides index creation, segment listing, and health endpoints.
//
// Usage:
//
//	go run ./cmd/ingest [-config configs/ingest.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-search/meridian/internal/ingest/decompress"
	"github.com/meridian-search/meridian/internal/ingest/handler"
	"github.com/meridian-search/meridian/internal/metastore"
	"github.com/meridian-search/meridian/pkg/config"
	"github.com/meridian-search/meridian/pkg/health"
	"github.com/meridian-search/meridian/pkg/kafka"
	"github.com/meridian-search/meridian/pkg/logger"
	"github.com/meridian-search/meridian/pkg/metrics"
	"github.com/meridian-search/meridian/pkg/middleware"
	"github.com/meridian-search/meridian/pkg/postgres"
)

// main loads configuration, connects to PostgreSQL, creates the Kafka
// producer, wires up the ingress handler with the decompression middleware,
// and starts the HTTP server. Graceful shutdown is triggered by
// SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingest service", "port", cfg.Server.Port)

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

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SegmentUploaded)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.SegmentUploaded)

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

	h := handler.New(store, producer)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/indexes", h.CreateIndex)
	mux.HandleFunc("POST /api/v1/segments", h.SubmitSegment)
	mux.HandleFunc("GET /api/v1/indexes/{index}/segments", h.ListSegments)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	decompressCfg := decompress.Config{
		MaxDecodedBytes:   cfg.Ingest.MaxDecodedBodyBytes,
		BrotliBufferBytes: cfg.Ingest.BrotliBufferBytes,
	}
	var root http.Handler = mux
	root = decompress.Middleware(decompressCfg, m)(root)
	root = middleware.Timeout(cfg.Server.RequestTimeout)(root)
	root = middleware.Metrics(m)(root)
	root = middleware.RequestID()(root)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
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
	}()
	slog.Info("ingest service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingest service stopped")
}
