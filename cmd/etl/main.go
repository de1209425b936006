package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/forecast-etl/internal/adapter/cwa"
	httpadapter "github.com/couchcryptid/forecast-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/forecast-etl/internal/adapter/kafka"
	"github.com/couchcryptid/forecast-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/forecast-etl/internal/config"
	"github.com/couchcryptid/forecast-etl/internal/domain"
	"github.com/couchcryptid/forecast-etl/internal/observability"
	"github.com/couchcryptid/forecast-etl/internal/pipeline"
)

const (
	startupAttempts   = 3
	startupBackoff    = time.Second
	startupMaxBackoff = 10 * time.Second
)

func main() {
	once := flag.Bool("once", false, "run a single forecast cycle, print the result, and exit")
	flag.Parse()
	os.Exit(run(*once))
}

// run wires the service and blocks until shutdown. It returns the process exit code.
func run(once bool) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.SQLitePath, "error", err)
		return 1
	}
	defer db.Close()
	if err := sqlite.Migrate(ctx, db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		return 1
	}
	store := sqlite.NewStore(db, logger)

	var fetcher pipeline.Fetcher = cwa.NewClient(cfg, metrics, logger)
	if cfg.CWACacheTTL > 0 {
		fetcher = cwa.NewCachedFetcher(fetcher, cfg.CWACacheTTL, nil)
	}

	// Kafka fan-out is optional (KAFKA_ENABLED).
	var publisher pipeline.Publisher
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.NewForDataset(cfg, fetcher, store, publisher, logger, metrics)
	logger.Info("pipeline configured", "dataset", cfg.CWADataset, "feed", p.Feed())
	if publisher != nil && p.Feed() == domain.FeedReadings {
		logger.Warn("kafka publishing applies to forecast datasets only", "dataset", cfg.CWADataset)
	}

	if once {
		return runOnce(ctx, p, logger)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Checks{p, store}, p, store, logger)
	srv.LimitRefresh(cfg.RefreshBurst, cfg.RefreshInterval)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Initial cycle; later cycles run on POST /refresh.
	go func() {
		if _, err := p.RunWithRetry(ctx, startupAttempts, startupBackoff, startupMaxBackoff); err != nil && ctx.Err() == nil {
			logger.Error("startup cycle failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger) int {
	res, err := p.RunCycle(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil {
		logger.Error("encode cycle result", "error", encErr)
	}
	if err != nil {
		logger.Error("cycle failed", "error", err)
		return 1
	}
	return 0
}
