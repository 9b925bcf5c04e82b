package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/civicdata/inspection-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/civicdata/inspection-etl/internal/adapter/kafka"
	"github.com/civicdata/inspection-etl/internal/config"
	"github.com/civicdata/inspection-etl/internal/domain"
	"github.com/civicdata/inspection-etl/internal/geo"
	"github.com/civicdata/inspection-etl/internal/observability"
	"github.com/civicdata/inspection-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// Spatial zip resolution is optional; without boundaries only the
	// explicit zipcode and postal_code fields are used.
	var resolver domain.ZipResolver
	if cfg.ZipBoundariesPath != "" {
		base, err := geo.NewResolver(cfg.ZipBoundariesPath, logger)
		if err != nil {
			logger.Error("failed to load zip boundaries", "path", cfg.ZipBoundariesPath, "error", err)
			os.Exit(1)
		}
		resolver = geo.NewCachedResolver(base, cfg.ZipCacheSize)
		logger.Info("spatial zip resolution enabled", "path", cfg.ZipBoundariesPath, "cache_size", cfg.ZipCacheSize)
	} else {
		logger.Info("spatial zip resolution disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(resolver, logger)

	stream := pipeline.NewStream(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, stream, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the normalizer stream.
	go func() {
		if err := stream.Run(ctx); err != nil {
			logger.Error("stream error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
