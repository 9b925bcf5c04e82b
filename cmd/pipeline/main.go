// Command pipeline runs the batch inspection ETL: it reads a raw inspection
// CSV, normalizes and deduplicates rows into establishment visit histories,
// scores each visit with the hygiene index, aggregates by zip and period, and
// writes the CSV artifacts (plus an optional Postgres mirror and panel-model
// summary).
//
// Usage:
//
//	go run ./cmd/pipeline -input data/inspections.csv -output results
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/civicdata/inspection-etl/internal/config"
	"github.com/civicdata/inspection-etl/internal/domain"
	"github.com/civicdata/inspection-etl/internal/geo"
	"github.com/civicdata/inspection-etl/internal/model"
	"github.com/civicdata/inspection-etl/internal/observability"
	"github.com/civicdata/inspection-etl/internal/pipeline"
	"github.com/civicdata/inspection-etl/internal/storage"
)

func main() {
	input := flag.String("input", "", "path to the raw inspection CSV (required)")
	output := flag.String("output", "", "artifact directory (overrides OUTPUT_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *output != "" {
		cfg.OutputDir = *output
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if *input == "" {
		flag.Usage()
		logger.Error("missing required flag -input")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *input, logger); err != nil {
		logger.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, input string, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	var resolver domain.ZipResolver
	if cfg.ZipBoundariesPath != "" {
		base, err := geo.NewResolver(cfg.ZipBoundariesPath, logger)
		if err != nil {
			return err
		}
		resolver = geo.NewCachedResolver(base, cfg.ZipCacheSize)
		logger.Info("spatial zip resolution enabled", "path", cfg.ZipBoundariesPath)
	}

	csvStore, err := storage.NewCSVStore(cfg.OutputDir)
	if err != nil {
		return err
	}

	visitSinks := []storage.VisitWriter{csvStore}
	aggSinks := []storage.AggregateWriter{csvStore}
	if cfg.PostgresDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		visitSinks = append(visitSinks, pg)
		aggSinks = append(aggSinks, pg)
		logger.Info("postgres mirror enabled")
	}

	panel, err := model.Select(cfg.PanelBackend, logger)
	if err != nil {
		// The CSV artifacts are still worth producing without a model.
		logger.Warn("panel modeling disabled", "error", err)
	}

	rows, err := storage.ReadRawRows(input)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(pipeline.RunnerOptions{
		Resolver:    resolver,
		VisitSinks:  visitSinks,
		AggSinks:    aggSinks,
		SummarySink: csvStore,
		Panel:       panel,
		Weights:     cfg.Weights,
		Granularity: cfg.Granularity,
		Logger:      logger,
		Metrics:     metrics,
	})

	report, err := runner.Run(ctx, rows)
	if err != nil {
		return err
	}

	logger.Info("artifacts written",
		"dir", cfg.OutputDir,
		"visits", report.VisitsBuilt,
		"aggregates", report.AggregatesEmitted,
		"model_backend", report.ModelBackend,
	)
	return nil
}
