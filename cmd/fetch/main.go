// Command fetch downloads the DOHMH restaurant inspection dataset from the
// city's Socrata endpoint and writes it as a raw CSV suitable for the batch
// pipeline.
//
// Usage:
//
//	go run ./cmd/fetch -out data/inspections.csv -max-rows 100000
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/civicdata/inspection-etl/internal/adapter/socrata"
	"github.com/civicdata/inspection-etl/internal/config"
	"github.com/civicdata/inspection-etl/internal/domain"
	"github.com/civicdata/inspection-etl/internal/observability"
)

func main() {
	out := flag.String("out", "data/inspections.csv", "output CSV path")
	maxRows := flag.Int("max-rows", 0, "stop after this many rows (0 = full dataset)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := socrata.NewClient(cfg.SocrataEndpoint, os.Getenv("SOCRATA_APP_TOKEN"), cfg.SocrataPageSize, 60*time.Second, logger)

	rows, err := client.FetchAll(ctx, *maxRows)
	if err != nil {
		logger.Error("fetch failed", "error", err)
		os.Exit(1)
	}

	if err := writeCSV(*out, rows); err != nil {
		logger.Error("write failed", "path", *out, "error", err)
		os.Exit(1)
	}

	logger.Info("dataset written", "path", *out, "rows", len(rows))
}

// writeCSV writes rows under a header that is the union of all observed
// field names, sorted for a stable column order.
func writeCSV(path string, rows []domain.RawRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("no rows fetched")
	}

	seen := map[string]bool{}
	for _, row := range rows {
		for name := range row {
			seen[name] = true
		}
	}
	header := make([]string, 0, len(seen))
	for name := range seen {
		header = append(header, name)
	}
	sort.Strings(header)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, name := range header {
			record[i] = row[name]
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
