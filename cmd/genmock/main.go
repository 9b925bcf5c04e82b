// Command genmock generates a synthetic raw inspection CSV plus matching
// expected-artifact fixtures. It runs the actual domain transforms so the
// fixtures track real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock -rows 500 -csv-out data/mock/inspections.csv -json-out data/mock/visits.json
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/civicdata/inspection-etl/internal/domain"
)

var header = []string{
	"camis", "inspection_date", "score", "grade",
	"violation_code", "violation_description", "action", "zipcode",
}

var violations = []struct {
	code        string
	description string
}{
	{"04L", "Evidence of rodent activity in food or non-food area"},
	{"04M", "Live roaches present in facility's food or non-food area"},
	{"10F", "Non-food contact surface improperly constructed"},
	{"08A", "Facility not vermin proof"},
	{"02G", "Cold food item held above 41F; improper holding temperature"},
	{"06D", "Food contact surface not properly washed"},
}

var zips = []string{"10002", "10013", "10036", "11201", "11215", "11432"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	rows := flag.Int("rows", 500, "number of raw rows to generate")
	seed := flag.Int64("seed", 1, "rng seed")
	csvOut := flag.String("csv-out", "", "output path for the raw CSV fixture")
	jsonOut := flag.String("json-out", "", "output path for the expected visits JSON fixture")
	flag.Parse()

	if *csvOut == "" || *jsonOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv-out, -json-out")
	}

	// Fixed clock for reproducible ProcessedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.March, 1, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewSource(*seed))
	raw := generateRows(rng, *rows)

	if err := writeCSVFixture(*csvOut, raw); err != nil {
		return fmt.Errorf("writing raw fixture: %w", err)
	}
	log.Printf("wrote raw fixture: %s (%d rows)", *csvOut, len(raw))

	visits := domain.ComputeHygieneIndex(
		domain.BuildHistory(domain.NormalizeRows(raw)),
		domain.DefaultWeights,
	)
	if err := writeJSONFixture(*jsonOut, visits); err != nil {
		return fmt.Errorf("writing visits fixture: %w", err)
	}
	log.Printf("wrote visits fixture: %s (%d visits)", *jsonOut, len(visits))

	return nil
}

// generateRows produces rows for a pool of establishments, several visits
// each, with one row per cited violation the way the city export does.
func generateRows(rng *rand.Rand, n int) []domain.RawRow {
	rows := make([]domain.RawRow, 0, n)
	camis := 40500000

	for len(rows) < n {
		camis++
		zip := zips[rng.Intn(len(zips))]
		visitDate := time.Date(2023, time.January, 1+rng.Intn(300), 0, 0, 0, 0, time.UTC)

		for v := 0; v < 1+rng.Intn(4) && len(rows) < n; v++ {
			score := rng.Intn(45)
			grade := gradeForScore(score)
			action := ""
			if score > 40 && rng.Intn(3) == 0 {
				action = "Establishment Closed by DOHMH"
			}

			for c := 0; c < 1+rng.Intn(3) && len(rows) < n; c++ {
				viol := violations[rng.Intn(len(violations))]
				rows = append(rows, domain.RawRow{
					"camis":                 strconv.Itoa(camis),
					"inspection_date":       visitDate.Format("2006-01-02"),
					"score":                 strconv.Itoa(score),
					"grade":                 grade,
					"violation_code":        viol.code,
					"violation_description": viol.description,
					"action":                action,
					"zipcode":               zip,
				})
			}
			visitDate = visitDate.AddDate(0, 1+rng.Intn(5), rng.Intn(20))
		}
	}
	return rows
}

func gradeForScore(score int) string {
	switch {
	case score <= 13:
		return "A"
	case score <= 27:
		return "B"
	default:
		return "C"
	}
}

func writeCSVFixture(path string, rows []domain.RawRow) error {
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

func writeJSONFixture(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
