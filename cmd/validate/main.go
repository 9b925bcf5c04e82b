// Command validate performs end-to-end integrity checks on batch pipeline
// artifacts: it re-runs the domain transforms on the raw CSV and verifies the
// written establishment history and aggregate files against the recomputed
// expectation, plus structural invariants on each artifact.
//
// Usage:
//
//	go run ./cmd/validate -raw data/inspections.csv -artifacts results
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/civicdata/inspection-etl/internal/domain"
	"github.com/civicdata/inspection-etl/internal/storage"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	rawPath := flag.String("raw", "", "path to the raw inspection CSV")
	artifactDir := flag.String("artifacts", "", "directory containing pipeline artifacts")
	flag.Parse()

	if *rawPath == "" || *artifactDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*rawPath, *artifactDir); code != 0 {
		os.Exit(code)
	}
}

func run(rawPath, artifactDir string) int {
	fmt.Println("=== Inspection Artifact Validation ===")
	fmt.Println()

	raw, err := storage.ReadRawRows(rawPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load raw CSV: %v\n", err)
		return 1
	}

	historyRows, err := loadArtifact(filepath.Join(artifactDir, storage.VisitsFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load history artifact: %v\n", err)
		return 1
	}

	aggRows, err := loadArtifact(filepath.Join(artifactDir, storage.AggregatesFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load aggregate artifact: %v\n", err)
		return 1
	}

	// Recompute the expected visits from the raw rows.
	expected := domain.ComputeHygieneIndex(
		domain.BuildHistory(domain.NormalizeRows(raw)),
		domain.DefaultWeights,
	)

	phases := []*phase{
		validateHistoryParity(historyRows, expected),
		validateHistoryInvariants(historyRows),
		validateAggregateInvariants(aggRows, historyRows),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-46s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d raw rows, %d history rows, %d aggregate rows\n",
		len(raw), len(historyRows), len(aggRows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

// artifactRow is a parsed CSV row with field values keyed by header name.
type artifactRow struct {
	lineNum int
	fields  map[string]string
}

func loadArtifact(path string) ([]artifactRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("empty artifact %s", path)
	}

	header := all[0]
	var rows []artifactRow
	for i, row := range all[1:] {
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(row) {
				fields[h] = strings.TrimSpace(row[j])
			}
		}
		rows = append(rows, artifactRow{lineNum: i + 2, fields: fields})
	}
	return rows, nil
}

// ── Phase 1: History Parity ──
// The written artifact must match a fresh run of the transforms.

func validateHistoryParity(artifact []artifactRow, expected []domain.InspectionVisit) *phase {
	p := &phase{name: "Phase 1: History Parity (recompute)"}

	if len(artifact) != len(expected) {
		p.errorf("row count: artifact has %d, recompute produced %d", len(artifact), len(expected))
		return p
	}

	index := map[string]domain.InspectionVisit{}
	for _, v := range expected {
		index[visitKey(v.EstablishmentID, v.InspectionNumber)] = v
	}

	for _, row := range artifact {
		num, _ := strconv.Atoi(row.fields["inspection_number"])
		want, ok := index[visitKey(row.fields["camis"], num)]
		if !ok {
			p.errorf("line %d: visit %s/%d not produced by recompute", row.lineNum, row.fields["camis"], num)
			continue
		}
		if got := row.fields["violation_count"]; got != strconv.Itoa(want.ViolationCount) {
			p.errorf("line %d: violation_count: artifact=%s, recompute=%d", row.lineNum, got, want.ViolationCount)
		}
		if got := row.fields["critical_violations"]; got != strconv.Itoa(want.CriticalViolations) {
			p.errorf("line %d: critical_violations: artifact=%s, recompute=%d", row.lineNum, got, want.CriticalViolations)
		}
		if want.HygieneIndex != nil {
			got, err := strconv.ParseFloat(row.fields["hygiene_index"], 64)
			if err != nil || math.Abs(got-*want.HygieneIndex) > 1e-6 {
				p.errorf("line %d: hygiene_index: artifact=%q, recompute=%g", row.lineNum, row.fields["hygiene_index"], *want.HygieneIndex)
			}
		}
	}
	return p
}

func visitKey(camis string, n int) string {
	return camis + "|" + strconv.Itoa(n)
}

// ── Phase 2: History Invariants ──

func validateHistoryInvariants(artifact []artifactRow) *phase {
	p := &phase{name: "Phase 2: History Invariants"}

	lastNum := map[string]int{}
	for _, row := range artifact {
		camis := row.fields["camis"]
		if camis == "" {
			p.errorf("line %d: empty camis", row.lineNum)
			continue
		}

		num, err := strconv.Atoi(row.fields["inspection_number"])
		if err != nil || num < 1 {
			p.errorf("line %d: bad inspection_number %q", row.lineNum, row.fields["inspection_number"])
			continue
		}
		if prev, ok := lastNum[camis]; ok && num != prev+1 {
			p.errorf("line %d: %s: inspection_number %d follows %d", row.lineNum, camis, num, prev)
		}
		lastNum[camis] = num

		if num == 1 && row.fields["days_since_prev"] != "" {
			p.errorf("line %d: first visit has days_since_prev %q", row.lineNum, row.fields["days_since_prev"])
		}

		if hi := row.fields["hygiene_index"]; hi != "" {
			v, err := strconv.ParseFloat(hi, 64)
			if err != nil || v < 0 || v > 100 {
				p.errorf("line %d: hygiene_index %q outside [0,100]", row.lineNum, hi)
			}
		}
	}
	return p
}

// ── Phase 3: Aggregate Invariants ──

func validateAggregateInvariants(aggs, history []artifactRow) *phase {
	p := &phase{name: "Phase 3: Aggregate Invariants"}

	// Visits with both a zip and a date are exactly what aggregation keeps.
	var datedZipped int
	for _, row := range history {
		if row.fields["zipcode"] != "" && row.fields["inspection_date"] != "" {
			datedZipped++
		}
	}

	var counted int
	seen := map[string]bool{}
	for _, row := range aggs {
		key := row.fields["zipcode"] + "|" + row.fields["period"]
		if seen[key] {
			p.errorf("line %d: duplicate zip/period %s", row.lineNum, key)
		}
		seen[key] = true

		n, err := strconv.Atoi(row.fields["inspections"])
		if err != nil || n < 1 {
			p.errorf("line %d: bad inspections count %q", row.lineNum, row.fields["inspections"])
			continue
		}
		counted += n

		unique, err := strconv.Atoi(row.fields["unique_establishments"])
		if err != nil || unique < 1 || unique > n {
			p.errorf("line %d: unique_establishments %q out of range for %d inspections", row.lineNum, row.fields["unique_establishments"], n)
		}

		if cs := row.fields["closure_share"]; cs != "" {
			v, err := strconv.ParseFloat(cs, 64)
			if err != nil || v < 0 || v > 1 {
				p.errorf("line %d: closure_share %q outside [0,1]", row.lineNum, cs)
			}
		}
	}

	if counted != datedZipped {
		p.errorf("aggregate inspections sum to %d, history has %d dated rows with zips", counted, datedZipped)
	}
	return p
}
