package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/civicdata/inspection-etl/internal/domain"
)

// Artifact file names inside the output directory.
const (
	VisitsFile       = "establishment_history.csv"
	AggregatesFile   = "neighborhood_aggregates.csv"
	ModelSummaryFile = "model_summary.txt"
)

const dateFormat = "2006-01-02"

var visitHeader = []string{
	"camis", "inspection_date", "inspection_number", "prev_inspection_date",
	"days_since_prev", "violation_count", "critical_violations",
	"score", "grade", "action", "zipcode", "hygiene_index",
}

var aggregateHeader = []string{
	"zipcode", "period", "mean_hygiene_index", "median_hygiene_index",
	"inspections", "unique_establishments", "mean_score",
	"mean_critical_violations", "closure_share",
}

// CSVStore writes pipeline artifacts as CSV files under one output
// directory, created on demand. Files are truncated each run: artifacts
// are fully recomputed, never appended.
type CSVStore struct {
	dir string
}

// NewCSVStore creates the output directory if needed.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

func (s *CSVStore) WriteVisits(_ context.Context, visits []domain.InspectionVisit) error {
	return s.writeCSV(VisitsFile, visitHeader, len(visits), func(w *csv.Writer, i int) error {
		v := visits[i]
		return w.Write([]string{
			v.EstablishmentID,
			formatDate(v.InspectionDate),
			strconv.Itoa(v.InspectionNumber),
			formatDate(v.PrevInspectionDate),
			formatIntPtr(v.DaysSincePrev),
			strconv.Itoa(v.ViolationCount),
			strconv.Itoa(v.CriticalViolations),
			formatFloatPtr(v.Score),
			v.Grade,
			formatStrPtr(v.Action),
			formatStrPtr(v.Zipcode),
			formatFloatPtr(v.HygieneIndex),
		})
	})
}

func (s *CSVStore) WriteAggregates(_ context.Context, aggs []domain.ZipPeriodAggregate) error {
	return s.writeCSV(AggregatesFile, aggregateHeader, len(aggs), func(w *csv.Writer, i int) error {
		a := aggs[i]
		return w.Write([]string{
			a.Zipcode,
			a.Period.Format(dateFormat),
			formatFloatPtr(a.MeanHygieneIndex),
			formatFloatPtr(a.MedianHygieneIndex),
			strconv.Itoa(a.Inspections),
			strconv.Itoa(a.UniqueEstablishments),
			formatFloatPtr(a.MeanScore),
			formatFloat(a.MeanCriticalViolations),
			formatFloat(a.ClosureShare),
		})
	})
}

// WriteModelSummary writes the panel-model artifact text.
func (s *CSVStore) WriteModelSummary(summary string) error {
	path := filepath.Join(s.dir, ModelSummaryFile)
	if err := os.WriteFile(path, []byte(summary), 0o644); err != nil {
		return fmt.Errorf("write model summary: %w", err)
	}
	return nil
}

func (s *CSVStore) writeCSV(name string, header []string, rows int, writeRow func(w *csv.Writer, i int) error) error {
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for i := 0; i < rows; i++ {
		if err := writeRow(w, i); err != nil {
			return fmt.Errorf("csv: write row %d of %s: %w", i, name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: flush %s: %w", name, err)
	}
	return f.Close()
}

// ReadRawRows loads a raw inspection CSV into field-name keyed rows. The
// header row supplies the field names; short records pad with empty
// strings the way the upstream export does.
func ReadRawRows(path string) ([]domain.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read raw csv header: %w", err)
	}

	var rows []domain.RawRow
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read raw csv row %d: %w", len(rows)+2, err)
		}
		row := make(domain.RawRow, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateFormat)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatStrPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
