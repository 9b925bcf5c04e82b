package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/civicdata/inspection-etl/internal/domain"
)

// PostgresStore mirrors the visit-history and aggregate artifacts into
// PostgreSQL for downstream query access. Both tables are rewritten in a
// transaction on every run, matching the recompute-from-scratch lifecycle
// of the pipeline.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection, verifies it, and runs schema
// migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS establishment_history (
			camis                TEXT        NOT NULL,
			inspection_date      DATE,
			inspection_number    INTEGER     NOT NULL,
			prev_inspection_date DATE,
			days_since_prev      INTEGER,
			violation_count      INTEGER     NOT NULL,
			critical_violations  INTEGER     NOT NULL,
			score                DOUBLE PRECISION,
			grade                TEXT        NOT NULL DEFAULT '',
			action               TEXT,
			zipcode              VARCHAR(5),
			hygiene_index        DOUBLE PRECISION
		);

		CREATE INDEX IF NOT EXISTS idx_history_camis   ON establishment_history(camis);
		CREATE INDEX IF NOT EXISTS idx_history_zipcode ON establishment_history(zipcode);

		CREATE TABLE IF NOT EXISTS neighborhood_aggregates (
			zipcode                  VARCHAR(5)       NOT NULL,
			period                   DATE             NOT NULL,
			mean_hygiene_index       DOUBLE PRECISION,
			median_hygiene_index     DOUBLE PRECISION,
			inspections              INTEGER          NOT NULL,
			unique_establishments    INTEGER          NOT NULL,
			mean_score               DOUBLE PRECISION,
			mean_critical_violations DOUBLE PRECISION NOT NULL,
			closure_share            DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (zipcode, period)
		);
	`)
	return err
}

func (s *PostgresStore) WriteVisits(ctx context.Context, visits []domain.InspectionVisit) error {
	return s.replace(ctx, "establishment_history", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO establishment_history (
				camis, inspection_date, inspection_number, prev_inspection_date,
				days_since_prev, violation_count, critical_violations,
				score, grade, action, zipcode, hygiene_index
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, v := range visits {
			if _, err := stmt.ExecContext(ctx,
				v.EstablishmentID, nullTime(v.InspectionDate), v.InspectionNumber,
				nullTime(v.PrevInspectionDate), nullInt(v.DaysSincePrev),
				v.ViolationCount, v.CriticalViolations,
				nullFloat(v.Score), v.Grade, nullStr(v.Action), nullStr(v.Zipcode),
				nullFloat(v.HygieneIndex),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) WriteAggregates(ctx context.Context, aggs []domain.ZipPeriodAggregate) error {
	return s.replace(ctx, "neighborhood_aggregates", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO neighborhood_aggregates (
				zipcode, period, mean_hygiene_index, median_hygiene_index,
				inspections, unique_establishments, mean_score,
				mean_critical_violations, closure_share
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range aggs {
			if _, err := stmt.ExecContext(ctx,
				a.Zipcode, a.Period, nullFloat(a.MeanHygieneIndex),
				nullFloat(a.MedianHygieneIndex), a.Inspections,
				a.UniqueEstablishments, nullFloat(a.MeanScore),
				a.MeanCriticalViolations, a.ClosureShare,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// replace runs DELETE-then-INSERT for one table inside a transaction, so
// readers never observe a half-written run.
func (s *PostgresStore) replace(ctx context.Context, table string, insert func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("postgres: clear %s: %w", table, err)
	}
	if err := insert(tx); err != nil {
		return fmt.Errorf("postgres: insert into %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit %s: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
