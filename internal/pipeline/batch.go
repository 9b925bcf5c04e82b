package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/civicdata/inspection-etl/internal/domain"
	"github.com/civicdata/inspection-etl/internal/model"
	"github.com/civicdata/inspection-etl/internal/observability"
	"github.com/civicdata/inspection-etl/internal/storage"
)

// SummaryWriter persists the panel-model artifact text.
type SummaryWriter interface {
	WriteModelSummary(summary string) error
}

// RunReport summarizes one batch pipeline run.
type RunReport struct {
	RunID             string
	RowsRead          int
	RecordsNormalized int
	CriticalFlagged   int
	VisitsBuilt       int
	AggregatesEmitted int
	ModelBackend      string
	ModelSummary      string
	ModelErr          error
	Duration          time.Duration
}

// Runner executes the batch pipeline: normalize, resolve zips, build
// history, score hygiene, aggregate, persist, and fit the panel model.
type Runner struct {
	resolver    domain.ZipResolver
	visitSinks  []storage.VisitWriter
	aggSinks    []storage.AggregateWriter
	summarySink SummaryWriter
	panel       model.PanelModel
	weights     domain.Weights
	granularity domain.Granularity
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// RunnerOptions configures a batch Runner. Resolver, SummarySink, and
// Panel may be nil to disable the corresponding stage.
type RunnerOptions struct {
	Resolver    domain.ZipResolver
	VisitSinks  []storage.VisitWriter
	AggSinks    []storage.AggregateWriter
	SummarySink SummaryWriter
	Panel       model.PanelModel
	Weights     domain.Weights
	Granularity domain.Granularity
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// NewRunner creates a batch Runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{
		resolver:    opts.Resolver,
		visitSinks:  opts.VisitSinks,
		aggSinks:    opts.AggSinks,
		summarySink: opts.SummarySink,
		panel:       opts.Panel,
		weights:     opts.Weights,
		granularity: opts.Granularity,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// Run processes raw rows end to end and writes all artifacts. A modeling
// failure is reported on the RunReport but does not fail the run.
func (r *Runner) Run(ctx context.Context, rows []domain.RawRow) (RunReport, error) {
	start := time.Now()
	report := RunReport{RunID: uuid.NewString(), RowsRead: len(rows)}
	logger := r.logger.With("run_id", report.RunID)

	logger.Info("pipeline run started", "rows", len(rows))
	r.metrics.RowsRead.Add(float64(len(rows)))

	records := timedStage(r.metrics, "normalize", func() []domain.InspectionRecord {
		return domain.NormalizeRows(rows)
	})
	report.RecordsNormalized = len(records)
	r.metrics.RowsNormalized.Add(float64(len(records)))
	for _, rec := range records {
		if rec.IsCritical {
			report.CriticalFlagged++
		}
	}
	r.metrics.CriticalFlagged.Add(float64(report.CriticalFlagged))

	records = timedStage(r.metrics, "resolve_zip", func() []domain.InspectionRecord {
		return r.resolveZips(ctx, records)
	})

	visits := timedStage(r.metrics, "history", func() []domain.InspectionVisit {
		return domain.BuildHistory(records)
	})
	report.VisitsBuilt = len(visits)
	r.metrics.VisitsBuilt.Add(float64(len(visits)))

	visits = timedStage(r.metrics, "hygiene", func() []domain.InspectionVisit {
		return domain.ComputeHygieneIndex(visits, r.weights)
	})

	aggs := timedStage(r.metrics, "aggregate", func() []domain.ZipPeriodAggregate {
		return domain.AggregateByZip(visits, r.granularity)
	})
	report.AggregatesEmitted = len(aggs)
	r.metrics.AggregatesEmitted.Add(float64(len(aggs)))

	if err := r.write(ctx, visits, aggs); err != nil {
		return report, err
	}

	r.fitModel(visits, &report, logger)

	report.Duration = time.Since(start)
	logger.Info("pipeline run finished",
		"rows", report.RowsRead,
		"records", report.RecordsNormalized,
		"visits", report.VisitsBuilt,
		"aggregates", report.AggregatesEmitted,
		"duration", report.Duration,
	)
	return report, nil
}

func (r *Runner) resolveZips(ctx context.Context, records []domain.InspectionRecord) []domain.InspectionRecord {
	out := make([]domain.InspectionRecord, len(records))
	for i, rec := range records {
		hadZip := rec.Zipcode != nil
		rec = domain.ResolveZip(ctx, rec, r.resolver, r.logger)
		switch {
		case hadZip:
			r.metrics.ZipResolution.WithLabelValues("present").Inc()
		case rec.Zipcode != nil:
			r.metrics.ZipResolution.WithLabelValues("resolved").Inc()
		default:
			r.metrics.ZipResolution.WithLabelValues("missing").Inc()
		}
		out[i] = rec
	}
	return out
}

func (r *Runner) write(ctx context.Context, visits []domain.InspectionVisit, aggs []domain.ZipPeriodAggregate) error {
	start := time.Now()
	defer func() {
		r.metrics.StageDuration.WithLabelValues("write").Observe(time.Since(start).Seconds())
	}()

	for _, sink := range r.visitSinks {
		if err := sink.WriteVisits(ctx, visits); err != nil {
			return err
		}
	}
	for _, sink := range r.aggSinks {
		if err := sink.WriteAggregates(ctx, aggs); err != nil {
			return err
		}
	}
	return nil
}

// fitModel runs the panel regression stage. Any failure is recorded on the
// report and logged; the artifacts already written remain valid.
func (r *Runner) fitModel(visits []domain.InspectionVisit, report *RunReport, logger *slog.Logger) {
	if r.panel == nil {
		return
	}
	start := time.Now()
	defer func() {
		r.metrics.StageDuration.WithLabelValues("model").Observe(time.Since(start).Seconds())
	}()

	report.ModelBackend = r.panel.Name()
	result, err := r.panel.Fit(model.BuildDataset(visits))
	if err != nil {
		report.ModelErr = err
		logger.Warn("panel model fit failed", "backend", r.panel.Name(), "error", err)
		return
	}

	report.ModelSummary = result.Summary()
	if r.summarySink == nil {
		return
	}
	if err := r.summarySink.WriteModelSummary(report.ModelSummary); err != nil {
		report.ModelErr = err
		logger.Warn("writing model summary failed", "error", err)
	}
}

// timedStage observes stage duration on the metrics histogram.
func timedStage[T any](m *observability.Metrics, stage string, fn func() T) T {
	start := time.Now()
	defer func() {
		m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}()
	return fn()
}
