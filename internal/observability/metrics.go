package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for both
// the batch pipeline and the streaming normalizer.
type Metrics struct {
	// Batch stage metrics.
	RowsRead          prometheus.Counter
	RowsNormalized    prometheus.Counter
	CriticalFlagged   prometheus.Counter
	VisitsBuilt       prometheus.Counter
	AggregatesEmitted prometheus.Counter
	StageDuration     *prometheus.HistogramVec // labels: stage={normalize,resolve_zip,history,hygiene,aggregate,write,model}
	ZipResolution     *prometheus.CounterVec   // labels: outcome={present,resolved,missing}

	// Streaming metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	TransformErrors         prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inspection_etl",
			Name:      "rows_read_total",
			Help:      "Total raw inspection rows read from the input.",
		}),
		RowsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inspection_etl",
			Name:      "rows_normalized_total",
			Help:      "Total rows normalized into inspection records.",
		}),
		CriticalFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inspection_etl",
			Name:      "critical_flagged_total",
			Help:      "Rows flagged critical by the keyword heuristic.",
		}),
		VisitsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inspection_etl",
			Name:      "visits_built_total",
			Help:      "Inspection visits produced by the history builder.",
		}),
		AggregatesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inspection_etl",
			Name:      "aggregates_emitted_total",
			Help:      "Zip/period aggregate rows emitted.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inspection_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each batch pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		ZipResolution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inspection_etl",
			Name:      "zip_resolution_total",
			Help:      "Zip resolution outcomes per record.",
		}, []string{"outcome"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inspection_etl",
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inspection_etl",
			Name:      "messages_produced_total",
			Help:      "Total messages written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inspection_etl",
			Name:      "transform_errors_total",
			Help:      "Total transformation failures.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "inspection_etl",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "inspection_etl",
			Name:      "batch_size",
			Help:      "Number of messages per extracted batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "inspection_etl",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsRead,
		m.RowsNormalized,
		m.CriticalFlagged,
		m.VisitsBuilt,
		m.AggregatesEmitted,
		m.StageDuration,
		m.ZipResolution,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
