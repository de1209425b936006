package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forecast_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the forecast pipeline.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	CycleFailures prometheus.Counter
	CycleDuration prometheus.Histogram
	PipelineReady prometheus.Gauge

	FetchErrors *prometheus.CounterVec // labels: kind={unauthorized,http_status,network,decode,circuit_open}

	PeriodsNormalized  prometheus.Counter
	ReadingsNormalized prometheus.Counter
	Diagnostics        *prometheus.CounterVec // labels: reason

	// Store outcomes.
	IngestRecords *prometheus.CounterVec // labels: outcome={accepted,skipped,rejected}

	PeriodsPublished prometheus.Counter
	PublishErrors    prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleFailures,
		m.CycleDuration,
		m.PipelineReady,
		m.FetchErrors,
		m.PeriodsNormalized,
		m.ReadingsNormalized,
		m.Diagnostics,
		m.IngestRecords,
		m.PeriodsPublished,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total fetch-normalize-ingest cycles started.",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failures_total",
			Help:      "Cycles that ended with an error.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-ingest cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PipelineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_ready",
			Help:      "1 once a cycle has reached the store, 0 before.",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Forecast API fetch failures by kind.",
		}, []string{"kind"}),
		PeriodsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "periods_normalized_total",
			Help:      "Forecast periods produced by normalization.",
		}),
		ReadingsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_normalized_total",
			Help:      "Observation readings produced by normalization.",
		}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_diagnostics_total",
			Help:      "Locations or payloads skipped during normalization, by reason.",
		}, []string{"reason"}),
		IngestRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Records offered to the store, by outcome.",
		}, []string{"outcome"}),
		PeriodsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "periods_published_total",
			Help:      "Forecast periods written to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed attempts to publish a batch to the sink topic.",
		}),
	}
}
