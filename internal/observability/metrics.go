package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hive_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: outcome={success,error}
	PipelineRunning prometheus.Gauge

	// Cleaning metrics.
	ReadingsLoaded  prometheus.Counter
	ReadingsCleaned prometheus.Counter
	RowsDropped     *prometheus.CounterVec // labels: reason

	// Segmentation metrics.
	UnitsSegmented   prometheus.Counter
	UnitsSkipped     prometheus.Counter
	YearsSkipped     prometheus.Counter
	SegmentsProduced prometheus.Counter

	StageDuration *prometheus.HistogramVec // labels: stage

	// Enrichment source metrics.
	SourceRequests    *prometheus.CounterVec   // labels: source={weather,carto}, outcome={success,error,empty}
	SourceCache       *prometheus.CounterVec   // labels: source={weather,carto}, result={hit,miss}
	SourceAPIDuration *prometheus.HistogramVec // labels: source={weather,carto}

	MessagesProduced prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		ReadingsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_loaded_total",
			Help:      "Total raw readings loaded from the input files.",
		}),
		ReadingsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_cleaned_total",
			Help:      "Total readings retained by cleaning.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Raw readings removed by cleaning, by reason.",
		}, []string{"reason"}),
		UnitsSegmented: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_segmented_total",
			Help:      "Total (year, scale) units fitted.",
		}),
		UnitsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_skipped_total",
			Help:      "Total (year, scale) units skipped because no fit could be made.",
		}),
		YearsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "years_skipped_total",
			Help:      "Total years skipped because the segmentation window held no rows.",
		}),
		SegmentsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_produced_total",
			Help:      "Total segment rows produced.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"stage"}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Enrichment API requests by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_cache_total",
			Help:      "Enrichment cache lookups by source and result.",
		}, []string{"source", "result"}),
		SourceAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_api_duration_seconds",
			Help:      "Enrichment API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total segment messages written to the sink topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.PipelineRunning,
		m.ReadingsLoaded,
		m.ReadingsCleaned,
		m.RowsDropped,
		m.UnitsSegmented,
		m.UnitsSkipped,
		m.YearsSkipped,
		m.SegmentsProduced,
		m.StageDuration,
		m.SourceRequests,
		m.SourceCache,
		m.SourceAPIDuration,
		m.MessagesProduced,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
