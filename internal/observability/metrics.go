// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Fetch metrics
	FetchJobsDispatched prometheus.Counter
	FetchRetries        prometheus.Counter
	FetchErrors         *prometheus.CounterVec
	FetchLatency        *prometheus.HistogramVec

	// Archive metrics
	ChunksMerged  prometheus.Counter
	SamplesMerged prometheus.Counter
	SpansSkipped  prometheus.Counter
	MergeErrors   prometheus.Counter
	MergeLatency  prometheus.Histogram

	// Feed metrics
	FeedRecords    prometheus.Counter
	FeedReconnects prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "seisvault"
	}

	return &Metrics{
		// Fetch metrics
		FetchJobsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "jobs_dispatched_total",
			Help:      "Total number of fetch jobs dispatched to workers",
		}),
		FetchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Total number of fetch retries",
		}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Total number of fetch errors by kind",
		}, []string{"kind"}),
		FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "latency_seconds",
			Help:      "Waveform fetch latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"datacenter"}),

		// Archive metrics
		ChunksMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "chunks_merged_total",
			Help:      "Total number of waveform chunks merged into the archive",
		}),
		SamplesMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "samples_merged_total",
			Help:      "Total number of samples merged into the archive",
		}),
		SpansSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "spans_skipped_total",
			Help:      "Total number of windows skipped because they were already covered",
		}),
		MergeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "merge_errors_total",
			Help:      "Total number of failed archive merges",
		}),
		MergeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "merge_latency_seconds",
			Help:      "Archive merge latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Feed metrics
		FeedRecords: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "records_total",
			Help:      "Total number of records received from the live feed",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of live feed reconnects",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful acquisition run",
		}),
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "runs_total",
			Help:      "Total number of acquisition runs by mode and status",
		}, []string{"mode", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "run_duration_seconds",
			Help:      "Acquisition run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"mode"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFetchDispatched increments the dispatched jobs counter.
func RecordFetchDispatched() {
	DefaultMetrics.FetchJobsDispatched.Inc()
}

// RecordFetchError records a classified fetch error.
func RecordFetchError(kind string) {
	DefaultMetrics.FetchErrors.WithLabelValues(kind).Inc()
}

// RecordFetchLatency records one waveform fetch.
func RecordFetchLatency(datacenter string, seconds float64) {
	DefaultMetrics.FetchLatency.WithLabelValues(datacenter).Observe(seconds)
}

// RecordMerge records one archive merge.
func RecordMerge(samples int, seconds float64, err error) {
	DefaultMetrics.MergeLatency.Observe(seconds)
	if err != nil {
		DefaultMetrics.MergeErrors.Inc()
		return
	}
	DefaultMetrics.ChunksMerged.Inc()
	DefaultMetrics.SamplesMerged.Add(float64(samples))
}

// RecordFeedRecord increments the live feed record counter.
func RecordFeedRecord() {
	DefaultMetrics.FeedRecords.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordRun records one acquisition run.
func RecordRun(mode, status string, duration time.Duration) {
	DefaultMetrics.RunsTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if status == "ok" {
		DefaultMetrics.LastSuccessfulRun.SetToCurrentTime()
	}
}
