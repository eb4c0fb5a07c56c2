// Package metrics provides Prometheus metrics for the orchestrator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestrator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Job metrics
	JobsSubmitted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	Cancellations *prometheus.CounterVec

	// Batch metrics
	BatchWindows  *prometheus.CounterVec
	BatchCircuits prometheus.Histogram

	// Result metrics
	ResultsNormalized     *prometheus.CounterVec
	ResultErrors          *prometheus.CounterVec
	NormalizationDuration *prometheus.HistogramVec

	// Pricing metrics
	PriceResolutions *prometheus.CounterVec
	CatalogErrors    prometheus.Counter
	EstimatedCost    *prometheus.HistogramVec

	// Remote call latency
	RemoteCallDuration *prometheus.HistogramVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

// New registers the metrics against reg. A nil reg uses the default registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "braket_orchestrator"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		JobsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_submitted_total",
				Help:      "Total number of jobs submitted to the compute service",
			},
			[]string{"device_id"},
		),
		JobsFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_submit_failed_total",
				Help:      "Total number of submissions that failed before a task was created",
			},
			[]string{"device_id", "stage"},
		),
		Cancellations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cancellations_total",
				Help:      "Total number of cancellation requests by outcome",
			},
			[]string{"outcome"},
		),
		BatchWindows: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_windows_total",
				Help:      "Total number of batch windows dispatched",
			},
			[]string{"device_id"},
		),
		BatchCircuits: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_circuits",
				Help:      "Number of circuits per batch",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
			},
		),
		ResultsNormalized: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_normalized_total",
				Help:      "Total number of results normalized by payload source",
			},
			[]string{"source"},
		),
		ResultErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_errors_total",
				Help:      "Total number of result retrieval errors by kind",
			},
			[]string{"kind"},
		),
		NormalizationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "normalization_duration_seconds",
				Help:      "Time spent normalizing a result payload",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"source"},
		),
		PriceResolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_resolutions_total",
				Help:      "Total number of price resolutions by source",
			},
			[]string{"source"},
		),
		CatalogErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_catalog_errors_total",
				Help:      "Total number of failed price catalog lookups",
			},
		),
		EstimatedCost: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "estimated_cost_usd",
				Help:      "Estimated cost of requested workloads",
				Buckets:   []float64{0.01, 0.1, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"device_id", "unit"},
		),
		RemoteCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_call_duration_seconds",
				Help:      "Latency of compute service calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncJobsSubmitted increments the submitted jobs counter.
func (m *Metrics) IncJobsSubmitted(deviceID string) {
	if m == nil {
		return
	}
	m.JobsSubmitted.WithLabelValues(deviceID).Inc()
}

// IncJobsFailed increments the failed submissions counter. Stage is "compile" or "create".
func (m *Metrics) IncJobsFailed(deviceID, stage string) {
	if m == nil {
		return
	}
	m.JobsFailed.WithLabelValues(deviceID, stage).Inc()
}

// IncCancellations increments the cancellations counter.
func (m *Metrics) IncCancellations(outcome string) {
	if m == nil {
		return
	}
	m.Cancellations.WithLabelValues(outcome).Inc()
}

// IncBatchWindows increments the dispatched windows counter.
func (m *Metrics) IncBatchWindows(deviceID string) {
	if m == nil {
		return
	}
	m.BatchWindows.WithLabelValues(deviceID).Inc()
}

// ObserveBatchCircuits records the size of a batch.
func (m *Metrics) ObserveBatchCircuits(n int) {
	if m == nil {
		return
	}
	m.BatchCircuits.Observe(float64(n))
}

// IncResultsNormalized increments the normalized results counter.
func (m *Metrics) IncResultsNormalized(source string) {
	if m == nil {
		return
	}
	m.ResultsNormalized.WithLabelValues(source).Inc()
}

// IncResultErrors increments the result errors counter. Kind is "remote", "missing", "storage" or "format".
func (m *Metrics) IncResultErrors(kind string) {
	if m == nil {
		return
	}
	m.ResultErrors.WithLabelValues(kind).Inc()
}

// ObserveNormalizationDuration records normalization time.
func (m *Metrics) ObserveNormalizationDuration(source string, seconds float64) {
	if m == nil {
		return
	}
	m.NormalizationDuration.WithLabelValues(source).Observe(seconds)
}

// IncPriceResolutions increments the price resolutions counter.
func (m *Metrics) IncPriceResolutions(source string) {
	if m == nil {
		return
	}
	m.PriceResolutions.WithLabelValues(source).Inc()
}

// IncCatalogErrors increments the price catalog errors counter.
func (m *Metrics) IncCatalogErrors() {
	if m == nil {
		return
	}
	m.CatalogErrors.Inc()
}

// ObserveEstimatedCost records an estimate.
func (m *Metrics) ObserveEstimatedCost(deviceID, unit string, cost float64) {
	if m == nil {
		return
	}
	m.EstimatedCost.WithLabelValues(deviceID, unit).Observe(cost)
}

// ObserveRemoteCall records the latency of a compute service call.
func (m *Metrics) ObserveRemoteCall(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.RemoteCallDuration.WithLabelValues(operation).Observe(seconds)
}
