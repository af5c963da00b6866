// Package metrics provides the Prometheus collectors used across the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "electricity_map"

// Recorder is what the rest of the service records into.
type Recorder interface {
	ObserveRefresh(outcome string, duration time.Duration)
	IncRefreshSkipped()
	SetLastSuccessfulRefresh(t time.Time)
	ObserveUpstreamRequest(endpoint string, duration time.Duration, err error)
	ObserveSnapshotSave(duration time.Duration)
	IncRequestsTotal(route string, status int)
	ObserveRequestDuration(route string, duration time.Duration)
	AddDatasetRows(accepted, rejected int)
}

// Refresh outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics is the Prometheus-backed Recorder.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal        *prometheus.CounterVec
	refreshDuration     prometheus.Histogram
	refreshSkipped      prometheus.Counter
	lastRefresh         prometheus.Gauge
	upstreamDuration    *prometheus.HistogramVec
	upstreamErrors      *prometheus.CounterVec
	snapshotSave        prometheus.Histogram
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	datasetRowsAccepted prometheus.Counter
	datasetRowsRejected prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		refreshTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by outcome",
		}, []string{"outcome"}),
		refreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of fetch, merge and persist cycles",
			Buckets:   prometheus.DefBuckets,
		}),
		refreshSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_skipped_total",
			Help:      "Refresh triggers dropped because a cycle was already running",
		}),
		lastRefresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh",
		}),
		upstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream API request duration by endpoint",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		upstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_request_errors_total",
			Help:      "Failed upstream API requests by endpoint",
		}, []string{"endpoint"}),
		snapshotSave: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_save_duration_seconds",
			Help:      "Duration of snapshot persistence",
			Buckets:   prometheus.DefBuckets,
		}),
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		datasetRowsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_rows_accepted_total",
			Help:      "Historical dataset rows parsed successfully",
		}),
		datasetRowsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_rows_rejected_total",
			Help:      "Historical dataset rows dropped during parsing",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRefresh(outcome string, duration time.Duration) {
	m.refreshTotal.WithLabelValues(outcome).Inc()
	m.refreshDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncRefreshSkipped() {
	m.refreshSkipped.Inc()
}

func (m *Metrics) SetLastSuccessfulRefresh(t time.Time) {
	m.lastRefresh.Set(float64(t.Unix()))
}

func (m *Metrics) ObserveUpstreamRequest(endpoint string, duration time.Duration, err error) {
	m.upstreamDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if err != nil {
		m.upstreamErrors.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) ObserveSnapshotSave(duration time.Duration) {
	m.snapshotSave.Observe(duration.Seconds())
}

func (m *Metrics) IncRequestsTotal(route string, status int) {
	m.requestsTotal.WithLabelValues(route, StatusBucket(status)).Inc()
}

func (m *Metrics) ObserveRequestDuration(route string, duration time.Duration) {
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) AddDatasetRows(accepted, rejected int) {
	m.datasetRowsAccepted.Add(float64(accepted))
	m.datasetRowsRejected.Add(float64(rejected))
}

// StatusBucket collapses an HTTP status code into its class.
func StatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop is used when metrics are disabled.
type Noop struct{}

func (Noop) ObserveRefresh(string, time.Duration)                {}
func (Noop) IncRefreshSkipped()                                  {}
func (Noop) SetLastSuccessfulRefresh(time.Time)                  {}
func (Noop) ObserveUpstreamRequest(string, time.Duration, error) {}
func (Noop) ObserveSnapshotSave(time.Duration)                   {}
func (Noop) IncRequestsTotal(string, int)                        {}
func (Noop) ObserveRequestDuration(string, time.Duration)        {}
func (Noop) AddDatasetRows(int, int)                             {}
