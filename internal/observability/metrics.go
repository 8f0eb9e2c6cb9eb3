package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0,
}

// Metrics owns every instrument the service exposes, backed by its own
// registry so tests can build a fresh instance instead of sharing
// process-wide state.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestsInFlight *prometheus.GaugeVec
	ActiveRequests   prometheus.Gauge
	RequestDuration  *prometheus.HistogramVec
	RequestSize      *prometheus.HistogramVec
	ResponseSize     *prometheus.HistogramVec

	DBOperations        *prometheus.CounterVec
	DBOperationDuration *prometheus.HistogramVec

	LedgerWriteFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		RequestsInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_requests_inprogress",
			Help: "HTTP requests currently being processed",
		}, []string{"method", "endpoint"}),
		ActiveRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "inventory_active_requests",
			Help: "Number of active requests",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: durationBuckets,
		}, []string{"method", "endpoint", "status_code"}),
		RequestSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"method", "endpoint"}),
		ResponseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"method", "endpoint"}),
		DBOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_db_operations_total",
			Help: "Total number of database operations",
		}, []string{"operation", "collection", "status"}),
		DBOperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inventory_db_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: durationBuckets,
		}, []string{"operation", "collection"}),
		LedgerWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "inventory_ledger_write_failures_total",
			Help: "Stock movements that failed to append after a committed record write",
		}),
	}
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackDBOperation starts timing a store call. The returned func records the
// duration and outcome and must be called exactly once. Nil-safe so
// repositories can run without metrics in tests.
func (m *Metrics) TrackDBOperation(operation, collection string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.DBOperations.WithLabelValues(operation, collection, status).Inc()
		m.DBOperationDuration.WithLabelValues(operation, collection).Observe(time.Since(start).Seconds())
	}
}
