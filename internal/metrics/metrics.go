package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks gateway request processing.
//
// Metrics:
//   - visionrelay_requests_total: requests by terminal stage
//   - visionrelay_request_duration_seconds: full request duration histogram
//   - visionrelay_rate_limited_total: admission denials
//   - visionrelay_backend_failures_total: transport failures by kind
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	rateLimited     prometheus.Counter
	backendFailures *prometheus.CounterVec
}

// New creates and registers gateway metrics with the provided registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "visionrelay",
				Name:      "requests_total",
				Help:      "Total number of detection requests by terminal stage",
			},
			[]string{"stage"},
		),
		requestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "visionrelay",
				Name:      "request_duration_seconds",
				Help:      "Duration of detection requests in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "visionrelay",
				Name:      "rate_limited_total",
				Help:      "Total number of requests denied by the rate limiter",
			},
		),
		backendFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "visionrelay",
				Name:      "backend_failures_total",
				Help:      "Total number of backend transport failures by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.rateLimited, m.backendFailures)
	return m
}

// ObserveRequest records a finished request with its terminal stage.
func (m *Metrics) ObserveRequest(stage string, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(stage).Inc()
	m.requestDuration.Observe(elapsed.Seconds())
}

// ObserveRateLimited records an admission denial.
func (m *Metrics) ObserveRateLimited() {
	m.rateLimited.Inc()
}

// ObserveBackendFailure records a transport failure by kind.
func (m *Metrics) ObserveBackendFailure(kind string) {
	m.backendFailures.WithLabelValues(kind).Inc()
}
