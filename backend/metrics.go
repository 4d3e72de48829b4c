package backend

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "riakdt"

// Metrics holds the prometheus collectors of an HTTPClient.
type Metrics struct {
	// RequestsTotal counts finished requests.
	// Labels: method, code (status code, or "error" for network failures)
	RequestsTotal *prometheus.CounterVec

	// RetriesTotal counts repeated attempts.
	// Labels: method
	RetriesTotal *prometheus.CounterVec

	// RequestDurationSeconds measures a request including its retries.
	// Labels: method
	RequestDurationSeconds *prometheus.HistogramVec

	// PendingRequests is the number of requests holding a pending slot.
	PendingRequests prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Requests sent to the store by method and status code.",
		}, []string{"method", "code"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Retried request attempts by method.",
		}, []string{"method"}),
		RequestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Request latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "backend",
			Name:      "pending_requests",
			Help:      "Requests currently in flight.",
		}),
	}
}

func (m *Metrics) observe(method string, status int, started time.Time) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(method, code).Inc()
	m.RequestDurationSeconds.WithLabelValues(method).Observe(time.Since(started).Seconds())
}
