package vault

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Vault client metrics.
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	authenticationTotal *prometheus.CounterVec
}

// NewMetrics creates Vault metrics with the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "requests_total",
				Help:      "Total number of Vault requests",
			},
			[]string{"operation", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "request_duration_seconds",
				Help:      "Duration of Vault requests in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		authenticationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "authentications_total",
				Help:      "Total number of Vault authentication attempts",
			},
			[]string{"method", "status"},
		),
	}
}

// MustRegister registers all Vault metrics with the given registerer.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.authenticationTotal)
}

// RecordRequest records a Vault request.
func (m *Metrics) RecordRequest(operation, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAuthentication records an authentication attempt.
func (m *Metrics) RecordAuthentication(method, status string) {
	m.authenticationTotal.WithLabelValues(method, status).Inc()
}
