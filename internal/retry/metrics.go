package retry

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for retry loops.
type Metrics struct {
	attemptsTotal   *prometheus.CounterVec
	resultsTotal    *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	backoffDuration *prometheus.HistogramVec
	registry        *prometheus.Registry
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// GetMetrics returns the process-wide retry metrics.
func GetMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics("avakeys")
	})
	return defaultMetrics
}

// NewMetrics creates retry metrics on a private registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation", "attempt"},
		),
		resultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "results_total",
				Help:      "Total number of retried operations by final result",
			},
			[]string{"operation", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "duration_seconds",
				Help:      "Total duration of retried operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		),
		backoffDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retry",
				Name:      "backoff_duration_seconds",
				Help:      "Duration of backoff waits in seconds",
				Buckets:   []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		registry: registry,
	}

	registry.MustRegister(m.attemptsTotal, m.resultsTotal, m.duration, m.backoffDuration)
	return m
}

// Registry returns the registry holding the retry metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) recordAttempt(operation string, attempt int, backoff time.Duration) {
	m.attemptsTotal.WithLabelValues(operation, attemptLabel(attempt)).Inc()
	m.backoffDuration.WithLabelValues(operation).Observe(backoff.Seconds())
}

func (m *Metrics) recordResult(operation string, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.resultsTotal.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation, result).Observe(elapsed.Seconds())
}

// attemptLabel keeps label cardinality bounded.
func attemptLabel(attempt int) string {
	if attempt > 9 {
		return "10+"
	}
	return strconv.Itoa(attempt)
}
