package health

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for dependency checks.
type Metrics struct {
	checksTotal   *prometheus.CounterVec
	checkStatus   *prometheus.GaugeVec
	checkDuration *prometheus.HistogramVec
	registry      *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avakeys"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Total number of dependency checks performed",
		},
		[]string{"check", "status"},
	)

	m.checkStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "check_status",
			Help:      "Current dependency check status (1=healthy, 0=unhealthy)",
		},
		[]string{"check"},
	)

	m.checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "check_duration_seconds",
			Help:      "Dependency check duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"check"},
	)

	m.registry.MustRegister(m.collectors()...)

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.checksTotal, m.checkStatus, m.checkDuration}
}

// RecordCheck records a check outcome. Disabled checks report healthy.
func (m *Metrics) RecordCheck(check string, status Status, duration time.Duration) {
	m.checksTotal.WithLabelValues(check, string(status)).Inc()
	m.checkDuration.WithLabelValues(check).Observe(duration.Seconds())

	value := 0.0
	if status == StatusHealthy || status == StatusDisabled {
		value = 1
	}
	m.checkStatus.WithLabelValues(check).Set(value)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry, ignoring
// collectors that are already registered.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}
