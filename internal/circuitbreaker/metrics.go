package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// Metrics holds Prometheus metrics for circuit breakers.
type Metrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

// NewMetrics creates circuit breaker metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "transitions_total",
				Help:      "Total number of circuit breaker state changes",
			},
			[]string{"name", "from", "to"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "rejected_total",
				Help:      "Total number of calls rejected by an open circuit",
			},
			[]string{"name"},
		),
	}
}

// MustRegister registers all metrics with the given registry.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(m.state, m.transitions, m.rejected)
}

func (m *Metrics) recordStateChange(name string, from, to gobreaker.State) {
	m.transitions.WithLabelValues(name, from.String(), to.String()).Inc()
	m.state.WithLabelValues(name).Set(float64(to))
}
