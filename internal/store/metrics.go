package store

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/avakeys/internal/util"
)

// Metrics holds Prometheus metrics for store operations.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewMetrics creates store metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avakeys"
	}

	return &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of store operations by result",
			},
			[]string{"driver", "operation", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Store operation duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"driver", "operation"},
		),
	}
}

// MustRegister registers the metrics with the given registry.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(m.operationsTotal, m.operationDuration)
}

func (m *Metrics) observe(driver, op string, err error, elapsed time.Duration) {
	m.operationsTotal.WithLabelValues(driver, op, resultLabel(err)).Inc()
	m.operationDuration.WithLabelValues(driver, op).Observe(elapsed.Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, util.ErrNotFound):
		return "not_found"
	case errors.Is(err, util.ErrIntegrity):
		return "conflict"
	default:
		return "error"
	}
}
