package byok

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names.
const (
	opStore  = "store"
	opRotate = "rotate"
	opGet    = "get"
	opDelete = "delete"
	opList   = "list"
)

// Operation results.
const (
	resultSuccess  = "success"
	resultNotFound = "not_found"
	resultRejected = "rejected"
	resultError    = "error"
)

// Cache lookup outcomes.
const (
	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheError = "error"
)

// Metrics holds Prometheus metrics for vendor secret operations.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	decryptFailures   prometheus.Counter
	registry          *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avakeys"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "byok",
			Name:      "operations_total",
			Help:      "Total number of vendor secret operations",
		},
		[]string{"operation", "result"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "byok",
			Name:      "operation_duration_seconds",
			Help:      "Vendor secret operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "byok",
			Name:      "cache_lookups_total",
			Help:      "Vendor secret cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	m.decryptFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "byok",
		Name:      "decrypt_failures_total",
		Help:      "Total number of vendor secrets that failed to decrypt",
	})

	m.registry.MustRegister(m.collectors()...)

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.cacheLookups,
		m.decryptFailures,
	}
}

// Init pre-initializes label combinations so series exist from startup.
func (m *Metrics) Init() {
	for _, op := range []string{opStore, opRotate, opGet, opDelete, opList} {
		m.operationDuration.WithLabelValues(op)
		for _, r := range []string{resultSuccess, resultNotFound, resultRejected, resultError} {
			m.operationsTotal.WithLabelValues(op, r)
		}
	}
	for _, o := range []string{cacheHit, cacheMiss, cacheError} {
		m.cacheLookups.WithLabelValues(o)
	}
}

// RecordOperation records an operation outcome.
func (m *Metrics) RecordOperation(operation, result string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache lookup outcome.
func (m *Metrics) RecordCacheLookup(outcome string) {
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// RecordDecryptFailure records a secret that failed to decrypt.
func (m *Metrics) RecordDecryptFailure() {
	m.decryptFailures.Inc()
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
