package credential

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Validation results.
const (
	resultValid   = "valid"
	resultInvalid = "invalid"
	resultError   = "error"
)

// Cache lookup outcomes.
const (
	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheError = "error"
)

// Metrics holds Prometheus metrics for credential operations.
type Metrics struct {
	validationTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	cacheLookups       *prometheus.CounterVec
	touchFailures      prometheus.Counter
	issuedTotal        prometheus.Counter
	revokedTotal       prometheus.Counter
	evictionFailures   prometheus.Counter
	registry           *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avakeys"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.validationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "validation_total",
			Help:      "Total number of credential validation attempts",
		},
		[]string{"result"},
	)

	m.validationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "validation_duration_seconds",
			Help:      "Credential validation duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"result"},
	)

	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "cache_lookups_total",
			Help:      "Credential cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	m.touchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credential",
		Name:      "touch_failures_total",
		Help:      "Total number of failed last-used updates",
	})

	m.issuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credential",
		Name:      "issued_total",
		Help:      "Total number of credentials issued",
	})

	m.revokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credential",
		Name:      "revoked_total",
		Help:      "Total number of credentials revoked",
	})

	m.evictionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "credential",
		Name:      "eviction_failures_total",
		Help:      "Total number of failed cache evictions after revocation",
	})

	m.registry.MustRegister(m.collectors()...)

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.validationTotal,
		m.validationDuration,
		m.cacheLookups,
		m.touchFailures,
		m.issuedTotal,
		m.revokedTotal,
		m.evictionFailures,
	}
}

// Init pre-initializes label combinations so series exist from startup.
func (m *Metrics) Init() {
	for _, r := range []string{resultValid, resultInvalid, resultError} {
		m.validationTotal.WithLabelValues(r)
		m.validationDuration.WithLabelValues(r)
	}
	for _, o := range []string{cacheHit, cacheMiss, cacheError} {
		m.cacheLookups.WithLabelValues(o)
	}
}

// RecordValidation records a validation outcome.
func (m *Metrics) RecordValidation(result string, duration time.Duration) {
	m.validationTotal.WithLabelValues(result).Inc()
	m.validationDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache lookup outcome.
func (m *Metrics) RecordCacheLookup(outcome string) {
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// RecordTouchFailure records a failed last-used update.
func (m *Metrics) RecordTouchFailure() {
	m.touchFailures.Inc()
}

// RecordIssued records an issued credential.
func (m *Metrics) RecordIssued() {
	m.issuedTotal.Inc()
}

// RecordRevoked records a revoked credential.
func (m *Metrics) RecordRevoked() {
	m.revokedTotal.Inc()
}

// RecordEvictionFailure records a failed tenant cache eviction.
func (m *Metrics) RecordEvictionFailure() {
	m.evictionFailures.Inc()
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
			if !isAlreadyRegistered(err) {
				panic(err)
			}
		}
	}
}

func isAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}
