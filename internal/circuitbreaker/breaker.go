package circuitbreaker

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avakeys/internal/observability"
)

var cbTracer = otel.Tracer("avakeys/circuitbreaker")

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker wraps gobreaker.CircuitBreaker.
type CircuitBreaker struct {
	cb      *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics *Metrics
}

// Option is a functional option for configuring the circuit breaker.
type Option func(*CircuitBreaker)

// WithLogger sets the logger for the circuit breaker.
func WithLogger(logger observability.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// WithMetrics sets the metrics for the circuit breaker.
func WithMetrics(metrics *Metrics) Option {
	return func(cb *CircuitBreaker) {
		cb.metrics = metrics
	}
}

// New creates a new circuit breaker.
func New(name string, cfg *Config, opts ...Option) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()

	cb := &CircuitBreaker{
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(cb)
	}

	minRequests := safeIntToUint32(cfg.MinRequests)
	failureRatio := cfg.FailureRatio

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: safeIntToUint32(cfg.HalfOpenMax),
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= failureRatio
		},
		IsSuccessful: cfg.IsSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cb.logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)

			if cb.metrics != nil {
				cb.metrics.recordStateChange(name, from, to)
			}

			_, span := cbTracer.Start(context.Background(),
				"circuitbreaker.state_change",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("circuitbreaker.name", name),
				attribute.String("circuitbreaker.from", from.String()),
				attribute.String("circuitbreaker.to", to.String()),
			))
			span.End()
		},
	}

	cb.cb = gobreaker.NewCircuitBreaker(settings)
	return cb
}

// Execute runs fn under breaker protection. A rejected call returns an error
// wrapping ErrCircuitOpen; otherwise fn's own error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := cb.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if cb.metrics != nil {
			cb.metrics.rejected.WithLabelValues(cb.cb.Name()).Inc()
		}
		return errors.Join(ErrCircuitOpen, err)
	}
	return err
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.cb.State()
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.cb.Name()
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
