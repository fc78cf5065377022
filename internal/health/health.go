package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vyrodovalexey/avakeys/internal/observability"
)

// DefaultTimeout bounds a single check when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// ErrDisabled is returned by a check whose dependency is not configured.
var ErrDisabled = errors.New("dependency disabled")

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the dependency is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the dependency is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates a non-critical dependency failed.
	StatusDegraded Status = "degraded"
	// StatusDisabled indicates the dependency is not configured.
	StatusDisabled Status = "disabled"
)

// Result is the outcome of a single check.
type Result struct {
	Status     Status  `json:"status"`
	Type       string  `json:"type"`
	Critical   bool    `json:"critical"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// Report aggregates every registered check.
type Report struct {
	Status    Status            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Checks    map[string]Result `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// Failed returns the names of failed checks in sorted order.
func (r Report) Failed() []string {
	var names []string
	for name, res := range r.Checks {
		if res.Status == StatusUnhealthy || res.Status == StatusDegraded {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Checker runs registered dependency checks.
type Checker struct {
	version string
	timeout time.Duration
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time

	mu     sync.RWMutex
	checks []*DependencyCheck
}

// Option is a functional option for the checker.
type Option func(*Checker)

// WithTimeout bounds each check.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChecker creates a new health checker.
func NewChecker(version string, opts ...Option) *Checker {
	c := &Checker{
		version: version,
		timeout: DefaultTimeout,
		logger:  observability.NopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics("avakeys")
	}
	return c
}

// Register adds a check. A check with the same name replaces the earlier one.
func (c *Checker) Register(check *DependencyCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.checks {
		if existing.name == check.name {
			c.checks[i] = check
			return
		}
	}
	c.checks = append(c.checks, check)
}

// Run executes every check concurrently and aggregates the results.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make([]*DependencyCheck, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check *DependencyCheck) {
			defer wg.Done()
			results[i] = c.runOne(ctx, check)
		}(i, check)
	}
	wg.Wait()

	report := Report{
		Status:    StatusHealthy,
		Version:   c.version,
		Checks:    make(map[string]Result, len(checks)),
		Timestamp: c.now().UTC(),
	}
	for i, check := range checks {
		res := results[i]
		report.Checks[check.name] = res
		switch {
		case res.Status == StatusUnhealthy:
			report.Status = StatusUnhealthy
		case res.Status == StatusDegraded && report.Status == StatusHealthy:
			report.Status = StatusDegraded
		}
	}
	return report
}

func (c *Checker) runOne(ctx context.Context, check *DependencyCheck) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := check.run(ctx)
	duration := time.Since(start)

	res := Result{
		Status:     StatusHealthy,
		Type:       string(check.depType),
		Critical:   check.critical,
		DurationMS: float64(duration.Microseconds()) / 1000,
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrDisabled):
		res.Status = StatusDisabled
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %v: %w", c.timeout, err)
		}
		res.Status = StatusUnhealthy
		if !check.critical {
			res.Status = StatusDegraded
		}
		res.Error = err.Error()
		c.logger.Warn("health check failed",
			observability.String("check", check.name),
			observability.Bool("critical", check.critical),
			observability.Error(err),
		)
	}

	c.metrics.RecordCheck(check.name, res.Status, duration)
	return res
}
