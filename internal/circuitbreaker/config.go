// Package circuitbreaker guards calls to the credential store so that a
// failing database is rejected fast instead of stacking up timeouts.
package circuitbreaker

import (
	"time"
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// MinRequests is the number of requests in the current interval before
	// the failure ratio is evaluated.
	MinRequests int

	// FailureRatio opens the circuit once reached (0.0 to 1.0).
	FailureRatio float64

	// Interval is the cyclic period in the closed state after which the
	// counts are cleared.
	Interval time.Duration

	// Timeout is the duration the circuit stays open before half-open.
	Timeout time.Duration

	// HalfOpenMax is the maximum number of requests allowed in half-open state.
	HalfOpenMax int

	// IsSuccessful reports whether err counts as a success. Expected
	// outcomes such as not-found must not trip the breaker.
	IsSuccessful func(err error) bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		MinRequests:  5,
		FailureRatio: 0.5,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		HalfOpenMax:  1,
	}
}

// normalize replaces out-of-range values with defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.MinRequests < 1 {
		c.MinRequests = def.MinRequests
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = def.FailureRatio
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Timeout < time.Millisecond {
		c.Timeout = def.Timeout
	}
	if c.HalfOpenMax < 1 {
		c.HalfOpenMax = def.HalfOpenMax
	}
}

// WithMinRequests sets the minimum requests for ratio calculation.
func (c *Config) WithMinRequests(n int) *Config {
	c.MinRequests = n
	return c
}

// WithFailureRatio sets the failure ratio threshold.
func (c *Config) WithFailureRatio(ratio float64) *Config {
	c.FailureRatio = ratio
	return c
}

// WithTimeout sets the open-state duration.
func (c *Config) WithTimeout(d time.Duration) *Config {
	c.Timeout = d
	return c
}

// WithIsSuccessful sets the success check function.
func (c *Config) WithIsSuccessful(fn func(err error) bool) *Config {
	c.IsSuccessful = fn
	return c
}
