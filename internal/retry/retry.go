package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry configuration constants.
const (
	// DefaultMaxRetries is the default maximum number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultInitialBackoff is the default initial backoff duration.
	DefaultInitialBackoff = 100 * time.Millisecond

	// DefaultMaxBackoff is the default maximum backoff duration.
	DefaultMaxBackoff = 5 * time.Second

	// DefaultJitterFactor is the default jitter factor (25%).
	DefaultJitterFactor = 0.25

	// MaxJitterFactor is the maximum allowed jitter factor.
	MaxJitterFactor = 1.0
)

// Config contains retry configuration parameters.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after the first call.
	MaxRetries int

	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// JitterFactor adds randomness (0.0 to 1.0) to each backoff.
	JitterFactor float64

	// NoBackoff retries immediately. Used where the retried call is not
	// contending for a remote resource, such as regenerating a credential.
	NoBackoff bool
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// GetMaxRetries returns the effective max retries.
func (c *Config) GetMaxRetries() int {
	if c == nil || c.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

// GetInitialBackoff returns the effective initial backoff.
func (c *Config) GetInitialBackoff() time.Duration {
	if c == nil || c.InitialBackoff <= 0 {
		return DefaultInitialBackoff
	}
	return c.InitialBackoff
}

// GetMaxBackoff returns the effective max backoff.
func (c *Config) GetMaxBackoff() time.Duration {
	if c == nil || c.MaxBackoff <= 0 {
		return DefaultMaxBackoff
	}
	return c.MaxBackoff
}

// GetJitterFactor returns the effective jitter factor.
func (c *Config) GetJitterFactor() float64 {
	if c == nil || c.JitterFactor <= 0 {
		return DefaultJitterFactor
	}
	if c.JitterFactor > MaxJitterFactor {
		return MaxJitterFactor
	}
	return c.JitterFactor
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// ShouldRetryFunc determines if an error should trigger a retry.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before each retry attempt.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Options contains optional retry behavior configuration.
type Options struct {
	// Operation labels the retry metrics. Metrics are skipped when empty.
	Operation string

	// ShouldRetry determines if an error should trigger a retry.
	// If nil, all errors are retried.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc
}

// Do executes a function with retry logic.
func Do(ctx context.Context, cfg *Config, fn RetryableFunc, opts *Options) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	operation := ""
	if opts != nil {
		operation = opts.Operation
	}

	start := time.Now()
	err := do(ctx, cfg, fn, opts, operation)
	if operation != "" {
		GetMetrics().recordResult(operation, err == nil, time.Since(start))
	}
	return err
}

func do(ctx context.Context, cfg *Config, fn RetryableFunc, opts *Options, operation string) error {
	maxRetries := cfg.GetMaxRetries()
	initialBackoff := cfg.GetInitialBackoff()
	maxBackoff := cfg.GetMaxBackoff()
	jitterFactor := cfg.GetJitterFactor()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if opts != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}

		if attempt == maxRetries {
			break
		}

		var backoff time.Duration
		if !cfg.NoBackoff {
			backoff = CalculateBackoff(attempt, initialBackoff, maxBackoff, jitterFactor)
		}

		if operation != "" {
			GetMetrics().recordAttempt(operation, attempt+1, backoff)
		}
		if opts != nil && opts.OnRetry != nil {
			opts.OnRetry(attempt+1, lastErr, backoff)
		}

		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}

// CalculateBackoff calculates the backoff duration for a given attempt.
func CalculateBackoff(attempt int, initialBackoff, maxBackoff time.Duration, jitterFactor float64) time.Duration {
	backoff := float64(initialBackoff) * math.Pow(2, float64(attempt))

	//nolint:gosec // G404: jitter for retry timing is not security-sensitive
	jitter := backoff * jitterFactor * rand.Float64()
	backoff += jitter

	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	return time.Duration(backoff)
}
