package errors

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig describes an exponential backoff policy.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts int

	InitialBackoff time.Duration
	// MaxBackoff caps a single pause. Zero means no cap.
	MaxBackoff    time.Duration
	BackoffFactor float64

	// Jitter spreads each pause by up to +/- Jitter of its length (0.0-1.0).
	Jitter float64

	// RetryableFunc replaces IsRetryable when set.
	RetryableFunc func(error) bool
}

// DefaultRetry is the policy for model, embedding and tool API calls.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry makes exactly one call.
var NoRetry = RetryConfig{MaxAttempts: 1}

// RetryResult is the outcome of WithRetryContext.
type RetryResult[T any] struct {
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

// pause returns the wait before attempt n+1, counting from zero, without
// jitter.
func (c RetryConfig) pause(n int) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := time.Duration(float64(c.InitialBackoff) * math.Pow(factor, float64(n)))
	if c.MaxBackoff > 0 && (d > c.MaxBackoff || d < 0) {
		d = c.MaxBackoff
	}
	return d
}

func (c RetryConfig) retryable(err error) bool {
	if c.RetryableFunc != nil {
		return c.RetryableFunc(err)
	}
	return IsRetryable(err)
}

// WithRetryContext calls fn until it succeeds, fails with an error that
// is not retryable, runs out of attempts, or ctx is done. On failure Err
// is always a *CategorizedError wrapping the last error.
func WithRetryContext[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	start := time.Now()
	limit := max(cfg.MaxAttempts, 1)
	res := RetryResult[T]{}

	failed := func(err error, cat Category, op string) RetryResult[T] {
		res.Err = &CategorizedError{Err: err, Category: cat, Attempts: res.Attempts, Op: op}
		res.Duration = time.Since(start)
		return res
	}

	for {
		if err := ctx.Err(); err != nil {
			return failed(err, CategoryPermanent, "context cancelled")
		}

		res.Attempts++
		v, err := fn(ctx)
		if err == nil {
			res.Value = v
			res.Duration = time.Since(start)
			return res
		}
		if !cfg.retryable(err) {
			return failed(err, Categorize(err), "")
		}
		if res.Attempts >= limit {
			return failed(err, Categorize(err), "max retries exceeded")
		}

		timer := time.NewTimer(calculateBackoff(cfg.pause(res.Attempts-1), cfg.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return failed(ctx.Err(), CategoryPermanent, "context cancelled during backoff")
		case <-timer.C:
		}
	}
}

// Do retries fn like WithRetryContext and returns only the error.
func Do(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	return WithRetryContext(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}).Err
}

// calculateBackoff spreads base uniformly over base*(1 +/- jitter).
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	spread := (rand.Float64()*2 - 1) * jitter
	return time.Duration(float64(base) * (1 + spread))
}

// RetryOption adjusts a RetryConfig built by NewRetryConfig.
type RetryOption func(*RetryConfig)

// NewRetryConfig starts from DefaultRetry and applies opts.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryConfig) { c.MaxAttempts = n }
}

func WithInitialBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.InitialBackoff = d }
}

func WithMaxBackoff(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.MaxBackoff = d }
}

func WithJitter(j float64) RetryOption {
	return func(c *RetryConfig) { c.Jitter = j }
}

func WithRetryableFunc(fn func(error) bool) RetryOption {
	return func(c *RetryConfig) { c.RetryableFunc = fn }
}
