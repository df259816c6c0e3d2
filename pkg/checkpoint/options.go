package checkpoint

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/portfolio-agent/pkg/observability"
)

// storeConfig holds settings shared by every Store implementation.
type storeConfig struct {
	keys    Keys
	ttl     time.Duration
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	now     func() time.Time
}

func defaultStoreConfig() storeConfig {
	return storeConfig{
		keys:    NewKeys(DefaultPrefix),
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		now:     time.Now,
	}
}

func newStoreConfig(opts []Option) storeConfig {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c storeConfig) decoder() decoder {
	return decoder{logger: c.logger, metrics: c.metrics}
}

// Option configures a Store.
type Option func(*storeConfig)

// WithPrefix sets the key namespace. Default: "portfolio_agent".
func WithPrefix(prefix string) Option {
	return func(c *storeConfig) {
		c.keys = NewKeys(prefix)
	}
}

// WithTTL expires checkpoint and write values after d.
// The thread index never expires. Zero (the default) disables expiry.
func WithTTL(d time.Duration) Option {
	return func(c *storeConfig) {
		if d >= 0 {
			c.ttl = d
		}
	}
}

// WithLogger sets the logger used to report unreadable blobs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *storeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the recorder for checkpoint sizes and decode failures.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *storeConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock overrides the time source used for index scores, envelope
// timestamps and, for in-process stores, expiry.
func WithClock(now func() time.Time) Option {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}
