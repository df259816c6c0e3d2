package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/portfolio-agent/pkg/checkpoint"
	"github.com/randalmurphal/portfolio-agent/pkg/observability"
)

const (
	// DefaultMaxIterations is the default limit on stage executions per run.
	DefaultMaxIterations = 1000

	// MaxIterationsLimit is the highest value WithMaxIterations accepts.
	MaxIterationsLimit = 100000
)

// runConfig holds configuration for graph execution.
type runConfig struct {
	maxIterations int
	stageTimeout  time.Duration

	checkpointStore checkpoint.Store
	checkpointFatal bool
	runID           string

	logger         *slog.Logger
	metricsEnabled bool
	tracingEnabled bool
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		maxIterations:   DefaultMaxIterations,
		checkpointFatal: true,
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxIterations sets the maximum number of stage executions.
// Default: 1000
//
// Panics if n <= 0 or n > MaxIterationsLimit.
func WithMaxIterations(n int) RunOption {
	if n <= 0 {
		panic("pipeline: max iterations must be > 0")
	}
	if n > MaxIterationsLimit {
		panic(fmt.Sprintf("pipeline: max iterations exceeds limit (%d)", MaxIterationsLimit))
	}
	return func(c *runConfig) {
		c.maxIterations = n
	}
}

// WithStageTimeout bounds each stage. A stage that fails after its
// deadline passes is reported as ErrStageTimeout. Zero disables the bound.
func WithStageTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		c.stageTimeout = d
	}
}

// WithCheckpointing saves a checkpoint after every successful stage.
// The context must carry a thread ID.
func WithCheckpointing(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.checkpointStore = store
	}
}

// WithCheckpointFailureFatal controls whether a failed checkpoint save
// aborts the run. Default: true. When false the failure is logged and
// the run continues.
func WithCheckpointFailureFatal(fatal bool) RunOption {
	return func(c *runConfig) {
		c.checkpointFatal = fatal
	}
}

// WithRunID overrides the run identifier of the context.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithObservabilityLogger sets the logger used for run and stage
// lifecycle events. Defaults to the context logger.
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics for the run.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		c.metricsEnabled = enabled
	}
}

// WithTracing enables OpenTelemetry spans for the run and each stage.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
	}
}

func (c *runConfig) metrics() observability.MetricsRecorder {
	if c.metricsEnabled {
		return observability.NewMetricsRecorder()
	}
	return observability.NoopMetrics{}
}

func (c *runConfig) spans() observability.SpanManager {
	if c.tracingEnabled {
		return observability.NewSpanManager()
	}
	return observability.NoopSpanManager{}
}
