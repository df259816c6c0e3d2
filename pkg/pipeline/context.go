package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/portfolio-agent/pkg/checkpoint"
)

// Context provides execution context to stages.
// It extends context.Context with pipeline services and metadata.
//
// Context is immutable after creation. The executor derives a context for
// each stage with StageID set and an enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with thread, run and
	// stage fields during execution. Never returns nil.
	Logger() *slog.Logger

	// Checkpointer returns the checkpoint store of the current run, or nil
	// when checkpointing is disabled.
	Checkpointer() checkpoint.Store

	// ThreadID returns the conversation thread this run belongs to.
	ThreadID() string

	// RunID returns the unique identifier for this execution run.
	// Auto-generated if not configured.
	RunID() string

	// StageID returns the stage being executed, or "" outside a stage.
	StageID() string
}

type executionContext struct {
	context.Context

	logger       *slog.Logger
	checkpointer checkpoint.Store
	threadID     string
	runID        string
	stageID      string
}

func (c *executionContext) Logger() *slog.Logger           { return c.logger }
func (c *executionContext) Checkpointer() checkpoint.Store { return c.checkpointer }
func (c *executionContext) ThreadID() string               { return c.threadID }
func (c *executionContext) RunID() string                  { return c.runID }
func (c *executionContext) StageID() string                { return c.stageID }

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithThreadID sets the conversation thread. Checkpoints are saved under it.
func WithThreadID(id string) ContextOption {
	return func(c *executionContext) {
		c.threadID = id
	}
}

// WithContextRunID sets the run identifier for the context.
// If not set, a UUID is generated. WithRunID as a RunOption takes precedence.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates an execution context from a standard context.
//
// Example:
//
//	ctx := pipeline.NewContext(context.Background(),
//	    pipeline.WithLogger(logger),
//	    pipeline.WithThreadID("thread-1"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// asExecutionContext copies ctx into the internal representation so the
// executor can derive per-stage contexts from any Context implementation.
func asExecutionContext(ctx Context) *executionContext {
	if ec, ok := ctx.(*executionContext); ok {
		cp := *ec
		return &cp
	}
	logger := ctx.Logger()
	if logger == nil {
		logger = slog.Default()
	}
	return &executionContext{
		Context:      ctx,
		logger:       logger,
		checkpointer: ctx.Checkpointer(),
		threadID:     ctx.ThreadID(),
		runID:        ctx.RunID(),
		stageID:      ctx.StageID(),
	}
}

func (c *executionContext) withContext(ctx context.Context) *executionContext {
	cp := *c
	cp.Context = ctx
	return &cp
}

// withStageID returns a new context for executing stageID.
func (c *executionContext) withStageID(stageID string) *executionContext {
	cp := *c
	cp.stageID = stageID
	cp.logger = c.logger.With("thread_id", c.threadID, "run_id", c.runID, "stage_id", stageID)
	return &cp
}

// RecordWrite saves payload as an auxiliary write of the current thread,
// keyed by run, stage and kind. It does nothing when the run has no
// checkpoint store.
func RecordWrite(ctx Context, kind string, payload any) error {
	store := ctx.Checkpointer()
	if store == nil {
		return nil
	}
	writeID := WriteID(ctx.RunID(), ctx.StageID(), kind)
	if err := store.PutWrites(ctx, ctx.ThreadID(), writeID, payload); err != nil {
		return fmt.Errorf("record %s write: %w", kind, err)
	}
	return nil
}

// WriteID returns the identifier RecordWrite uses for a write.
func WriteID(runID, stageID, kind string) string {
	return runID + ":" + stageID + ":" + kind
}
