package pipeline

import (
	"fmt"

	"github.com/randalmurphal/portfolio-agent/pkg/checkpoint"
	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// resumeConfig holds configuration for resume operations.
type resumeConfig struct {
	validate func(*state.State) error
	replay   bool
	runOpts  []RunOption
}

// ResumeOption configures resume behavior.
type ResumeOption func(*resumeConfig)

// WithStateValidation runs fn on the restored state before execution
// continues. A non-nil error aborts the resume.
func WithStateValidation(fn func(*state.State) error) ResumeOption {
	return func(c *resumeConfig) {
		c.validate = fn
	}
}

// WithReplay re-executes the stage that produced the checkpoint instead
// of starting from its successor.
func WithReplay() ResumeOption {
	return func(c *resumeConfig) {
		c.replay = true
	}
}

// WithRunOptions passes execution options to the resumed run.
func WithRunOptions(opts ...RunOption) ResumeOption {
	return func(c *resumeConfig) {
		c.runOpts = append(c.runOpts, opts...)
	}
}

// Resume continues the context's thread from its latest checkpoint.
// New checkpoints are written to the same store.
//
// If the latest checkpoint was taken after the final stage, the restored
// state is returned without executing anything.
//
// Example:
//
//	// Previous run crashed after "retriever"
//	ctx := pipeline.NewContext(context.Background(), pipeline.WithThreadID("t1"))
//	result, err := compiled.Resume(ctx, store)
func (cg *CompiledGraph) Resume(ctx Context, store checkpoint.Store, opts ...ResumeOption) (*state.State, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if ctx.ThreadID() == "" {
		return nil, ErrThreadIDRequired
	}

	tuple, ok, err := store.LatestCheckpoint(ctx, ctx.ThreadID())
	if err != nil {
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoints, ctx.ThreadID())
	}

	return cg.resumeTuple(ctx, store, tuple, opts)
}

// ResumeFrom continues the context's thread from a specific checkpoint.
func (cg *CompiledGraph) ResumeFrom(ctx Context, store checkpoint.Store, checkpointID string, opts ...ResumeOption) (*state.State, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if ctx.ThreadID() == "" {
		return nil, ErrThreadIDRequired
	}

	tuple, ok, err := store.GetTuple(ctx, ctx.ThreadID(), checkpointID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrNoCheckpoints, ctx.ThreadID(), checkpointID)
	}

	return cg.resumeTuple(ctx, store, tuple, opts)
}

func (cg *CompiledGraph) resumeTuple(ctx Context, store checkpoint.Store, tuple checkpoint.Tuple, opts []ResumeOption) (*state.State, error) {
	cfg := resumeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if v := metaInt(tuple.Metadata, MetaVersion); v != CheckpointVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrCheckpointVersionMismatch, v, CheckpointVersion)
	}

	s, err := state.FromSnapshot(tuple.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	if cfg.validate != nil {
		if err := cfg.validate(s); err != nil {
			return s, fmt.Errorf("state validation failed: %w", err)
		}
	}

	startKey := MetaNext
	if cfg.replay {
		startKey = MetaStage
	}
	start, _ := tuple.Metadata[startKey].(string)
	if start == END && !cfg.replay {
		return s, nil
	}
	if !cg.HasStage(start) {
		return s, fmt.Errorf("%w: %q", ErrInvalidResumeStage, start)
	}

	step := int(metaInt(tuple.Metadata, MetaStep))
	if cfg.replay && step > 0 {
		step--
	}

	runCfg := defaultRunConfig()
	for _, opt := range cfg.runOpts {
		opt(&runCfg)
	}
	runCfg.checkpointStore = store
	if runCfg.runID == "" {
		if runID, ok := tuple.Metadata[MetaRunID].(string); ok {
			runCfg.runID = runID
		}
	}

	return cg.execute(ctx, s, start, step, &runCfg)
}

// metaInt reads an integer metadata value. Numbers come back as int64 from
// the compact codec and as float64 from the fallback codec.
func metaInt(meta map[string]any, key string) int64 {
	switch v := meta[key].(type) {
	case int64:
		return v
	case uint64:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
