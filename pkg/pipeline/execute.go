package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/portfolio-agent/pkg/observability"
	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// CheckpointVersion is stored in the metadata of every checkpoint the
// executor writes. Resume rejects checkpoints with another version.
const CheckpointVersion int64 = 1

// Checkpoint metadata keys.
const (
	MetaRunID   = "run_id"
	MetaStage   = "stage"
	MetaNext    = "next"
	MetaStep    = "step"
	MetaSource  = "source"
	MetaVersion = "version"
)

// CheckpointMetadata builds the metadata the executor stores alongside a
// state snapshot. source names what produced the checkpoint ("loop" for
// the executor).
func CheckpointMetadata(runID, stage, next string, step int, source string) map[string]any {
	return map[string]any{
		MetaRunID:   runID,
		MetaStage:   stage,
		MetaNext:    next,
		MetaStep:    int64(step),
		MetaSource:  source,
		MetaVersion: CheckpointVersion,
	}
}

// Run executes the graph from its entry point with the given initial state.
//
// On success, returns the state after the last stage executed before END.
// On error, returns the state at the point of failure. The caller's state
// is never modified.
//
// Execution flow:
//  1. Check for cancellation
//  2. Execute the current stage on a copy of the state
//  3. Apply the returned update
//  4. Resolve the next stage (Goto, edge, or decision function)
//  5. Save a checkpoint when checkpointing is enabled
//  6. Repeat until END is reached or an error occurs
//
// Example:
//
//	ctx := pipeline.NewContext(context.Background(), pipeline.WithThreadID("t1"))
//	result, err := compiled.Run(ctx, state.New(), pipeline.WithCheckpointing(store))
func (cg *CompiledGraph) Run(ctx Context, s *state.State, opts ...RunOption) (*state.State, error) {
	if ctx == nil {
		return s, ErrNilContext
	}
	if s == nil {
		s = state.New()
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return cg.execute(ctx, s.Clone(), cg.entryPoint, 0, &cfg)
}

// execute wraps the stage loop with run-level logging, metrics and tracing.
func (cg *CompiledGraph) execute(ctx Context, s *state.State, start string, step int, cfg *runConfig) (result *state.State, runErr error) {
	ec := asExecutionContext(ctx)
	if cfg.runID != "" {
		ec.runID = cfg.runID
	}
	if cfg.checkpointStore != nil {
		if ec.threadID == "" {
			return s, ErrThreadIDRequired
		}
		ec.checkpointer = cfg.checkpointStore
	}
	if cfg.logger == nil {
		cfg.logger = ec.logger
	}

	metrics := cfg.metrics()
	spans := cfg.spans()

	startTime := time.Now()
	observability.LogRunStart(cfg.logger, ec.threadID, ec.runID, start)

	runCtx, runSpan := spans.StartRunSpan(ec.Context, ec.threadID, ec.runID)
	defer func() {
		spans.EndSpanWithError(runSpan, runErr)
	}()
	ec = ec.withContext(runCtx)

	var stageCount int
	result, stageCount, runErr = cg.loop(ec, s, start, step, cfg, metrics, spans)

	duration := time.Since(startTime)
	durationMs := float64(duration.Milliseconds())
	metrics.RecordRun(runCtx, runErr == nil, duration)

	if runErr != nil {
		observability.LogRunError(cfg.logger, ec.runID, runErr, durationMs, FailedStage(runErr))
	} else {
		observability.LogRunComplete(cfg.logger, ec.runID, durationMs, stageCount)
	}

	return result, runErr
}

// loop runs stages from start until END. step is the number of stages
// already executed by earlier runs of this thread.
func (cg *CompiledGraph) loop(
	ec *executionContext,
	s *state.State,
	start string,
	step int,
	cfg *runConfig,
	metrics observability.MetricsRecorder,
	spans observability.SpanManager,
) (*state.State, int, error) {
	current := start
	iterations := 0
	stageCount := 0

	for current != END {
		iterations++
		if iterations > cfg.maxIterations {
			return s, stageCount, &MaxIterationsError{
				Max:         cfg.maxIterations,
				LastStageID: current,
				State:       s,
			}
		}

		if err := ec.Err(); err != nil {
			return s, stageCount, &CancellationError{
				StageID: current,
				State:   s,
				Cause:   err,
			}
		}

		observability.LogStageStart(cfg.logger, current)

		stageSpanCtx, stageSpan := spans.StartStageSpan(ec.Context, current)
		stageCtx := ec.withContext(stageSpanCtx).withStageID(current)

		stageStart := time.Now()
		cmd, err := cg.executeStage(stageCtx, current, s, cfg.stageTimeout)
		stageDuration := time.Since(stageStart)

		if cause := ec.Err(); cause != nil {
			err = &CancellationError{
				StageID:      current,
				State:        s,
				Cause:        cause,
				WasExecuting: true,
			}
		}

		var next string
		if err == nil {
			next, err = cg.advance(stageCtx, s, current, cmd)
		}

		metrics.RecordStageExecution(stageSpanCtx, current, stageDuration, err)
		spans.EndSpanWithError(stageSpan, err)

		if err != nil {
			observability.LogStageError(cfg.logger, current, err)
			return s, stageCount, err
		}
		observability.LogStageComplete(cfg.logger, current, next, float64(stageDuration.Milliseconds()))
		stageCount++
		step++

		if cfg.checkpointStore != nil {
			if err := cg.saveCheckpoint(stageCtx, cfg, spans, current, next, step, s); err != nil {
				return s, stageCount, err
			}
		}

		current = next
	}

	return s, stageCount, nil
}

// advance applies the stage's update to s and resolves the successor.
func (cg *CompiledGraph) advance(ctx *executionContext, s *state.State, current string, cmd Command) (string, error) {
	if err := s.Apply(cmd.Update); err != nil {
		return "", &StageError{StageID: current, Op: "apply", Err: err}
	}
	return cg.nextStage(ctx, s, current, cmd)
}

// executeStage runs a single stage on a copy of s with panic recovery and
// the optional stage timeout.
func (cg *CompiledGraph) executeStage(ctx *executionContext, stageID string, s *state.State, timeout time.Duration) (cmd Command, err error) {
	fn, exists := cg.stages[stageID]
	if !exists {
		return Command{}, &StageError{
			StageID: stageID,
			Op:      "lookup",
			Err:     fmt.Errorf("%w: %s", ErrStageNotFound, stageID),
		}
	}

	stageCtx := ctx
	if timeout > 0 {
		timeoutCtx, cancel := context.WithTimeout(ctx.Context, timeout)
		defer cancel()
		stageCtx = ctx.withContext(timeoutCtx)
	}

	defer func() {
		if r := recover(); r != nil {
			cmd = Command{}
			err = &PanicError{
				StageID: stageID,
				Value:   r,
				Stack:   string(debug.Stack()),
			}
		}
	}()

	cmd, err = fn(stageCtx, s.Clone())
	if err != nil {
		if timeout > 0 && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", ErrStageTimeout, timeout, err)
		}
		return Command{}, &StageError{
			StageID: stageID,
			Op:      "execute",
			Err:     err,
		}
	}

	return cmd, nil
}

// saveCheckpoint persists a snapshot of s after stageID completed.
func (cg *CompiledGraph) saveCheckpoint(
	ctx *executionContext,
	cfg *runConfig,
	spans observability.SpanManager,
	stageID, next string,
	step int,
	s *state.State,
) error {
	id, err := uuid.NewV7()
	if err == nil {
		meta := CheckpointMetadata(ctx.runID, stageID, next, step, "loop")
		err = cfg.checkpointStore.Put(ctx, ctx.threadID, id.String(), s.Snapshot(), meta)
	}
	if err != nil {
		if cfg.checkpointFatal {
			return &CheckpointError{StageID: stageID, Op: "put", Err: err}
		}
		observability.LogCheckpointError(cfg.logger, stageID, "put", err)
		return nil
	}

	observability.LogCheckpoint(cfg.logger, stageID, id.String())
	spans.AddSpanEvent(ctx, "checkpoint.saved", attribute.String("checkpoint.id", id.String()))
	return nil
}
