package pipeline

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/portfolio-agent/pkg/state"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates no entry was set before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent stage.
	ErrEntryNotFound = errors.New("entry point stage not found")

	// ErrStageNotFound indicates an edge or route references a non-existent stage.
	ErrStageNotFound = errors.New("stage not found")

	// ErrNoPathToEnd indicates no path exists from the entry point to END.
	ErrNoPathToEnd = errors.New("no path to END from entry")

	// ErrMultipleEdges indicates a stage has more than one unconditional edge.
	// Stages run sequentially, so fan-out is not supported.
	ErrMultipleEdges = errors.New("multiple unconditional edges")

	// ErrAmbiguousRouting indicates a stage has both an unconditional edge
	// and a decision function.
	ErrAmbiguousRouting = errors.New("stage has both an edge and a decision function")

	// ErrDeadEnd indicates a stage has no edge, decision function or route.
	ErrDeadEnd = errors.New("stage has no outgoing route")
)

// Sentinel errors for execution.
var (
	// ErrMaxIterations indicates the execution loop exceeded the configured limit.
	ErrMaxIterations = errors.New("exceeded maximum iterations")

	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidRouterResult indicates a decision function returned an empty string.
	ErrInvalidRouterResult = errors.New("decision returned empty string")

	// ErrUndeclaredTarget indicates a stage or decision function chose a
	// successor outside its declared targets.
	ErrUndeclaredTarget = errors.New("target not declared")

	// ErrNoRoute indicates a stage finished without any way to pick a successor.
	ErrNoRoute = errors.New("no route from stage")

	// ErrStageTimeout indicates a stage exceeded its time limit.
	ErrStageTimeout = errors.New("stage timed out")

	// ErrThreadIDRequired indicates checkpointing was enabled without a thread ID.
	ErrThreadIDRequired = errors.New("thread ID required for checkpointing")
)

// Sentinel errors for resume.
var (
	// ErrNoCheckpoints indicates no readable checkpoint exists for the thread.
	ErrNoCheckpoints = errors.New("no checkpoints found for thread")

	// ErrDeserializeState indicates a checkpoint payload is not a state snapshot.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrInvalidResumeStage indicates the checkpoint names a stage the graph lacks.
	ErrInvalidResumeStage = errors.New("invalid resume stage")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// StageID is the stage after which checkpointing failed.
	StageID string
	// Op is the operation that failed ("id", "put").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s after stage %s: %v", e.Op, e.StageID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// StageError wraps an error returned by a stage.
type StageError struct {
	// StageID is the identifier of the stage that failed.
	StageID string
	// Op is the operation that failed ("execute", "apply").
	Op string
	// Err is the underlying error from the stage.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.StageID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StageError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by a stage or decision function.
type PanicError struct {
	// StageID is the identifier of the stage that panicked.
	StageID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("stage %s panicked: %v", e.StageID, e.Value)
}

// CancellationError captures the state when execution was cancelled.
// Any update from the interrupted stage is discarded and no checkpoint is written.
type CancellationError struct {
	// StageID is the stage that was about to execute or was executing.
	StageID string
	// State is the state at cancellation.
	State *state.State
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
	// WasExecuting is true if cancellation occurred during stage execution.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during stage %s: %v", e.StageID, e.Cause)
	}
	return fmt.Sprintf("cancelled before stage %s: %v", e.StageID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RoutingError reports an invalid successor choice.
type RoutingError struct {
	// From is the stage whose successor was being chosen.
	From string
	// Returned is the successor that was chosen, if any.
	Returned string
	// Err is ErrUndeclaredTarget, ErrInvalidRouterResult or ErrNoRoute.
	Err error
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing from %s to %q: %v", e.From, e.Returned, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RoutingError) Unwrap() error {
	return e.Err
}

// MaxIterationsError provides context when the loop limit is exceeded.
type MaxIterationsError struct {
	// Max is the configured iteration limit.
	Max int
	// LastStageID is the stage that would have executed next.
	LastStageID string
	// State is the state at termination.
	State *state.State
}

// Error implements the error interface.
func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded maximum iterations (%d) at stage %s", e.Max, e.LastStageID)
}

// Unwrap returns ErrMaxIterations for errors.Is support.
func (e *MaxIterationsError) Unwrap() error {
	return ErrMaxIterations
}

// FailedStage returns the stage named by a pipeline error, or "".
func FailedStage(err error) string {
	var stageErr *StageError
	var panicErr *PanicError
	var routeErr *RoutingError
	var cancelErr *CancellationError
	var maxErr *MaxIterationsError
	var cpErr *CheckpointError
	switch {
	case errors.As(err, &stageErr):
		return stageErr.StageID
	case errors.As(err, &panicErr):
		return panicErr.StageID
	case errors.As(err, &routeErr):
		return routeErr.From
	case errors.As(err, &cancelErr):
		return cancelErr.StageID
	case errors.As(err, &maxErr):
		return maxErr.LastStageID
	case errors.As(err, &cpErr):
		return cpErr.StageID
	}
	return ""
}
