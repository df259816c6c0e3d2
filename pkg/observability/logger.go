// Package observability provides structured logging helpers, metrics and
// tracing for pipeline runs and checkpoint stores.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with thread_id, run_id and stage_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "thread-1", "run-123", "router")
//	enriched.Info("classifying") // includes thread_id, run_id, stage_id
func EnrichLogger(logger *slog.Logger, threadID, runID, stageID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("run_id", runID),
		slog.String("stage_id", stageID),
	)
}

// LogRunStart logs the start of a pipeline run.
func LogRunStart(logger *slog.Logger, threadID, runID, entry string) {
	if logger == nil {
		return
	}
	logger.Info("pipeline run starting",
		slog.String("thread_id", threadID),
		slog.String("run_id", runID),
		slog.String("entry", entry),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, stageCount int) {
	if logger == nil {
		return
	}
	logger.Info("pipeline run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("stages_executed", stageCount),
	)
}

// LogRunError logs run failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastStage string) {
	if logger == nil {
		return
	}
	logger.Error("pipeline run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_stage", lastStage),
	)
}

// LogStageStart logs stage execution start.
func LogStageStart(logger *slog.Logger, stageID string) {
	if logger == nil {
		return
	}
	logger.Debug("stage starting",
		slog.String("stage_id", stageID),
	)
}

// LogStageComplete logs successful stage completion and the chosen successor.
func LogStageComplete(logger *slog.Logger, stageID, next string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("stage completed",
		slog.String("stage_id", stageID),
		slog.String("next", next),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStageError logs stage execution error.
func LogStageError(logger *slog.Logger, stageID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("stage failed",
		slog.String("stage_id", stageID),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, stageID, checkpointID string) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("stage_id", stageID),
		slog.String("checkpoint_id", checkpointID),
	)
}

// LogCheckpointError logs checkpoint failure.
func LogCheckpointError(logger *slog.Logger, stageID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("stage_id", stageID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogDecodeFailure logs a stored blob that could not be decoded.
// The blob is treated as absent by the caller.
func LogDecodeFailure(logger *slog.Logger, threadID, checkpointID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint decode failed",
		slog.String("thread_id", threadID),
		slog.String("checkpoint_id", checkpointID),
		slog.String("error", err.Error()),
	)
}

// LogDegraded logs a best-effort operation that failed and was replaced
// by a fallback value.
func LogDegraded(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("degraded",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
