package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordStageExecution(ctx, "router", time.Second, errors.New("x"))
		m.RecordRun(ctx, true, time.Second)
		m.RecordCheckpoint(ctx, 10)
		m.RecordDecodeFailure(ctx, "PK")
	})
}

func TestNoopSpanManager(t *testing.T) {
	var sm SpanManager = NoopSpanManager{}
	ctx := context.Background()

	runCtx, runSpan := sm.StartRunSpan(ctx, "t", "r")
	assert.Equal(t, ctx, runCtx)
	assert.False(t, runSpan.IsRecording())

	stageCtx, stageSpan := sm.StartStageSpan(runCtx, "router")
	assert.Equal(t, ctx, stageCtx)
	assert.False(t, stageSpan.SpanContext().IsValid())

	assert.NotPanics(t, func() {
		sm.AddSpanEvent(ctx, "event")
		sm.EndSpanWithError(stageSpan, errors.New("x"))
	})
}
