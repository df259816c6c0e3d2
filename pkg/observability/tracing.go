package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names. Stage spans are named stageSpanPrefix + stage id.
const (
	runSpanName     = "pipeline.run"
	stageSpanPrefix = "pipeline.stage."
)

// tracer resolves against the global provider on every Start, so a
// provider installed after package init is still honoured.
var tracer = otel.Tracer(instrumentationName)

// SpanManager opens and closes the spans of a run. The executor holds one
// per run: NewSpanManager when tracing is enabled, NoopSpanManager{}
// otherwise.
type SpanManager interface {
	StartRunSpan(ctx context.Context, threadID, runID string) (context.Context, trace.Span)
	// StartStageSpan opens a child of the run span carried by ctx.
	StartStageSpan(ctx context.Context, stageID string) (context.Context, trace.Span)
	EndSpanWithError(span trace.Span, err error)
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager backed by the global tracer
// provider (see otel.SetTracerProvider).
func NewSpanManager() SpanManager { return otelSpanManager{} }

func (otelSpanManager) StartRunSpan(ctx context.Context, threadID, runID string) (context.Context, trace.Span) {
	return StartRunSpan(ctx, threadID, runID)
}

func (otelSpanManager) StartStageSpan(ctx context.Context, stageID string) (context.Context, trace.Span) {
	return StartStageSpan(ctx, stageID)
}

func (otelSpanManager) EndSpanWithError(span trace.Span, err error) { EndSpanWithError(span, err) }

func (otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

func startInternal(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
}

// StartRunSpan opens the root span of a run.
func StartRunSpan(ctx context.Context, threadID, runID string) (context.Context, trace.Span) {
	return startInternal(ctx, runSpanName,
		attribute.String("thread.id", threadID),
		attribute.String("run.id", runID))
}

// StartStageSpan opens the span of one stage execution.
func StartStageSpan(ctx context.Context, stageID string) (context.Context, trace.Span) {
	return startInternal(ctx, stageSpanPrefix+stageID, attribute.String("stage.id", stageID))
}

// EndSpanWithError sets the span status from err and ends it. A nil span
// is ignored.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddSpanEvent records an event on the span in ctx if it is recording.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
