package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/fnx"

// Tracer returns the fnx tracer from the global provider.
func Tracer() trace.Tracer { return otel.Tracer(tracerName) }

// StartSpan starts a span named name. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// Fail records err on span and marks it as errored. A nil err is ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Stage is one timed step of a dictation session: a child span plus a
// latency sample.
type Stage struct {
	span    trace.Span
	latency metric.Float64Histogram
	start   time.Time
	ctx     context.Context
}

// StartStage opens a span called name and starts the clock. latency may be
// nil when the step has no histogram.
func StartStage(ctx context.Context, name string, latency metric.Float64Histogram) (context.Context, *Stage) {
	ctx, span := StartSpan(ctx, name)
	return ctx, &Stage{span: span, latency: latency, start: time.Now(), ctx: ctx}
}

// End records the elapsed time, marks the span failed when err is non-nil,
// ends the span and returns the elapsed time.
func (s *Stage) End(err error) time.Duration {
	d := time.Since(s.start)
	if s.latency != nil {
		s.latency.Record(context.WithoutCancel(s.ctx), d.Seconds())
	}
	Fail(s.span, err)
	s.span.End()
	return d
}

// CorrelationID is the trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger, tagged with trace_id and span_id when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
