package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID of a status request back to the
// caller.
const CorrelationHeader = "X-Correlation-ID"

// Middleware instruments the status server. Scrapers poll often, so requests
// are logged at debug only.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &instrumented{next: next, metrics: m, prop: propagation.TraceContext{}}
	}
}

type instrumented struct {
	next    http.Handler
	metrics *Metrics
	prop    propagation.TraceContext
}

func (h *instrumented) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	began := time.Now()
	route := r.Method + " " + r.URL.Path

	// An incoming traceparent is continued rather than replaced.
	ctx := h.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, "HTTP "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method), semconv.URLPath(r.URL.Path)),
	)
	defer span.End()

	if id := CorrelationID(ctx); id != "" {
		w.Header().Set(CorrelationHeader, id)
	}
	h.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	sw := &statusWriter{ResponseWriter: w}
	h.next.ServeHTTP(sw, r.WithContext(ctx))

	elapsed := time.Since(began)
	code := sw.code()
	span.SetAttributes(semconv.HTTPResponseStatusCode(code))
	if h.metrics != nil {
		h.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("path", r.URL.Path),
			attribute.Int("status", code),
		))
	}
	Logger(ctx).LogAttrs(ctx, slog.LevelDebug, "status request",
		slog.String("route", route),
		slog.Int("status", code),
		slog.Int("bytes", sw.written),
		slog.Duration("elapsed", elapsed),
	)
}

// statusWriter remembers the response code and body size.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
