// Package observe provides the observability primitives for fnx:
// OpenTelemetry metrics, tracing, trace-aware structured logging, and HTTP
// middleware for the local status endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus via the exporter bridge set up by [InitProvider]. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all fnx metrics.
const meterName = "github.com/MrWong99/fnx"

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// --- Latency histograms ---

	// SessionDuration spans a dictation session from key release to the
	// final overlay state.
	SessionDuration metric.Float64Histogram

	// STTDuration tracks transcription latency.
	STTDuration metric.Float64Histogram

	// TransformDuration tracks rule-driven LLM rewrites.
	TransformDuration metric.Float64Histogram

	// InjectDuration tracks how long typing the result took.
	InjectDuration metric.Float64Histogram

	// --- Counters ---

	// Sessions counts finished sessions. Use with attribute:
	//   attribute.String("outcome", ...)
	Sessions metric.Int64Counter

	// Rejections counts policy rejections. Use with attribute:
	//   attribute.String("kind", ...)
	Rejections metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while a session is recording or processing.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks status endpoint latency. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets (seconds) cover everything from a local whisper run on a
// short clip to a slow remote rewrite.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.SessionDuration, "fnx.session.duration", "Duration of a dictation session after key release."},
		{&met.STTDuration, "fnx.stt.duration", "Latency of speech-to-text transcription."},
		{&met.TransformDuration, "fnx.transform.duration", "Latency of rule-driven text transforms."},
		{&met.InjectDuration, "fnx.inject.duration", "Time spent typing the result."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.Sessions, err = m.Int64Counter("fnx.sessions",
		metric.WithDescription("Finished dictation sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Rejections, err = m.Int64Counter("fnx.rejections",
		metric.WithDescription("Policy rejections by kind."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("fnx.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("fnx.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("fnx.active_sessions",
		metric.WithDescription("Sessions currently recording or processing."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("fnx.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Call it after [InitProvider] so
// the instruments bind to the exporting provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one provider call with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSession records a finished session and its duration.
func (m *Metrics) RecordSession(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Sessions.Add(ctx, 1, attrs)
	m.SessionDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordRejection records a policy rejection.
func (m *Metrics) RecordRejection(ctx context.Context, kind string) {
	m.Rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
