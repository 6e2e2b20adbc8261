// Package observe provides application-wide observability primitives for
// Laudoscribe: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Laudoscribe metrics.
const meterName = "github.com/laudoscribe/laudoscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per dictation stage ---

	// TranscriptionDuration tracks the audio duration covered by each committed
	// transcript chunk, as reported by the STT provider.
	TranscriptionDuration metric.Float64Histogram

	// PipelineDuration tracks the text transformation pipeline latency per chunk.
	PipelineDuration metric.Float64Histogram

	// RestructureDuration tracks LLM report restructuring latency.
	RestructureDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksCommitted counts transcript chunks committed to report buffers.
	// Use with attribute: attribute.String("provider", ...)
	ChunksCommitted metric.Int64Counter

	// AutoTextInsertions counts auto-text insertions. Use with attribute:
	//   attribute.String("status", "hit"|"miss")
	AutoTextInsertions metric.Int64Counter

	// SanitizerRuns counts restructured-output sanitizations.
	SanitizerRuns metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live dictation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for dictation-pipeline latencies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("laudoscribe.transcription.duration",
		metric.WithDescription("Audio duration covered by each committed transcript chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("laudoscribe.pipeline.duration",
		metric.WithDescription("Latency of the per-chunk text transformation pipeline."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RestructureDuration, err = m.Float64Histogram("laudoscribe.restructure.duration",
		metric.WithDescription("Latency of LLM report restructuring."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksCommitted, err = m.Int64Counter("laudoscribe.chunks.committed",
		metric.WithDescription("Total transcript chunks committed to report buffers by provider."),
	); err != nil {
		return nil, err
	}
	if met.AutoTextInsertions, err = m.Int64Counter("laudoscribe.autotext.insertions",
		metric.WithDescription("Total auto-text insertion attempts by status (hit or miss)."),
	); err != nil {
		return nil, err
	}
	if met.SanitizerRuns, err = m.Int64Counter("laudoscribe.sanitizer.runs",
		metric.WithDescription("Total sanitizations of restructured report output."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("laudoscribe.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("laudoscribe.active_sessions",
		metric.WithDescription("Number of live dictation sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("laudoscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordChunkCommitted is a convenience method that records a committed
// transcript chunk for the given STT provider name.
func (m *Metrics) RecordChunkCommitted(ctx context.Context, provider string) {
	m.ChunksCommitted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordAutoTextInsertion is a convenience method that records an auto-text
// insertion attempt. hit is false for a soft miss.
func (m *Metrics) RecordAutoTextInsertion(ctx context.Context, hit bool) {
	status := "hit"
	if !hit {
		status = "miss"
	}
	m.AutoTextInsertions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
