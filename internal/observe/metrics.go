// Package observe provides application-wide observability primitives for
// audxd: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all audx metrics.
const meterName = "github.com/audxlabs/audx-go"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// FrameDuration tracks per-frame processing latency (resample + engine).
	FrameDuration metric.Float64Histogram

	// VADProbability tracks the per-frame voice activity probability
	// distribution.
	VADProbability metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts frames that completed the full pipeline. Use
	// with attribute: attribute.String("engine", ...)
	FramesProcessed metric.Int64Counter

	// SpeechFrames counts processed frames classified as speech.
	SpeechFrames metric.Int64Counter

	// FrameErrors counts frames dropped by a processing failure. Use with
	// attribute: attribute.String("stage", ...)
	FrameErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of live denoising streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// frameBuckets defines histogram bucket boundaries (in seconds) sized for
// 10 ms frame processing: the interesting range is well under a frame time.
var frameBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// vadBuckets covers the probability range in even steps.
var vadBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FrameDuration, err = m.Float64Histogram("audx.frame.duration",
		metric.WithDescription("Per-frame processing latency including resampling."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VADProbability, err = m.Float64Histogram("audx.vad.probability",
		metric.WithDescription("Per-frame voice activity probability."),
		metric.WithExplicitBucketBoundaries(vadBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("audx.frames.processed",
		metric.WithDescription("Total frames that completed the pipeline, by engine."),
	); err != nil {
		return nil, err
	}
	if met.SpeechFrames, err = m.Int64Counter("audx.frames.speech",
		metric.WithDescription("Total processed frames classified as speech."),
	); err != nil {
		return nil, err
	}
	if met.FrameErrors, err = m.Int64Counter("audx.frames.errors",
		metric.WithDescription("Total frames dropped by a processing failure, by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("audx.active_streams",
		metric.WithDescription("Number of live denoising streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("audx.http.request.duration",
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

// RecordFrames records one delivery of processed frames: the frame and
// speech counters advance by the delivery's counts, while the probability
// and duration histograms sample the delivery's final frame. A delivery of
// zero frames records nothing.
func (m *Metrics) RecordFrames(ctx context.Context, engine string, frames, speech int64, vad float64, seconds float64) {
	if frames <= 0 {
		return
	}
	attrs := metric.WithAttributes(attribute.String("engine", engine))
	m.FramesProcessed.Add(ctx, frames, attrs)
	if speech > 0 {
		m.SpeechFrames.Add(ctx, speech, attrs)
	}
	m.VADProbability.Record(ctx, vad)
	m.FrameDuration.Record(ctx, seconds)
}

// RecordFrameError records a dropped frame with its failing stage.
func (m *Metrics) RecordFrameError(ctx context.Context, stage string) {
	m.FrameErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
