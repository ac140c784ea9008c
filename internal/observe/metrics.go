// Package observe provides application-wide observability primitives for
// Vani: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Vani metrics.
const meterName = "github.com/vanivoice/vani"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// SessionDuration tracks wall-clock session length. Use with attribute:
	//   attribute.String("outcome", "ended"|"errored")
	SessionDuration metric.Float64Histogram

	// AnalysisDuration tracks post-session analysis latency. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	AnalysisDuration metric.Float64Histogram

	// --- Counters ---

	// CapturedFrames counts microphone frames by gate decision. Use with
	// attribute:
	//   attribute.String("gate", "passed"|"suppressed")
	CapturedFrames metric.Int64Counter

	// PlaybackChunks counts audio chunks handed to the playback device.
	PlaybackChunks metric.Int64Counter

	// PlaybackUnderruns counts playback cursor resets caused by chunks
	// arriving after the previous one finished playing.
	PlaybackUnderruns metric.Int64Counter

	// Interrupts counts barge-in interruptions of agent speech.
	Interrupts metric.Int64Counter

	// WatchdogPrompts counts silence re-engagement prompts sent to the
	// model.
	WatchdogPrompts metric.Int64Counter

	// TransportEvents counts events received from the live provider. Use
	// with attribute:
	//   attribute.String("type", ...)
	TransportEvents metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// request-scale latencies such as analysis calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for
// session-scale durations.
var sessionBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 900, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SessionDuration, err = m.Float64Histogram("vani.session.duration",
		metric.WithDescription("Wall-clock session length by outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("vani.analysis.duration",
		metric.WithDescription("Latency of post-session analysis calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CapturedFrames, err = m.Int64Counter("vani.audio.captured_frames",
		metric.WithDescription("Total microphone frames by noise gate decision."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackChunks, err = m.Int64Counter("vani.audio.playback_chunks",
		metric.WithDescription("Total audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackUnderruns, err = m.Int64Counter("vani.audio.playback_underruns",
		metric.WithDescription("Total playback cursor resets due to late chunks."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("vani.session.interrupts",
		metric.WithDescription("Total barge-in interruptions of agent speech."),
	); err != nil {
		return nil, err
	}
	if met.WatchdogPrompts, err = m.Int64Counter("vani.session.watchdog_prompts",
		metric.WithDescription("Total silence re-engagement prompts."),
	); err != nil {
		return nil, err
	}
	if met.TransportEvents, err = m.Int64Counter("vani.transport.events",
		metric.WithDescription("Total live provider events by type."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("vani.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vani.http.request.duration",
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

// RecordFrame records one captured microphone frame and whether the noise
// gate passed it through.
func (m *Metrics) RecordFrame(ctx context.Context, passed bool) {
	gate := "suppressed"
	if passed {
		gate = "passed"
	}
	m.CapturedFrames.Add(ctx, 1,
		metric.WithAttributes(attribute.String("gate", gate)),
	)
}

// RecordPlayback records one scheduled audio chunk; contiguous is false when
// scheduling it required a cursor reset.
func (m *Metrics) RecordPlayback(ctx context.Context, contiguous bool) {
	m.PlaybackChunks.Add(ctx, 1)
	if !contiguous {
		m.PlaybackUnderruns.Add(ctx, 1)
	}
}

// RecordTransportEvent records one event received from the live provider.
func (m *Metrics) RecordTransportEvent(ctx context.Context, kind string) {
	m.TransportEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", kind)),
	)
}

// RecordSessionEnd records the final duration of a session alongside its
// outcome.
func (m *Metrics) RecordSessionEnd(ctx context.Context, outcome string, seconds float64) {
	m.SessionDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.ActiveSessions.Add(ctx, -1)
}

// RecordAnalysis records one analysis call.
func (m *Metrics) RecordAnalysis(ctx context.Context, provider, status string, seconds float64) {
	m.AnalysisDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}
