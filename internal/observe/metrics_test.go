package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue returns the value of the data point whose attribute key equals
// value, or -1 when absent.
func counterValue(sum metricdata.Sum[int64], key, value string) int64 {
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"vani.session.duration", m.SessionDuration},
		{"vani.analysis.duration", m.AnalysisDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 4.56)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, true)
	m.RecordFrame(ctx, true)
	m.RecordFrame(ctx, false)

	rm := collect(t, reader)
	met := findMetric(rm, "vani.audio.captured_frames")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := counterValue(sum, "gate", "passed"); got != 2 {
		t.Errorf("passed frames = %d, want 2", got)
	}
	if got := counterValue(sum, "gate", "suppressed"); got != 1 {
		t.Errorf("suppressed frames = %d, want 1", got)
	}
}

func TestRecordPlayback(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPlayback(ctx, true)
	m.RecordPlayback(ctx, true)
	m.RecordPlayback(ctx, false)

	rm := collect(t, reader)

	chunks := findMetric(rm, "vani.audio.playback_chunks")
	if chunks == nil {
		t.Fatal("playback_chunks metric not found")
	}
	if sum, ok := chunks.Data.(metricdata.Sum[int64]); !ok || sum.DataPoints[0].Value != 3 {
		t.Errorf("playback_chunks = %+v, want sum 3", chunks.Data)
	}

	underruns := findMetric(rm, "vani.audio.playback_underruns")
	if underruns == nil {
		t.Fatal("playback_underruns metric not found")
	}
	if sum, ok := underruns.Data.(metricdata.Sum[int64]); !ok || sum.DataPoints[0].Value != 1 {
		t.Errorf("playback_underruns = %+v, want sum 1", underruns.Data)
	}
}

func TestRecordTransportEvent(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransportEvent(ctx, "audio_delta")
	m.RecordTransportEvent(ctx, "audio_delta")
	m.RecordTransportEvent(ctx, "interrupted")

	rm := collect(t, reader)
	met := findMetric(rm, "vani.transport.events")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := counterValue(sum, "type", "audio_delta"); got != 2 {
		t.Errorf("audio_delta events = %d, want 2", got)
	}
	if got := counterValue(sum, "type", "interrupted"); got != 1 {
		t.Errorf("interrupted events = %d, want 1", got)
	}
}

func TestRecordSessionEnd(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 2)
	m.RecordSessionEnd(ctx, "ended", 42.5)

	rm := collect(t, reader)

	met := findMetric(rm, "vani.session.duration")
	if met == nil {
		t.Fatal("session.duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("session.duration = %+v, want histogram data", met.Data)
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("sample count = %d, want 1", hist.DataPoints[0].Count)
	}

	active := findMetric(rm, "vani.active_sessions")
	if active == nil {
		t.Fatal("active_sessions metric not found")
	}
	if sum, ok := active.Data.(metricdata.Sum[int64]); !ok || sum.DataPoints[0].Value != 1 {
		t.Errorf("active_sessions = %+v, want sum 1 after end", active.Data)
	}
}

func TestCountersIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Interrupts.Add(ctx, 1)
	m.WatchdogPrompts.Add(ctx, 1)
	m.WatchdogPrompts.Add(ctx, 1)

	rm := collect(t, reader)

	counters := []struct {
		name string
		want int64
	}{
		{"vani.session.interrupts", 1},
		{"vani.session.watchdog_prompts", 2},
	}
	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q = %+v, want sum data", tc.name, met.Data)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("counter value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRecordAnalysis(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAnalysis(ctx, "openai", "ok", 1.2)

	rm := collect(t, reader)
	met := findMetric(rm, "vani.analysis.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatal("no histogram data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "vani.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
