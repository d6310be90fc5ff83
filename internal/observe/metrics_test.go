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

// counterValue finds the int64 sum data point whose attribute key equals
// value and returns its count, or -1 when absent.
func counterValue(met *metricdata.Metrics, key, value string) int64 {
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		return -1
	}
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
		{"captrail.tick.duration", m.TickDuration},
		{"captrail.summarize.duration", m.SummarizeDuration},
		{"captrail.sink.duration", m.SinkDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.002)
		tc.h.Record(ctx, 1.5)
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

func TestFragmentCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFragment(ctx, "caption")
	m.RecordFragment(ctx, "caption")
	m.RecordFragment(ctx, "chrome")

	rm := collect(t, reader)
	met := findMetric(rm, "captrail.fragments")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := counterValue(met, "verdict", "caption"); got != 2 {
		t.Errorf("verdict=caption count = %d, want 2", got)
	}
	if got := counterValue(met, "verdict", "chrome"); got != 1 {
		t.Errorf("verdict=chrome count = %d, want 1", got)
	}
}

func TestFinalizedCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFinalized(ctx, "snapshot", 3)
	m.RecordFinalized(ctx, "stop", 1)
	m.RecordFinalized(ctx, "sweep", 0) // no-op

	rm := collect(t, reader)
	met := findMetric(rm, "captrail.utterances.finalized")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := counterValue(met, "trigger", "snapshot"); got != 3 {
		t.Errorf("trigger=snapshot count = %d, want 3", got)
	}
	if got := counterValue(met, "trigger", "sweep"); got != -1 {
		t.Errorf("trigger=sweep recorded despite zero count (got %d)", got)
	}
}

func TestAppendAndChunkCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAppend(ctx, "appended")
	m.RecordAppend(ctx, "amended")
	m.RecordAppend(ctx, "amended")
	m.RecordChunk(ctx, "ok")
	m.RecordChunk(ctx, "error")

	rm := collect(t, reader)

	appends := findMetric(rm, "captrail.transcript.appends")
	if appends == nil {
		t.Fatal("appends metric not found")
	}
	if got := counterValue(appends, "outcome", "amended"); got != 2 {
		t.Errorf("outcome=amended count = %d, want 2", got)
	}

	chunks := findMetric(rm, "captrail.chunks")
	if chunks == nil {
		t.Fatal("chunks metric not found")
	}
	if got := counterValue(chunks, "status", "ok"); got != 1 {
		t.Errorf("status=ok count = %d, want 1", got)
	}
}

func TestProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "deepseek", "llm", "ok")
	m.RecordProviderRequest(ctx, "deepseek", "llm", "ok")
	m.RecordProviderError(ctx, "deepseek", "llm")

	rm := collect(t, reader)

	reqs := findMetric(rm, "captrail.provider.requests")
	if reqs == nil {
		t.Fatal("requests metric not found")
	}
	if got := counterValue(reqs, "status", "ok"); got != 2 {
		t.Errorf("status=ok count = %d, want 2", got)
	}

	errs := findMetric(rm, "captrail.provider.errors")
	if errs == nil {
		t.Fatal("errors metric not found")
	}
	sum, ok := errs.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("errors metric has no data points")
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("error count = %d, want 1", sum.DataPoints[0].Value)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "captrail.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("metric has no data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("gauge value = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "POST"),
			attribute.String("path", "/v1/sessions"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "captrail.http.request.duration")
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
