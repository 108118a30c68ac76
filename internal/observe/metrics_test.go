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

// sumValueWith returns the value of the data point whose attributes include
// key=value, or -1 when no such point exists.
func sumValueWith(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
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
		{"vocalith.pipeline.duration", m.PipelineDuration},
		{"vocalith.pass.duration", m.PassDuration},
		{"vocalith.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
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

func TestRecordPass_AddsPassAttribute(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPass(ctx, "classify", 0.01)
	m.RecordPass(ctx, "classify", 0.02)
	m.RecordPass(ctx, "optimize", 0.03)

	rm := collect(t, reader)
	met := findMetric(rm, "vocalith.pass.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}

	// Find the data point with pass=classify.
	for _, dp := range hist.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "pass" && kv.Value.AsString() == "classify" {
				if dp.Count != 2 {
					t.Errorf("sample count = %d, want 2", dp.Count)
				}
				return
			}
		}
	}
	t.Error("data point with pass=classify not found")
}

func TestRecordCacheLookup(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheLookup(ctx, "hit")
	m.RecordCacheLookup(ctx, "hit")
	m.RecordCacheLookup(ctx, "miss")

	rm := collect(t, reader)
	if got := sumValueWith(t, rm, "vocalith.cache.lookups", "status", "hit"); got != 2 {
		t.Errorf("hit count = %d, want 2", got)
	}
	if got := sumValueWith(t, rm, "vocalith.cache.lookups", "status", "miss"); got != 1 {
		t.Errorf("miss count = %d, want 1", got)
	}
}

func TestRecordSegments_ByStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSegments(ctx, "in", 10)
	m.RecordSegments(ctx, "out", 7)

	rm := collect(t, reader)
	if got := sumValueWith(t, rm, "vocalith.segments.processed", "stage", "in"); got != 10 {
		t.Errorf("stage=in count = %d, want 10", got)
	}
	if got := sumValueWith(t, rm, "vocalith.segments.processed", "stage", "out"); got != 7 {
		t.Errorf("stage=out count = %d, want 7", got)
	}
}

func TestRecordReshaped_ByAction(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordReshaped(ctx, "merged", 3)
	m.RecordReshaped(ctx, "split", 1)
	m.RecordReshaped(ctx, "deduped", 2)

	rm := collect(t, reader)
	if got := sumValueWith(t, rm, "vocalith.segments.reshaped", "action", "merged"); got != 3 {
		t.Errorf("action=merged count = %d, want 3", got)
	}
	if got := sumValueWith(t, rm, "vocalith.segments.reshaped", "action", "deduped"); got != 2 {
		t.Errorf("action=deduped count = %d, want 2", got)
	}
}

func TestRecordFlagged_ByReason(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFlagged(ctx, "overlap", 4)
	m.RecordFlagged(ctx, "quality", 1)

	rm := collect(t, reader)
	if got := sumValueWith(t, rm, "vocalith.segments.flagged", "reason", "overlap"); got != 4 {
		t.Errorf("reason=overlap count = %d, want 4", got)
	}
	if got := sumValueWith(t, rm, "vocalith.segments.flagged", "reason", "quality"); got != 1 {
		t.Errorf("reason=quality count = %d, want 1", got)
	}
}

func TestCounters_Plain(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.MalformedDropped.Add(ctx, 2)
	m.SegmentsSmoothed.Add(ctx, 5)

	rm := collect(t, reader)

	counters := []struct {
		name string
		want int64
	}{
		{"vocalith.segments.malformed_dropped", 2},
		{"vocalith.segments.smoothed", 5},
	}
	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("counter value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestActiveSources_UpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSources.Add(ctx, 3)
	m.ActiveSources.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "vocalith.active_sources")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 2 {
		t.Errorf("gauge value = %d, want 2", got)
	}
}

func TestAttr(t *testing.T) {
	kv := Attr("pass", "smooth")
	if kv != attribute.String("pass", "smooth") {
		t.Errorf("Attr = %v, want attribute.String", kv)
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
