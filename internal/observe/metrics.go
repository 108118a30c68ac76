// Package observe provides application-wide observability primitives for
// Vocalith: OpenTelemetry metrics, distributed tracing, and structured
// logging helpers.
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

// meterName is the instrumentation scope name used for all Vocalith metrics.
const meterName = "github.com/vocalith/vocalith"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// PipelineDuration tracks end-to-end per-source processing latency.
	PipelineDuration metric.Float64Histogram

	// PassDuration tracks individual pipeline pass latency. Use with attribute:
	//   attribute.String("pass", ...) — "overlap", "classify", "smooth", "triage", "optimize"
	PassDuration metric.Float64Histogram

	// --- Segment counters ---

	// SegmentsProcessed counts segments entering and leaving the pipeline.
	// Use with attribute: attribute.String("stage", "in"|"out")
	SegmentsProcessed metric.Int64Counter

	// SegmentsReshaped counts optimizer actions. Use with attribute:
	//   attribute.String("action", ...) — "merged", "split", "deduped"
	SegmentsReshaped metric.Int64Counter

	// SegmentsSmoothed counts temporal-smoother relabels.
	SegmentsSmoothed metric.Int64Counter

	// SegmentsFlagged counts segments marked for refinement. Use with attribute:
	//   attribute.String("reason", "overlap"|"quality")
	SegmentsFlagged metric.Int64Counter

	// MalformedDropped counts raw segments dropped at input validation.
	MalformedDropped metric.Int64Counter

	// --- Cache counters ---

	// CacheLookups counts embedding-cache lookups. Use with attribute:
	//   attribute.String("status", "hit"|"miss"|"error")
	CacheLookups metric.Int64Counter

	// HTTPRequestDuration tracks admin endpoint (/metrics, /healthz, /readyz)
	// request latency. Recorded by [Middleware].
	HTTPRequestDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveSources tracks the number of sources currently being processed.
	ActiveSources metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// in-memory batch processing of segment streams.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PipelineDuration, err = m.Float64Histogram("vocalith.pipeline.duration",
		metric.WithDescription("End-to-end per-source pipeline latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PassDuration, err = m.Float64Histogram("vocalith.pass.duration",
		metric.WithDescription("Latency of individual pipeline passes by pass name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsProcessed, err = m.Int64Counter("vocalith.segments.processed",
		metric.WithDescription("Segments entering and leaving the pipeline by stage."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsReshaped, err = m.Int64Counter("vocalith.segments.reshaped",
		metric.WithDescription("Optimizer actions by kind (merged, split, deduped)."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsSmoothed, err = m.Int64Counter("vocalith.segments.smoothed",
		metric.WithDescription("Segments relabelled by the temporal smoother."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsFlagged, err = m.Int64Counter("vocalith.segments.flagged",
		metric.WithDescription("Segments flagged for re-transcription by reason."),
	); err != nil {
		return nil, err
	}
	if met.MalformedDropped, err = m.Int64Counter("vocalith.segments.malformed_dropped",
		metric.WithDescription("Raw segments dropped at input validation."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("vocalith.cache.lookups",
		metric.WithDescription("Voice-embedding cache lookups by status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vocalith.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSources, err = m.Int64UpDownCounter("vocalith.active_sources",
		metric.WithDescription("Number of sources currently being processed."),
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

// RecordPass records one pipeline pass duration with the standard attribute.
func (m *Metrics) RecordPass(ctx context.Context, pass string, seconds float64) {
	m.PassDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("pass", pass)),
	)
}

// RecordCacheLookup records a cache lookup counter increment with the
// standard status attribute.
func (m *Metrics) RecordCacheLookup(ctx context.Context, status string) {
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSegments records a processed-segment counter increment for a stage
// ("in" or "out").
func (m *Metrics) RecordSegments(ctx context.Context, stage string, n int) {
	m.SegmentsProcessed.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordReshaped records an optimizer action counter increment.
func (m *Metrics) RecordReshaped(ctx context.Context, action string, n int) {
	m.SegmentsReshaped.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("action", action)),
	)
}

// RecordFlagged records a refinement-flag counter increment by reason.
func (m *Metrics) RecordFlagged(ctx context.Context, reason string, n int) {
	m.SegmentsFlagged.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
