// Package pipeline wires the attribution, triage, and optimization stages
// into the per-source processing engine.
//
// One [Engine.Process] call handles one source (video) start to finish:
//
//	raw segments → overlap split → classify (cache-assisted) → smooth
//	             → triage → optimize → final segment list
//
// Processing is synchronous and single-threaded per source — hysteresis state
// and merge decisions depend on chronological order — while independent
// sources run in parallel via [Engine.ProcessBatch]. The engine performs no
// I/O beyond a single embedding-cache lookup per source; a failing cache
// degrades to a miss, never to an aborted run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vocalith/vocalith/internal/attribution"
	"github.com/vocalith/vocalith/internal/observe"
	"github.com/vocalith/vocalith/internal/optimize"
	"github.com/vocalith/vocalith/internal/triage"
	"github.com/vocalith/vocalith/pkg/segment"
	"github.com/vocalith/vocalith/pkg/store"
)

// Config assembles the tuning parameters of every pipeline stage.
type Config struct {
	// Overlap configures overlap detection and sub-window splitting.
	Overlap attribution.OverlapConfig

	// SmoothingCeilingSeconds is the maximum duration of a label island the
	// temporal smoother may relabel.
	SmoothingCeilingSeconds float64

	// Triage holds the per-speaker ASR quality cutoffs.
	Triage triage.Config

	// Optimizer holds the segment optimizer's tuning knobs.
	Optimizer optimize.Config

	// CacheMaxAgeDays bounds embedding-cache validity. Non-positive values
	// apply [store.DefaultMaxAgeDays].
	CacheMaxAgeDays int
}

// DefaultConfig returns the tuned defaults for every stage.
func DefaultConfig() Config {
	return Config{
		Overlap:                 attribution.DefaultOverlapConfig(),
		SmoothingCeilingSeconds: 60,
		Triage:                  triage.DefaultConfig(),
		Optimizer:               optimize.DefaultConfig(),
		CacheMaxAgeDays:         store.DefaultMaxAgeDays,
	}
}

// Report carries the per-source counters of one [Engine.Process] run.
type Report struct {
	SourceID         string        `json:"sourceId"`
	SegmentsIn       int           `json:"segmentsIn"`
	MalformedDropped int           `json:"malformedDropped"`
	OverlapWindows   int           `json:"overlapWindows"`
	CacheHits        int           `json:"cacheHits"`
	Smoothed         int           `json:"smoothed"`
	QualityFlagged   int           `json:"qualityFlagged"`
	Merges           int           `json:"merges"`
	Splits           int           `json:"splits"`
	Deduped          int           `json:"deduped"`
	SegmentsOut      int           `json:"segmentsOut"`
	Elapsed          time.Duration `json:"elapsedNs"`
}

// Engine is the per-source processing engine. It is read-only after
// construction and safe for concurrent use — concurrent [Engine.Process]
// calls for different sources share no mutable state.
type Engine struct {
	cfg       Config
	optimizer *optimize.Optimizer
	cache     store.EmbeddingCache
	metrics   *observe.Metrics
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithCache attaches an embedding cache consulted once per source before
// classification. Without a cache every lookup is a miss.
func WithCache(c store.EmbeddingCache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New returns an Engine with the given stage configuration.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		optimizer: optimize.New(cfg.Optimizer),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Process runs the full pipeline for one source and returns the final
// time-ordered segment list plus a run report.
//
// The only fatal error is an invalid speaker profile (including a voice
// embedding whose dimensionality does not match the profile centroid) — it is
// detected before any segment is processed, since every similarity computed
// against a mismatched centroid would be meaningless. Malformed segments are
// dropped and counted; an unavailable cache degrades to a miss; zero input
// segments yield an empty output and no error.
func (e *Engine) Process(ctx context.Context, sourceID string, profile *attribution.Profile, raw []segment.RawSegment) ([]segment.OptimizedSegment, *Report, error) {
	started := time.Now()
	log := observe.Logger(ctx).With("source_id", sourceID)

	ctx, span := observe.StartSpan(ctx, "pipeline.process")
	defer span.End()

	e.metrics.ActiveSources.Add(ctx, 1)
	defer e.metrics.ActiveSources.Add(ctx, -1)

	if err := profile.Validate(); err != nil {
		return nil, nil, fmt.Errorf("pipeline: %w", err)
	}
	for _, s := range raw {
		if s.VoiceEmbedding == nil {
			continue
		}
		if err := profile.CheckDimension(len(s.VoiceEmbedding)); err != nil {
			return nil, nil, fmt.Errorf("pipeline: %w", err)
		}
	}

	report := &Report{SourceID: sourceID, SegmentsIn: len(raw)}
	e.metrics.RecordSegments(ctx, "in", len(raw))

	if len(raw) == 0 {
		report.Elapsed = time.Since(started)
		return []segment.OptimizedSegment{}, report, nil
	}

	// Drop malformed segments; a single bad segment must not abort the source.
	valid := make([]segment.RawSegment, 0, len(raw))
	for _, s := range raw {
		if err := s.Validate(); err != nil {
			log.Warn("dropping malformed segment", "err", err)
			report.MalformedDropped++
			continue
		}
		valid = append(valid, s)
	}
	if report.MalformedDropped > 0 {
		e.metrics.MalformedDropped.Add(ctx, int64(report.MalformedDropped))
	}

	// Overlap detection and sub-window splitting, before classification, so
	// hysteresis sees physically disjoint slices.
	passStart := time.Now()
	labeled := attribution.SplitOverlaps(valid, e.cfg.Overlap)
	e.metrics.RecordPass(ctx, "overlap", time.Since(passStart).Seconds())
	report.OverlapWindows = len(labeled) - len(valid)
	if report.OverlapWindows > 0 {
		e.metrics.RecordFlagged(ctx, "overlap", report.OverlapWindows)
	}

	// One blocking cache call per source, never per segment.
	report.CacheHits = e.applyCachedEmbeddings(ctx, sourceID, labeled, log)

	passStart = time.Now()
	attribution.NewClassifier(profile).Classify(labeled)
	e.metrics.RecordPass(ctx, "classify", time.Since(passStart).Seconds())

	passStart = time.Now()
	report.Smoothed = attribution.Smooth(labeled, e.cfg.SmoothingCeilingSeconds)
	e.metrics.RecordPass(ctx, "smooth", time.Since(passStart).Seconds())
	if report.Smoothed > 0 {
		e.metrics.SegmentsSmoothed.Add(ctx, int64(report.Smoothed))
	}

	passStart = time.Now()
	report.QualityFlagged = triage.Flag(labeled, e.cfg.Triage)
	e.metrics.RecordPass(ctx, "triage", time.Since(passStart).Seconds())
	if report.QualityFlagged > 0 {
		e.metrics.RecordFlagged(ctx, "quality", report.QualityFlagged)
	}

	passStart = time.Now()
	out, stats := e.optimizer.Optimize(labeled)
	e.metrics.RecordPass(ctx, "optimize", time.Since(passStart).Seconds())
	report.Merges = stats.Merges
	report.Splits = stats.Splits
	report.Deduped = stats.Deduped
	e.metrics.RecordReshaped(ctx, "merged", stats.Merges)
	e.metrics.RecordReshaped(ctx, "split", stats.Splits)
	e.metrics.RecordReshaped(ctx, "deduped", stats.Deduped)

	report.SegmentsOut = len(out)
	report.Elapsed = time.Since(started)
	e.metrics.RecordSegments(ctx, "out", len(out))
	e.metrics.PipelineDuration.Record(ctx, report.Elapsed.Seconds())

	log.Info("source processed",
		"segments_in", report.SegmentsIn,
		"segments_out", report.SegmentsOut,
		"malformed_dropped", report.MalformedDropped,
		"overlap_windows", report.OverlapWindows,
		"cache_hits", report.CacheHits,
		"smoothed", report.Smoothed,
		"quality_flagged", report.QualityFlagged,
		"merges", report.Merges,
		"splits", report.Splits,
		"deduped", report.Deduped,
		"elapsed", report.Elapsed,
	)
	return out, report, nil
}

// applyCachedEmbeddings fetches the source's cached voice embeddings in one
// call and fills them into segments that match by rounded time range.
// Cached vectors take precedence: an overlap sub-window inherits its parent's
// whole-span embedding at split time, and a per-window cached vector is
// strictly better. A failing cache is a miss, not an error.
func (e *Engine) applyCachedEmbeddings(ctx context.Context, sourceID string, segs []segment.LabeledSegment, log *slog.Logger) int {
	if e.cache == nil {
		e.metrics.RecordCacheLookup(ctx, "miss")
		return 0
	}
	cached, err := e.cache.GetCachedEmbeddings(ctx, sourceID, e.cfg.CacheMaxAgeDays)
	if err != nil {
		log.Warn("embedding cache unavailable, recomputing", "err", err)
		e.metrics.RecordCacheLookup(ctx, "error")
		return 0
	}
	if len(cached) == 0 {
		e.metrics.RecordCacheLookup(ctx, "miss")
		return 0
	}
	e.metrics.RecordCacheLookup(ctx, "hit")

	hits := 0
	for i := range segs {
		if vec, ok := cached[segment.Key(segs[i].Start, segs[i].End)]; ok {
			segs[i].VoiceEmbedding = vec
			hits++
		}
	}
	return hits
}
