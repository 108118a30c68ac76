// Package store defines the storage contracts the Vocalith pipeline talks to:
// a voice-embedding cache consulted before classification, and a segment
// index that persists the pipeline's output for semantic search.
//
// The interfaces are public so that external packages can supply alternative
// backends (PostgreSQL/pgvector, in-memory, …) without depending on pipeline
// internals. Every implementation must be safe for concurrent use.
//
// The pipeline itself performs no I/O beyond a single cache lookup per
// source; indexing happens in the caller after the pipeline returns.
package store

import (
	"context"

	"github.com/vocalith/vocalith/pkg/segment"
)

// DefaultMaxAgeDays is the cache validity window applied when a caller passes
// a non-positive max age to [EmbeddingCache.GetCachedEmbeddings].
const DefaultMaxAgeDays = 30

// EmbeddingCache stores voice embeddings keyed by (source, time range) so
// repeated runs over the same source skip redundant extraction.
//
// Entries are append-only during a run. Staleness is judged per source, not
// per entry: a cache is valid only while the source's last-processed
// timestamp is within the max age.
type EmbeddingCache interface {
	// GetCachedEmbeddings returns every cached embedding for sourceID, keyed
	// by time range rounded to [segment.KeyPrecision] decimals. An expired or
	// missing cache returns an empty (possibly nil) map — never an error for
	// that case — forcing full re-extraction upstream.
	//
	// maxAgeDays <= 0 applies [DefaultMaxAgeDays].
	GetCachedEmbeddings(ctx context.Context, sourceID string, maxAgeDays int) (map[segment.TimeRange][]float32, error)

	// PutEmbedding records one extracted embedding. Existing entries for the
	// same key are left untouched (append-only semantics).
	PutEmbedding(ctx context.Context, sourceID string, rng segment.TimeRange, embedding []float32) error

	// TouchSource updates the source's last-processed timestamp to now,
	// renewing the validity window.
	TouchSource(ctx context.Context, sourceID string) error
}

// SegmentFilter scopes a [SegmentIndex.Search]. All non-zero fields are
// applied as AND conditions.
type SegmentFilter struct {
	// SourceID restricts results to a single source. Empty matches all.
	SourceID string

	// SpeakerLabel restricts results to one speaker class. Empty matches all.
	SpeakerLabel segment.SpeakerLabel

	// StartAfter filters out segments starting at or before this offset in
	// seconds. Zero disables the bound.
	StartAfter float64

	// EndBefore filters out segments ending at or after this offset in
	// seconds. Zero disables the bound.
	EndBefore float64

	// ExcludeRefinement drops segments still flagged for re-transcription.
	ExcludeRefinement bool
}

// SegmentResult is one search hit: the indexed segment, its source, and the
// cosine distance to the query embedding (lower is more similar).
type SegmentResult struct {
	SourceID string
	Segment  segment.OptimizedSegment
	Distance float64
}

// SegmentIndex persists optimized segments with their text embeddings and
// serves similarity search over them.
type SegmentIndex interface {
	// IndexSegment upserts one output segment for sourceID. A segment with
	// the same (source, start, end) is completely replaced.
	IndexSegment(ctx context.Context, sourceID string, seg segment.OptimizedSegment) error

	// Search returns the topK indexed segments closest (cosine distance) to
	// the query embedding, optionally scoped by filter, ordered most similar
	// first.
	Search(ctx context.Context, embedding []float32, topK int, filter SegmentFilter) ([]SegmentResult, error)
}
