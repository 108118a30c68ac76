package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/vocalith/vocalith/pkg/segment"
	"github.com/vocalith/vocalith/pkg/store"
)

// IndexSegment implements [store.SegmentIndex]. It upserts one optimized
// segment into the segments table; a row with the same (source, start, end)
// is completely replaced.
func (s *Store) IndexSegment(ctx context.Context, sourceID string, seg segment.OptimizedSegment) error {
	const q = `
		INSERT INTO segments
		    (source_id, start_s, end_s, speaker_label, speaker_confidence,
		     text, embedding, is_overlap, needs_refinement, merge_quality, original_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source_id, start_s, end_s) DO UPDATE SET
		    speaker_label      = EXCLUDED.speaker_label,
		    speaker_confidence = EXCLUDED.speaker_confidence,
		    text               = EXCLUDED.text,
		    embedding          = EXCLUDED.embedding,
		    is_overlap         = EXCLUDED.is_overlap,
		    needs_refinement   = EXCLUDED.needs_refinement,
		    merge_quality      = EXCLUDED.merge_quality,
		    original_count     = EXCLUDED.original_count,
		    indexed_at         = now()`

	var vec *pgvector.Vector
	if seg.TextEmbedding != nil {
		v := pgvector.NewVector(seg.TextEmbedding)
		vec = &v
	}
	_, err := s.pool.Exec(ctx, q,
		sourceID,
		seg.Start,
		seg.End,
		string(seg.SpeakerLabel),
		seg.SpeakerConfidence,
		seg.Text,
		vec,
		seg.IsOverlap,
		seg.NeedsRefinement,
		string(seg.MergeQuality),
		seg.OriginalCount,
	)
	if err != nil {
		return fmt.Errorf("segment index: index segment: %w", err)
	}
	return nil
}

// Search implements [store.SegmentIndex]. It finds the topK indexed segments
// whose text embeddings are closest (cosine distance) to the query embedding,
// optionally scoped by filter.
//
// Results are ordered by ascending cosine distance (most similar first).
// Segments indexed without a text embedding never match.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter store.SegmentFilter) ([]store.SegmentResult, error) {
	queryVec := pgvector.NewVector(embedding)

	args := []any{queryVec} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"embedding IS NOT NULL"}
	if filter.SourceID != "" {
		conditions = append(conditions, "source_id = "+next(filter.SourceID))
	}
	if filter.SpeakerLabel != "" {
		conditions = append(conditions, "speaker_label = "+next(string(filter.SpeakerLabel)))
	}
	if filter.StartAfter != 0 {
		conditions = append(conditions, "start_s > "+next(filter.StartAfter))
	}
	if filter.EndBefore != 0 {
		conditions = append(conditions, "end_s < "+next(filter.EndBefore))
	}
	if filter.ExcludeRefinement {
		conditions = append(conditions, "NOT needs_refinement")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT source_id, start_s, end_s, speaker_label, speaker_confidence,
		       text, embedding, is_overlap, needs_refinement, merge_quality, original_count,
		       embedding <=> $1 AS distance
		FROM   segments
		WHERE  %s
		ORDER  BY distance
		LIMIT  %s`, strings.Join(conditions, "\n  AND "), limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("segment index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.SegmentResult, error) {
		var (
			sr    store.SegmentResult
			label string
			mq    string
			vec   pgvector.Vector
		)
		if err := row.Scan(
			&sr.SourceID,
			&sr.Segment.Start,
			&sr.Segment.End,
			&label,
			&sr.Segment.SpeakerConfidence,
			&sr.Segment.Text,
			&vec,
			&sr.Segment.IsOverlap,
			&sr.Segment.NeedsRefinement,
			&mq,
			&sr.Segment.OriginalCount,
			&sr.Distance,
		); err != nil {
			return store.SegmentResult{}, err
		}
		sr.Segment.SpeakerLabel = segment.SpeakerLabel(label)
		sr.Segment.MergeQuality = segment.MergeQuality(mq)
		sr.Segment.TextEmbedding = vec.Slice()
		return sr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("segment index: scan rows: %w", err)
	}
	if results == nil {
		results = []store.SegmentResult{}
	}
	return results, nil
}
