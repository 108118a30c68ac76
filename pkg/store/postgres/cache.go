package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/vocalith/vocalith/pkg/segment"
	"github.com/vocalith/vocalith/pkg/store"
)

// GetCachedEmbeddings implements [store.EmbeddingCache]. Validity is judged
// per source: when the source's last-processed timestamp is missing or older
// than maxAgeDays, the whole cache for that source is considered expired and
// an empty map is returned, forcing full re-extraction upstream.
func (s *Store) GetCachedEmbeddings(ctx context.Context, sourceID string, maxAgeDays int) (map[segment.TimeRange][]float32, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = store.DefaultMaxAgeDays
	}

	var lastProcessed time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_processed FROM cache_sources WHERE source_id = $1`,
		sourceID,
	).Scan(&lastProcessed)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Never-processed source — cache miss, not an error.
		return map[segment.TimeRange][]float32{}, nil
	case err != nil:
		return nil, fmt.Errorf("embedding cache: last processed %q: %w", sourceID, err)
	}
	if time.Since(lastProcessed) > time.Duration(maxAgeDays)*24*time.Hour {
		return map[segment.TimeRange][]float32{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT start_s, end_s, embedding FROM voice_embeddings WHERE source_id = $1`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: query %q: %w", sourceID, err)
	}
	defer rows.Close()

	cached := make(map[segment.TimeRange][]float32)
	for rows.Next() {
		var (
			start, end float64
			vec        pgvector.Vector
		)
		if err := rows.Scan(&start, &end, &vec); err != nil {
			return nil, fmt.Errorf("embedding cache: scan %q: %w", sourceID, err)
		}
		cached[segment.Key(start, end)] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("embedding cache: rows %q: %w", sourceID, err)
	}
	return cached, nil
}

// PutEmbedding implements [store.EmbeddingCache]. Entries are append-only:
// an existing entry for the same key is left untouched.
func (s *Store) PutEmbedding(ctx context.Context, sourceID string, rng segment.TimeRange, embedding []float32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO voice_embeddings (source_id, start_s, end_s, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id, start_s, end_s) DO NOTHING`,
		sourceID, rng.Start, rng.End, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("embedding cache: put %q [%g, %g]: %w", sourceID, rng.Start, rng.End, err)
	}
	return nil
}

// TouchSource implements [store.EmbeddingCache]. It stamps the source's
// last-processed time to now, renewing the cache validity window.
func (s *Store) TouchSource(ctx context.Context, sourceID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_sources (source_id, last_processed)
		VALUES ($1, now())
		ON CONFLICT (source_id) DO UPDATE SET last_processed = now()`,
		sourceID,
	)
	if err != nil {
		return fmt.Errorf("embedding cache: touch %q: %w", sourceID, err)
	}
	return nil
}
