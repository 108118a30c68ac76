// Package postgres provides the PostgreSQL-backed implementation of the
// Vocalith storage contracts: the voice-embedding cache and the pgvector
// segment index.
//
// Both share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn, postgres.Dimensions{Voice: 192, Text: 1536})
//	if err != nil { … }
//
//	// cache
//	cached, _ := st.GetCachedEmbeddings(ctx, "video-123", 30)
//
//	// index
//	_ = st.IndexSegment(ctx, "video-123", seg)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Cache DDL — per-source validity stamp + append-only embedding entries
// ─────────────────────────────────────────────────────────────────────────────

// Cache keys round start/end to two decimals; NUMERIC(10,2) keeps exactly
// that precision through storage so lookups survive float round-tripping.
const ddlCache = `
CREATE TABLE IF NOT EXISTS cache_sources (
    source_id       TEXT         PRIMARY KEY,
    last_processed  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

func ddlVoiceEmbeddings(voiceDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS voice_embeddings (
    source_id   TEXT           NOT NULL,
    start_s     NUMERIC(10,2)  NOT NULL,
    end_s       NUMERIC(10,2)  NOT NULL,
    embedding   vector(%d)     NOT NULL,
    created_at  TIMESTAMPTZ    NOT NULL DEFAULT now(),
    PRIMARY KEY (source_id, start_s, end_s)
);

CREATE INDEX IF NOT EXISTS idx_voice_embeddings_source
    ON voice_embeddings (source_id);
`, voiceDimensions)
}

// ─────────────────────────────────────────────────────────────────────────────
// Index DDL — optimized output segments with text embeddings
// ─────────────────────────────────────────────────────────────────────────────

func ddlSegments(textDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS segments (
    source_id           TEXT              NOT NULL,
    start_s             DOUBLE PRECISION  NOT NULL,
    end_s               DOUBLE PRECISION  NOT NULL,
    speaker_label       TEXT              NOT NULL,
    speaker_confidence  DOUBLE PRECISION  NOT NULL DEFAULT 0,
    text                TEXT              NOT NULL,
    embedding           vector(%d),
    is_overlap          BOOLEAN           NOT NULL DEFAULT false,
    needs_refinement    BOOLEAN           NOT NULL DEFAULT false,
    merge_quality       TEXT              NOT NULL DEFAULT 'single',
    original_count      INTEGER           NOT NULL DEFAULT 1,
    indexed_at          TIMESTAMPTZ       NOT NULL DEFAULT now(),
    PRIMARY KEY (source_id, start_s, end_s)
);

CREATE INDEX IF NOT EXISTS idx_segments_source
    ON segments (source_id);

CREATE INDEX IF NOT EXISTS idx_segments_speaker
    ON segments (speaker_label);

CREATE INDEX IF NOT EXISTS idx_segments_embedding
    ON segments USING hnsw (embedding vector_cosine_ops);
`, textDimensions)
}

// Migrate creates or ensures all required tables, indexes, and extensions
// exist. It is idempotent and safe to call on every application start.
//
// dims must match the deployment's embedding models (e.g., Voice: 192 for an
// ECAPA-TDNN speaker encoder, Text: 1536 for OpenAI text-embedding-3-small).
// Changing either value after the first migration requires a manual schema
// update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dims Dimensions) error {
	statements := []string{
		ddlCache,
		ddlVoiceEmbeddings(dims.Voice),
		ddlSegments(dims.Text),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
