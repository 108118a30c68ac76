package resilience

import (
	"context"

	"github.com/vocalith/vocalith/pkg/segment"
	"github.com/vocalith/vocalith/pkg/store"
)

// Compile-time interface check.
var _ store.EmbeddingCache = (*GuardedCache)(nil)

// GuardedCache wraps a [store.EmbeddingCache] with a [CircuitBreaker]. Once
// the backend has failed MaxFailures times in a row, further calls are
// rejected with [ErrCircuitOpen] until the reset timeout elapses. The
// pipeline treats any cache error as a miss, so an open breaker degrades a
// batch to cache-less processing without waiting on a dead database.
type GuardedCache struct {
	inner store.EmbeddingCache
	cb    *CircuitBreaker
}

// NewGuardedCache wraps inner with a breaker built from cfg. A zero cfg gets
// the [NewCircuitBreaker] defaults; an empty cfg.Name becomes
// "embedding-cache".
func NewGuardedCache(inner store.EmbeddingCache, cfg CircuitBreakerConfig) *GuardedCache {
	if cfg.Name == "" {
		cfg.Name = "embedding-cache"
	}
	return &GuardedCache{
		inner: inner,
		cb:    NewCircuitBreaker(cfg),
	}
}

// GetCachedEmbeddings implements [store.EmbeddingCache].
func (g *GuardedCache) GetCachedEmbeddings(ctx context.Context, sourceID string, maxAgeDays int) (map[segment.TimeRange][]float32, error) {
	var out map[segment.TimeRange][]float32
	err := g.cb.Execute(func() error {
		var err error
		out, err = g.inner.GetCachedEmbeddings(ctx, sourceID, maxAgeDays)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutEmbedding implements [store.EmbeddingCache].
func (g *GuardedCache) PutEmbedding(ctx context.Context, sourceID string, rng segment.TimeRange, embedding []float32) error {
	return g.cb.Execute(func() error {
		return g.inner.PutEmbedding(ctx, sourceID, rng, embedding)
	})
}

// TouchSource implements [store.EmbeddingCache].
func (g *GuardedCache) TouchSource(ctx context.Context, sourceID string) error {
	return g.cb.Execute(func() error {
		return g.inner.TouchSource(ctx, sourceID)
	})
}

// BreakerState reports the current breaker state for logging and health
// reporting.
func (g *GuardedCache) BreakerState() State {
	return g.cb.State()
}
