// Package mock provides in-memory test doubles for the storage interfaces.
//
// Each mock records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. All mocks are safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	cache := &mock.EmbeddingCache{}
//	cache.GetResult = map[segment.TimeRange][]float32{
//	    segment.Key(0, 1.5): {0.1, 0.2},
//	}
//
//	// inject cache into the system under test …
//
//	if got := cache.CallCount("GetCachedEmbeddings"); got != 1 {
//	    t.Errorf("expected 1 GetCachedEmbeddings call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/vocalith/vocalith/pkg/segment"
	"github.com/vocalith/vocalith/pkg/store"
)

// Compile-time interface checks.
var (
	_ store.EmbeddingCache = (*EmbeddingCache)(nil)
	_ store.SegmentIndex   = (*SegmentIndex)(nil)
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// ─────────────────────────────────────────────────────────────────────────────
// EmbeddingCache mock
// ─────────────────────────────────────────────────────────────────────────────

// EmbeddingCache is a configurable test double for [store.EmbeddingCache].
// Puts are stored and visible to later Gets unless GetResult overrides them.
type EmbeddingCache struct {
	mu sync.Mutex

	calls   []Call
	entries map[string]map[segment.TimeRange][]float32

	// GetResult, when non-nil, is returned by GetCachedEmbeddings instead of
	// the accumulated Put state.
	GetResult map[segment.TimeRange][]float32

	// GetErr is returned by GetCachedEmbeddings when non-nil, simulating an
	// unavailable cache backend.
	GetErr error

	// PutErr is returned by PutEmbedding when non-nil.
	PutErr error

	// TouchErr is returned by TouchSource when non-nil.
	TouchErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *EmbeddingCache) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *EmbeddingCache) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// GetCachedEmbeddings implements [store.EmbeddingCache].
func (m *EmbeddingCache) GetCachedEmbeddings(_ context.Context, sourceID string, maxAgeDays int) (map[segment.TimeRange][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetCachedEmbeddings", Args: []any{sourceID, maxAgeDays}})
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	src := m.GetResult
	if src == nil {
		src = m.entries[sourceID]
	}
	out := make(map[segment.TimeRange][]float32, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

// PutEmbedding implements [store.EmbeddingCache].
func (m *EmbeddingCache) PutEmbedding(_ context.Context, sourceID string, rng segment.TimeRange, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "PutEmbedding", Args: []any{sourceID, rng, embedding}})
	if m.PutErr != nil {
		return m.PutErr
	}
	if m.entries == nil {
		m.entries = make(map[string]map[segment.TimeRange][]float32)
	}
	if m.entries[sourceID] == nil {
		m.entries[sourceID] = make(map[segment.TimeRange][]float32)
	}
	if _, exists := m.entries[sourceID][rng]; !exists { // append-only
		m.entries[sourceID][rng] = embedding
	}
	return nil
}

// TouchSource implements [store.EmbeddingCache].
func (m *EmbeddingCache) TouchSource(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "TouchSource", Args: []any{sourceID}})
	return m.TouchErr
}

// ─────────────────────────────────────────────────────────────────────────────
// SegmentIndex mock
// ─────────────────────────────────────────────────────────────────────────────

// Indexed pairs a source ID with a segment handed to IndexSegment.
type Indexed struct {
	SourceID string
	Segment  segment.OptimizedSegment
}

// SegmentIndex is a configurable test double for [store.SegmentIndex].
type SegmentIndex struct {
	mu sync.Mutex

	calls   []Call
	indexed []Indexed

	// IndexErr is returned by IndexSegment when non-nil.
	IndexErr error

	// SearchResult is returned by Search. When nil, Search returns an empty
	// non-nil slice.
	SearchResult []store.SegmentResult

	// SearchErr is returned by Search when non-nil.
	SearchErr error
}

// Indexed returns a copy of every segment handed to IndexSegment.
func (m *SegmentIndex) Indexed() []Indexed {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Indexed, len(m.indexed))
	copy(out, m.indexed)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *SegmentIndex) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// IndexSegment implements [store.SegmentIndex].
func (m *SegmentIndex) IndexSegment(_ context.Context, sourceID string, seg segment.OptimizedSegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "IndexSegment", Args: []any{sourceID, seg}})
	if m.IndexErr != nil {
		return m.IndexErr
	}
	m.indexed = append(m.indexed, Indexed{SourceID: sourceID, Segment: seg})
	return nil
}

// Search implements [store.SegmentIndex].
func (m *SegmentIndex) Search(_ context.Context, embedding []float32, topK int, filter store.SegmentFilter) ([]store.SegmentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Search", Args: []any{embedding, topK, filter}})
	if m.SearchResult == nil {
		return []store.SegmentResult{}, m.SearchErr
	}
	out := make([]store.SegmentResult, len(m.SearchResult))
	copy(out, m.SearchResult)
	return out, m.SearchErr
}
