package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vocalith/vocalith/internal/attribution"
	"github.com/vocalith/vocalith/pkg/segment"
)

// Source is one unit of batch work: a source ID, the primary-speaker profile
// to attribute against, and the raw segments to process.
type Source struct {
	ID       string
	Profile  *attribution.Profile
	Segments []segment.RawSegment
}

// Result is the outcome of processing one source. Err is non-nil only for
// fatal per-source failures (an invalid profile); such a failure never
// prevents other sources in the batch from completing.
type Result struct {
	SourceID string
	Segments []segment.OptimizedSegment
	Report   *Report
	Err      error
}

// ProcessBatch processes sources concurrently with at most workers running
// at once, and returns one [Result] per source in input order. Parallelism
// is strictly across sources — each source's segment stream is handled
// start-to-finish by one goroutine, as hysteresis state and merge decisions
// are order-dependent.
//
// Cancelling ctx stops scheduling new sources; in-progress sources finish
// quickly and already-cancelled ones report ctx.Err(). Cancellation
// granularity is per source: an aborted source's partial work is simply
// discarded.
func (e *Engine) ProcessBatch(ctx context.Context, sources []Source, workers int) []Result {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{SourceID: src.ID, Err: err}
				return nil
			}
			segs, report, err := e.Process(ctx, src.ID, src.Profile, src.Segments)
			results[i] = Result{SourceID: src.ID, Segments: segs, Report: report, Err: err}
			return nil
		})
	}

	// Worker closures never return an error; per-source failures live in
	// their Result.
	_ = g.Wait()
	return results
}
