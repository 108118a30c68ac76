// Package attribution decides who is speaking during each transcript segment.
//
// The input is a chronological stream of per-segment voice embeddings scored
// against a reference [Profile] for the source's primary speaker. Raw
// per-segment cosine similarities are noisy — a single low-confidence frame
// must not flip the speaker label — so classification runs as a hysteresis
// state machine ([Classifier]): a high threshold to enter the Primary state,
// a lower threshold to leave it, and a minimum run of consecutive samples on
// the other side before either transition commits.
//
// Two auxiliary passes bracket the classifier:
//
//   - [SplitOverlaps] runs before it, cutting segments whose audio overlaps a
//     neighbour into fixed-width sub-windows so hysteresis reacts to
//     physically disjoint slices instead of blended ones.
//   - [Smooth] runs after it, relabelling short isolated label islands that
//     are surrounded by a single other label.
//
// Everything in this package is pure in-memory computation: no I/O, no model
// loading, no mutation of the caller's inputs.
package attribution

import (
	"fmt"
)

// Profile is the reference voiceprint for a source's primary speaker,
// together with the classifier thresholds tuned for that speaker. Profiles
// are owned by the caller and read-only here; concurrent source runs may
// share one Profile safely.
type Profile struct {
	// Name is the speaker's display name, used only in logs.
	Name string `json:"name"`

	// Centroid is the speaker's mean voice embedding. Its dimensionality must
	// match every voice embedding scored against it during a run.
	Centroid []float32 `json:"centroid"`

	// ThresholdHi is the similarity bar for entering the Primary state.
	ThresholdHi float64 `json:"threshold_hi"`

	// ThresholdLo is the similarity bar for leaving the Primary state.
	// Must be strictly less than ThresholdHi.
	ThresholdLo float64 `json:"threshold_lo"`

	// MinRuns is the number of consecutive samples past a threshold required
	// before the classifier commits a state change. Must be at least 1.
	MinRuns int `json:"min_runs"`
}

// Validate checks the profile's internal coherence. It does not check
// embedding dimensionality — that is only knowable against actual segment
// embeddings, see [Profile.CheckDimension].
func (p *Profile) Validate() error {
	if len(p.Centroid) == 0 {
		return fmt.Errorf("profile %q: centroid is empty", p.Name)
	}
	if p.ThresholdLo >= p.ThresholdHi {
		return fmt.Errorf("profile %q: threshold_lo %.3f must be below threshold_hi %.3f",
			p.Name, p.ThresholdLo, p.ThresholdHi)
	}
	if p.MinRuns < 1 {
		return fmt.Errorf("profile %q: min_runs %d must be at least 1", p.Name, p.MinRuns)
	}
	return nil
}

// CheckDimension verifies that an embedding of length n can be scored against
// the profile centroid. A mismatch is fatal for the whole run: every
// similarity computed against a wrong-sized centroid would be meaningless,
// so there is no safe partial result.
func (p *Profile) CheckDimension(n int) error {
	if n != len(p.Centroid) {
		return fmt.Errorf("profile %q: embedding dimension %d does not match centroid dimension %d",
			p.Name, n, len(p.Centroid))
	}
	return nil
}
