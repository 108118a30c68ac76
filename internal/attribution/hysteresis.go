package attribution

import (
	"github.com/vocalith/vocalith/pkg/segment"
)

// State is the hysteresis classifier's position between segments: the
// committed speaker plus how many consecutive samples have crossed the
// opposing threshold. The zero value is the correct starting state for a new
// source.
type State struct {
	// Current is the committed speaker state. The zero value
	// ([segment.SpeakerUnknown]) means no speaker has been established yet.
	Current segment.SpeakerLabel

	// Consecutive counts samples in a row past the opposing threshold.
	Consecutive int
}

// Classifier converts a chronological stream of voice-similarity scores into
// a stable Primary/Guest labeling using dual thresholds and a minimum run
// length. A Classifier is read-only after construction and safe for
// concurrent use; per-source state is threaded explicitly through [Classifier.Step].
type Classifier struct {
	profile *Profile
}

// NewClassifier returns a classifier for the given speaker profile. The
// profile must already have passed [Profile.Validate].
func NewClassifier(profile *Profile) *Classifier {
	return &Classifier{profile: profile}
}

// Step is the pure state-transition function: given the state after the
// previous segment and the current segment's similarity score, it returns the
// next state, the label for this segment, and whether the classifier has just
// confirmed a transition into Primary.
//
// When promote is true the caller must also relabel the immediately preceding
// "still transitioning" run (the segments that accumulated the confirming
// count) to Primary — entry into the Primary state is retroactive, so that a
// source opening with consistently high similarity is attributed to the
// primary speaker from its very first segment. Exit from Primary is not
// retroactive: segments stay Primary until the exit run is confirmed.
func (c *Classifier) Step(st State, sim float64) (next State, label segment.SpeakerLabel, promote bool) {
	if st.Current == "" {
		st.Current = segment.SpeakerUnknown
	}

	switch {
	case st.Current != segment.SpeakerPrimary && sim >= c.profile.ThresholdHi:
		st.Consecutive++
		if st.Consecutive >= c.profile.MinRuns {
			st.Current = segment.SpeakerPrimary
			st.Consecutive = 0
			return st, segment.SpeakerPrimary, true
		}
		// Still transitioning: provisionally Guest until the run confirms.
		return st, segment.SpeakerGuest, false

	case st.Current == segment.SpeakerPrimary && sim <= c.profile.ThresholdLo:
		st.Consecutive++
		if st.Consecutive >= c.profile.MinRuns {
			st.Current = segment.SpeakerGuest
			st.Consecutive = 0
		}
		// The flip takes effect from the next segment; this one keeps the
		// established label.
		return st, segment.SpeakerPrimary, false

	default:
		st.Consecutive = 0
		if st.Current == segment.SpeakerPrimary {
			return st, segment.SpeakerPrimary, false
		}
		return st, segment.SpeakerGuest, false
	}
}

// Classify labels segs in chronological order, filling SpeakerLabel and
// SpeakerConfidence on every element. The hysteresis state is reset at the
// start of the call, so one call corresponds to one source.
//
// Segments without a voice embedding are labeled Guest with confidence 0 and
// never count toward a Primary transition; they also interrupt any pending
// transition run.
func (c *Classifier) Classify(segs []segment.LabeledSegment) {
	var st State
	pendingStart := -1 // first index of the current "still transitioning" run

	for i := range segs {
		if segs[i].VoiceEmbedding == nil {
			segs[i].SpeakerLabel = segment.SpeakerGuest
			segs[i].SpeakerConfidence = 0
			st.Consecutive = 0
			pendingStart = -1
			continue
		}

		sim := Similarity(segs[i].VoiceEmbedding, c.profile)

		prev := st
		next, label, promote := c.Step(st, sim)
		st = next

		segs[i].SpeakerLabel = label
		segs[i].SpeakerConfidence = confidence(sim)

		switch {
		case promote:
			for j := pendingStart; j >= 0 && j < i; j++ {
				segs[j].SpeakerLabel = segment.SpeakerPrimary
			}
			pendingStart = -1
		case st.Consecutive > prev.Consecutive && st.Current != segment.SpeakerPrimary:
			// A Primary-entry run is building; remember where it started so a
			// later confirmation can promote it.
			if pendingStart < 0 {
				pendingStart = i
			}
		case st.Consecutive == 0:
			pendingStart = -1
		}
	}
}

// confidence maps a cosine similarity to an attribution confidence in [0, 1].
// Negative similarity (opposite-pointing voiceprint) clamps to 0.
func confidence(sim float64) float64 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
