// Package triage flags transcript segments whose ASR confidence signals fall
// below speaker-specific thresholds, marking them for a second pass by a
// higher-quality (slower) transcription model. Triage only produces the flag;
// re-transcription itself is an external concern.
package triage

import (
	"github.com/vocalith/vocalith/pkg/segment"
)

// Thresholds holds the ASR-quality cutoffs for one speaker class. A segment
// fails triage when its average log-probability is below MinAvgLogProb or its
// compression ratio is above MaxCompressionRatio.
type Thresholds struct {
	// MinAvgLogProb is the lowest acceptable mean token log-probability.
	MinAvgLogProb float64 `yaml:"min_avg_logprob"`

	// MaxCompressionRatio is the highest acceptable compression ratio;
	// values above it indicate repetitive, likely hallucinated output.
	MaxCompressionRatio float64 `yaml:"max_compression_ratio"`
}

// Config carries per-speaker thresholds. Primary-speaker thresholds are
// stricter than Guest thresholds — mis-transcribing the primary speaker is
// more costly to retrieval quality.
type Config struct {
	Primary Thresholds `yaml:"primary"`
	Guest   Thresholds `yaml:"guest"`
}

// DefaultConfig returns the tuned default cutoffs.
func DefaultConfig() Config {
	return Config{
		Primary: Thresholds{MinAvgLogProb: -0.8, MaxCompressionRatio: 2.0},
		Guest:   Thresholds{MinAvgLogProb: -1.2, MaxCompressionRatio: 2.4},
	}
}

// forLabel returns the thresholds applicable to a speaker label. Unknown
// segments use the Guest thresholds.
func (c Config) forLabel(label segment.SpeakerLabel) Thresholds {
	if label == segment.SpeakerPrimary {
		return c.Primary
	}
	return c.Guest
}

// Flag marks every segment failing its speaker's thresholds with
// NeedsRefinement and returns the number of segments flagged (segments
// already flagged by an earlier stage are not counted again).
func Flag(segs []segment.LabeledSegment, cfg Config) int {
	flagged := 0
	for i := range segs {
		th := cfg.forLabel(segs[i].SpeakerLabel)
		if segs[i].AvgLogProb >= th.MinAvgLogProb && segs[i].CompressionRatio <= th.MaxCompressionRatio {
			continue
		}
		if !segs[i].NeedsRefinement {
			segs[i].NeedsRefinement = true
			flagged++
		}
	}
	return flagged
}
