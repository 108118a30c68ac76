// Package segment defines the transcript segment types that flow through the
// Vocalith attribution and optimization pipeline.
//
// Segments move through three stages, each with its own type:
//
//   - [RawSegment]: the ASR/diarization collaborator's output — a time range,
//     transcribed text, an optional voice embedding, and the ASR quality
//     metrics (average log-probability, compression ratio, no-speech
//     probability). Raw segments are inputs: the pipeline never mutates them.
//   - [LabeledSegment]: a raw segment plus the speaker attribution produced by
//     the hysteresis classifier (label, confidence) and the diagnostic flags
//     set by the overlap splitter and temporal smoother. Labeled segments live
//     only inside a single pipeline invocation.
//   - [OptimizedSegment]: the final output handed to the indexing stage, with
//     merge/split provenance attached.
//
// Keeping the stages as distinct types prevents an unfinished stage's fields
// from being read early (e.g., a text embedding before the optimizer has
// decided whether a merge invalidated it).
//
// External formats are normalized into [RawSegment] once, at the ingestion
// boundary; nothing downstream accepts anything else.
package segment

import (
	"fmt"
	"math"
)

// SpeakerLabel identifies who is speaking during a segment.
type SpeakerLabel string

const (
	// SpeakerUnknown means no attribution decision has been made yet.
	SpeakerUnknown SpeakerLabel = "unknown"

	// SpeakerPrimary is the designated principal voice of a source (the host).
	SpeakerPrimary SpeakerLabel = "primary"

	// SpeakerGuest is any voice other than the primary speaker.
	SpeakerGuest SpeakerLabel = "guest"
)

// IsValid reports whether l is a recognised speaker label.
func (l SpeakerLabel) IsValid() bool {
	switch l {
	case SpeakerUnknown, SpeakerPrimary, SpeakerGuest:
		return true
	}
	return false
}

// MergeQuality records how an [OptimizedSegment] was produced.
type MergeQuality string

const (
	// MergeSingle means the segment passed through the optimizer unchanged.
	MergeSingle MergeQuality = "single"

	// MergeMerged means the segment is the concatenation of two or more inputs.
	MergeMerged MergeQuality = "merged"

	// MergeSplit means the segment is one part of a split input.
	MergeSplit MergeQuality = "split"
)

// RawSegment is a single ASR output span as received from the transcription
// collaborator. Time values are seconds from the start of the source.
//
// The invariant End > Start is checked by [RawSegment.Validate]; time ranges
// of different segments are not guaranteed non-overlapping or contiguous.
type RawSegment struct {
	// Start is the segment start offset in seconds.
	Start float64 `json:"start"`

	// End is the segment end offset in seconds. Must be greater than Start.
	End float64 `json:"end"`

	// Text is the transcribed speech content.
	Text string `json:"text"`

	// VoiceEmbedding is the speaker-embedding vector for this span, produced
	// by an external voice-embedding model. Nil when extraction failed or was
	// skipped; the classifier treats a missing embedding as similarity 0.
	VoiceEmbedding []float32 `json:"voice_embedding,omitempty"`

	// TextEmbedding is an optional pre-computed embedding of Text, passed
	// through to the output untouched unless a merge or split invalidates it.
	TextEmbedding []float32 `json:"text_embedding,omitempty"`

	// SpeakerIDHint is the upstream diarizer's cluster label, if any
	// (e.g., "SPEAKER_00"). Informational only; attribution is decided by the
	// hysteresis classifier, not by this hint.
	SpeakerIDHint string `json:"speaker_id_hint,omitempty"`

	// AvgLogProb is the ASR engine's mean token log-probability.
	AvgLogProb float64 `json:"avg_logprob"`

	// CompressionRatio is the ASR engine's text compression ratio. High
	// values indicate repetitive, likely hallucinated output.
	CompressionRatio float64 `json:"compression_ratio"`

	// NoSpeechProb is the ASR engine's probability that the span contains no
	// speech at all.
	NoSpeechProb float64 `json:"no_speech_prob"`

	// TemperatureUsed is the sampling temperature the ASR engine settled on
	// for this span.
	TemperatureUsed float64 `json:"temperature_used"`
}

// Duration returns the segment length in seconds.
func (s RawSegment) Duration() float64 {
	return s.End - s.Start
}

// Validate reports whether the segment satisfies the input invariants:
// End > Start and all numeric fields finite. A failing segment is malformed
// and should be dropped (never aborting the whole source).
func (s RawSegment) Validate() error {
	if s.End <= s.Start {
		return fmt.Errorf("segment [%g, %g]: end must be greater than start", s.Start, s.End)
	}
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"start", s.Start},
		{"end", s.End},
		{"avg_logprob", s.AvgLogProb},
		{"compression_ratio", s.CompressionRatio},
		{"no_speech_prob", s.NoSpeechProb},
		{"temperature_used", s.TemperatureUsed},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("segment [%g, %g]: %s is not finite", s.Start, s.End, v.name)
		}
	}
	return nil
}

// LabeledSegment is a [RawSegment] plus the attribution decision and the
// diagnostic flags accumulated during classification. Instances are created
// once per raw segment (or per overlap sub-window) and consumed within one
// pipeline invocation; they never persist across calls.
type LabeledSegment struct {
	RawSegment

	// SpeakerLabel is the attributed speaker.
	SpeakerLabel SpeakerLabel `json:"speaker_label"`

	// SpeakerConfidence is the attribution confidence in [0, 1]. Zero for
	// segments without a voice embedding.
	SpeakerConfidence float64 `json:"speaker_confidence"`

	// IsOverlap marks segments whose time range materially overlaps a
	// neighbouring segment (two speakers talking at once).
	IsOverlap bool `json:"is_overlap"`

	// NeedsRefinement marks segments that should be re-transcribed by a
	// higher-quality pass. Set by the overlap splitter (fixed-width cuts
	// rarely respect token boundaries) and by quality triage.
	NeedsRefinement bool `json:"needs_refinement"`

	// Smoothed records that the temporal smoother relabelled this segment to
	// match its neighbours. Diagnostic only.
	Smoothed bool `json:"smoothed,omitempty"`
}

// OptimizedSegment is the pipeline's output type: a labeled segment plus
// merge/split provenance. Its lifetime ends when the caller stores or
// discards it.
type OptimizedSegment struct {
	LabeledSegment

	// OriginalCount is how many raw segments contributed to this one.
	// Diagnostic only — never consulted by pipeline logic.
	OriginalCount int `json:"original_count"`

	// MergeQuality records whether this segment is original, merged, or the
	// product of a split.
	MergeQuality MergeQuality `json:"merge_quality"`
}

// KeyPrecision is the number of decimal places segment times are rounded to
// when used as embedding-cache keys. Two decimals (10 ms) matches the
// precision the cache store persists, so keys survive a float64 round-trip
// through storage.
const KeyPrecision = 2

// TimeRange is a (start, end) pair rounded to [KeyPrecision] decimals,
// suitable for use as a map key.
type TimeRange struct {
	Start float64
	End   float64
}

// Key rounds start and end to [KeyPrecision] decimals and returns the
// resulting [TimeRange].
func Key(start, end float64) TimeRange {
	return TimeRange{Start: roundKey(start), End: roundKey(end)}
}

func roundKey(v float64) float64 {
	const scale = 100 // 10^KeyPrecision
	return math.Round(v*scale) / scale
}
