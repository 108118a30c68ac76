// Package optimize reshapes a labeled transcript into retrieval-quality
// segments: short fragments are merged into their neighbours, overly long
// segments are split at sentence boundaries, verbatim repeats are dropped,
// and the surviving text is cleaned up.
//
// The [Optimizer] runs four ordered passes:
//
//  1. Merge short same-speaker segments that are close in time.
//  2. Split segments far beyond the maximum character target at
//     sentence-ending punctuation, distributing the time range by character
//     offset.
//  3. A final sweep that folds leftover interjections ("Yeah.") into whichever
//     neighbour shares their speaker.
//  4. Deduplicate exact repeats and normalize whitespace/punctuation.
//
// Time-based ceilings always win over character-count targets: no pass ever
// produces a segment longer than the maximum merge duration, and relative
// chronological order is preserved throughout. Running the optimizer on its
// own output is a no-op.
package optimize

import (
	"github.com/antzucaro/matchr"

	"github.com/vocalith/vocalith/pkg/segment"
)

// Config holds the optimizer's tuning knobs. The defaults are empirically
// calibrated, not load-bearing correctness constraints — recalibrate freely.
type Config struct {
	// MaxGapSeconds is the largest silence between two segments that still
	// allows them to merge.
	MaxGapSeconds float64

	// MaxMergeDurationSeconds caps the duration of any merged segment.
	MaxMergeDurationSeconds float64

	// TargetMinChars is the lower edge of the ideal segment size band;
	// segments below it are merge candidates.
	TargetMinChars int

	// TargetMaxChars is the upper edge of the ideal segment size band;
	// segments beyond 1.5× this are split.
	TargetMaxChars int

	// AlwaysMergeUnderChars is the length under which a segment merges
	// regardless of the character-target heuristics (time ceilings still
	// apply).
	AlwaysMergeUnderChars int

	// SweepUnderChars is the length under which the final sweep folds a
	// segment into a same-speaker neighbour.
	SweepUnderChars int

	// MinPunctuateChars is the length above which cleaned text receives a
	// terminal period when it lacks sentence-ending punctuation.
	MinPunctuateChars int

	// FuzzyDedupe additionally drops segments whose text is a near-duplicate
	// (Jaro-Winkler similarity >= FuzzyDedupeThreshold) of an earlier
	// same-speaker segment. Off by default: only exact repeats are dropped.
	FuzzyDedupe bool

	// FuzzyDedupeThreshold is the Jaro-Winkler similarity above which two
	// texts count as duplicates when FuzzyDedupe is enabled.
	FuzzyDedupeThreshold float64
}

// DefaultConfig returns the tuned default configuration.
func DefaultConfig() Config {
	return Config{
		MaxGapSeconds:           3.0,
		MaxMergeDurationSeconds: 60,
		TargetMinChars:          400,
		TargetMaxChars:          1200,
		AlwaysMergeUnderChars:   30,
		SweepUnderChars:         50,
		MinPunctuateChars:       20,
		FuzzyDedupe:             false,
		FuzzyDedupeThreshold:    0.95,
	}
}

// Optimizer applies the four optimization passes. It is read-only after
// construction and safe for concurrent use.
type Optimizer struct {
	cfg Config
}

// New returns an Optimizer with the given configuration.
func New(cfg Config) *Optimizer {
	return &Optimizer{cfg: cfg}
}

// Stats counts the optimizer's actions over one invocation, for logging and
// metrics. Never consulted by pipeline logic.
type Stats struct {
	// Merges is the number of pairwise merge operations performed (passes 1
	// and 3 combined).
	Merges int

	// Splits is the number of segments cut apart by pass 2.
	Splits int

	// Deduped is the number of duplicate segments dropped by pass 4.
	Deduped int
}

// Optimize runs all four passes over segs and returns the final segment list
// together with action counts. Input segments are not mutated; merges and
// splits produce new instances.
func (o *Optimizer) Optimize(segs []segment.LabeledSegment) ([]segment.OptimizedSegment, Stats) {
	out := make([]segment.OptimizedSegment, 0, len(segs))
	for _, s := range segs {
		out = append(out, segment.OptimizedSegment{
			LabeledSegment: s,
			OriginalCount:  1,
			MergeQuality:   segment.MergeSingle,
		})
	}
	var st Stats
	out = o.mergeShort(out, &st)
	out = o.splitLong(out, &st)
	out = o.sweepShort(out, &st)
	out = o.dedupeAndClean(out, &st)
	return out, st
}

// mergeShort is pass 1: walk consecutively and merge adjacent segments while
// the merge conditions hold, accumulating left to right.
func (o *Optimizer) mergeShort(segs []segment.OptimizedSegment, st *Stats) []segment.OptimizedSegment {
	if len(segs) == 0 {
		return segs
	}
	out := make([]segment.OptimizedSegment, 0, len(segs))
	acc := segs[0]
	for _, next := range segs[1:] {
		if o.canMerge(acc, next) && o.lengthsWantMerge(acc, next) {
			acc = merge(acc, next)
			st.Merges++
			continue
		}
		out = append(out, acc)
		acc = next
	}
	return append(out, acc)
}

// canMerge checks the conditions that apply to every merge, in any pass:
// same speaker, neither side an overlap sub-window, and the combined span
// within the duration ceiling. The gap condition is also checked here since
// pass 1 is the only caller that enforces proximity; the final sweep passes
// a gap of 0 by construction.
func (o *Optimizer) canMerge(a, b segment.OptimizedSegment) bool {
	if a.SpeakerLabel != b.SpeakerLabel {
		return false
	}
	// Overlap sub-windows must stay fixed-width; re-merging them would undo
	// the splitter.
	if a.IsOverlap || b.IsOverlap {
		return false
	}
	gap := b.Start - a.End
	if gap > o.cfg.MaxGapSeconds {
		return false
	}
	return combinedDuration(a, b) <= o.cfg.MaxMergeDurationSeconds
}

// lengthsWantMerge applies the pass-1 character-count heuristics: anything
// under AlwaysMergeUnderChars merges unconditionally; otherwise one side must
// be below the minimum target and the combined text must fit the maximum.
func (o *Optimizer) lengthsWantMerge(a, b segment.OptimizedSegment) bool {
	la, lb := len(a.Text), len(b.Text)
	if la < o.cfg.AlwaysMergeUnderChars || lb < o.cfg.AlwaysMergeUnderChars {
		return true
	}
	if la >= o.cfg.TargetMinChars && lb >= o.cfg.TargetMinChars {
		return false
	}
	return la+lb <= o.cfg.TargetMaxChars
}

// splitLong is pass 2: any segment whose text exceeds 1.5× the maximum
// character target is split at sentence boundaries, distributing the time
// range proportionally to character offset. Segments with no sentence
// boundary are left intact — this pass never cuts mid-word.
func (o *Optimizer) splitLong(segs []segment.OptimizedSegment, st *Stats) []segment.OptimizedSegment {
	limit := o.cfg.TargetMaxChars + o.cfg.TargetMaxChars/2
	out := make([]segment.OptimizedSegment, 0, len(segs))
	for _, s := range segs {
		if len(s.Text) <= limit {
			out = append(out, s)
			continue
		}
		parts := packSentences(splitSentences(s.Text), o.cfg.TargetMaxChars)
		if len(parts) < 2 {
			out = append(out, s)
			continue
		}
		st.Splits++
		out = append(out, distribute(s, parts)...)
	}
	return out
}

// packSentences greedily packs sentences into chunks of at most maxChars
// characters. A single sentence longer than maxChars becomes its own chunk.
func packSentences(sentences []string, maxChars int) []string {
	var (
		chunks []string
		cur    string
	)
	for _, sent := range sentences {
		switch {
		case cur == "":
			cur = sent
		case len(cur)+1+len(sent) <= maxChars:
			cur = cur + " " + sent
		default:
			chunks = append(chunks, cur)
			cur = sent
		}
	}
	if cur != "" {
		chunks = append(chunks, cur)
	}
	return chunks
}

// distribute maps text chunks back onto the original time range in proportion
// to their character offsets.
func distribute(s segment.OptimizedSegment, parts []string) []segment.OptimizedSegment {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	dur := s.Duration()

	out := make([]segment.OptimizedSegment, 0, len(parts))
	offset := 0
	for i, p := range parts {
		part := s
		part.Text = p
		part.Start = s.Start + dur*float64(offset)/float64(total)
		offset += len(p)
		if i == len(parts)-1 {
			part.End = s.End
		} else {
			part.End = s.Start + dur*float64(offset)/float64(total)
		}
		part.MergeQuality = segment.MergeSplit
		// The original text embedding described the whole span; the split
		// parts need re-embedding.
		part.TextEmbedding = nil
		part.VoiceEmbedding = nil
		out = append(out, part)
	}
	return out
}

// sweepShort is pass 3: fold any segment still under SweepUnderChars into a
// same-speaker neighbour — next preferred, previous otherwise — ignoring the
// gap condition so that isolated interjections with a large gap to one side
// are still absorbed. Repeats until stable so chained interjections collapse
// fully.
func (o *Optimizer) sweepShort(segs []segment.OptimizedSegment, st *Stats) []segment.OptimizedSegment {
	for {
		merged := false
		out := make([]segment.OptimizedSegment, 0, len(segs))
		for i := 0; i < len(segs); i++ {
			cur := segs[i]
			if len(cur.Text) >= o.cfg.SweepUnderChars {
				out = append(out, cur)
				continue
			}
			if i+1 < len(segs) && o.sweepable(cur, segs[i+1]) {
				out = append(out, merge(cur, segs[i+1]))
				i++ // consumed the next segment
				merged = true
				st.Merges++
				continue
			}
			if n := len(out); n > 0 && o.sweepable(out[n-1], cur) {
				out[n-1] = merge(out[n-1], cur)
				merged = true
				st.Merges++
				continue
			}
			out = append(out, cur)
		}
		segs = out
		if !merged {
			return segs
		}
	}
}

// sweepable checks the pass-3 merge conditions: shared speaker label,
// neither side an overlap sub-window, combined duration under the ceiling.
func (o *Optimizer) sweepable(a, b segment.OptimizedSegment) bool {
	if a.SpeakerLabel != b.SpeakerLabel || a.IsOverlap || b.IsOverlap {
		return false
	}
	return combinedDuration(a, b) <= o.cfg.MaxMergeDurationSeconds
}

// dedupeAndClean is pass 4: drop segments whose lower-cased, trimmed text
// exactly matches an earlier same-speaker segment (ASR engines frequently
// emit verbatim repeats), then normalize whitespace and add terminal
// punctuation to longer texts that lack it.
func (o *Optimizer) dedupeAndClean(segs []segment.OptimizedSegment, st *Stats) []segment.OptimizedSegment {
	seen := make(map[dedupeEntry]struct{}, len(segs))
	var kept []dedupeEntry

	out := make([]segment.OptimizedSegment, 0, len(segs))
	for _, s := range segs {
		// Overlap sub-windows inherit their parent's full text, so textual
		// identity between them is expected, not a duplicate — dropping them
		// would erase the overlap span's timeline before re-scoring.
		if s.IsOverlap {
			s.Text = normalizeWhitespace(s.Text)
			out = append(out, s)
			continue
		}
		key := dedupeEntry{label: s.SpeakerLabel, text: dedupeKey(s.Text)}
		if _, dup := seen[key]; dup {
			st.Deduped++
			continue
		}
		if o.cfg.FuzzyDedupe && o.nearDuplicate(key, kept) {
			st.Deduped++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, key)

		s.Text = normalizeWhitespace(s.Text)
		if len(s.Text) > o.cfg.MinPunctuateChars && !hasTerminalPunctuation(s.Text) {
			s.Text += "."
		}
		out = append(out, s)
	}
	return out
}

// dedupeEntry is the duplicate-detection key: a speaker label plus the
// canonical (lower-cased, whitespace-normalized) text. Keying on the label
// preserves an exact textual repeat spoken by a different speaker.
type dedupeEntry struct {
	label segment.SpeakerLabel
	text  string
}

// nearDuplicate reports whether key's text is a Jaro-Winkler near-duplicate
// of any previously kept same-speaker text.
func (o *Optimizer) nearDuplicate(key dedupeEntry, kept []dedupeEntry) bool {
	for _, k := range kept {
		if k.label != key.label {
			continue
		}
		if matchr.JaroWinkler(k.text, key.text, false) >= o.cfg.FuzzyDedupeThreshold {
			return true
		}
	}
	return false
}

// merge combines two adjacent same-speaker segments into one. Text is
// concatenated with a separating space, numeric quality signals take the
// duration-weighted average, boolean flags are ORed, and both embeddings are
// nulled out since neither describes the combined span — the caller must
// regenerate them for the new text.
func merge(a, b segment.OptimizedSegment) segment.OptimizedSegment {
	da, db := a.Duration(), b.Duration()
	total := da + db
	wavg := func(x, y float64) float64 {
		if total == 0 {
			return (x + y) / 2
		}
		return (x*da + y*db) / total
	}

	m := a
	if b.Start < m.Start {
		m.Start = b.Start
	}
	if b.End > m.End {
		m.End = b.End
	}
	m.Text = joinText(a.Text, b.Text)
	m.AvgLogProb = wavg(a.AvgLogProb, b.AvgLogProb)
	m.CompressionRatio = wavg(a.CompressionRatio, b.CompressionRatio)
	m.NoSpeechProb = wavg(a.NoSpeechProb, b.NoSpeechProb)
	m.TemperatureUsed = wavg(a.TemperatureUsed, b.TemperatureUsed)
	m.SpeakerConfidence = wavg(a.SpeakerConfidence, b.SpeakerConfidence)
	m.IsOverlap = a.IsOverlap || b.IsOverlap
	m.NeedsRefinement = a.NeedsRefinement || b.NeedsRefinement
	m.Smoothed = a.Smoothed || b.Smoothed
	m.TextEmbedding = nil
	m.VoiceEmbedding = nil
	m.OriginalCount = a.OriginalCount + b.OriginalCount
	m.MergeQuality = segment.MergeMerged
	return m
}

func combinedDuration(a, b segment.OptimizedSegment) float64 {
	start, end := a.Start, a.End
	if b.Start < start {
		start = b.Start
	}
	if b.End > end {
		end = b.End
	}
	return end - start
}
