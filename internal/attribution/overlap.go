package attribution

import (
	"math"

	"github.com/vocalith/vocalith/pkg/segment"
)

// OverlapConfig controls overlap detection and sub-window splitting.
type OverlapConfig struct {
	// MinIntersection is the intersection duration in seconds above which two
	// segments are considered overlapping speech.
	MinIntersection float64

	// Window is the fixed sub-window width in seconds that overlapping
	// segments are cut into for independent re-scoring.
	Window float64
}

// DefaultOverlapConfig returns the tuned defaults: a 300 ms intersection
// floor and 300 ms sub-windows.
func DefaultOverlapConfig() OverlapConfig {
	return OverlapConfig{MinIntersection: 0.3, Window: 0.3}
}

// SplitOverlaps converts raw segments into labeled segments, detecting
// overlapping speech and cutting long overlap spans into fixed-width
// sub-windows. It runs before classification so that hysteresis reacts to
// physically disjoint audio slices rather than ambiguous blended ones.
//
// A segment is marked IsOverlap when its time range intersects any other
// segment in the batch for longer than cfg.MinIntersection. Overlapping
// segments longer than cfg.Window are replaced by consecutive sub-windows of
// at most cfg.Window seconds, each inheriting the original text, metadata,
// and voice embedding, and each additionally marked NeedsRefinement — a
// fixed-width cut rarely respects token boundaries, so the text attached to a
// sub-window is only approximate until a refinement pass re-transcribes it.
//
// Non-overlapping segments pass through unchanged (labels start Unknown).
// Relative chronological order is preserved.
func SplitOverlaps(segs []segment.RawSegment, cfg OverlapConfig) []segment.LabeledSegment {
	overlapping := make([]bool, len(segs))
	for i := range segs {
		for j := range segs {
			if i == j {
				continue
			}
			if intersection(segs[i], segs[j]) > cfg.MinIntersection {
				overlapping[i] = true
				break
			}
		}
	}

	out := make([]segment.LabeledSegment, 0, len(segs))
	for i, raw := range segs {
		if !overlapping[i] {
			out = append(out, segment.LabeledSegment{
				RawSegment:   raw,
				SpeakerLabel: segment.SpeakerUnknown,
			})
			continue
		}
		if raw.Duration() <= cfg.Window {
			out = append(out, segment.LabeledSegment{
				RawSegment:   raw,
				SpeakerLabel: segment.SpeakerUnknown,
				IsOverlap:    true,
			})
			continue
		}
		out = append(out, subWindows(raw, cfg.Window)...)
	}
	return out
}

// subWindows cuts raw into consecutive windows of at most width seconds.
// The final window absorbs the remainder, so every window duration is in
// (0, width].
func subWindows(raw segment.RawSegment, width float64) []segment.LabeledSegment {
	n := int(math.Ceil(raw.Duration() / width))
	windows := make([]segment.LabeledSegment, 0, n)
	for k := 0; k < n; k++ {
		// Both boundaries derive from the same expression so window k's end
		// is bit-identical to window k+1's start; start+width drifts apart
		// from (k+1)*width under float rounding.
		start := raw.Start + float64(k)*width
		end := raw.Start + float64(k+1)*width
		if end > raw.End || k == n-1 {
			end = raw.End
		}
		sub := raw
		sub.Start = start
		sub.End = end
		windows = append(windows, segment.LabeledSegment{
			RawSegment:      sub,
			SpeakerLabel:    segment.SpeakerUnknown,
			IsOverlap:       true,
			NeedsRefinement: true,
		})
	}
	return windows
}

func intersection(a, b segment.RawSegment) float64 {
	lo := math.Max(a.Start, b.Start)
	hi := math.Min(a.End, b.End)
	if hi <= lo {
		return 0
	}
	return hi - lo
}
