package attribution

import (
	"github.com/vocalith/vocalith/pkg/segment"
)

// Smooth corrects short, isolated label islands in a fully classified
// sequence: an interior segment whose immediate neighbours agree on a
// different label, and whose own duration is below ceiling seconds, is
// relabelled to match them and marked Smoothed for diagnostics.
//
// The first and last segments are never touched, and genuine multi-segment
// speaker changes are left alone — only single-segment islands qualify.
// Returns the number of segments relabelled.
func Smooth(segs []segment.LabeledSegment, ceiling float64) int {
	smoothed := 0
	for i := 1; i < len(segs)-1; i++ {
		prev, cur, next := segs[i-1].SpeakerLabel, segs[i].SpeakerLabel, segs[i+1].SpeakerLabel
		if prev != next || cur == prev {
			continue
		}
		if segs[i].Duration() >= ceiling {
			continue
		}
		segs[i].SpeakerLabel = prev
		segs[i].Smoothed = true
		smoothed++
	}
	return smoothed
}
