package segment_test

import (
	"math"
	"strings"
	"testing"

	"github.com/vocalith/vocalith/pkg/segment"
)

func TestRawSegment_Validate(t *testing.T) {
	t.Parallel()

	valid := segment.RawSegment{Start: 1.0, End: 2.5, Text: "hello"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid segment should pass, got: %v", err)
	}

	cases := []struct {
		name    string
		seg     segment.RawSegment
		wantSub string
	}{
		{
			name:    "end equals start",
			seg:     segment.RawSegment{Start: 2.0, End: 2.0},
			wantSub: "end must be greater than start",
		},
		{
			name:    "end before start",
			seg:     segment.RawSegment{Start: 5.0, End: 3.0},
			wantSub: "end must be greater than start",
		},
		{
			name:    "NaN avg_logprob",
			seg:     segment.RawSegment{Start: 0, End: 1, AvgLogProb: math.NaN()},
			wantSub: "avg_logprob",
		},
		{
			name:    "infinite compression_ratio",
			seg:     segment.RawSegment{Start: 0, End: 1, CompressionRatio: math.Inf(1)},
			wantSub: "compression_ratio",
		},
		{
			name:    "NaN no_speech_prob",
			seg:     segment.RawSegment{Start: 0, End: 1, NoSpeechProb: math.NaN()},
			wantSub: "no_speech_prob",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.seg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q should contain %q", err, tc.wantSub)
			}
		})
	}
}

func TestRawSegment_Duration(t *testing.T) {
	t.Parallel()
	s := segment.RawSegment{Start: 1.5, End: 4.0}
	if got := s.Duration(); got != 2.5 {
		t.Errorf("Duration() = %v, want 2.5", got)
	}
}

func TestKey_Rounding(t *testing.T) {
	t.Parallel()

	// Times that differ only past the second decimal collapse to one key.
	a := segment.Key(1.004, 2.996)
	b := segment.Key(1.001, 2.999)
	if a != b {
		t.Errorf("keys should collapse: %v vs %v", a, b)
	}
	if a.Start != 1.0 || a.End != 3.0 {
		t.Errorf("Key(1.004, 2.996) = %v, want {1, 3}", a)
	}

	// Differences at the second decimal stay distinct.
	c := segment.Key(1.01, 2.0)
	d := segment.Key(1.02, 2.0)
	if c == d {
		t.Errorf("keys should stay distinct: %v vs %v", c, d)
	}
}

func TestKey_StableAsMapKey(t *testing.T) {
	t.Parallel()
	m := map[segment.TimeRange][]float32{}
	m[segment.Key(10.3333333, 12.6666667)] = []float32{1, 2}
	if _, ok := m[segment.Key(10.33, 12.67)]; !ok {
		t.Error("rounded key should retrieve the same entry")
	}
}

func TestSpeakerLabel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []segment.SpeakerLabel{segment.SpeakerUnknown, segment.SpeakerPrimary, segment.SpeakerGuest} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if segment.SpeakerLabel("host").IsValid() {
		t.Error(`"host" should be invalid`)
	}
	if segment.SpeakerLabel("").IsValid() {
		t.Error("empty label should be invalid")
	}
}
