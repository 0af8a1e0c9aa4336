package segmenter

import (
	"math"
	"strings"
	"testing"

	"adforge/internal/media"
)

func spansPartition(t *testing.T, spans []Span, duration float64) {
	t.Helper()
	if len(spans) == 0 {
		t.Fatal("no spans")
	}
	if spans[0].Start != 0 {
		t.Fatalf("first span starts at %v, want 0", spans[0].Start)
	}
	for i := 1; i < len(spans); i++ {
		if spans[i].Start != spans[i-1].End {
			t.Fatalf("gap or overlap between span %d and %d: %v vs %v", i-1, i, spans[i-1].End, spans[i].Start)
		}
	}
	if math.Abs(spans[len(spans)-1].End-duration) > 1e-9 {
		t.Fatalf("last span ends at %v, want %v", spans[len(spans)-1].End, duration)
	}
}

func TestPlanPartitionsRecordingExactly(t *testing.T) {
	cases := []struct {
		name      string
		fragments []string
		duration  float64
		gaps      []media.Silence
	}{
		{"single fragment", []string{"hello there"}, 4.2, nil},
		{"two fragments no gaps", []string{"short", "a much longer fragment here"}, 10, nil},
		{"three fragments with gaps", []string{"one two", "three four five", "six"}, 9.5, []media.Silence{{Start: 2.8, End: 3.2}, {Start: 6.9, End: 7.3}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spans, err := Plan(tc.fragments, tc.duration, tc.gaps, 1.5)
			if err != nil {
				t.Fatalf("plan: %v", err)
			}
			if len(spans) != len(tc.fragments) {
				t.Fatalf("expected %d spans, got %d", len(tc.fragments), len(spans))
			}
			spansPartition(t, spans, tc.duration)
		})
	}
}

func TestWeightsFollowCharacterCounts(t *testing.T) {
	longer := strings.Repeat("a", 80)
	shorter := strings.Repeat("b", 40)
	weights := Weights([]string{shorter, longer})
	if weights[1] < weights[0] {
		t.Fatalf("longer fragment must weigh at least as much: %v", weights)
	}
	if math.Abs(weights[0]-1.0/3) > 1e-9 || math.Abs(weights[1]-2.0/3) > 1e-9 {
		t.Fatalf("expected 1/3 and 2/3, got %v", weights)
	}
}

// A 40/80 character split over a 6s recording puts the raw boundary at 2.0s;
// a gap centered at 2.2s is within tolerance and wins.
func TestPlanSnapsBoundaryToNearestGap(t *testing.T) {
	fragments := []string{strings.Repeat("a", 40), strings.Repeat("b", 80)}
	gaps := []media.Silence{{Start: 2.1, End: 2.3}, {Start: 4.8, End: 5.0}}

	spans, err := Plan(fragments, 6, gaps, 1.5)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if math.Abs(spans[0].End-2.2) > 1e-9 {
		t.Fatalf("boundary should snap to 2.2, got %v", spans[0].End)
	}
	spansPartition(t, spans, 6)
}

func TestPlanFallsBackToRawBoundaryOutsideTolerance(t *testing.T) {
	fragments := []string{strings.Repeat("a", 40), strings.Repeat("b", 80)}
	gaps := []media.Silence{{Start: 4.8, End: 5.2}}

	spans, err := Plan(fragments, 6, gaps, 1.5)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if math.Abs(spans[0].End-2.0) > 1e-9 {
		t.Fatalf("boundary should stay at raw 2.0, got %v", spans[0].End)
	}
}

func TestPlanRejectsEmptyInputs(t *testing.T) {
	if _, err := Plan(nil, 5, nil, 1.5); err == nil {
		t.Fatal("expected error for no fragments")
	}
	if _, err := Plan([]string{"ok", "  "}, 5, nil, 1.5); err == nil {
		t.Fatal("expected error for blank fragment")
	}
	if _, err := Plan([]string{"ok"}, 0, nil, 1.5); err == nil {
		t.Fatal("expected error for zero duration")
	}
}
