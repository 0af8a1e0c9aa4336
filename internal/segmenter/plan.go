package segmenter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"adforge/internal/media"
)

// Span is one planned slice of the recording, in seconds.
type Span struct {
	Start float64
	End   float64
}

// Duration returns the span length in seconds.
func (s Span) Duration() float64 { return s.End - s.Start }

// Weights returns each fragment's share of the total character count. Longer
// text expects proportionally longer audio.
func Weights(fragments []string) []float64 {
	counts := make([]int, len(fragments))
	total := 0
	for i, fragment := range fragments {
		counts[i] = utf8.RuneCountInString(fragment)
		total += counts[i]
	}
	weights := make([]float64, len(fragments))
	if total == 0 {
		// Degenerate input: split evenly rather than divide by zero.
		for i := range weights {
			weights[i] = 1 / float64(len(fragments))
		}
		return weights
	}
	for i, count := range counts {
		weights[i] = float64(count) / float64(total)
	}
	return weights
}

// Plan splits a recording of the given duration into one span per fragment.
// Boundaries land on the silence gap whose midpoint is closest to the
// character-weighted expected position, within tolerance; with no gap in
// range the raw expected position is used. The last fragment always receives
// the remainder through the end of the recording, so the spans exactly
// partition [0, duration].
func Plan(fragments []string, duration float64, gaps []media.Silence, tolerance float64) ([]Span, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("segment plan: no fragments")
	}
	for i, fragment := range fragments {
		if strings.TrimSpace(fragment) == "" {
			return nil, fmt.Errorf("segment plan: fragment %d is empty", i)
		}
	}
	if duration <= 0 {
		return nil, fmt.Errorf("segment plan: invalid recording duration %.3f", duration)
	}

	weights := Weights(fragments)
	spans := make([]Span, len(fragments))
	prev := 0.0
	cumulative := 0.0
	for i := 0; i < len(fragments)-1; i++ {
		cumulative += weights[i]
		expected := duration * cumulative
		boundary := snapToGap(expected, gaps, tolerance)
		if boundary <= prev {
			boundary = expected
		}
		if boundary <= prev {
			boundary = prev
		}
		if boundary > duration {
			boundary = duration
		}
		spans[i] = Span{Start: prev, End: boundary}
		prev = boundary
	}
	spans[len(fragments)-1] = Span{Start: prev, End: duration}
	return spans, nil
}

// snapToGap returns the midpoint of the gap closest to expected within
// tolerance, or expected itself when none qualifies.
func snapToGap(expected float64, gaps []media.Silence, tolerance float64) float64 {
	best := expected
	bestDist := tolerance
	for _, gap := range gaps {
		mid := gap.Midpoint()
		dist := mid - expected
		if dist < 0 {
			dist = -dist
		}
		if dist <= bestDist {
			best = mid
			bestDist = dist
		}
	}
	return best
}
