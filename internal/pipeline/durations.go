package pipeline

import "adforge/internal/segmenter"

const (
	shortClipSeconds = 6
	longClipSeconds  = 8
)

// ClipDurations maps each audio segment to the generation service's allowed
// clip lengths (6 or 8 seconds). A segment longer than 6s gets an 8s clip so
// the speech fits; if the total would exceed the budget, the clips covering
// the shortest segments are stepped back down until it does.
func ClipDurations(segments []segmenter.Segment, maxTotalSeconds int) []int {
	durations := make([]int, len(segments))
	total := 0
	for i, segment := range segments {
		durations[i] = shortClipSeconds
		if segment.Duration > shortClipSeconds {
			durations[i] = longClipSeconds
		}
		total += durations[i]
	}
	if maxTotalSeconds <= 0 {
		return durations
	}
	for total > maxTotalSeconds {
		shortest := -1
		for i, d := range durations {
			if d != longClipSeconds {
				continue
			}
			if shortest == -1 || segments[i].Duration < segments[shortest].Duration {
				shortest = i
			}
		}
		if shortest == -1 {
			break
		}
		durations[shortest] = shortClipSeconds
		total -= longClipSeconds - shortClipSeconds
	}
	return durations
}
