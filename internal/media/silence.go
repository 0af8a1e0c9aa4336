package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Silence is one detected silent gap in a recording.
type Silence struct {
	Start float64
	End   float64
}

// Midpoint returns the center of the gap, used for boundary snapping.
func (s Silence) Midpoint() float64 {
	return (s.Start + s.End) / 2
}

// DetectSilences runs ffmpeg's silencedetect filter over an audio file and
// returns the silent gaps. noiseDB is the loudness floor (e.g. -30) and
// minDuration the shortest gap to report, in seconds.
func (t *Toolkit) DetectSilences(ctx context.Context, path string, noiseDB float64, minDuration float64) ([]Silence, error) {
	filter := fmt.Sprintf("silencedetect=noise=%.0fdB:d=%.2f", noiseDB, minDuration)
	args := []string{
		"-hide_banner",
		"-i", path,
		"-af", filter,
		"-f", "null",
		"-",
	}
	// silencedetect reports on stderr; the null muxer makes the run cheap.
	output, err := t.run(ctx, t.ffmpeg, args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg silencedetect: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return ParseSilences(string(output)), nil
}

// ParseSilences extracts silence intervals from silencedetect log output.
// A trailing silence_start without a matching silence_end (silence running to
// the end of the file) is dropped; the segment planner treats end-of-file as a
// boundary anyway.
func ParseSilences(output string) []Silence {
	var (
		silences []Silence
		start    float64
		open     bool
	)
	for _, line := range strings.Split(output, "\n") {
		if idx := strings.Index(line, "silence_start:"); idx >= 0 {
			if value, ok := parseTrailingFloat(line[idx+len("silence_start:"):]); ok {
				start = value
				open = true
			}
			continue
		}
		if idx := strings.Index(line, "silence_end:"); idx >= 0 && open {
			rest := line[idx+len("silence_end:"):]
			if cut := strings.Index(rest, "|"); cut >= 0 {
				rest = rest[:cut]
			}
			if value, ok := parseTrailingFloat(rest); ok {
				silences = append(silences, Silence{Start: start, End: value})
				open = false
			}
		}
	}
	return silences
}

func parseTrailingFloat(raw string) (float64, bool) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return 0, false
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
