package segmenter

import (
	"context"
	"log/slog"

	"adforge/internal/logging"
	"adforge/internal/media"
	"adforge/internal/services"
	"adforge/internal/workspace"
)

const (
	// noiseFloorDB is the loudness below which audio counts as silence.
	noiseFloorDB = -30
	// minSilenceSeconds is the shortest gap silencedetect reports.
	minSilenceSeconds = 0.35
	// snapToleranceSeconds bounds how far a boundary may move to land on a gap.
	snapToleranceSeconds = 1.5
)

// Segment is one timed slice of the source recording, annotated with the
// fragment it carries. Segments are contiguous, non-overlapping, and together
// span exactly the recording.
type Segment struct {
	Index     int     `json:"index"`
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Duration  float64 `json:"duration"`
	AudioFile string  `json:"audio_file"`
}

// Segmenter splits one speech recording into per-fragment audio slices whose
// boundaries land on natural pauses.
type Segmenter struct {
	toolkit *media.Toolkit
	logger  *slog.Logger
}

// New constructs a segmenter around the supplied media toolkit.
func New(toolkit *media.Toolkit, logger *slog.Logger) *Segmenter {
	return &Segmenter{
		toolkit: toolkit,
		logger:  logging.NewComponentLogger(logger, "segmenter"),
	}
}

// Run slices the recording into one audio artifact per fragment under the job
// workspace and returns the timed segments. Clip target durations come from
// these segments, which is why segmentation must happen before any video
// generation.
func (s *Segmenter) Run(ctx context.Context, ws *workspace.Workspace, recording string, fragments []string) ([]Segment, error) {
	duration, err := s.toolkit.ProbeDuration(ctx, recording)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "segmenter", "probe", "measure recording duration", err)
	}

	gaps, err := s.toolkit.DetectSilences(ctx, recording, noiseFloorDB, minSilenceSeconds)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "segmenter", "silencedetect", "detect pauses", err)
	}
	s.logger.Debug("detected silence gaps",
		logging.Int("gap_count", len(gaps)),
		logging.Float64("recording_seconds", duration),
	)

	spans, err := Plan(fragments, duration, gaps, snapToleranceSeconds)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "segmenter", "plan", "plan slice boundaries", err)
	}

	segments := make([]Segment, len(spans))
	for i, span := range spans {
		dest := ws.Segment(i)
		if !workspace.Exists(dest) {
			if err := s.toolkit.ExtractSlice(ctx, recording, span.Start, span.Duration(), dest); err != nil {
				return nil, services.Wrap(services.ErrExternalTool, "segmenter", "extract", "export audio slice", err)
			}
		}
		segments[i] = Segment{
			Index:     i,
			Text:      fragments[i],
			Start:     span.Start,
			End:       span.End,
			Duration:  span.Duration(),
			AudioFile: dest,
		}
	}
	return segments, nil
}
