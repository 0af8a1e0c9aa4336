package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// CommandRunner executes an external binary and returns its combined output.
// Injectable for tests.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Toolkit wraps the ffmpeg/ffprobe operations the pipeline needs.
type Toolkit struct {
	ffmpeg  string
	ffprobe string
	run     CommandRunner
}

// NewToolkit constructs a toolkit around the configured binaries.
func NewToolkit(ffmpegBin, ffprobeBin string) *Toolkit {
	if strings.TrimSpace(ffmpegBin) == "" {
		ffmpegBin = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBin) == "" {
		ffprobeBin = "ffprobe"
	}
	return &Toolkit{ffmpeg: ffmpegBin, ffprobe: ffprobeBin, run: defaultCommandRunner}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (t *Toolkit) WithCommandRunner(r CommandRunner) *Toolkit {
	if t != nil && r != nil {
		t.run = r
	}
	return t
}

// ProbeDuration returns a media file's duration in seconds.
func (t *Toolkit) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	output, err := t.run(ctx, t.ffprobe, args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w: %s", err, strings.TrimSpace(string(output)))
	}
	value := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: parse %q: %w", value, err)
	}
	return duration, nil
}

// ExtractAudio extracts the audio track of a video into a WAV file.
func (t *Toolkit) ExtractAudio(ctx context.Context, source, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-ac", "1",
		"-ar", "44100",
		"-c:a", "pcm_s16le",
		dest,
	}
	if output, err := t.run(ctx, t.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ExtractSlice copies a time range of an audio file into a standalone WAV file.
func (t *Toolkit) ExtractSlice(ctx context.Context, source string, startSec, durationSec float64, dest string) error {
	if durationSec <= 0 {
		return fmt.Errorf("extract slice: invalid duration %.3f", durationSec)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(startSec),
		"-t", formatSeconds(durationSec),
		"-i", source,
		"-c:a", "pcm_s16le",
		dest,
	}
	if output, err := t.run(ctx, t.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg extract slice: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ConcatClips concatenates video clips into a single file, preserving order
// and audio tracks. Callers handle the single-clip passthrough case; this
// always re-muxes via the concat demuxer.
func (t *Toolkit) ConcatClips(ctx context.Context, clips []string, dest string) error {
	if len(clips) == 0 {
		return fmt.Errorf("concat: no clips to merge")
	}

	listPath := dest + ".concat.txt"
	var list strings.Builder
	for _, clip := range clips {
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(clip, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("concat: write list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		dest,
	}
	if output, err := t.run(ctx, t.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg concat: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ReplaceAudio splices a replacement audio track over a video's original,
// trimming to the shorter of the two durations.
func (t *Toolkit) ReplaceAudio(ctx context.Context, video, audio, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		dest,
	}
	if output, err := t.run(ctx, t.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg replace audio: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// LastFrame extracts the final frame of a video as a PNG, used as the visual
// seed for the next clip.
func (t *Toolkit) LastFrame(ctx context.Context, video, dest string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-sseof", "-0.1",
		"-i", video,
		"-frames:v", "1",
		dest,
	}
	if output, err := t.run(ctx, t.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg last frame: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// CopyFile duplicates an artifact without re-encoding, used for single-clip
// merge passthrough.
func CopyFile(source, dest string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("copy: read %s: %w", filepath.Base(source), err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("copy: write %s: %w", filepath.Base(dest), err)
	}
	return nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
