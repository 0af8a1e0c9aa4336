// Package verify decides whether a generated clip matches the script
// fragment and prompt it was produced from.
package verify

import (
	"context"
	"fmt"
	"os"
	"time"

	"adforge/internal/media"
	"adforge/internal/services"
	"adforge/internal/services/vision"
	"adforge/internal/workspace"
)

// Result is the outcome of one verification attempt. Immutable once
// produced; a retry produces a new Result.
type Result struct {
	ClipIndex   int       `json:"clip_index"`
	Attempt     int       `json:"attempt"`
	Verified    bool      `json:"verified"`
	Confidence  float64   `json:"confidence"`
	Description string    `json:"description"`
	Fragment    string    `json:"fragment"`
	Prompt      string    `json:"prompt"`
	CheckedAt   time.Time `json:"checked_at"`
}

// FrameAnalyzer is the vision-side contract the verifier depends on.
type FrameAnalyzer interface {
	AnalyzeFrame(ctx context.Context, framePath, fragment, prompt string) (vision.Analysis, error)
}

// Verifier extracts a representative frame from a clip, sends it for vision
// analysis, and applies the confidence threshold.
type Verifier struct {
	analyzer  FrameAnalyzer
	toolkit   *media.Toolkit
	threshold float64
	now       func() time.Time
}

// NewVerifier builds a verifier with the given confidence threshold.
func NewVerifier(analyzer FrameAnalyzer, toolkit *media.Toolkit, threshold float64) *Verifier {
	return &Verifier{
		analyzer:  analyzer,
		toolkit:   toolkit,
		threshold: threshold,
		now:       time.Now,
	}
}

// Threshold reports the configured acceptance threshold.
func (v *Verifier) Threshold() float64 { return v.threshold }

// VerifyClip checks the clip at clipPath against its fragment and prompt.
// A clip passes iff confidence >= threshold. The result is appended to the
// clip's verification log so every attempt stays on record.
func (v *Verifier) VerifyClip(ctx context.Context, ws *workspace.Workspace, clipIndex, attempt int, clipPath, fragment, prompt string) (Result, error) {
	var empty Result

	// A retried clip replaces its video, so the frame is re-extracted on
	// every attempt rather than resumed from a previous one.
	framePath := ws.LastFrame(clipIndex)
	if workspace.Exists(framePath) {
		if err := os.Remove(framePath); err != nil {
			return empty, services.Wrap(services.ErrExternalTool, "verify",
				fmt.Sprintf("clip %d", clipIndex), "discard stale frame", err)
		}
	}
	if err := v.toolkit.LastFrame(ctx, clipPath, framePath); err != nil {
		return empty, services.Wrap(services.ErrExternalTool, "verify",
			fmt.Sprintf("clip %d", clipIndex), "extract frame", err)
	}

	analysis, err := v.analyzer.AnalyzeFrame(ctx, framePath, fragment, prompt)
	if err != nil {
		return empty, err
	}

	result := Result{
		ClipIndex:   clipIndex,
		Attempt:     attempt,
		Verified:    analysis.Confidence >= v.threshold,
		Confidence:  analysis.Confidence,
		Description: analysis.Description,
		Fragment:    fragment,
		Prompt:      prompt,
		CheckedAt:   v.now().UTC(),
	}
	if err := workspace.AppendJSONLine(ws.Verification(clipIndex), result); err != nil {
		return empty, services.Wrap(services.ErrExternalTool, "verify",
			fmt.Sprintf("clip %d", clipIndex), "record result", err)
	}
	return result, nil
}
