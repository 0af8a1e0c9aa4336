package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"adforge/internal/logging"
	"adforge/internal/services"
	"adforge/internal/store"
	"adforge/internal/workspace"
)

// runVideos generates and verifies every clip task. With frame continuity
// each clip is seeded from the previous clip's final frame, which forces
// sequential generation; without it, clips run under a bounded group.
func (d *Driver) runVideos(ctx context.Context, ws *workspace.Workspace, job *store.Job) error {
	clips, err := d.store.ClipsForJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if len(clips) == 0 {
		return services.Wrap(services.ErrValidation, "videos", "plan", "no clip tasks on record", nil)
	}

	var completed atomic.Int64
	var progressMu sync.Mutex
	progressClip := func(clip *store.ClipTask) {
		done := completed.Add(1)
		percent := 20 + float64(done)/float64(len(clips))*50
		progressMu.Lock()
		job.SetProgress(string(job.Status),
			fmt.Sprintf("clip %d finished (%d/%d)", clip.Idx, done, len(clips)), percent)
		d.publish(job, "clip_finished", fmt.Sprintf("clip %d is %s", clip.Idx, clip.Status))
		progressMu.Unlock()
	}

	if d.cfg.Workflow.FrameContinuity || d.cfg.Workflow.ClipConcurrency <= 1 {
		for _, clip := range clips {
			if clipSettled(clip, ws) {
				completed.Add(1)
				continue
			}
			if err := d.processClip(ctx, ws, job, clip); err != nil {
				return err
			}
			progressClip(clip)
		}
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.cfg.Workflow.ClipConcurrency)
	for _, clip := range clips {
		if clipSettled(clip, ws) {
			completed.Add(1)
			continue
		}
		clip := clip
		group.Go(func() error {
			if err := d.processClip(groupCtx, ws, job, clip); err != nil {
				return err
			}
			progressClip(clip)
			return nil
		})
	}
	return group.Wait()
}

// clipSettled reports whether a clip already reached a final state in a
// previous run.
func clipSettled(clip *store.ClipTask, ws *workspace.Workspace) bool {
	switch clip.Status {
	case store.ClipFailed:
		return true
	case store.ClipVerified:
		return workspace.Exists(ws.Clip(clip.Idx))
	default:
		return false
	}
}

// processClip runs the generate-verify-retry loop for one clip. Verification
// failure is normal control flow: the prompt is adjusted and the clip
// regenerated until the retry ceiling, after which the clip is marked failed
// and the job continues with degraded output.
func (d *Driver) processClip(ctx context.Context, ws *workspace.Workspace, job *store.Job, clip *store.ClipTask) error {
	logger := logging.WithContext(ctx, d.logger)
	clipPath := ws.Clip(clip.Idx)

	for {
		attempt := clip.RetryCount + 1

		if !workspace.Exists(clipPath) {
			clip.Status = store.ClipGenerating
			if err := d.store.UpdateClip(ctx, clip); err != nil {
				return err
			}
			if err := d.generateClip(ctx, ws, job, clip, clipPath); err != nil {
				if ctx.Err() != nil {
					return err
				}
				// A failed generation settles this clip; the job continues
				// with the survivors and merge enforces the no-clips case.
				clip.Status = store.ClipFailed
				d.collector.ClipFailed()
				logger.Warn("clip generation failed, continuing without it",
					logging.Int(logging.FieldClipIndex, clip.Idx),
					logging.Error(err),
				)
				return d.store.UpdateClip(ctx, clip)
			}
			clip.VideoFile = clipPath
			d.collector.ClipGenerated()
		}

		clip.Status = store.ClipVerifying
		if err := d.store.UpdateClip(ctx, clip); err != nil {
			return err
		}
		result, err := d.verifier.VerifyClip(ctx, ws, clip.Idx, attempt, clipPath, clip.Fragment, clip.Prompt)
		if err != nil {
			return err
		}
		clip.Confidence = result.Confidence
		clip.VerifyNotes = result.Description

		if result.Verified {
			clip.Verified = true
			clip.Status = store.ClipVerified
			logger.Info("clip verified",
				logging.Int(logging.FieldClipIndex, clip.Idx),
				logging.Float64("confidence", result.Confidence),
				logging.Int("attempt", attempt),
			)
			return d.store.UpdateClip(ctx, clip)
		}

		if clip.RetryCount >= d.cfg.Workflow.ClipRetryLimit {
			clip.Status = store.ClipFailed
			d.collector.ClipFailed()
			logger.Warn("clip failed verification, retries exhausted",
				logging.Int(logging.FieldClipIndex, clip.Idx),
				logging.Float64("confidence", result.Confidence),
			)
			return d.store.UpdateClip(ctx, clip)
		}

		adjusted, err := d.prompts.AdjustPrompt(ctx, clip.Prompt, clip.Fragment, result.Description)
		if err != nil {
			return err
		}
		clip.Prompt = adjusted
		clip.RetryCount++
		d.collector.ClipRetried()
		logger.Info("clip regeneration scheduled",
			logging.Int(logging.FieldClipIndex, clip.Idx),
			logging.Int("retry_count", clip.RetryCount),
		)
		if err := d.store.UpdateClip(ctx, clip); err != nil {
			return err
		}
		if err := os.Remove(clipPath); err != nil && !os.IsNotExist(err) {
			return services.Wrap(services.ErrExternalTool, "videos",
				fmt.Sprintf("clip %d", clip.Idx), "discard rejected clip", err)
		}
	}
}

// generateClip seeds clip generation with the previous clip's final frame
// when continuity is on. A content-policy rejection of a continuity frame is
// retried once with the original reference image before giving up.
func (d *Driver) generateClip(ctx context.Context, ws *workspace.Workspace, job *store.Job, clip *store.ClipTask, clipPath string) error {
	seed := ws.ReferenceImage()
	usedContinuity := false
	if d.cfg.Workflow.FrameContinuity && clip.Idx > 0 {
		prevFrame := ws.LastFrame(clip.Idx - 1)
		if !workspace.Exists(prevFrame) {
			if err := d.toolkit.LastFrame(ctx, ws.Clip(clip.Idx-1), prevFrame); err != nil {
				return services.Wrap(services.ErrExternalTool, "videos",
					fmt.Sprintf("clip %d", clip.Idx), "extract continuity frame", err)
			}
		}
		seed = prevFrame
		usedContinuity = true
	}

	req := VideoRequest{
		Prompt:      clip.Prompt,
		ImagePath:   seed,
		DurationSec: int(clip.DurationSec),
		AspectRatio: job.AspectRatio,
	}
	err := d.videos.Generate(ctx, req, clipPath)
	if err != nil && usedContinuity && services.IsContentPolicy(err) {
		logging.WithContext(ctx, d.logger).Warn("continuity frame rejected, retrying with reference image",
			logging.Int(logging.FieldClipIndex, clip.Idx),
			logging.Error(err),
		)
		req.ImagePath = ws.ReferenceImage()
		err = d.videos.Generate(ctx, req, clipPath)
	}
	return err
}
