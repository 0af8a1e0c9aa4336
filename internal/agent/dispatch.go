package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"adforge/internal/config"
	"adforge/internal/logging"
	"adforge/internal/media"
	"adforge/internal/metrics"
	"adforge/internal/pipeline"
	"adforge/internal/services"
	"adforge/internal/store"
	"adforge/internal/workspace"
)

// dispatcher executes tool calls against the job's primitive operations.
// Handlers never return an error to the loop: every failure is encoded as a
// JSON error payload so the model can decide to retry, adjust, or skip.
type dispatcher struct {
	store     *store.Store
	cfg       *config.Config
	toolkit   *media.Toolkit
	speech    pipeline.SpeechService
	videos    pipeline.VideoService
	prompts   pipeline.PromptService
	verifier  pipeline.ClipVerifier
	segments  pipeline.AudioSegmenter
	collector *metrics.Metrics
	logger    *slog.Logger

	ws  *workspace.Workspace
	job *store.Job

	// attempts counts generations per clip index. The ceiling holds even if
	// the model ignores the documented retry limit.
	attempts  map[int]int
	finalized bool
	finalFile string
	assetID   string
}

type dispatchOutcome struct {
	tool      string
	clipIndex int
	failed    bool
}

func errorPayload(format string, args ...any) string {
	raw, _ := json.Marshal(map[string]string{"error": fmt.Sprintf(format, args...)})
	return string(raw)
}

func resultPayload(fields map[string]any) string {
	raw, err := json.Marshal(fields)
	if err != nil {
		return errorPayload("encode tool result: %v", err)
	}
	return string(raw)
}

// dispatch runs one named tool and returns the JSON payload for the
// transcript plus what happened, for progress and termination bookkeeping.
func (d *dispatcher) dispatch(ctx context.Context, name string, arguments string) (string, dispatchOutcome) {
	outcome := dispatchOutcome{tool: name, clipIndex: -1}
	logger := logging.WithContext(ctx, d.logger)

	var payload string
	switch name {
	case ToolGeneratePrompts:
		payload = d.generatePrompts(ctx)
	case ToolGenerateOneClip:
		var args generateClipArgs
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			payload = errorPayload("invalid %s arguments: %v", name, err)
			break
		}
		outcome.clipIndex = args.ClipIndex
		payload = d.generateOneClip(ctx, args)
	case ToolVerifyOneClip:
		var args verifyClipArgs
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			payload = errorPayload("invalid %s arguments: %v", name, err)
			break
		}
		outcome.clipIndex = args.ClipIndex
		payload = d.verifyOneClip(ctx, args)
	case ToolMergeClips:
		payload = d.mergeClips(ctx)
	case ToolEnhanceVoice:
		var args enhanceVoiceArgs
		if arguments != "" {
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				payload = errorPayload("invalid %s arguments: %v", name, err)
				break
			}
		}
		payload = d.enhanceVoice(ctx, args)
	case ToolFinalize:
		payload = d.finalize(ctx)
	default:
		payload = errorPayload("unknown tool %q: the available tools are the only operations", name)
	}

	var check struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(payload), &check) == nil && check.Error != "" {
		outcome.failed = true
		logger.Warn("tool call failed",
			logging.String("tool", name),
			logging.String("reason", check.Error),
		)
	} else {
		logger.Info("tool call completed", logging.String("tool", name))
	}
	return payload, outcome
}

func (d *dispatcher) generatePrompts(ctx context.Context) string {
	if !workspace.Exists(d.ws.VoiceTrack()) {
		if err := d.speech.Synthesize(ctx, d.job.Script, d.job.Voice, d.ws.VoiceTrack()); err != nil {
			return errorPayload("synthesize voice track: %v", err)
		}
	}

	var pairs []promptPlanEntry
	existing, err := d.store.ClipsForJob(ctx, d.job.ID)
	if err != nil {
		return errorPayload("load clip tasks: %v", err)
	}
	if len(existing) > 0 {
		for _, clip := range existing {
			pairs = append(pairs, promptPlanEntry{
				Index:           clip.Idx,
				Prompt:          clip.Prompt,
				Fragment:        clip.Fragment,
				DurationSeconds: int(clip.DurationSec),
			})
		}
		return resultPayload(map[string]any{"clips": pairs, "note": "clip tasks already planned"})
	}

	generated, err := d.prompts.GeneratePrompts(ctx, d.job.Script, d.job.CharacterName, d.cfg.Workflow.MaxClips)
	if err != nil {
		return errorPayload("split script into prompts: %v", err)
	}
	if len(generated) == 0 {
		return errorPayload("prompt generation produced no clips")
	}

	fragments := make([]string, len(generated))
	for i, pair := range generated {
		fragments[i] = pair.Fragment
	}
	segments, err := d.segments.Run(ctx, d.ws, d.ws.VoiceTrack(), fragments)
	if err != nil {
		return errorPayload("segment voice track: %v", err)
	}
	if len(segments) != len(generated) {
		return errorPayload("%d audio segments for %d prompts", len(segments), len(generated))
	}
	durations := pipeline.ClipDurations(segments, d.cfg.Workflow.MaxTotalSeconds)

	if err := workspace.WriteJSON(d.ws.Prompts(), generated); err != nil {
		return errorPayload("persist prompt artifact: %v", err)
	}
	for i, pair := range generated {
		clip := &store.ClipTask{
			JobID:       d.job.ID,
			Idx:         i,
			Prompt:      pair.Prompt,
			Fragment:    pair.Fragment,
			DurationSec: float64(durations[i]),
			Status:      store.ClipPending,
		}
		if err := d.store.InsertClip(ctx, clip); err != nil {
			return errorPayload("record clip task %d: %v", i, err)
		}
		pairs = append(pairs, promptPlanEntry{
			Index:           i,
			Prompt:          pair.Prompt,
			Fragment:        pair.Fragment,
			DurationSeconds: durations[i],
		})
	}
	return resultPayload(map[string]any{"clips": pairs})
}

type promptPlanEntry struct {
	Index           int    `json:"index"`
	Prompt          string `json:"prompt"`
	Fragment        string `json:"fragment"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (d *dispatcher) generateOneClip(ctx context.Context, args generateClipArgs) string {
	clip, err := d.store.ClipByIndex(ctx, d.job.ID, args.ClipIndex)
	if err != nil {
		return errorPayload("load clip %d: %v", args.ClipIndex, err)
	}
	if clip == nil {
		return errorPayload("clip %d does not exist: call %s first", args.ClipIndex, ToolGeneratePrompts)
	}
	if clip.Status == store.ClipFailed {
		return errorPayload("clip %d is failed and cannot be regenerated", clip.Idx)
	}

	maxAttempts := d.cfg.Workflow.ClipRetryLimit + 1
	if d.attempts[clip.Idx] >= maxAttempts {
		clip.Status = store.ClipFailed
		if err := d.store.UpdateClip(ctx, clip); err != nil {
			return errorPayload("record clip %d failure: %v", clip.Idx, err)
		}
		d.collector.ClipFailed()
		return errorPayload("clip %d reached the limit of %d generation attempts; proceed without it",
			clip.Idx, maxAttempts)
	}

	if args.Prompt != "" && args.Prompt != clip.Prompt {
		clip.Prompt = args.Prompt
	}
	if d.attempts[clip.Idx] > 0 {
		// Every regeneration bumps the persisted retry counter, prompt
		// change or not, so a restart cannot reset the ceiling.
		clip.RetryCount = d.attempts[clip.Idx]
		d.collector.ClipRetried()
	}

	clipPath := d.ws.Clip(clip.Idx)
	if err := os.Remove(clipPath); err != nil && !os.IsNotExist(err) {
		return errorPayload("discard previous clip %d video: %v", clip.Idx, err)
	}

	clip.Status = store.ClipGenerating
	if err := d.store.UpdateClip(ctx, clip); err != nil {
		return errorPayload("record clip %d state: %v", clip.Idx, err)
	}

	d.attempts[clip.Idx]++
	if err := d.generateWithContinuity(ctx, clip, clipPath); err != nil {
		return errorPayload("generate clip %d: %v", clip.Idx, err)
	}

	clip.VideoFile = clipPath
	clip.Status = store.ClipVerifying
	if err := d.store.UpdateClip(ctx, clip); err != nil {
		return errorPayload("record clip %d video: %v", clip.Idx, err)
	}
	d.collector.ClipGenerated()
	return resultPayload(map[string]any{
		"clip_index":       clip.Idx,
		"video_file":       clipPath,
		"duration_seconds": int(clip.DurationSec),
		"attempt":          d.attempts[clip.Idx],
	})
}

// generateWithContinuity mirrors the deterministic driver's seeding rules:
// continuity frame for every clip after the first, and a single retry with
// the original reference image when the frame is rejected on policy grounds.
func (d *dispatcher) generateWithContinuity(ctx context.Context, clip *store.ClipTask, clipPath string) error {
	seed := d.ws.ReferenceImage()
	usedContinuity := false
	if d.cfg.Workflow.FrameContinuity && clip.Idx > 0 {
		prevFrame := d.ws.LastFrame(clip.Idx - 1)
		if !workspace.Exists(prevFrame) {
			if err := d.toolkit.LastFrame(ctx, d.ws.Clip(clip.Idx-1), prevFrame); err != nil {
				return fmt.Errorf("extract continuity frame: %w", err)
			}
		}
		seed = prevFrame
		usedContinuity = true
	}

	req := pipeline.VideoRequest{
		Prompt:      clip.Prompt,
		ImagePath:   seed,
		DurationSec: int(clip.DurationSec),
		AspectRatio: d.job.AspectRatio,
	}
	err := d.videos.Generate(ctx, req, clipPath)
	if err != nil && usedContinuity && services.IsContentPolicy(err) {
		logging.WithContext(ctx, d.logger).Warn("continuity frame rejected, retrying with reference image",
			logging.Int(logging.FieldClipIndex, clip.Idx),
		)
		req.ImagePath = d.ws.ReferenceImage()
		err = d.videos.Generate(ctx, req, clipPath)
	}
	return err
}

func (d *dispatcher) verifyOneClip(ctx context.Context, args verifyClipArgs) string {
	clip, err := d.store.ClipByIndex(ctx, d.job.ID, args.ClipIndex)
	if err != nil {
		return errorPayload("load clip %d: %v", args.ClipIndex, err)
	}
	if clip == nil {
		return errorPayload("clip %d does not exist", args.ClipIndex)
	}
	clipPath := d.ws.Clip(clip.Idx)
	if !workspace.Exists(clipPath) {
		return errorPayload("clip %d has no generated video to verify", clip.Idx)
	}

	// The clip row is the durable source for the attempt number; the
	// in-memory counter can trail it right after a restart.
	attempt := max(d.attempts[clip.Idx], clip.RetryCount+1)
	result, err := d.verifier.VerifyClip(ctx, d.ws, clip.Idx, attempt, clipPath, clip.Fragment, clip.Prompt)
	if err != nil {
		return errorPayload("verify clip %d: %v", clip.Idx, err)
	}

	clip.Confidence = result.Confidence
	clip.VerifyNotes = result.Description
	attemptsLeft := d.cfg.Workflow.ClipRetryLimit + 1 - attempt
	if result.Verified {
		clip.Verified = true
		clip.Status = store.ClipVerified
	} else if attemptsLeft <= 0 {
		clip.Status = store.ClipFailed
		d.collector.ClipFailed()
	}
	if err := d.store.UpdateClip(ctx, clip); err != nil {
		return errorPayload("record clip %d verification: %v", clip.Idx, err)
	}

	return resultPayload(map[string]any{
		"clip_index":         clip.Idx,
		"verified":           result.Verified,
		"confidence":         result.Confidence,
		"description":        result.Description,
		"attempts_remaining": max(attemptsLeft, 0),
	})
}

func (d *dispatcher) mergeClips(ctx context.Context) string {
	if workspace.Exists(d.ws.Merged()) {
		d.job.MergedFile = d.ws.Merged()
		return resultPayload(map[string]any{"merged_file": d.ws.Merged(), "note": "already merged"})
	}

	clips, err := d.store.ClipsForJob(ctx, d.job.ID)
	if err != nil {
		return errorPayload("load clip tasks: %v", err)
	}
	var paths []string
	for _, clip := range clips {
		if clip.Status != store.ClipVerified {
			continue
		}
		path := d.ws.Clip(clip.Idx)
		if !workspace.Exists(path) {
			return errorPayload("clip %d is verified but its video is missing", clip.Idx)
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return errorPayload("no verified clips to merge")
	}

	if len(paths) == 1 {
		if err := media.CopyFile(paths[0], d.ws.Merged()); err != nil {
			return errorPayload("pass single clip through: %v", err)
		}
	} else if err := d.toolkit.ConcatClips(ctx, paths, d.ws.Merged()); err != nil {
		return errorPayload("concatenate clips: %v", err)
	}

	d.job.MergedFile = d.ws.Merged()
	return resultPayload(map[string]any{
		"merged_file": d.ws.Merged(),
		"clip_count":  len(paths),
	})
}

func (d *dispatcher) enhanceVoice(ctx context.Context, args enhanceVoiceArgs) string {
	if !workspace.Exists(d.ws.Merged()) {
		return errorPayload("no merged video to enhance: call %s first", ToolMergeClips)
	}
	if workspace.Exists(d.ws.Enhanced()) {
		return resultPayload(map[string]any{"enhanced_file": d.ws.Enhanced(), "note": "already enhanced"})
	}

	voice := args.Voice
	if voice == "" {
		voice = d.job.Voice
	}
	err := d.runEnhancement(ctx, voice)
	if err == nil {
		return resultPayload(map[string]any{"enhanced_file": d.ws.Enhanced(), "enhanced": true})
	}

	logging.WithContext(ctx, d.logger).Warn("voice enhancement failed, keeping original soundtrack",
		logging.Error(err),
	)
	if copyErr := media.CopyFile(d.ws.Merged(), d.ws.Enhanced()); copyErr != nil {
		return errorPayload("carry merged output forward: %v", copyErr)
	}
	return resultPayload(map[string]any{
		"enhanced_file": d.ws.Enhanced(),
		"enhanced":      false,
		"note":          fmt.Sprintf("enhancement failed (%v); original soundtrack kept", err),
	})
}

func (d *dispatcher) runEnhancement(ctx context.Context, voice string) error {
	if !workspace.Exists(d.ws.MergedAudio()) {
		if err := d.toolkit.ExtractAudio(ctx, d.ws.Merged(), d.ws.MergedAudio()); err != nil {
			return fmt.Errorf("extract merged soundtrack: %w", err)
		}
	}
	if !workspace.Exists(d.ws.EnhancedVoice()) {
		if err := d.speech.ConvertVoice(ctx, d.ws.MergedAudio(), voice, d.ws.EnhancedVoice()); err != nil {
			return fmt.Errorf("convert voice: %w", err)
		}
	}
	if err := d.toolkit.ReplaceAudio(ctx, d.ws.Merged(), d.ws.EnhancedVoice(), d.ws.Enhanced()); err != nil {
		return fmt.Errorf("mux enhanced soundtrack: %w", err)
	}
	return nil
}

func (d *dispatcher) finalize(ctx context.Context) string {
	if !workspace.Exists(d.ws.Final()) {
		source := d.ws.Enhanced()
		if !workspace.Exists(source) {
			source = d.ws.Merged()
		}
		if !workspace.Exists(source) {
			return errorPayload("no merged output to publish: call %s first", ToolMergeClips)
		}
		if err := media.CopyFile(source, d.ws.Final()); err != nil {
			return errorPayload("copy final video: %v", err)
		}
	}

	d.finalFile = d.ws.Final()
	if d.assetID == "" {
		d.assetID = uuid.NewString()
	}
	d.finalized = true
	return resultPayload(map[string]any{
		"asset_id":   d.assetID,
		"final_file": d.finalFile,
	})
}
