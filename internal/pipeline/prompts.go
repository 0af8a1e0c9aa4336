package pipeline

import (
	"context"
	"fmt"

	"adforge/internal/logging"
	"adforge/internal/services"
	"adforge/internal/services/toolllm"
	"adforge/internal/store"
	"adforge/internal/workspace"
)

// runPrompts synthesizes the voice track, splits the script into prompt and
// fragment pairs, slices the audio along the fragments, and creates one clip
// task per pair. Each sub-step resumes from its artifact when present.
func (d *Driver) runPrompts(ctx context.Context, ws *workspace.Workspace, job *store.Job) error {
	if !workspace.Exists(ws.VoiceTrack()) {
		if err := d.speech.Synthesize(ctx, job.Script, job.Voice, ws.VoiceTrack()); err != nil {
			return err
		}
	}

	var pairs []toolllm.PromptPair
	if workspace.Exists(ws.Prompts()) {
		if err := workspace.ReadJSON(ws.Prompts(), &pairs); err != nil {
			return services.Wrap(services.ErrValidation, "prompts", "resume", "read prompt artifact", err)
		}
	} else {
		generated, err := d.prompts.GeneratePrompts(ctx, job.Script, job.CharacterName, d.cfg.Workflow.MaxClips)
		if err != nil {
			return services.Wrap(services.ErrValidation, "prompts", "generate", "split script into prompts", err)
		}
		if err := workspace.WriteJSON(ws.Prompts(), generated); err != nil {
			return services.Wrap(services.ErrExternalTool, "prompts", "persist", "write prompt artifact", err)
		}
		pairs = generated
	}
	if len(pairs) == 0 {
		return services.Wrap(services.ErrValidation, "prompts", "generate", "no prompts produced", nil)
	}

	fragments := make([]string, len(pairs))
	for i, pair := range pairs {
		fragments[i] = pair.Fragment
	}
	segments, err := d.segments.Run(ctx, ws, ws.VoiceTrack(), fragments)
	if err != nil {
		return err
	}
	if len(segments) != len(pairs) {
		return services.Wrap(services.ErrValidation, "prompts", "segment",
			fmt.Sprintf("%d segments for %d prompts", len(segments), len(pairs)), nil)
	}

	durations := ClipDurations(segments, d.cfg.Workflow.MaxTotalSeconds)

	existing, err := d.store.ClipsForJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		if len(existing) != len(pairs) {
			return services.Wrap(services.ErrValidation, "prompts", "resume",
				fmt.Sprintf("%d clip tasks on record for %d prompts", len(existing), len(pairs)), nil)
		}
		return nil
	}

	for i, pair := range pairs {
		clip := &store.ClipTask{
			JobID:       job.ID,
			Idx:         i,
			Prompt:      pair.Prompt,
			Fragment:    pair.Fragment,
			DurationSec: float64(durations[i]),
			Status:      store.ClipPending,
		}
		if err := d.store.InsertClip(ctx, clip); err != nil {
			return err
		}
		d.logger.Debug("clip task created",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Int(logging.FieldClipIndex, i),
			logging.Int("target_seconds", durations[i]),
		)
	}
	job.SetProgress(string(job.Status), fmt.Sprintf("%d clips planned", len(pairs)), 15)
	return nil
}
