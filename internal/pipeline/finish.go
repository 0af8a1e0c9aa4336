package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"adforge/internal/logging"
	"adforge/internal/media"
	"adforge/internal/services"
	"adforge/internal/store"
	"adforge/internal/workspace"
)

// runMerge concatenates the surviving clips in index order. Zero verified
// clips is a fatal structural error; a single clip is passed through without
// re-encoding.
func (d *Driver) runMerge(ctx context.Context, ws *workspace.Workspace, job *store.Job) error {
	if workspace.Exists(ws.Merged()) {
		job.MergedFile = ws.Merged()
		return nil
	}

	clips, err := d.store.ClipsForJob(ctx, job.ID)
	if err != nil {
		return err
	}
	var paths []string
	for _, clip := range clips {
		if clip.Status != store.ClipVerified {
			continue
		}
		path := ws.Clip(clip.Idx)
		if !workspace.Exists(path) {
			return services.Wrap(services.ErrValidation, "merge", "collect",
				fmt.Sprintf("clip %d is verified but its video is missing", clip.Idx), nil)
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return services.Wrap(services.ErrValidation, "merge", "collect", "no clips survived to merge", nil)
	}

	if len(paths) == 1 {
		if err := media.CopyFile(paths[0], ws.Merged()); err != nil {
			return services.Wrap(services.ErrExternalTool, "merge", "passthrough", "copy single clip", err)
		}
	} else if err := d.toolkit.ConcatClips(ctx, paths, ws.Merged()); err != nil {
		return services.Wrap(services.ErrExternalTool, "merge", "concat", "concatenate clips", err)
	}

	job.MergedFile = ws.Merged()
	logging.WithContext(ctx, d.logger).Info("clips merged",
		logging.Int("clip_count", len(paths)),
	)
	return nil
}

// runEnhance converts the merged soundtrack to the requested voice and muxes
// it back. Enhancement failure is not fatal: the merged output carries
// forward unchanged.
func (d *Driver) runEnhance(ctx context.Context, ws *workspace.Workspace, job *store.Job) error {
	if workspace.Exists(ws.Enhanced()) {
		return nil
	}
	logger := logging.WithContext(ctx, d.logger)

	err := d.enhanceVoice(ctx, ws, job)
	if err == nil {
		return nil
	}
	logger.Warn("voice enhancement failed, keeping original soundtrack", logging.Error(err))
	if copyErr := media.CopyFile(ws.Merged(), ws.Enhanced()); copyErr != nil {
		return services.Wrap(services.ErrExternalTool, "enhance", "fallback", "carry merged output forward", copyErr)
	}
	return nil
}

func (d *Driver) enhanceVoice(ctx context.Context, ws *workspace.Workspace, job *store.Job) error {
	if !workspace.Exists(ws.MergedAudio()) {
		if err := d.toolkit.ExtractAudio(ctx, ws.Merged(), ws.MergedAudio()); err != nil {
			return fmt.Errorf("extract merged soundtrack: %w", err)
		}
	}
	if !workspace.Exists(ws.EnhancedVoice()) {
		if err := d.speech.ConvertVoice(ctx, ws.MergedAudio(), job.Voice, ws.EnhancedVoice()); err != nil {
			return fmt.Errorf("convert voice: %w", err)
		}
	}
	if err := d.toolkit.ReplaceAudio(ctx, ws.Merged(), ws.EnhancedVoice(), ws.Enhanced()); err != nil {
		return fmt.Errorf("mux enhanced soundtrack: %w", err)
	}
	return nil
}

// runFinalize publishes the finished video as the job's durable asset.
func (d *Driver) runFinalize(ctx context.Context, ws *workspace.Workspace, job *store.Job) error {
	if !workspace.Exists(ws.Final()) {
		source := ws.Enhanced()
		if !workspace.Exists(source) {
			source = ws.Merged()
		}
		if !workspace.Exists(source) {
			return services.Wrap(services.ErrValidation, "finalize", "collect", "no merged output to publish", nil)
		}
		if err := media.CopyFile(source, ws.Final()); err != nil {
			return services.Wrap(services.ErrExternalTool, "finalize", "publish", "copy final video", err)
		}
	}
	job.FinalFile = ws.Final()
	if job.AssetID == "" {
		job.AssetID = uuid.NewString()
	}
	return nil
}
