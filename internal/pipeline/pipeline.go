// Package pipeline drives a job through the fixed step sequence: prompt
// generation, clip generation, merge, voice enhancement, finalize. Every
// step persists the job around its work and records artifacts in the job
// workspace, so a restarted daemon resumes where the previous run stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adforge/internal/config"
	"adforge/internal/logging"
	"adforge/internal/media"
	"adforge/internal/metrics"
	"adforge/internal/progress"
	"adforge/internal/segmenter"
	"adforge/internal/services"
	"adforge/internal/services/toolllm"
	"adforge/internal/store"
	"adforge/internal/verify"
	"adforge/internal/workspace"
)

// SpeechService is the slice of the speech gateway the pipeline needs.
type SpeechService interface {
	Synthesize(ctx context.Context, script, voice, destPath string) error
	ConvertVoice(ctx context.Context, sourcePath, voice, destPath string) error
}

// VideoService generates one clip end to end.
type VideoService interface {
	Generate(ctx context.Context, req VideoRequest, destPath string) error
}

// VideoRequest mirrors the videogen gateway request without importing it,
// keeping the pipeline testable against stubs.
type VideoRequest struct {
	Prompt      string
	ImagePath   string
	DurationSec int
	AspectRatio string
}

// PromptService produces and adjusts visual prompts.
type PromptService interface {
	GeneratePrompts(ctx context.Context, script, characterName string, maxClips int) ([]toolllm.PromptPair, error)
	AdjustPrompt(ctx context.Context, previousPrompt, fragment, failureNotes string) (string, error)
}

// ClipVerifier checks one generated clip.
type ClipVerifier interface {
	VerifyClip(ctx context.Context, ws *workspace.Workspace, clipIndex, attempt int, clipPath, fragment, prompt string) (verify.Result, error)
}

// AudioSegmenter slices the voice track along fragment boundaries.
type AudioSegmenter interface {
	Run(ctx context.Context, ws *workspace.Workspace, recording string, fragments []string) ([]segmenter.Segment, error)
}

// Driver executes the deterministic step sequence for one job at a time.
type Driver struct {
	store     *store.Store
	cfg       *config.Config
	toolkit   *media.Toolkit
	segments  AudioSegmenter
	speech    SpeechService
	videos    VideoService
	prompts   PromptService
	verifier  ClipVerifier
	bus       *progress.Bus
	collector *metrics.Metrics
	logger    *slog.Logger
}

// Deps collects everything the driver needs.
type Deps struct {
	Store     *store.Store
	Config    *config.Config
	Toolkit   *media.Toolkit
	Segmenter AudioSegmenter
	Speech    SpeechService
	Videos    VideoService
	Prompts   PromptService
	Verifier  ClipVerifier
	Bus       *progress.Bus
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// New constructs a pipeline driver.
func New(deps Deps) *Driver {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Driver{
		store:     deps.Store,
		cfg:       deps.Config,
		toolkit:   deps.Toolkit,
		segments:  deps.Segmenter,
		speech:    deps.Speech,
		videos:    deps.Videos,
		prompts:   deps.Prompts,
		verifier:  deps.Verifier,
		bus:       deps.Bus,
		collector: deps.Metrics,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

type step struct {
	status store.Status
	next   store.Status
	// percent reached when the step completes
	donePercent float64
	run         func(ctx context.Context, ws *workspace.Workspace, job *store.Job) error
}

func (d *Driver) steps() []step {
	return []step{
		{store.StatusGeneratingPrompts, store.StatusGeneratingVideos, 20, d.runPrompts},
		{store.StatusGeneratingVideos, store.StatusMergingVideos, 70, d.runVideos},
		{store.StatusMergingVideos, store.StatusEnhancingVoice, 85, d.runMerge},
		{store.StatusEnhancingVoice, store.StatusFinalizing, 95, d.runEnhance},
		{store.StatusFinalizing, store.StatusCompleted, 100, d.runFinalize},
	}
}

// Run drives the job to a terminal status. Any step error fails the job with
// the error recorded; the clip list is preserved for diagnosis.
func (d *Driver) Run(ctx context.Context, job *store.Job) error {
	ws, err := workspace.ForJob(d.cfg.Paths.WorkspaceDir, job.ID)
	if err != nil {
		return d.failJob(ctx, job, err)
	}
	logger := logging.WithContext(services.WithJobID(ctx, job.ID), d.logger)

	if job.Status == store.StatusPending {
		job.Status = store.StatusGeneratingPrompts
		job.SetProgress(string(job.Status), "job picked up", 1)
		if err := d.store.Update(ctx, job); err != nil {
			return err
		}
		d.publish(job, "job_started", "job picked up")
	}

	for !job.Status.IsTerminal() {
		current, ok := d.stepForStatus(job.Status)
		if !ok {
			return d.failJob(ctx, job, fmt.Errorf("no pipeline step for status %s", job.Status))
		}

		stepCtx := services.WithStep(ctx, string(current.status))
		stepStart := time.Now()
		logger.Info("step started", logging.String(logging.FieldStep, string(current.status)))
		d.publish(job, "step_started", fmt.Sprintf("%s started", current.status))

		if err := current.run(stepCtx, ws, job); err != nil {
			d.collector.ObserveStep(string(current.status), time.Since(stepStart))
			logger.Error("step failed",
				logging.String(logging.FieldStep, string(current.status)),
				logging.Error(err),
			)
			return d.failJob(ctx, job, err)
		}

		job.Status = current.next
		message := fmt.Sprintf("%s completed", current.status)
		if current.next == store.StatusCompleted {
			job.SetCompleted(job.FinalFile, job.AssetID)
		} else {
			job.SetProgress(string(current.next), message, current.donePercent)
		}
		if err := d.store.Update(ctx, job); err != nil {
			return err
		}
		d.collector.ObserveStep(string(current.status), time.Since(stepStart))
		logger.Info("step completed",
			logging.String(logging.FieldStep, string(current.status)),
			logging.Duration("step_duration", time.Since(stepStart)),
		)
		d.publish(job, "step_completed", message)
	}

	if job.Status == store.StatusCompleted {
		d.collector.JobFinished("completed", job.Driver)
		d.publish(job, "job_completed", "job completed")
	}
	return nil
}

func (d *Driver) stepForStatus(status store.Status) (step, bool) {
	for _, s := range d.steps() {
		if s.status == status {
			return s, true
		}
	}
	return step{}, false
}

func (d *Driver) failJob(ctx context.Context, job *store.Job, cause error) error {
	// A canceled context is a shutdown, not a job failure: the job stays in
	// its current status and resumes on the next daemon start.
	if errors.Is(cause, context.Canceled) {
		return cause
	}
	job.SetFailed(cause.Error())
	if err := d.store.Update(ctx, job); err != nil {
		d.logger.Error("failed to persist job failure", logging.Error(err))
	}
	d.collector.JobFinished("failed", job.Driver)
	d.publish(job, "job_failed", cause.Error())
	return cause
}

func (d *Driver) publish(job *store.Job, eventType, message string) {
	if d.bus == nil {
		return
	}
	d.bus.HubFor(job.ID).Publish(progress.Event{
		JobID:   job.ID,
		Type:    eventType,
		Step:    string(job.Status),
		Percent: job.ProgressPercent,
		Message: message,
	})
}
