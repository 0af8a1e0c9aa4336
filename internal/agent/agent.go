// Package agent drives a job with a tool-calling model instead of the fixed
// step sequence. The model sees the same primitive operations the pipeline
// performs, exposed as a closed menu of six tools, and decides the order and
// the retry strategy itself. Hard ceilings on iterations, wall-clock time,
// and per-clip generation attempts hold regardless of what the model does.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"adforge/internal/config"
	"adforge/internal/logging"
	"adforge/internal/media"
	"adforge/internal/metrics"
	"adforge/internal/pipeline"
	"adforge/internal/progress"
	"adforge/internal/services"
	"adforge/internal/services/toolllm"
	"adforge/internal/store"
	"adforge/internal/workspace"
)

// ChatClient is the slice of the tool-model gateway the loop needs.
type ChatClient interface {
	Chat(ctx context.Context, req toolllm.ChatRequest) (toolllm.ChatResult, error)
}

// Deps collects everything the driver needs.
type Deps struct {
	Store     *store.Store
	Config    *config.Config
	Toolkit   *media.Toolkit
	Chat      ChatClient
	Speech    pipeline.SpeechService
	Videos    pipeline.VideoService
	Prompts   pipeline.PromptService
	Verifier  pipeline.ClipVerifier
	Segmenter pipeline.AudioSegmenter
	Bus       *progress.Bus
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Driver runs the agentic tool-dispatch loop for one job at a time.
type Driver struct {
	store     *store.Store
	cfg       *config.Config
	toolkit   *media.Toolkit
	chat      ChatClient
	speech    pipeline.SpeechService
	videos    pipeline.VideoService
	prompts   pipeline.PromptService
	verifier  pipeline.ClipVerifier
	segments  pipeline.AudioSegmenter
	bus       *progress.Bus
	collector *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs an agentic driver.
func New(deps Deps) *Driver {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Driver{
		store:     deps.Store,
		cfg:       deps.Config,
		toolkit:   deps.Toolkit,
		chat:      deps.Chat,
		speech:    deps.Speech,
		videos:    deps.Videos,
		prompts:   deps.Prompts,
		verifier:  deps.Verifier,
		segments:  deps.Segmenter,
		bus:       deps.Bus,
		collector: deps.Metrics,
		logger:    logging.NewComponentLogger(logger, "agent"),
		now:       time.Now,
	}
}

const systemInstructions = `You orchestrate the production of one short video advertisement by calling tools. Work only through the tools; never describe work you have not done.

Rules:
- Call %s first to plan the clips. Plan at most %d clips totaling at most %d seconds of video.
- Generate every planned clip with %s, then verify it with %s. A clip counts only when verification reports verified=true.
- If verification fails, adjust the visual prompt and regenerate. Never change the script fragment. Each clip allows at most %d regenerations; when a clip's attempts run out, continue with the clips that verified.
- After every clip is verified or exhausted, call %s, then %s, then %s.
- You must finish by calling %s. Never answer with plain text instead of the %s call.`

func (d *Driver) systemMessage() toolllm.Message {
	return toolllm.SystemMessage(fmt.Sprintf(systemInstructions,
		ToolGeneratePrompts,
		d.cfg.Workflow.MaxClips,
		d.cfg.Workflow.MaxTotalSeconds,
		ToolGenerateOneClip,
		ToolVerifyOneClip,
		d.cfg.Workflow.ClipRetryLimit,
		ToolMergeClips,
		ToolEnhanceVoice,
		ToolFinalize,
		ToolFinalize,
		ToolFinalize,
	))
}

func (d *Driver) userMessage(job *store.Job) toolllm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce the advertisement for this script:\n\n%s\n\n", job.Script)
	if job.CharacterName != "" {
		fmt.Fprintf(&b, "Presenter character: %s\n", job.CharacterName)
	}
	if job.AspectRatio != "" {
		fmt.Fprintf(&b, "Aspect ratio: %s\n", job.AspectRatio)
	}
	if job.Voice != "" {
		fmt.Fprintf(&b, "Voice: %s\n", job.Voice)
	}
	return toolllm.UserMessage(b.String())
}

// Run drives the job until the model calls finalize or a ceiling trips.
// Ceiling exhaustion and a terminal plain-text answer are failures with a
// descriptive reason, never a silent success.
func (d *Driver) Run(ctx context.Context, job *store.Job) error {
	ws, err := workspace.ForJob(d.cfg.Paths.WorkspaceDir, job.ID)
	if err != nil {
		return d.failJob(ctx, job, err)
	}
	logger := logging.WithContext(services.WithJobID(ctx, job.ID), d.logger)

	if job.Status == store.StatusPending {
		job.Status = store.StatusAnalyzingScript
		job.SetProgress(string(job.Status), "job picked up", 1)
		if err := d.store.Update(ctx, job); err != nil {
			return err
		}
		d.publish(job, "job_started", "job picked up")
	}

	disp := &dispatcher{
		store:     d.store,
		cfg:       d.cfg,
		toolkit:   d.toolkit,
		speech:    d.speech,
		videos:    d.videos,
		prompts:   d.prompts,
		verifier:  d.verifier,
		segments:  d.segments,
		collector: d.collector,
		logger:    d.logger,
		ws:        ws,
		job:       job,
		attempts:  map[int]int{},
	}
	// Attempt counters survive a restart through the clip records.
	existing, err := d.store.ClipsForJob(ctx, job.ID)
	if err != nil {
		return d.failJob(ctx, job, err)
	}
	totalClips := len(existing)
	for _, clip := range existing {
		attempts := clip.RetryCount
		if clip.VideoFile != "" {
			attempts++
		}
		disp.attempts[clip.Idx] = attempts
	}

	transcript := []toolllm.Message{d.systemMessage(), d.userMessage(job)}
	menu := toolMenu()
	deadline := d.now().Add(time.Duration(d.cfg.Workflow.AgentMaxWallSeconds) * time.Second)

	for iteration := 1; iteration <= d.cfg.Workflow.AgentMaxIterations; iteration++ {
		if d.now().After(deadline) {
			d.collector.AgentIterationsUsed(iteration - 1)
			return d.failJob(ctx, job, services.Wrap(services.ErrTimeout, "agent", "loop",
				fmt.Sprintf("wall-clock budget of %ds exceeded after %d iterations",
					d.cfg.Workflow.AgentMaxWallSeconds, iteration-1), nil))
		}

		result, err := d.chat.Chat(ctx, toolllm.ChatRequest{Messages: transcript, Tools: menu})
		if err != nil {
			d.collector.AgentIterationsUsed(iteration)
			return d.failJob(ctx, job, err)
		}

		if !result.HasToolCalls() {
			d.collector.AgentIterationsUsed(iteration)
			return d.failJob(ctx, job, services.Wrap(services.ErrValidation, "agent", "loop",
				fmt.Sprintf("model answered in plain text without calling %s: %s",
					ToolFinalize, snippet(result.Content)), nil))
		}

		transcript = append(transcript, toolllm.AssistantMessage(result.Content, result.ToolCalls))
		for _, call := range result.ToolCalls {
			callCtx := services.WithStep(ctx, call.Name())
			payload, outcome := disp.dispatch(callCtx, call.Name(), call.Function.Arguments)
			transcript = append(transcript, toolllm.ToolResultMessage(call.ID, call.Name(), payload))

			if outcome.failed {
				d.publish(job, "tool_failed", fmt.Sprintf("%s failed", outcome.tool))
				continue
			}
			if outcome.tool == ToolGeneratePrompts {
				clips, err := d.store.ClipsForJob(ctx, job.ID)
				if err != nil {
					return d.failJob(ctx, job, err)
				}
				totalClips = len(clips)
			}

			if status, ok := statusForTool(outcome.tool); ok {
				job.Status = status
			}
			percent := overlayPercent(outcome.tool, outcome.clipIndex, totalClips, job.ProgressPercent)
			job.SetProgress(string(job.Status), fmt.Sprintf("%s completed", outcome.tool), percent)
			if err := d.store.Update(ctx, job); err != nil {
				return err
			}
			d.publish(job, "tool_completed", fmt.Sprintf("%s completed", outcome.tool))

			if outcome.tool == ToolFinalize && disp.finalized {
				job.SetCompleted(disp.finalFile, disp.assetID)
				if err := d.store.Update(ctx, job); err != nil {
					return err
				}
				logger.Info("job completed",
					logging.Int("iterations", iteration),
					logging.String("asset_id", disp.assetID),
				)
				d.collector.AgentIterationsUsed(iteration)
				d.collector.JobFinished("completed", job.Driver)
				d.publish(job, "job_completed", "job completed")
				return nil
			}
		}
	}

	d.collector.AgentIterationsUsed(d.cfg.Workflow.AgentMaxIterations)
	return d.failJob(ctx, job, services.Wrap(services.ErrTimeout, "agent", "loop",
		fmt.Sprintf("iteration budget of %d exhausted without finalize",
			d.cfg.Workflow.AgentMaxIterations), nil))
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

func snippet(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return "(empty response)"
	}
	runes := []rune(content)
	if len(runes) > 160 {
		return string(runes[:160]) + "..."
	}
	return content
}
