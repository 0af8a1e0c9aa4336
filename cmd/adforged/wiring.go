package main

import (
	"context"
	"log/slog"

	"adforge/internal/agent"
	"adforge/internal/config"
	"adforge/internal/daemon"
	"adforge/internal/media"
	"adforge/internal/metrics"
	"adforge/internal/notifications"
	"adforge/internal/pipeline"
	"adforge/internal/progress"
	"adforge/internal/segmenter"
	"adforge/internal/services/speech"
	"adforge/internal/services/toolllm"
	"adforge/internal/services/videogen"
	"adforge/internal/services/vision"
	"adforge/internal/store"
	"adforge/internal/verify"
)

// videoGateway adapts the videogen client to the driver-facing interface.
type videoGateway struct {
	client *videogen.Client
}

func (g videoGateway) Generate(ctx context.Context, req pipeline.VideoRequest, destPath string) error {
	return g.client.Generate(ctx, videogen.Request{
		Prompt:      req.Prompt,
		ImagePath:   req.ImagePath,
		DurationSec: req.DurationSec,
		AspectRatio: req.AspectRatio,
	}, destPath)
}

func buildManager(cfg *config.Config, jobStore *store.Store, logger *slog.Logger, bus *progress.Bus, collector *metrics.Metrics) *daemon.Manager {
	toolkit := media.NewToolkit(cfg.Tools.FFmpeg, cfg.Tools.FFprobe)
	audioSegmenter := segmenter.New(toolkit, logger)

	speechClient := speech.NewClient(speech.Config{
		BaseURL:        cfg.Speech.BaseURL,
		APIKey:         cfg.Speech.APIKey,
		Voice:          cfg.Speech.Voice,
		TimeoutSeconds: cfg.Speech.TimeoutSeconds,
	})
	videoClient := videogen.NewClient(videogen.Config{
		BaseURL:             cfg.VideoGen.BaseURL,
		APIKey:              cfg.VideoGen.APIKey,
		Model:               cfg.VideoGen.Model,
		AspectRatio:         cfg.VideoGen.AspectRatio,
		PollIntervalSeconds: cfg.VideoGen.PollIntervalSeconds,
		PollTimeoutSeconds:  cfg.VideoGen.PollTimeoutSeconds,
		TimeoutSeconds:      cfg.VideoGen.TimeoutSeconds,
	})

	// The vision credential also backs prompt generation: both are plain
	// JSON completions, so the pipeline works without a tool-model key.
	visionClient := toolllm.NewClient(toolllm.Config{
		APIKey:         cfg.Vision.APIKey,
		BaseURL:        cfg.Vision.BaseURL,
		Model:          cfg.Vision.Model,
		TimeoutSeconds: cfg.Vision.TimeoutSeconds,
	}, toolllm.WithRetryObserver(func() { collector.VendorRetry("vision") }))
	analyzer := vision.NewAnalyzer(visionClient)
	verifier := verify.NewVerifier(analyzer, toolkit, cfg.Workflow.VerifyThreshold)

	videos := videoGateway{client: videoClient}
	pipelineDriver := pipeline.New(pipeline.Deps{
		Store:     jobStore,
		Config:    cfg,
		Toolkit:   toolkit,
		Segmenter: audioSegmenter,
		Speech:    speechClient,
		Videos:    videos,
		Prompts:   visionClient,
		Verifier:  verifier,
		Bus:       bus,
		Metrics:   collector,
		Logger:    logger,
	})

	var agentDriver daemon.JobDriver
	if cfg.AgentEnabled() {
		toolClient := toolllm.NewClient(toolllm.Config{
			APIKey:         cfg.ToolModel.APIKey,
			BaseURL:        cfg.ToolModel.BaseURL,
			Model:          cfg.ToolModel.Model,
			TimeoutSeconds: cfg.ToolModel.TimeoutSeconds,
		}, toolllm.WithRetryObserver(func() { collector.VendorRetry("tool_model") }))
		agentDriver = agent.New(agent.Deps{
			Store:     jobStore,
			Config:    cfg,
			Toolkit:   toolkit,
			Chat:      toolClient,
			Speech:    speechClient,
			Videos:    videos,
			Prompts:   visionClient,
			Verifier:  verifier,
			Segmenter: audioSegmenter,
			Bus:       bus,
			Metrics:   collector,
			Logger:    logger,
		})
	}

	return daemon.NewManager(daemon.ManagerDeps{
		Config:   cfg,
		Store:    jobStore,
		Pipeline: pipelineDriver,
		Agent:    agentDriver,
		Notifier: notifications.NewService(cfg),
		Metrics:  collector,
		Logger:   logger,
	})
}
