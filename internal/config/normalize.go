package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGateways()
	c.normalizeWorkflow()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeGateways() {
	fromEnv := func(current *string, envKey string) {
		if strings.TrimSpace(*current) == "" {
			if value, ok := os.LookupEnv(envKey); ok {
				*current = value
			}
		}
	}
	fromEnv(&c.Speech.APIKey, "ADFORGE_SPEECH_API_KEY")
	fromEnv(&c.VideoGen.APIKey, "ADFORGE_VIDEOGEN_API_KEY")
	fromEnv(&c.Vision.APIKey, "ADFORGE_VISION_API_KEY")
	fromEnv(&c.ToolModel.APIKey, "ADFORGE_TOOL_MODEL_API_KEY")

	c.Speech.BaseURL = strings.TrimSpace(c.Speech.BaseURL)
	c.VideoGen.BaseURL = strings.TrimSpace(c.VideoGen.BaseURL)
	c.Vision.BaseURL = strings.TrimSpace(c.Vision.BaseURL)
	c.ToolModel.BaseURL = strings.TrimSpace(c.ToolModel.BaseURL)
	if c.Vision.BaseURL == "" {
		c.Vision.BaseURL = defaultChatBaseURL
	}
	if c.ToolModel.BaseURL == "" {
		c.ToolModel.BaseURL = defaultChatBaseURL
	}
	if strings.TrimSpace(c.Vision.Model) == "" {
		c.Vision.Model = defaultVisionModelName
	}
	if strings.TrimSpace(c.ToolModel.Model) == "" {
		c.ToolModel.Model = defaultToolModelName
	}
	if c.VideoGen.PollIntervalSeconds <= 0 {
		c.VideoGen.PollIntervalSeconds = defaultVideoPollInterval
	}
	if c.VideoGen.PollTimeoutSeconds <= 0 {
		c.VideoGen.PollTimeoutSeconds = defaultVideoPollTimeout
	}
	if strings.TrimSpace(c.VideoGen.AspectRatio) == "" {
		c.VideoGen.AspectRatio = defaultVideoAspectRatio
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.MaxClips <= 0 {
		c.Workflow.MaxClips = defaultMaxClips
	}
	if c.Workflow.MaxTotalSeconds <= 0 {
		c.Workflow.MaxTotalSeconds = defaultMaxTotalSeconds
	}
	if c.Workflow.ClipRetryLimit < 0 {
		c.Workflow.ClipRetryLimit = defaultClipRetryLimit
	}
	if c.Workflow.VerifyThreshold <= 0 {
		c.Workflow.VerifyThreshold = defaultVerifyThreshold
	}
	if c.Workflow.ClipConcurrency <= 0 {
		c.Workflow.ClipConcurrency = defaultClipConcurrency
	}
	if c.Workflow.AgentMaxIterations <= 0 {
		c.Workflow.AgentMaxIterations = defaultAgentMaxIterations
	}
	if c.Workflow.AgentMaxWallSeconds <= 0 {
		c.Workflow.AgentMaxWallSeconds = defaultAgentMaxWallSeconds
	}
	if c.Workflow.KeepaliveSeconds <= 0 {
		c.Workflow.KeepaliveSeconds = defaultKeepaliveSeconds
	}
	if c.Workflow.ProgressBufferEntries <= 0 {
		c.Workflow.ProgressBufferEntries = defaultProgressBufferEntries
	}
}

func (c *Config) normalizeTools() {
	if strings.TrimSpace(c.Tools.FFmpeg) == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Tools.FFprobe) == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
