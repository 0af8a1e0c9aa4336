package config

const (
	defaultWorkspaceDir          = "~/.local/share/adforge/workspace"
	defaultLogDir                = "~/.local/share/adforge/logs"
	defaultAPIBind               = "127.0.0.1:7519"
	defaultLogFormat             = "text"
	defaultLogLevel              = "info"
	defaultQueuePollInterval     = 2
	defaultErrorRetryInterval    = 5
	defaultMaxClips              = 2
	defaultMaxTotalSeconds       = 15
	defaultClipRetryLimit        = 2
	defaultVerifyThreshold       = 0.6
	defaultClipConcurrency       = 3
	defaultAgentMaxIterations    = 24
	defaultAgentMaxWallSeconds   = 1800
	defaultKeepaliveSeconds      = 15
	defaultProgressBufferEntries = 256
	defaultSpeechTimeoutSeconds  = 120
	defaultVisionTimeoutSeconds  = 60
	defaultToolModelTimeout      = 120
	defaultVideoGenTimeout       = 60
	defaultVideoPollInterval     = 5
	defaultVideoPollTimeout      = 600
	defaultVideoAspectRatio      = "9:16"
	defaultChatBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultToolModelName         = "openai/gpt-5.2"
	defaultVisionModelName       = "google/gemini-3-flash-preview"
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultNtfyRequestTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Speech: Speech{
			TimeoutSeconds: defaultSpeechTimeoutSeconds,
		},
		VideoGen: VideoGen{
			AspectRatio:         defaultVideoAspectRatio,
			PollIntervalSeconds: defaultVideoPollInterval,
			PollTimeoutSeconds:  defaultVideoPollTimeout,
			TimeoutSeconds:      defaultVideoGenTimeout,
		},
		Vision: Vision{
			BaseURL:        defaultChatBaseURL,
			Model:          defaultVisionModelName,
			TimeoutSeconds: defaultVisionTimeoutSeconds,
		},
		ToolModel: ToolModel{
			BaseURL:        defaultChatBaseURL,
			Model:          defaultToolModelName,
			TimeoutSeconds: defaultToolModelTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:     defaultQueuePollInterval,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			MaxClips:              defaultMaxClips,
			MaxTotalSeconds:       defaultMaxTotalSeconds,
			ClipRetryLimit:        defaultClipRetryLimit,
			VerifyThreshold:       defaultVerifyThreshold,
			ClipConcurrency:       defaultClipConcurrency,
			FrameContinuity:       true,
			AgentMaxIterations:    defaultAgentMaxIterations,
			AgentMaxWallSeconds:   defaultAgentMaxWallSeconds,
			KeepaliveSeconds:      defaultKeepaliveSeconds,
			ProgressBufferEntries: defaultProgressBufferEntries,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
