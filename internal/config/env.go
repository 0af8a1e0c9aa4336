package config

import "os"

// ApplyEnv overlays secrets from the environment onto the loaded config so
// API keys can stay out of config.toml. An unset variable leaves the config
// value alone.
func (c *Config) ApplyEnv() {
	overlay := []struct {
		name   string
		target *string
	}{
		{"ADFORGE_SPEECH_API_KEY", &c.Speech.APIKey},
		{"ADFORGE_VIDEOGEN_API_KEY", &c.VideoGen.APIKey},
		{"ADFORGE_VISION_API_KEY", &c.Vision.APIKey},
		{"ADFORGE_TOOL_MODEL_API_KEY", &c.ToolModel.APIKey},
		{"ADFORGE_NTFY_TOPIC", &c.Notifications.NtfyTopic},
	}
	for _, entry := range overlay {
		if value, ok := os.LookupEnv(entry.name); ok && value != "" {
			*entry.target = value
		}
	}
}
