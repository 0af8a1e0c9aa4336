package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"adforge/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[speech]
base_url = "https://speech.test"
api_key = "sk"

[videogen]
base_url = "https://video.test"
api_key = "vk"

[vision]
api_key = "vik"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatalf("expected config at %s to exist", resolved)
	}
	if cfg.Workflow.MaxClips != 2 {
		t.Fatalf("expected default max_clips 2, got %d", cfg.Workflow.MaxClips)
	}
	if cfg.Workflow.VerifyThreshold != 0.6 {
		t.Fatalf("expected default verify_threshold 0.6, got %v", cfg.Workflow.VerifyThreshold)
	}
	if cfg.Tools.FFmpeg != "ffmpeg" {
		t.Fatalf("expected default ffmpeg binary, got %q", cfg.Tools.FFmpeg)
	}
	if cfg.AgentEnabled() {
		t.Fatal("agent driver should be disabled without a tool model key")
	}
}

func TestLoadRejectsMissingSpeechKey(t *testing.T) {
	path := writeConfig(t, `
[videogen]
base_url = "https://video.test"
api_key = "vk"

[vision]
api_key = "vik"

[speech]
base_url = "https://speech.test"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for missing speech key")
	} else if !strings.Contains(err.Error(), "speech.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsRetryCeilingAboveTwo(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[workflow]
clip_retry_limit = 3
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for retry ceiling above 2")
	}
}

func TestAgentEnabledWithToolModelKey(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[tool_model]
api_key = "tk"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.AgentEnabled() {
		t.Fatal("expected agent driver with a tool model key configured")
	}
}

func TestSpeechKeyFromEnvironment(t *testing.T) {
	t.Setenv("ADFORGE_SPEECH_API_KEY", "env-key")
	path := writeConfig(t, `
[speech]
base_url = "https://speech.test"

[videogen]
base_url = "https://video.test"
api_key = "vk"

[vision]
api_key = "vik"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Speech.APIKey != "env-key" {
		t.Fatalf("expected env key, got %q", cfg.Speech.APIKey)
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path, false); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := config.WriteSample(path, false); err == nil {
		t.Fatal("expected overwrite refusal")
	}
	if err := config.WriteSample(path, true); err != nil {
		t.Fatalf("forced WriteSample: %v", err)
	}
}
