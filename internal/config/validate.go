package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGateways(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGateways() error {
	if strings.TrimSpace(c.Speech.BaseURL) == "" {
		return errors.New("speech.base_url must be set")
	}
	if strings.TrimSpace(c.Speech.APIKey) == "" {
		return fmt.Errorf("speech.api_key is required. Set ADFORGE_SPEECH_API_KEY or edit the config file (create with 'adforge config init')")
	}
	if strings.TrimSpace(c.VideoGen.BaseURL) == "" {
		return errors.New("videogen.base_url must be set")
	}
	if strings.TrimSpace(c.VideoGen.APIKey) == "" {
		return fmt.Errorf("videogen.api_key is required. Set ADFORGE_VIDEOGEN_API_KEY or edit the config file")
	}
	if strings.TrimSpace(c.Vision.APIKey) == "" {
		return fmt.Errorf("vision.api_key is required. Set ADFORGE_VISION_API_KEY or edit the config file")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.VerifyThreshold < 0 || c.Workflow.VerifyThreshold > 1 {
		return errors.New("workflow.verify_threshold must be between 0 and 1")
	}
	if c.Workflow.ClipRetryLimit > 2 {
		return errors.New("workflow.clip_retry_limit must not exceed 2")
	}
	if c.Workflow.MaxClips > 2 {
		return errors.New("workflow.max_clips must not exceed 2")
	}
	return nil
}
