// Package vision analyzes generated clip frames against the script fragment
// and visual prompt they were produced from.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"adforge/internal/services/toolllm"
)

const analysisSystem = `You are a quality reviewer for short video advertisements.
You are shown a frame from a generated clip together with the script fragment
the character speaks in it and the visual prompt used to generate it. Judge
whether the spoken dialogue and visual content match the expected script and
prompt. Respond with JSON only:
{"confidence":0.0,"description":"what you see and why it does or does not match"}`

// Analysis is the outcome of one verification call.
type Analysis struct {
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// Analyzer sends clip frames to a vision-capable model for review.
type Analyzer struct {
	client *toolllm.Client
}

// NewAnalyzer wraps the supplied chat client.
func NewAnalyzer(client *toolllm.Client) *Analyzer {
	return &Analyzer{client: client}
}

// AnalyzeFrame reviews the frame at framePath against the fragment and
// prompt. Confidence is clamped to [0,1].
func (a *Analyzer) AnalyzeFrame(ctx context.Context, framePath, fragment, prompt string) (Analysis, error) {
	var empty Analysis
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return empty, errors.New("vision analyze: fragment required")
	}
	dataURI, err := encodeImage(framePath)
	if err != nil {
		return empty, fmt.Errorf("vision analyze: %w", err)
	}

	user := fmt.Sprintf("Script fragment: %s\nVisual prompt: %s", fragment, strings.TrimSpace(prompt))
	content, err := a.client.CompleteJSONVision(ctx, analysisSystem, user, dataURI)
	if err != nil {
		return empty, err
	}

	var parsed Analysis
	if err := toolllm.DecodeModelJSON(content, &parsed); err != nil {
		return empty, fmt.Errorf("vision analyze: parse payload: %w", err)
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	parsed.Description = strings.TrimSpace(parsed.Description)
	return parsed, nil
}

func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read frame: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("read frame: %s is empty", path)
	}
	mime := "image/png"
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".jpg" || ext == ".jpeg" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
