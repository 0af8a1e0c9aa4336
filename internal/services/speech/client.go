// Package speech talks to the speech service: synthesize a voice track from
// the ad script and convert the voice on a finished soundtrack.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"adforge/internal/services"
)

const defaultHTTPTimeout = 120 * time.Second

// Config captures the runtime settings for the speech service.
type Config struct {
	BaseURL        string
	APIKey         string
	Voice          string
	TimeoutSeconds int
}

// Client wraps the speech service HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a speech client from the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			Voice:          strings.TrimSpace(cfg.Voice),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Synthesize renders the script as speech in the requested voice and writes
// the audio to destPath. An empty voice falls back to the configured default.
func (c *Client) Synthesize(ctx context.Context, script, voice, destPath string) error {
	script = strings.TrimSpace(script)
	if script == "" {
		return services.Wrap(services.ErrValidation, "speech", "synthesize", "script required", nil)
	}
	if voice = strings.TrimSpace(voice); voice == "" {
		voice = c.cfg.Voice
	}

	payload := map[string]string{
		"text":  script,
		"voice": voice,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "speech", "synthesize", "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/synthesize", bytes.NewReader(encoded))
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "speech", "synthesize", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.fetchAudio(req, destPath, "synthesize")
}

// ConvertVoice re-renders the audio at sourcePath in the given voice and
// writes the result to destPath.
func (c *Client) ConvertVoice(ctx context.Context, sourcePath, voice, destPath string) error {
	if voice = strings.TrimSpace(voice); voice == "" {
		voice = c.cfg.Voice
	}
	source, err := os.Open(sourcePath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "speech", "convert", "open source audio", err)
	}
	defer source.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", filepath.Base(sourcePath))
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "speech", "convert", "build form", err)
	}
	if _, err := io.Copy(part, source); err != nil {
		return services.Wrap(services.ErrExternalTool, "speech", "convert", "copy source audio", err)
	}
	if err := writer.WriteField("voice", voice); err != nil {
		return services.Wrap(services.ErrExternalTool, "speech", "convert", "build form", err)
	}
	if err := writer.Close(); err != nil {
		return services.Wrap(services.ErrExternalTool, "speech", "convert", "build form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/voice-convert", &body)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "speech", "convert", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.fetchAudio(req, destPath, "convert")
}

// fetchAudio executes the request and streams the audio response to destPath.
func (c *Client) fetchAudio(req *http.Request, destPath, op string) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "speech", op, "http error", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return services.Wrap(marker, "speech", op,
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "speech", op, "create directory", err)
	}
	tmp := destPath + ".partial"
	file, err := os.Create(tmp)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "speech", op, "create file", err)
	}
	written, err := io.Copy(file, resp.Body)
	if err != nil {
		file.Close()
		os.Remove(tmp)
		return services.Wrap(services.ErrTransient, "speech", op, "write payload", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "speech", op, "close file", err)
	}
	if written == 0 {
		os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "speech", op, "service returned empty audio", nil)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "speech", op, "finalize file", err)
	}
	return nil
}
