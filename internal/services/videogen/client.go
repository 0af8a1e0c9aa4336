// Package videogen talks to the image-to-video generation service: submit a
// reference image plus visual prompt, poll the task until it completes, and
// download the produced clip.
package videogen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"adforge/internal/services"
)

const (
	defaultHTTPTimeout  = 60 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 10 * time.Minute

	statusPending    = "pending"
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusFailed     = "failed"
)

// policyErrorCodes are the structured error codes the service uses for
// moderation rejections. Classification happens here, never by message text.
var policyErrorCodes = map[string]bool{
	"content_policy_violation": true,
	"moderation_blocked":       true,
	"unsafe_image":             true,
}

// Config captures the runtime settings for the generation service.
type Config struct {
	BaseURL             string
	APIKey              string
	Model               string
	AspectRatio         string
	PollIntervalSeconds int
	PollTimeoutSeconds  int
	TimeoutSeconds      int
}

// Client wraps the generation service HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client

	pollInterval time.Duration
	pollTimeout  time.Duration
	sleeper      func(context.Context, time.Duration) error
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

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a generation client from the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:             strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:              strings.TrimSpace(cfg.APIKey),
			Model:               strings.TrimSpace(cfg.Model),
			AspectRatio:         strings.TrimSpace(cfg.AspectRatio),
			PollIntervalSeconds: cfg.PollIntervalSeconds,
			PollTimeoutSeconds:  cfg.PollTimeoutSeconds,
			TimeoutSeconds:      cfg.TimeoutSeconds,
		},
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
	}
	if cfg.PollIntervalSeconds > 0 {
		client.pollInterval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	}
	if cfg.PollTimeoutSeconds > 0 {
		client.pollTimeout = time.Duration(cfg.PollTimeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Request describes one clip generation task.
type Request struct {
	Prompt      string
	ImagePath   string
	DurationSec int
	AspectRatio string
}

type submitRequest struct {
	Model       string `json:"model"`
	Prompt      string `json:"prompt"`
	Image       string `json:"image"`
	DurationSec int    `json:"duration_seconds"`
	AspectRatio string `json:"aspect_ratio"`
}

type taskResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit creates a generation task and returns its id.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "videogen", "submit", "prompt required", nil)
	}
	if req.DurationSec <= 0 {
		return "", services.Wrap(services.ErrValidation, "videogen", "submit",
			fmt.Sprintf("invalid duration %d", req.DurationSec), nil)
	}
	image, err := encodeImage(req.ImagePath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "videogen", "submit", "read reference image", err)
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = c.cfg.AspectRatio
	}

	payload := submitRequest{
		Model:       c.cfg.Model,
		Prompt:      req.Prompt,
		Image:       image,
		DurationSec: req.DurationSec,
		AspectRatio: aspect,
	}
	var task taskResponse
	if err := c.postJSON(ctx, c.cfg.BaseURL+"/v1/tasks", payload, &task); err != nil {
		return "", err
	}
	if err := classifyTaskError(task, "submit"); err != nil {
		return "", err
	}
	if strings.TrimSpace(task.TaskID) == "" {
		return "", services.Wrap(services.ErrExternalTool, "videogen", "submit", "service returned no task id", nil)
	}
	return task.TaskID, nil
}

// Await polls the task at a fixed interval until it completes, fails, or the
// wall-clock ceiling elapses. It returns the produced video URL.
func (c *Client) Await(ctx context.Context, taskID string) (string, error) {
	if strings.TrimSpace(taskID) == "" {
		return "", services.Wrap(services.ErrValidation, "videogen", "await", "task id required", nil)
	}
	deadline := time.Now().Add(c.pollTimeout)
	for {
		var task taskResponse
		if err := c.getJSON(ctx, c.cfg.BaseURL+"/v1/tasks/"+taskID, &task); err != nil {
			return "", err
		}
		if err := classifyTaskError(task, "await"); err != nil {
			return "", err
		}
		switch task.Status {
		case statusCompleted:
			if strings.TrimSpace(task.VideoURL) == "" {
				return "", services.Wrap(services.ErrExternalTool, "videogen", "await",
					fmt.Sprintf("task %s completed without a video url", taskID), nil)
			}
			return task.VideoURL, nil
		case statusFailed:
			return "", services.Wrap(services.ErrExternalTool, "videogen", "await",
				fmt.Sprintf("task %s failed", taskID), nil)
		case statusPending, statusProcessing, "":
		default:
			return "", services.Wrap(services.ErrExternalTool, "videogen", "await",
				fmt.Sprintf("task %s reported unknown status %q", taskID, task.Status), nil)
		}

		if time.Now().Add(c.pollInterval).After(deadline) {
			return "", services.Wrap(services.ErrTimeout, "videogen", "await",
				fmt.Sprintf("task %s did not complete within %s", taskID, c.pollTimeout), nil)
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return "", err
		}
	}
}

// Download fetches the produced video to destPath.
func (c *Client) Download(ctx context.Context, videoURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "videogen", "download", "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "videogen", "download", "http error", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrExternalTool, "videogen", "download",
			fmt.Sprintf("http %d fetching %s", resp.StatusCode, videoURL), nil)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "videogen", "download", "create directory", err)
	}
	tmp := destPath + ".partial"
	file, err := os.Create(tmp)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "videogen", "download", "create file", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(tmp)
		return services.Wrap(services.ErrTransient, "videogen", "download", "write payload", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "videogen", "download", "close file", err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "videogen", "download", "finalize file", err)
	}
	return nil
}

// Generate runs submit, await, and download as one operation, storing the
// clip at destPath.
func (c *Client) Generate(ctx context.Context, req Request, destPath string) error {
	taskID, err := c.Submit(ctx, req)
	if err != nil {
		return err
	}
	videoURL, err := c.Await(ctx, taskID)
	if err != nil {
		return err
	}
	return c.Download(ctx, videoURL, destPath)
}

func classifyTaskError(task taskResponse, op string) error {
	if task.Error == nil {
		return nil
	}
	code := strings.TrimSpace(task.Error.Code)
	message := strings.TrimSpace(task.Error.Message)
	if policyErrorCodes[code] {
		return services.Wrap(services.ErrContentPolicy, "videogen", op, message, nil)
	}
	return services.Wrap(services.ErrExternalTool, "videogen", op,
		fmt.Sprintf("service error %s: %s", code, message), nil)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload, target any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "videogen", "request", "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "videogen", "request", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, target)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "videogen", "request", "build request", err)
	}
	return c.doJSON(req, target)
}

func (c *Client) doJSON(req *http.Request, target any) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "videogen", "request", "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "videogen", "request", "read body", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return services.Wrap(marker, "videogen", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return services.Wrap(services.ErrExternalTool, "videogen", "request", "decode response", err)
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if c.sleeper != nil {
		return c.sleeper(ctx, delay)
	}
	if delay <= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%s is empty", path)
	}
	mime := "image/png"
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".jpg" || ext == ".jpeg" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
