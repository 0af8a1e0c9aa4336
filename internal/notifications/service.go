package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"adforge/internal/config"
)

const userAgent = "AdForge/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyJobSubmitted(ctx context.Context, jobID int64, owner string) error
	NotifyJobCompleted(ctx context.Context, jobID int64, finalFile string, duration time.Duration) error
	NotifyJobFailed(ctx context.Context, jobID int64, reason string) error
	NotifyClipDegraded(ctx context.Context, jobID int64, clipIndex int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobSubmitted(ctx context.Context, jobID int64, owner string) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = "unknown"
	}
	data := payload{
		title:   "AdForge - Job Submitted",
		message: fmt.Sprintf("Job %d submitted by %s", jobID, owner),
		tags:    []string{"adforge", "job", "submitted"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, jobID int64, finalFile string, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	message := fmt.Sprintf("Job %d finished in %s", jobID, duration)
	if finalFile = strings.TrimSpace(finalFile); finalFile != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, finalFile)
	}
	data := payload{
		title:    "AdForge - Video Ready",
		message:  message,
		tags:     []string{"adforge", "job", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobID int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "AdForge - Job Failed",
		message:  fmt.Sprintf("Job %d failed: %s", jobID, reason),
		tags:     []string{"adforge", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyClipDegraded(ctx context.Context, jobID int64, clipIndex int) error {
	data := payload{
		title:   "AdForge - Clip Dropped",
		message: fmt.Sprintf("Job %d: clip %d failed verification and was dropped; the video proceeds without it", jobID, clipIndex),
		tags:    []string{"adforge", "clip", "degraded"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "AdForge - Test",
		message:  "Notification system test",
		tags:     []string{"adforge", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobSubmitted(context.Context, int64, string) error { return nil }
func (noopService) NotifyJobCompleted(context.Context, int64, string, time.Duration) error {
	return nil
}
func (noopService) NotifyJobFailed(context.Context, int64, string) error   { return nil }
func (noopService) NotifyClipDegraded(context.Context, int64, int) error   { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
