package videogen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"adforge/internal/services"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reference.png")
	if err := os.WriteFile(path, []byte("fake-png-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func TestSubmitReturnsTaskID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tasks" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body submitRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.DurationSec != 8 || body.AspectRatio != "9:16" {
			t.Fatalf("unexpected submit payload %+v", body)
		}
		_ = json.NewEncoder(w).Encode(taskResponse{TaskID: "task-1", Status: "pending"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "key", Model: "demo", AspectRatio: "9:16"})
	taskID, err := client.Submit(context.Background(), Request{
		Prompt:      "presenter holds product",
		ImagePath:   writeImage(t),
		DurationSec: 8,
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if taskID != "task-1" {
		t.Fatalf("unexpected task id %q", taskID)
	}
}

func TestSubmitClassifiesContentPolicy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":    "content_policy_violation",
				"message": "image rejected by moderation",
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "key", Model: "demo"})
	_, err := client.Submit(context.Background(), Request{
		Prompt:      "prompt",
		ImagePath:   writeImage(t),
		DurationSec: 6,
	})
	if err == nil {
		t.Fatal("expected submit to fail")
	}
	if !services.IsContentPolicy(err) {
		t.Fatalf("expected content-policy classification, got %v", err)
	}
}

func TestAwaitPollsUntilCompleted(t *testing.T) {
	var polls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tasks/task-1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		polls++
		status := "processing"
		videoURL := ""
		if polls >= 3 {
			status = "completed"
			videoURL = "https://cdn.example/clip.mp4"
		}
		_ = json.NewEncoder(w).Encode(taskResponse{TaskID: "task-1", Status: status, VideoURL: videoURL})
	}))
	defer server.Close()

	client := NewClient(
		Config{BaseURL: server.URL, APIKey: "key", PollIntervalSeconds: 1, PollTimeoutSeconds: 600},
		WithSleeper(noSleep),
	)
	videoURL, err := client.Await(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if videoURL != "https://cdn.example/clip.mp4" {
		t.Fatalf("unexpected video url %q", videoURL)
	}
	if polls != 3 {
		t.Fatalf("expected 3 polls, got %d", polls)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(taskResponse{TaskID: "task-1", Status: "processing"})
	}))
	defer server.Close()

	client := NewClient(
		Config{BaseURL: server.URL, APIKey: "key", PollIntervalSeconds: 60, PollTimeoutSeconds: 30},
		WithSleeper(noSleep),
	)
	_, err := client.Await(context.Background(), "task-1")
	if err == nil {
		t.Fatal("expected await to time out")
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestAwaitFailedTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(taskResponse{TaskID: "task-1", Status: "failed"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "key"}, WithSleeper(noSleep))
	if _, err := client.Await(context.Background(), "task-1"); err == nil {
		t.Fatal("expected failed task to return an error")
	}
}

func TestDownloadWritesFile(t *testing.T) {
	payload := []byte("video-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clips", "clip_0.mp4")
	client := NewClient(Config{BaseURL: server.URL, APIKey: "key"})
	if err := client.Download(context.Background(), server.URL+"/clip.mp4", dest); err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("unexpected file contents %q", data)
	}
}
