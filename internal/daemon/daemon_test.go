package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"adforge/internal/config"
	"adforge/internal/metrics"
	"adforge/internal/progress"
	"adforge/internal/store"
	"adforge/internal/testsupport"
)

type stubDriver struct {
	outcome func(job *store.Job)
	store   *store.Store
}

func (d *stubDriver) Run(ctx context.Context, job *store.Job) error {
	if d.outcome != nil {
		d.outcome(job)
	} else {
		job.SetCompleted("/tmp/final.mp4", "asset-1")
	}
	return d.store.Update(ctx, job)
}

type fixture struct {
	cfg    *config.Config
	store  *store.Store
	daemon *Daemon
	server *httptest.Server
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	s := testsupport.MustOpenStore(t, cfg)

	manager := NewManager(ManagerDeps{
		Config:   cfg,
		Store:    s,
		Pipeline: &stubDriver{store: s},
		Metrics:  metrics.New(),
	})
	d, err := New(Deps{
		Config:  cfg,
		Store:   s,
		Manager: manager,
		Bus:     progress.NewBus(16),
		Metrics: metrics.New(),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	server := httptest.NewServer(d.api.server.Handler)
	t.Cleanup(server.Close)
	return &fixture{cfg: cfg, store: s, daemon: d, server: server}
}

func submitJob(t *testing.T, f *fixture, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	part, err := writer.CreateFormFile("image", "reference.png")
	if err != nil {
		t.Fatalf("create image part: %v", err)
	}
	if _, err := part.Write([]byte("png bytes")); err != nil {
		t.Fatalf("write image part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	resp, err := http.Post(f.server.URL+"/api/jobs", writer.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("submit job: %v", err)
	}
	return resp
}

func TestSubmitAndFetchJob(t *testing.T) {
	f := newFixture(t)

	resp := submitJob(t, f, map[string]string{
		"script":         "Buy the widget today. It changes everything.",
		"owner":          "tester",
		"character_name": "Ava",
		"aspect_ratio":   "9:16",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("submit status = %d: %s", resp.StatusCode, body)
	}
	var created JobView
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created job: %v", err)
	}
	if created.ID == 0 || created.Status != string(store.StatusPending) {
		t.Fatalf("unexpected created job: %+v", created)
	}
	if created.Driver != "pipeline" {
		t.Fatalf("expected pipeline driver without tool-model credential, got %q", created.Driver)
	}

	getResp, err := http.Get(fmt.Sprintf("%s/api/jobs/%d", f.server.URL, created.ID))
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", getResp.StatusCode)
	}
	var fetched JobView
	if err := json.NewDecoder(getResp.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if fetched.ID != created.ID {
		t.Fatalf("fetched job %d, want %d", fetched.ID, created.ID)
	}

	listResp, err := http.Get(f.server.URL + "/api/jobs?status=pending")
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	defer listResp.Body.Close()
	var listing struct {
		Jobs []JobView `json:"jobs"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Jobs) != 1 {
		t.Fatalf("expected 1 pending job, got %d", len(listing.Jobs))
	}

	statusResp, err := http.Get(f.server.URL + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer statusResp.Body.Close()
	var status StatusResponse
	if err := json.NewDecoder(statusResp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.JobCounts["pending"] != 1 {
		t.Fatalf("expected pending count 1, got %+v", status.JobCounts)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)

	resp := submitJob(t, f, map[string]string{"script": "   "})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank script: status = %d, want 400", resp.StatusCode)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("script", "A script with no image.")
	_ = writer.Close()
	noImage, err := http.Post(f.server.URL+"/api/jobs", writer.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("submit without image: %v", err)
	}
	defer noImage.Body.Close()
	if noImage.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing image: status = %d, want 400", noImage.StatusCode)
	}

	resp = submitJob(t, f, map[string]string{"script": "A script.", "driver": "agent"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("agent driver without credential: status = %d, want 400", resp.StatusCode)
	}
}

func TestUnknownJobReturns404(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/api/jobs/9999")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestJobEventsStream(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Workflow.KeepaliveSeconds = 1
	})
	job := testsupport.NewJob(t, f.store, "Buy the widget today.")
	f.daemon.bus.HubFor(job.ID).Publish(progress.Event{
		JobID:   job.ID,
		Type:    "step_started",
		Step:    "generating_prompts",
		Percent: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/jobs/%d/events", f.server.URL, job.ID), nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open event stream: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: step_started") {
			sawEvent = true
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			if !strings.Contains(line, `"percent":5`) {
				t.Fatalf("unexpected event payload: %s", line)
			}
			cancel()
			break
		}
	}
	if !sawEvent {
		t.Fatal("never saw the replayed progress event")
	}
}

func TestManagerProcessesPendingJob(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Workflow.QueuePollInterval = 1
	})
	job := testsupport.NewJob(t, f.store, "Buy the widget today.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.daemon.manager.Start(ctx); err != nil {
		t.Fatalf("manager start: %v", err)
	}
	defer f.daemon.manager.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		current, err := f.store.GetByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("reload job: %v", err)
		}
		if current.Status == store.StatusCompleted {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("job never reached completed")
}

func TestDriverSelection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	pipelineDriver := &stubDriver{store: s}
	agentDriver := &stubDriver{store: s}

	m := NewManager(ManagerDeps{Config: cfg, Store: s, Pipeline: pipelineDriver, Agent: agentDriver})

	if driver, name := m.driverFor(&store.Job{Driver: "agent"}); driver != agentDriver || name != "agent" {
		t.Fatalf("explicit agent request picked %s", name)
	}
	if driver, name := m.driverFor(&store.Job{Driver: "pipeline"}); driver != pipelineDriver || name != "pipeline" {
		t.Fatalf("explicit pipeline request picked %s", name)
	}
	if _, name := m.driverFor(&store.Job{}); name != "pipeline" {
		t.Fatalf("default without credential picked %s", name)
	}

	cfg.ToolModel.APIKey = "key"
	if _, name := m.driverFor(&store.Job{}); name != "agent" {
		t.Fatalf("default with credential picked %s", name)
	}
}
