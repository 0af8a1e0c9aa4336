package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	m := New()
	m.JobStarted()
	m.JobFinished("completed", "pipeline")
	m.ObserveStep("generating_videos", 42*time.Second)
	m.ClipGenerated()
	m.ClipRetried()
	m.VendorRetry("videogen")

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	body := recorder.Body.String()

	for _, want := range []string{
		`adforge_jobs_total{driver="pipeline",outcome="completed"} 1`,
		`adforge_active_jobs 1`,
		`adforge_clips_generated_total 1`,
		`adforge_clip_retries_total 1`,
		`adforge_vendor_retries_total{service="videogen"} 1`,
		`adforge_step_duration_seconds_count{step="generating_videos"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected exposition to contain %q, got:\n%s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.JobStarted()
	m.JobFinished("failed", "agent")
	m.ObserveStep("merging_videos", time.Second)
	m.ClipGenerated()
	m.ClipFailed()
	m.ClipRetried()
	m.VendorRetry("speech")
	m.JobStopped()
	m.AgentIterationsUsed(3)
}
