package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"adforge/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newJob(t *testing.T, s *store.Store) *store.Job {
	t.Helper()
	job, err := s.NewJob(context.Background(), store.NewJobParams{
		Script:         "Buy the thing. It is great.",
		CharacterName:  "Ava",
		ReferenceImage: "/tmp/ref.png",
		Driver:         "pipeline",
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job
}

func TestNewJobStartsPending(t *testing.T) {
	s := newStore(t)
	job := newJob(t, s)

	if job.Status != store.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if job.ProgressPercent != 0 {
		t.Fatalf("expected zero progress, got %v", job.ProgressPercent)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	job := newJob(t, s)

	job.Status = store.StatusGeneratingVideos
	job.SetProgress("Generating videos", "clip 1 of 2", 40)
	job.CostUSD = 1.25
	if err := s.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	loaded, err := s.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Status != store.StatusGeneratingVideos {
		t.Fatalf("expected generating_videos, got %s", loaded.Status)
	}
	if loaded.ProgressPercent != 40 {
		t.Fatalf("expected progress 40, got %v", loaded.ProgressPercent)
	}
	if loaded.CostUSD != 1.25 {
		t.Fatalf("expected cost 1.25, got %v", loaded.CostUSD)
	}
}

func TestProgressNeverMovesBackward(t *testing.T) {
	s := newStore(t)
	job := newJob(t, s)

	job.Status = store.StatusGeneratingVideos
	job.SetProgress("Generating videos", "clip 1", 55)
	job.SetProgress("Generating videos", "late event", 30)
	if job.ProgressPercent != 55 {
		t.Fatalf("progress moved backward: %v", job.ProgressPercent)
	}
}

func TestTerminalJobIsImmutable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	job := newJob(t, s)

	job.SetCompleted("/out/final.mp4", "asset-1")
	if err := s.Update(ctx, job); err != nil {
		t.Fatalf("complete: %v", err)
	}

	job.ErrorMessage = "should not stick"
	if err := s.Update(ctx, job); err == nil {
		t.Fatal("expected terminal job update to be rejected")
	}
}

func TestExactlyOneTerminalOutcome(t *testing.T) {
	job := &store.Job{Status: store.StatusFinalizing, FinalFile: "/out/final.mp4"}
	job.SetFailed("vendor timeout")
	if job.FinalFile != "" {
		t.Fatal("failed job must not carry a final output handle")
	}

	job2 := &store.Job{Status: store.StatusFinalizing, ErrorMessage: "stale"}
	job2.SetCompleted("/out/final.mp4", "asset-2")
	if job2.ErrorMessage != "" {
		t.Fatal("completed job must not carry an error message")
	}
}

func TestNextForStatusesOrdersByCreation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	first := newJob(t, s)
	_ = newJob(t, s)

	next, err := s.NextForStatuses(ctx, store.StatusPending)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected job %d first, got %+v", first.ID, next)
	}
}

func TestClipLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	job := newJob(t, s)

	clip := &store.ClipTask{
		JobID:       job.ID,
		Idx:         0,
		Prompt:      "a character holds the product",
		Fragment:    "Buy the thing.",
		DurationSec: 6,
		Status:      store.ClipPending,
	}
	if err := s.InsertClip(ctx, clip); err != nil {
		t.Fatalf("insert clip: %v", err)
	}

	clip.Status = store.ClipVerified
	clip.Verified = true
	clip.Confidence = 0.82
	clip.VideoFile = "/work/1/clip_0.mp4"
	if err := s.UpdateClip(ctx, clip); err != nil {
		t.Fatalf("update clip: %v", err)
	}

	clips, err := s.ClipsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("clips for job: %v", err)
	}
	if len(clips) != 1 {
		t.Fatalf("expected 1 clip, got %d", len(clips))
	}
	if clips[0].Fragment != "Buy the thing." {
		t.Fatalf("fragment changed: %q", clips[0].Fragment)
	}
	if !clips[0].Verified || clips[0].Confidence != 0.82 {
		t.Fatalf("verification fields lost: %+v", clips[0])
	}

	missing, err := s.ClipByIndex(ctx, job.ID, 9)
	if err != nil {
		t.Fatalf("clip by index: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for absent clip index")
	}
}

func TestStatsGroupsByStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	newJob(t, s)
	job := newJob(t, s)
	job.SetFailed("boom")
	if err := s.Update(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[store.StatusPending] != 1 || stats[store.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
