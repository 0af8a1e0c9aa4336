package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"adforge/internal/config"
	"adforge/internal/media"
	"adforge/internal/metrics"
	"adforge/internal/progress"
	"adforge/internal/segmenter"
	"adforge/internal/services"
	"adforge/internal/services/toolllm"
	"adforge/internal/store"
	"adforge/internal/testsupport"
	"adforge/internal/verify"
	"adforge/internal/workspace"
)

type stubSpeech struct {
	mu           sync.Mutex
	synthCalls   int
	convertCalls int
	convertErr   error
}

func (s *stubSpeech) Synthesize(ctx context.Context, script, voice, destPath string) error {
	s.mu.Lock()
	s.synthCalls++
	s.mu.Unlock()
	return os.WriteFile(destPath, []byte("wav"), 0o644)
}

func (s *stubSpeech) ConvertVoice(ctx context.Context, sourcePath, voice, destPath string) error {
	s.mu.Lock()
	s.convertCalls++
	s.mu.Unlock()
	if s.convertErr != nil {
		return s.convertErr
	}
	return os.WriteFile(destPath, []byte("converted"), 0o644)
}

type stubVideos struct {
	mu       sync.Mutex
	requests []VideoRequest
	// rejectSeeds maps image basenames to a content-policy rejection.
	rejectSeeds map[string]bool
	// failPrompts maps prompts to an unconditional backend error.
	failPrompts map[string]bool
}

func (s *stubVideos) Generate(ctx context.Context, req VideoRequest, destPath string) error {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.failPrompts[req.Prompt] {
		return services.Wrap(services.ErrExternalTool, "videogen", "submit", "render backend unavailable", nil)
	}
	if s.rejectSeeds[filepath.Base(req.ImagePath)] {
		return services.Wrap(services.ErrContentPolicy, "videogen", "submit", "image rejected", nil)
	}
	return os.WriteFile(destPath, []byte("mp4 "+req.Prompt), 0o644)
}

func (s *stubVideos) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type stubPrompts struct {
	mu          sync.Mutex
	pairs       []toolllm.PromptPair
	adjustCalls int
}

func (s *stubPrompts) GeneratePrompts(ctx context.Context, script, characterName string, maxClips int) ([]toolllm.PromptPair, error) {
	return s.pairs, nil
}

func (s *stubPrompts) AdjustPrompt(ctx context.Context, previousPrompt, fragment, failureNotes string) (string, error) {
	s.mu.Lock()
	s.adjustCalls++
	calls := s.adjustCalls
	s.mu.Unlock()
	return previousPrompt + " (take " + strings.Repeat("I", calls) + ")", nil
}

type stubVerifier struct {
	mu sync.Mutex
	// confidences[idx] is consumed one value per attempt; exhausted clips
	// default to passing.
	confidences map[int][]float64
	threshold   float64
}

func (s *stubVerifier) VerifyClip(ctx context.Context, ws *workspace.Workspace, clipIndex, attempt int, clipPath, fragment, prompt string) (verify.Result, error) {
	s.mu.Lock()
	confidence := 0.9
	if queue := s.confidences[clipIndex]; len(queue) > 0 {
		confidence = queue[0]
		s.confidences[clipIndex] = queue[1:]
	}
	s.mu.Unlock()
	return verify.Result{
		ClipIndex:   clipIndex,
		Attempt:     attempt,
		Verified:    confidence >= s.threshold,
		Confidence:  confidence,
		Description: "frame review",
		Fragment:    fragment,
		Prompt:      prompt,
	}, nil
}

type stubSegmenter struct {
	durations []float64
}

func (s *stubSegmenter) Run(ctx context.Context, ws *workspace.Workspace, recording string, fragments []string) ([]segmenter.Segment, error) {
	segments := make([]segmenter.Segment, len(fragments))
	start := 0.0
	for i, fragment := range fragments {
		duration := 5.0
		if i < len(s.durations) {
			duration = s.durations[i]
		}
		segments[i] = segmenter.Segment{
			Index:     i,
			Text:      fragment,
			Start:     start,
			End:       start + duration,
			Duration:  duration,
			AudioFile: ws.Segment(i),
		}
		start += duration
	}
	return segments, nil
}

func fakeToolkit() *media.Toolkit {
	return media.NewToolkit("ffmpeg", "ffprobe").WithCommandRunner(
		func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, os.WriteFile(args[len(args)-1], []byte("media"), 0o644)
		})
}

type fixture struct {
	cfg      *config.Config
	store    *store.Store
	speech   *stubSpeech
	videos   *stubVideos
	prompts  *stubPrompts
	verifier *stubVerifier
	bus      *progress.Bus
	driver   *Driver
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	s := testsupport.MustOpenStore(t, cfg)
	f := &fixture{
		cfg:    cfg,
		store:  s,
		speech: &stubSpeech{},
		videos: &stubVideos{rejectSeeds: map[string]bool{}, failPrompts: map[string]bool{}},
		bus:    progress.NewBus(64),
		prompts: &stubPrompts{pairs: []toolllm.PromptPair{
			{Prompt: "presenter shows product", Fragment: "Buy the widget today."},
			{Prompt: "presenter smiles", Fragment: "It changes everything."},
		}},
		verifier: &stubVerifier{confidences: map[int][]float64{}, threshold: cfg.Workflow.VerifyThreshold},
	}
	f.driver = New(Deps{
		Store:     s,
		Config:    cfg,
		Toolkit:   fakeToolkit(),
		Segmenter: &stubSegmenter{durations: []float64{5, 7}},
		Speech:    f.speech,
		Videos:    f.videos,
		Prompts:   f.prompts,
		Verifier:  f.verifier,
		Bus:       f.bus,
		Metrics:   metrics.New(),
		Logger:    nil,
	})
	return f
}

func (f *fixture) newJob(t *testing.T) *store.Job {
	t.Helper()
	job := testsupport.NewJob(t, f.store, "Buy the widget today. It changes everything.")
	ws, err := workspace.ForJob(f.cfg.Paths.WorkspaceDir, job.ID)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	testsupport.WriteFile(t, ws.ReferenceImage(), "png")
	return job
}

func TestDriverRunsJobToCompletion(t *testing.T) {
	f := newFixture(t)
	job := f.newJob(t)

	if err := f.driver.Run(context.Background(), job); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.ErrorMessage)
	}
	if job.FinalFile == "" || job.AssetID == "" {
		t.Fatalf("expected final file and asset id, got %q / %q", job.FinalFile, job.AssetID)
	}
	if job.ProgressPercent != 100 {
		t.Fatalf("expected 100%% progress, got %v", job.ProgressPercent)
	}

	clips, err := f.store.ClipsForJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("clips: %v", err)
	}
	if len(clips) != 2 {
		t.Fatalf("expected 2 clip tasks, got %d", len(clips))
	}
	for _, clip := range clips {
		if clip.Status != store.ClipVerified {
			t.Fatalf("clip %d: expected verified, got %s", clip.Idx, clip.Status)
		}
	}
	if f.videos.calls() != 2 {
		t.Fatalf("expected 2 generation calls, got %d", f.videos.calls())
	}

	stored, err := f.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if stored.Status != store.StatusCompleted {
		t.Fatalf("persisted status %s, want completed", stored.Status)
	}
}

func TestDriverRetriesThenFailsClipAndProceeds(t *testing.T) {
	f := newFixture(t)
	// Clip 1 never passes verification: initial attempt plus two retries.
	f.verifier.confidences[1] = []float64{0.3, 0.4, 0.5}
	job := f.newJob(t)

	if err := f.driver.Run(context.Background(), job); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != store.StatusCompleted {
		t.Fatalf("expected degraded completion, got %s (%s)", job.Status, job.ErrorMessage)
	}

	clips, _ := f.store.ClipsForJob(context.Background(), job.ID)
	if clips[0].Status != store.ClipVerified {
		t.Fatalf("clip 0: expected verified, got %s", clips[0].Status)
	}
	if clips[1].Status != store.ClipFailed {
		t.Fatalf("clip 1: expected failed, got %s", clips[1].Status)
	}
	if clips[1].RetryCount != f.cfg.Workflow.ClipRetryLimit {
		t.Fatalf("clip 1: retry count %d, want %d", clips[1].RetryCount, f.cfg.Workflow.ClipRetryLimit)
	}
	if clips[1].Fragment != "It changes everything." {
		t.Fatalf("fragment must never change, got %q", clips[1].Fragment)
	}
	if f.prompts.adjustCalls != f.cfg.Workflow.ClipRetryLimit {
		t.Fatalf("expected %d prompt adjustments, got %d", f.cfg.Workflow.ClipRetryLimit, f.prompts.adjustCalls)
	}
}

func TestDriverFailsJobWhenNoClipsSurvive(t *testing.T) {
	f := newFixture(t)
	f.verifier.confidences[0] = []float64{0.1, 0.1, 0.1}
	f.verifier.confidences[1] = []float64{0.1, 0.1, 0.1}
	job := f.newJob(t)

	err := f.driver.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected run to fail")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected fatal structural error, got %v", err)
	}
	if job.Status != store.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ErrorMessage == "" {
		t.Fatal("expected error message recorded")
	}

	// Failed clips stay on record for diagnosis.
	clips, _ := f.store.ClipsForJob(context.Background(), job.ID)
	if len(clips) != 2 {
		t.Fatalf("expected clip tasks preserved, got %d", len(clips))
	}
}

func TestDriverContinuesWhenClipGenerationFails(t *testing.T) {
	f := newFixture(t)
	// The render backend refuses this prompt outright, before any
	// verification can happen.
	f.videos.failPrompts["presenter smiles"] = true
	job := f.newJob(t)

	if err := f.driver.Run(context.Background(), job); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != store.StatusCompleted {
		t.Fatalf("expected degraded completion, got %s (%s)", job.Status, job.ErrorMessage)
	}

	clips, _ := f.store.ClipsForJob(context.Background(), job.ID)
	if clips[0].Status != store.ClipVerified {
		t.Fatalf("clip 0: expected verified, got %s", clips[0].Status)
	}
	if clips[1].Status != store.ClipFailed {
		t.Fatalf("clip 1: expected failed after generation error, got %s", clips[1].Status)
	}
	// A generation error settles the clip: no prompt adjustment, no retries.
	if f.videos.calls() != 2 {
		t.Fatalf("expected 2 generation calls, got %d", f.videos.calls())
	}
	if f.prompts.adjustCalls != 0 {
		t.Fatalf("expected no prompt adjustments, got %d", f.prompts.adjustCalls)
	}
}

func TestDriverPublishesFractionalClipProgress(t *testing.T) {
	f := newFixture(t)
	f.prompts.pairs = append(f.prompts.pairs, toolllm.PromptPair{
		Prompt: "presenter waves", Fragment: "Order now.",
	})
	f.driver.segments = &stubSegmenter{durations: []float64{5, 5, 5}}
	job := f.newJob(t)

	if err := f.driver.Run(context.Background(), job); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Three clips split the generation window into thirds, so intermediate
	// clip_finished events carry a non-integral percent.
	events, _ := f.bus.HubFor(job.ID).Tail(64)
	var sawFraction bool
	for _, evt := range events {
		if evt.Type != "clip_finished" {
			continue
		}
		if evt.Percent != math.Trunc(evt.Percent) {
			sawFraction = true
		}
	}
	if !sawFraction {
		t.Fatal("expected a clip_finished event with a fractional percent")
	}
}

func TestDriverResumesFromExistingArtifacts(t *testing.T) {
	f := newFixture(t)
	job := f.newJob(t)
	ws, _ := workspace.ForJob(f.cfg.Paths.WorkspaceDir, job.ID)

	// Simulate a process killed after the merge step: every artifact up to
	// merged.mp4 is on disk and the clip tasks are verified, but the job
	// row still points at an early step.
	testsupport.WriteFile(t, ws.VoiceTrack(), "wav")
	if err := workspace.WriteJSON(ws.Prompts(), f.prompts.pairs); err != nil {
		t.Fatalf("seed prompts artifact: %v", err)
	}
	for i, pair := range f.prompts.pairs {
		testsupport.WriteFile(t, ws.Clip(i), "mp4")
		clip := &store.ClipTask{
			JobID:       job.ID,
			Idx:         i,
			Prompt:      pair.Prompt,
			Fragment:    pair.Fragment,
			DurationSec: 6,
			VideoFile:   ws.Clip(i),
			Status:      store.ClipVerified,
			Verified:    true,
			Confidence:  0.9,
		}
		if err := f.store.InsertClip(context.Background(), clip); err != nil {
			t.Fatalf("seed clip: %v", err)
		}
	}
	testsupport.WriteFile(t, ws.Merged(), "mp4")

	if err := f.driver.Run(context.Background(), job); err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if job.Status != store.StatusCompleted {
		t.Fatalf("expected completed after resume, got %s (%s)", job.Status, job.ErrorMessage)
	}
	if f.speech.synthCalls != 0 {
		t.Fatal("voice synthesis re-ran despite existing artifact")
	}
	if f.videos.calls() != 0 {
		t.Fatal("clip generation re-ran despite verified clips")
	}
	if !workspace.Exists(ws.Final()) {
		t.Fatal("final artifact missing after resume")
	}
}

func TestDriverEnhancementFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.speech.convertErr = errors.New("voice service unavailable")
	job := f.newJob(t)

	if err := f.driver.Run(context.Background(), job); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.ErrorMessage)
	}

	ws, _ := workspace.ForJob(f.cfg.Paths.WorkspaceDir, job.ID)
	if !workspace.Exists(ws.Enhanced()) {
		t.Fatal("expected merged output carried forward as enhanced artifact")
	}
}

func TestDriverContentPolicyRetriesWithReferenceImage(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Workflow.FrameContinuity = true
	})
	// Continuity frames are rejected; the original reference image is not.
	f.videos.rejectSeeds["frame_0.png"] = true
	job := f.newJob(t)

	if err := f.driver.Run(context.Background(), job); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.ErrorMessage)
	}

	var sawPolicyFallback bool
	for _, req := range f.videos.requests {
		if filepath.Base(req.ImagePath) == "reference.png" {
			sawPolicyFallback = true
		}
	}
	if !sawPolicyFallback {
		t.Fatal("expected a generation request seeded with the reference image")
	}
}

func TestDriverSingleClipPassthrough(t *testing.T) {
	f := newFixture(t)
	f.prompts.pairs = f.prompts.pairs[:1]
	f.driver.segments = &stubSegmenter{durations: []float64{5}}
	job := f.newJob(t)

	if err := f.driver.Run(context.Background(), job); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	ws, _ := workspace.ForJob(f.cfg.Paths.WorkspaceDir, job.ID)
	if !workspace.Exists(ws.Merged()) {
		t.Fatal("expected merged artifact from single clip passthrough")
	}
}
