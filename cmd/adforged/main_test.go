package main

import (
	"context"
	"testing"
	"time"

	"adforge/internal/metrics"
	"adforge/internal/progress"
	"adforge/internal/testsupport"
)

func TestBuildManagerStartsAndStops(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	// Wire the agent driver too so both construction paths run.
	cfg.ToolModel.APIKey = "test-key"
	jobStore := testsupport.MustOpenStore(t, cfg)

	bus := progress.NewBus(cfg.Workflow.ProgressBufferEntries)
	manager := buildManager(cfg, jobStore, nil, bus, metrics.New())
	if manager == nil {
		t.Fatal("buildManager returned nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("manager.Start: %v", err)
	}
	if !manager.Running() {
		t.Error("manager not running after Start")
	}
	manager.Stop()
	if manager.Running() {
		t.Error("manager still running after Stop")
	}
}

func TestBuildManagerWithoutAgentCredential(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.ToolModel.APIKey = ""
	jobStore := testsupport.MustOpenStore(t, cfg)

	bus := progress.NewBus(cfg.Workflow.ProgressBufferEntries)
	manager := buildManager(cfg, jobStore, nil, bus, metrics.New())
	if manager == nil {
		t.Fatal("buildManager returned nil")
	}
}
