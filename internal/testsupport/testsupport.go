// Package testsupport provides shared builders for package tests.
package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"adforge/internal/config"
	"adforge/internal/store"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Speech.BaseURL = "http://127.0.0.1:0"
	cfg.Speech.APIKey = "test"
	cfg.VideoGen.BaseURL = "http://127.0.0.1:0"
	cfg.VideoGen.APIKey = "test"
	cfg.Vision.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewJob creates a pending job for tests using the provided store.
func NewJob(t testing.TB, s *store.Store, script string) *store.Job {
	t.Helper()

	job, err := s.NewJob(context.Background(), store.NewJobParams{
		Owner:         "tester",
		Script:        script,
		CharacterName: "Ava",
		AspectRatio:   "9:16",
		Driver:        "pipeline",
	})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}

// WriteFile fills the target path with placeholder bytes, creating parent
// directories as needed.
func WriteFile(t testing.TB, path string, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if contents == "" {
		contents = "x"
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
