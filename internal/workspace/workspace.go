package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the artifact namespace for one job. Every named artifact is
// write-once; the presence of an artifact is the resume signal that its step
// already ran.
type Workspace struct {
	root string
}

// ForJob returns the workspace rooted under baseDir for the given job,
// creating the directory if needed.
func ForJob(baseDir string, jobID int64) (*Workspace, error) {
	root := filepath.Join(baseDir, fmt.Sprintf("job_%d", jobID))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ensure job workspace: %w", err)
	}
	return &Workspace{root: root}, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

func (w *Workspace) path(name string) string { return filepath.Join(w.root, name) }

// Named artifact paths. The layout is frozen: resume detection depends on it.

func (w *Workspace) VoiceTrack() string          { return w.path("voice.wav") }
func (w *Workspace) Segment(idx int) string      { return w.path(fmt.Sprintf("segment_%d.wav", idx)) }
func (w *Workspace) Clip(idx int) string         { return w.path(fmt.Sprintf("clip_%d.mp4", idx)) }
func (w *Workspace) LastFrame(idx int) string    { return w.path(fmt.Sprintf("frame_%d.png", idx)) }
func (w *Workspace) Prompts() string             { return w.path("prompts.json") }
func (w *Workspace) Verification(idx int) string { return w.path(fmt.Sprintf("verification_%d.json", idx)) }
func (w *Workspace) Merged() string              { return w.path("merged.mp4") }
func (w *Workspace) MergedAudio() string         { return w.path("merged_audio.wav") }
func (w *Workspace) EnhancedVoice() string       { return w.path("voice_enhanced.wav") }
func (w *Workspace) Enhanced() string            { return w.path("enhanced.mp4") }
func (w *Workspace) Final() string               { return w.path("final.mp4") }
func (w *Workspace) ReferenceImage() string      { return w.path("reference.png") }

// Exists reports whether an artifact file is present and non-empty.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// WriteJSON persists a JSON artifact. It refuses to overwrite an existing
// artifact: checkpoints are write-once.
func WriteJSON(path string, value any) error {
	if Exists(path) {
		return fmt.Errorf("artifact already exists: %s", path)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	return writeAtomic(path, data)
}

// AppendJSONLine appends a JSON record to a log artifact. Verification logs
// accumulate one record per attempt, so unlike other artifacts this file grows.
func AppendJSONLine(path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log artifact: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append log record: %w", err)
	}
	return nil
}

// ReadJSON loads a JSON artifact into value.
func ReadJSON(path string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("parse artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteFile persists a binary artifact atomically, refusing overwrites.
func WriteFile(path string, data []byte) error {
	if Exists(path) {
		return fmt.Errorf("artifact already exists: %s", path)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize artifact: %w", err)
	}
	return nil
}
