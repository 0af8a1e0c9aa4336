package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAnalyzingScript   Status = "analyzing_script"
	StatusGeneratingPrompts Status = "generating_prompts"
	StatusGeneratingVideos  Status = "generating_videos"
	StatusVerifyingClips    Status = "verifying_clips"
	StatusMergingVideos     Status = "merging_videos"
	StatusEnhancingVoice    Status = "enhancing_voice"
	StatusFinalizing        Status = "finalizing"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusAnalyzingScript,
	StatusGeneratingPrompts,
	StatusGeneratingVideos,
	StatusVerifyingClips,
	StatusMergingVideos,
	StatusEnhancingVoice,
	StatusFinalizing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ActiveStatuses returns the non-terminal statuses in lifecycle order. A
// daemon restart reclaims any job left in one of these states.
func ActiveStatuses() []Status {
	active := make([]Status, 0, len(allStatuses))
	for _, status := range allStatuses {
		if !status.IsTerminal() {
			active = append(active, status)
		}
	}
	return active
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends the job lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job represents one advertisement generation job persisted in SQLite.
type Job struct {
	ID              int64
	Owner           string
	Script          string
	CharacterName   string
	Voice           string
	AspectRatio     string
	ReferenceImage  string
	Status          Status
	Driver          string
	ProgressStep    string
	ProgressPercent float64
	ProgressMessage string
	MergedFile      string
	FinalFile       string
	AssetID         string
	ErrorMessage    string
	CostUSD         float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ClipStatus represents the lifecycle of one clip task.
type ClipStatus string

const (
	ClipPending    ClipStatus = "pending"
	ClipGenerating ClipStatus = "generating"
	ClipVerifying  ClipStatus = "verifying"
	ClipVerified   ClipStatus = "verified"
	ClipFailed     ClipStatus = "failed"
)

// ClipTask represents one video segment owned by a job. The script fragment is
// verbatim input text and never changes once assigned; retries adjust the
// visual prompt only.
type ClipTask struct {
	ID          int64
	JobID       int64
	Idx         int
	Prompt      string
	Fragment    string
	DurationSec float64
	VideoFile   string
	Status      ClipStatus
	RetryCount  int
	Verified    bool
	Confidence  float64
	VerifyNotes string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SetProgress updates the progress fields. While the job is non-terminal the
// percent is monotonically non-decreasing; a lower value is ignored.
func (j *Job) SetProgress(step, message string, percent float64) {
	if !j.Status.IsTerminal() && percent < j.ProgressPercent {
		percent = j.ProgressPercent
	}
	if percent > 100 {
		percent = 100
	}
	j.ProgressStep = step
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetFailed marks the job as failed with the given error message.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.FinalFile = ""
	j.ProgressStep = "Failed"
	j.ProgressMessage = message
}

// SetCompleted marks the job as completed with its final output handle.
func (j *Job) SetCompleted(finalFile, assetID string) {
	j.Status = StatusCompleted
	j.FinalFile = finalFile
	j.AssetID = assetID
	j.ErrorMessage = ""
	j.SetProgress("Completed", "Final video ready", 100)
}

// IsProcessing returns true when the status reflects in-flight work.
func (j Job) IsProcessing() bool {
	switch j.Status {
	case StatusPending, StatusCompleted, StatusFailed:
		return false
	default:
		return true
	}
}
