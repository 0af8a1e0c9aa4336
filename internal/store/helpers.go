package store

import (
	"database/sql"
	"strings"
	"time"
)

const jobColumns = "id, owner, script, character_name, voice, aspect_ratio, reference_image, status, driver, progress_step, progress_percent, progress_message, merged_file, final_file, asset_id, error_message, cost_usd, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		owner           sql.NullString
		script          string
		characterName   sql.NullString
		voice           sql.NullString
		aspectRatio     sql.NullString
		referenceImage  sql.NullString
		statusStr       string
		driver          sql.NullString
		progressStep    sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		mergedFile      sql.NullString
		finalFile       sql.NullString
		assetID         sql.NullString
		errorMessage    sql.NullString
		costUSD         sql.NullFloat64
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&owner,
		&script,
		&characterName,
		&voice,
		&aspectRatio,
		&referenceImage,
		&statusStr,
		&driver,
		&progressStep,
		&progressPercent,
		&progressMessage,
		&mergedFile,
		&finalFile,
		&assetID,
		&errorMessage,
		&costUSD,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		Owner:           owner.String,
		Script:          script,
		CharacterName:   characterName.String,
		Voice:           voice.String,
		AspectRatio:     aspectRatio.String,
		ReferenceImage:  referenceImage.String,
		Status:          Status(statusStr),
		Driver:          driver.String,
		ProgressStep:    progressStep.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		MergedFile:      mergedFile.String,
		FinalFile:       finalFile.String,
		AssetID:         assetID.String,
		ErrorMessage:    errorMessage.String,
		CostUSD:         costUSD.Float64,
	}
	job.CreatedAt = parseTimestamp(createdRaw.String)
	job.UpdatedAt = parseTimestamp(updatedRaw.String)
	return job, nil
}

const clipColumns = "id, job_id, idx, prompt, fragment, duration_sec, video_file, status, retry_count, verified, confidence, verify_notes, created_at, updated_at"

func scanClip(scanner interface{ Scan(dest ...any) error }) (*ClipTask, error) {
	var (
		id          int64
		jobID       int64
		idx         int
		prompt      sql.NullString
		fragment    string
		durationSec sql.NullFloat64
		videoFile   sql.NullString
		statusStr   string
		retryCount  sql.NullInt64
		verified    sql.NullInt64
		confidence  sql.NullFloat64
		verifyNotes sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&idx,
		&prompt,
		&fragment,
		&durationSec,
		&videoFile,
		&statusStr,
		&retryCount,
		&verified,
		&confidence,
		&verifyNotes,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	clip := &ClipTask{
		ID:          id,
		JobID:       jobID,
		Idx:         idx,
		Prompt:      prompt.String,
		Fragment:    fragment,
		DurationSec: durationSec.Float64,
		VideoFile:   videoFile.String,
		Status:      ClipStatus(statusStr),
		RetryCount:  int(retryCount.Int64),
		Verified:    verified.Int64 != 0,
		Confidence:  confidence.Float64,
		VerifyNotes: verifyNotes.String,
	}
	clip.CreatedAt = parseTimestamp(createdRaw.String)
	clip.UpdatedAt = parseTimestamp(updatedRaw.String)
	return clip, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	return time.Time{}
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}
