package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertClip inserts one clip task for a job. The (job, idx) pair is unique;
// prompt generation runs once per job and a resumed job reuses existing rows.
func (s *Store) InsertClip(ctx context.Context, clip *ClipTask) error {
	if clip == nil {
		return errors.New("clip is nil")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO clip_tasks (
            job_id, idx, prompt, fragment, duration_sec, video_file, status,
            retry_count, verified, confidence, verify_notes, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clip.JobID,
		clip.Idx,
		nullableString(clip.Prompt),
		clip.Fragment,
		clip.DurationSec,
		nullableString(clip.VideoFile),
		clip.Status,
		clip.RetryCount,
		boolToInt(clip.Verified),
		clip.Confidence,
		nullableString(clip.VerifyNotes),
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert clip: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	clip.ID = id
	return nil
}

// UpdateClip persists changes to an existing clip task. The script fragment is
// immutable once assigned and is deliberately not part of the update set.
func (s *Store) UpdateClip(ctx context.Context, clip *ClipTask) error {
	if clip == nil {
		return errors.New("clip is nil")
	}
	clip.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE clip_tasks
         SET prompt = ?, duration_sec = ?, video_file = ?, status = ?,
             retry_count = ?, verified = ?, confidence = ?, verify_notes = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(clip.Prompt),
		clip.DurationSec,
		nullableString(clip.VideoFile),
		clip.Status,
		clip.RetryCount,
		boolToInt(clip.Verified),
		clip.Confidence,
		nullableString(clip.VerifyNotes),
		clip.UpdatedAt.Format(time.RFC3339Nano),
		clip.ID,
	)
	if err != nil {
		return fmt.Errorf("update clip: %w", err)
	}
	return nil
}

// ClipsForJob returns a job's clip tasks ordered by index. Failed tasks stay
// in the list for audit.
func (s *Store) ClipsForJob(ctx context.Context, jobID int64) ([]*ClipTask, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+clipColumns+` FROM clip_tasks WHERE job_id = ? ORDER BY idx`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	defer rows.Close()

	var clips []*ClipTask
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, clip)
	}
	return clips, rows.Err()
}

// ClipByIndex returns the clip at idx for a job, or (nil, nil) when absent.
func (s *Store) ClipByIndex(ctx context.Context, jobID int64, idx int) (*ClipTask, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+clipColumns+` FROM clip_tasks WHERE job_id = ? AND idx = ?`,
		jobID,
		idx,
	)
	clip, err := scanClip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get clip: %w", err)
	}
	return clip, nil
}
