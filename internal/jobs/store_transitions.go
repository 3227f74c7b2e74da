package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// claimSet is the SET clause shared by ClaimNext and Claim.
const claimSet = `status = ?, attempts = attempts + 1, started_at = COALESCE(started_at, ?),
            claimed_by = ?, last_heartbeat = ?, next_run_at = NULL, progress_percent = 0,
            current_step = NULL, version = version + 1, updated_at = ?`

// ClaimNext atomically moves the oldest runnable job of workType to
// processing and returns it. A job is runnable when pending, or retrying with
// next_run_at due. It returns (nil, nil) when nothing is runnable.
func (s *Store) ClaimNext(ctx context.Context, workType, workerID string) (*Job, error) {
	now := formatTime(time.Now())
	query := `UPDATE jobs SET ` + claimSet + `
        WHERE id = (
            SELECT id FROM jobs
            WHERE work_type = ? AND (status = ? OR (status = ? AND (next_run_at IS NULL OR next_run_at <= ?)))
            ORDER BY created_at, id
            LIMIT 1` + s.dialect.lockClause + `
        ) AND status IN (?, ?)
        RETURNING ` + jobColumns
	job, err := s.queryJobWithRetry(ctx, query,
		string(StatusProcessing), now, nullableString(workerID), now, now,
		workType, string(StatusPending), string(StatusRetrying), now,
		string(StatusPending), string(StatusRetrying),
	)
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// Claim moves a specific pending or retrying job to processing. Claim does not
// wait for next_run_at; callers that process a known job run it immediately.
func (s *Store) Claim(ctx context.Context, id, workerID string) (*Job, error) {
	now := formatTime(time.Now())
	job, err := s.queryJobWithRetry(ctx,
		`UPDATE jobs SET `+claimSet+` WHERE id = ? AND status IN (?, ?) RETURNING `+jobColumns,
		string(StatusProcessing), now, nullableString(workerID), now, now,
		id, string(StatusPending), string(StatusRetrying),
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return nil, s.rejected(ctx, id, "claim")
	}
	return job, nil
}

// UpdateProgress records advisory progress for a processing job.
func (s *Store) UpdateProgress(ctx context.Context, id string, percent float64, step string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return s.transition(ctx, id, "update progress", []Status{StatusProcessing},
		"progress_percent = ?, current_step = ?", percent, nullableString(step))
}

// Complete stores the result and marks a processing job completed. A job that
// was cancelled while running is left untouched and ErrTransitionRejected is
// returned, discarding the result.
func (s *Store) Complete(ctx context.Context, id string, result json.RawMessage) error {
	if len(result) > 0 && !json.Valid(result) {
		return fmt.Errorf("complete job %s: result is not valid JSON", id)
	}
	now := formatTime(time.Now())
	return s.transition(ctx, id, "complete", []Status{StatusProcessing},
		`status = ?, result = ?, error_json = NULL, progress_percent = 100, completed_at = ?,
            claimed_by = NULL, last_heartbeat = NULL`,
		string(StatusCompleted), nullableJSON(result), now)
}

// ScheduleRetry moves a processing job to retrying with the given due time,
// recording the failure that caused it.
func (s *Store) ScheduleRetry(ctx context.Context, id string, nextRunAt time.Time, jobErr *JobError) error {
	encoded, err := encodeJobError(jobErr)
	if err != nil {
		return err
	}
	return s.transition(ctx, id, "schedule retry", []Status{StatusProcessing},
		`status = ?, next_run_at = ?, error_json = ?, claimed_by = NULL, last_heartbeat = NULL`,
		string(StatusRetrying), formatTime(nextRunAt), encoded)
}

// Release returns an interrupted processing job to retrying, due now. The
// interrupted attempt is not counted against max_attempts and the last
// recorded failure is kept.
func (s *Store) Release(ctx context.Context, id string) error {
	return s.transition(ctx, id, "release", []Status{StatusProcessing},
		`status = ?, attempts = CASE WHEN attempts > 0 THEN attempts - 1 ELSE 0 END, next_run_at = ?,
            claimed_by = NULL, last_heartbeat = NULL, progress_percent = 0, current_step = NULL`,
		string(StatusRetrying), formatTime(time.Now()))
}

// Fail marks a processing job permanently failed.
func (s *Store) Fail(ctx context.Context, id string, jobErr *JobError) error {
	encoded, err := encodeJobError(jobErr)
	if err != nil {
		return err
	}
	now := formatTime(time.Now())
	return s.transition(ctx, id, "fail", []Status{StatusProcessing},
		`status = ?, error_json = ?, completed_at = ?, next_run_at = NULL, claimed_by = NULL, last_heartbeat = NULL`,
		string(StatusFailed), encoded, now)
}

// Cancel marks a non-terminal job cancelled. In-flight work on a processing
// job keeps running but its result is discarded by Complete.
func (s *Store) Cancel(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	return s.transition(ctx, id, "cancel", []Status{StatusPending, StatusRetrying, StatusProcessing},
		`status = ?, completed_at = ?, next_run_at = NULL, claimed_by = NULL, last_heartbeat = NULL`,
		string(StatusCancelled), now)
}

// transition runs one conditional UPDATE gated on the job's current status,
// bumping version and updated_at.
func (s *Store) transition(ctx context.Context, id, op string, from []Status, set string, args ...any) error {
	query := `UPDATE jobs SET ` + set + `, version = version + 1, updated_at = ?
        WHERE id = ? AND status IN (` + makePlaceholders(len(from)) + `)`
	all := make([]any, 0, len(args)+2+len(from))
	all = append(all, args...)
	all = append(all, formatTime(time.Now()), id)
	all = append(all, statusArgs(from)...)

	res, err := s.execWithRetry(ctx, query, all...)
	if err != nil {
		return fmt.Errorf("%s job %s: %w", op, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s job %s: rows affected: %w", op, id, err)
	}
	if affected == 0 {
		return s.rejected(ctx, id, op)
	}
	return nil
}

// rejected explains why a conditional update matched nothing.
func (s *Store) rejected(ctx context.Context, id, op string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot %s job %s in status %s", ErrTransitionRejected, op, id, job.Status)
}

// IsTransitionRejected reports whether err came from a lost conditional update.
func IsTransitionRejected(err error) bool {
	return errors.Is(err, ErrTransitionRejected)
}
