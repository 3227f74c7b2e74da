package jobs

import (
	"context"
	"fmt"
	"time"
)

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusRetrying:
			health.Retrying += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

// UpdateHeartbeat refreshes the heartbeat of a processing job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	return s.transition(ctx, id, "heartbeat", []Status{StatusProcessing},
		"last_heartbeat = ?", formatTime(time.Now()))
}

// ReclaimStale returns processing jobs whose heartbeat is older than cutoff to
// retrying, or fails them when no attempts remain. It returns the number of
// jobs moved.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	return s.reclaim(ctx, `SELECT `+jobColumns+` FROM jobs
        WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		string(StatusProcessing), formatTime(cutoff))
}

// ReclaimProcessing reclaims every processing job regardless of heartbeat.
// The daemon calls it at startup, when no worker of its own can be running.
func (s *Store) ReclaimProcessing(ctx context.Context) (int, error) {
	return s.reclaim(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ?`, string(StatusProcessing))
}

func (s *Store) reclaim(ctx context.Context, query string, args ...any) (int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("find abandoned jobs: %w", err)
	}
	var candidates []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan abandoned job: %w", err)
		}
		candidates = append(candidates, job)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, job := range candidates {
		moved, err := s.reclaimOne(ctx, job)
		if err != nil {
			return reclaimed, err
		}
		if moved {
			reclaimed++
		}
	}
	return reclaimed, nil
}

// reclaimOne moves a single abandoned job, guarded by its version so a job
// that heartbeated or finished in the meantime is left alone.
func (s *Store) reclaimOne(ctx context.Context, job *Job) (bool, error) {
	retryable := job.AttemptsRemaining()
	encoded, err := encodeJobError(&JobError{
		Kind:      "timeout",
		Message:   AbandonedReason,
		Attempts:  job.Attempts,
		Retryable: retryable,
	})
	if err != nil {
		return false, err
	}
	now := formatTime(time.Now())
	var (
		status    = StatusRetrying
		nextRun   any = now
		completed any
	)
	if !retryable {
		status, nextRun, completed = StatusFailed, nil, now
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, next_run_at = ?, completed_at = ?, error_json = ?,
            claimed_by = NULL, last_heartbeat = NULL, version = version + 1, updated_at = ?
        WHERE id = ? AND status = ? AND version = ?`,
		string(status), nextRun, completed, encoded, now,
		job.ID, string(StatusProcessing), job.Version,
	)
	if err != nil {
		return false, fmt.Errorf("reclaim job %s: %w", job.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclaim job %s: rows affected: %w", job.ID, err)
	}
	return affected > 0, nil
}
