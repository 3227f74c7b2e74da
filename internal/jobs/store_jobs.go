package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vitae/internal/services"
)

// Create enqueues a pending job.
func (s *Store) Create(ctx context.Context, spec NewJob) (*Job, error) {
	workType := strings.TrimSpace(spec.WorkType)
	if workType == "" {
		return nil, services.Wrap(services.ErrValidation, "jobs", "create", "work type required", nil)
	}
	if spec.MaxAttempts <= 0 {
		return nil, services.Wrap(services.ErrValidation, "jobs", "create", "max attempts must be positive", nil)
	}
	payload := spec.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return nil, services.Wrap(services.ErrValidation, "jobs", "create", "payload is not valid JSON", nil)
	}

	id := uuid.NewString()
	timestamp := formatTime(time.Now())
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, work_type, status, progress_percent, attempts, max_attempts,
            payload, created_at, updated_at, version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		workType,
		string(StatusPending),
		0.0,
		0,
		spec.MaxAttempts,
		string(payload),
		timestamp,
		timestamp,
		1,
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a job by identifier. A missing job is a not-found error.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), s.rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "get", fmt.Sprintf("job %s not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.WorkType != "" {
		clauses = append(clauses, "work_type = ?")
		args = append(args, filter.WorkType)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		args = append(args, statusArgs(filter.Statuses)...)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}
