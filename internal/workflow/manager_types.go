package workflow

import (
	"context"
	"encoding/json"
	"time"

	"vitae/internal/jobs"
)

// ProgressFunc reports advisory progress for the running job.
type ProgressFunc func(percent float64, step string)

// Handler processes one claimed job and returns its JSON result.
type Handler interface {
	Handle(ctx context.Context, job *jobs.Job, progress ProgressFunc) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *jobs.Job, progress ProgressFunc) (json.RawMessage, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *jobs.Job, progress ProgressFunc) (json.RawMessage, error) {
	return f(ctx, job, progress)
}

// HealthReporter is implemented by handlers that can check their
// dependencies.
type HealthReporter interface {
	HealthCheck(ctx context.Context) Health
}

// FailureHook runs once when a job fails permanently.
type FailureHook func(ctx context.Context, job *jobs.Job, jobErr *jobs.JobError)

// Store is the subset of the job store the manager drives.
type Store interface {
	ClaimNext(ctx context.Context, workType, workerID string) (*jobs.Job, error)
	Claim(ctx context.Context, id, workerID string) (*jobs.Job, error)
	UpdateProgress(ctx context.Context, id string, percent float64, step string) error
	Complete(ctx context.Context, id string, result json.RawMessage) error
	ScheduleRetry(ctx context.Context, id string, nextRunAt time.Time, jobErr *jobs.JobError) error
	Fail(ctx context.Context, id string, jobErr *jobs.JobError) error
	Release(ctx context.Context, id string) error
	UpdateHeartbeat(ctx context.Context, id string) error
	ReclaimStale(ctx context.Context, cutoff time.Time) (int, error)
	Stats(ctx context.Context) (map[jobs.Status]int, error)
}

type registration struct {
	workType string
	handler  Handler
	workers  int
}

// Outcome is how Process settled a job.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetrying  Outcome = "retrying"
	OutcomeFailed    Outcome = "failed"
	// OutcomeDiscarded means the job left processing (cancelled or
	// reclaimed) while the handler ran, so nothing was written.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeInterrupted means the run context was cancelled mid-job and the
	// job was handed back without spending the attempt.
	OutcomeInterrupted Outcome = "interrupted"
)
