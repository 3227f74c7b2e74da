package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusRetrying,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a user-supplied string into a Status.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusSet[status]; !ok {
		return "", fmt.Errorf("unknown job status %q", value)
	}
	return status, nil
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Claimable reports whether a worker may pick the job up.
func (s Status) Claimable() bool {
	return s == StatusPending || s == StatusRetrying
}

// AbandonedReason is the error message recorded when a processing job is
// reclaimed after its worker stopped heartbeating.
const AbandonedReason = "worker stopped reporting progress"

// JobError is the failure descriptor stored on a job. It carries the stable
// error kind and a human message, never a raw generator payload.
type JobError struct {
	Kind      string            `json:"kind"`
	Message   string            `json:"message"`
	Hint      string            `json:"hint,omitempty"`
	Attempts  int               `json:"attempts"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

// Job is one unit of background work.
type Job struct {
	ID              string          `json:"id"`
	WorkType        string          `json:"work_type"`
	Status          Status          `json:"status"`
	ProgressPercent float64         `json:"progress_percent"`
	CurrentStep     string          `json:"current_step,omitempty"`
	Attempts        int             `json:"attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	Payload         json.RawMessage `json:"payload"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           *JobError       `json:"error,omitempty"`
	ClaimedBy       string          `json:"claimed_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	NextRunAt       *time.Time      `json:"next_run_at,omitempty"`
	LastHeartbeat   *time.Time      `json:"last_heartbeat,omitempty"`
	Version         int64           `json:"version"`
}

// AttemptsRemaining reports whether another attempt may be scheduled.
func (j *Job) AttemptsRemaining() bool {
	return j.Attempts < j.MaxAttempts
}

// NewJob describes a job to enqueue.
type NewJob struct {
	WorkType    string
	Payload     json.RawMessage
	MaxAttempts int
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	WorkType string
	Statuses []Status
	Limit    int
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Retrying   int
	Completed  int
	Failed     int
	Cancelled  int
}
