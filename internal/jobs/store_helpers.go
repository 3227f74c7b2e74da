package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = "id, work_type, status, progress_percent, current_step, attempts, max_attempts, payload, result, error_json, claimed_by, created_at, updated_at, started_at, completed_at, next_run_at, last_heartbeat, version"

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               string
		workType         string
		statusStr        string
		progressPercent  sql.NullFloat64
		currentStep      sql.NullString
		attempts         int
		maxAttempts      int
		payload          sql.NullString
		result           sql.NullString
		errorJSON        sql.NullString
		claimedBy        sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		startedRaw       sql.NullString
		completedRaw     sql.NullString
		nextRunRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
		version          int64
	)

	if err := scanner.Scan(
		&id,
		&workType,
		&statusStr,
		&progressPercent,
		&currentStep,
		&attempts,
		&maxAttempts,
		&payload,
		&result,
		&errorJSON,
		&claimedBy,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&nextRunRaw,
		&lastHeartbeatRaw,
		&version,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		WorkType:        workType,
		Status:          Status(statusStr),
		ProgressPercent: progressPercent.Float64,
		CurrentStep:     currentStep.String,
		Attempts:        attempts,
		MaxAttempts:     maxAttempts,
		ClaimedBy:       claimedBy.String,
		Version:         version,
	}
	if payload.Valid && payload.String != "" {
		job.Payload = json.RawMessage(payload.String)
	}
	if result.Valid && result.String != "" {
		job.Result = json.RawMessage(result.String)
	}
	if errorJSON.Valid && errorJSON.String != "" {
		var jobErr JobError
		if err := json.Unmarshal([]byte(errorJSON.String), &jobErr); err != nil {
			return nil, fmt.Errorf("decode job error: %w", err)
		}
		job.Error = &jobErr
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseNullableTime(startedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	job.NextRunAt = parseNullableTime(nextRunRaw)
	job.LastHeartbeat = parseNullableTime(lastHeartbeatRaw)
	return job, nil
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableJSON(value json.RawMessage) any {
	if len(value) == 0 {
		return nil
	}
	return string(value)
}

func encodeJobError(jobErr *JobError) (any, error) {
	if jobErr == nil {
		return nil, nil
	}
	data, err := json.Marshal(jobErr)
	if err != nil {
		return nil, fmt.Errorf("encode job error: %w", err)
	}
	return string(data), nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}
