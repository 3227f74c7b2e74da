package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vitae/internal/jobs"
	"vitae/internal/logging"
	"vitae/internal/retry"
	"vitae/internal/services"
)

// handleJobFailure classifies a handler error and either schedules a retry
// or fails the job permanently.
func (m *Manager) handleJobFailure(ctx context.Context, logger *slog.Logger, job *jobs.Job, jobErr error, elapsed time.Duration) (Outcome, error) {
	state := m.policyFor(job).Evaluate(jobErr, job.Attempts)
	descriptor := describeFailure(job, jobErr, state)
	details := services.Details(jobErr)

	attrs := []logging.Attr{
		logging.String(logging.FieldErrorKind, descriptor.Kind),
		logging.String("error_message", descriptor.Message),
		logging.Int("attempt", job.Attempts),
		logging.Int("max_attempts", state.MaxAttempts),
		logging.Bool("retryable", state.Retryable),
		logging.String("retry_reason", state.Reason),
		logging.Duration("job_duration", elapsed),
	}
	if details.Hint != "" {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, details.Hint))
	}
	attrs = append(attrs, logging.Error(jobErr))

	if state.ShouldRetry() {
		nextRun := m.now().Add(state.Delay)
		if err := m.store.ScheduleRetry(ctx, job.ID, nextRun, descriptor); err != nil {
			return m.persistFailure(logger, err)
		}
		logging.WarnWithContext(logger, "job failed; retry scheduled", "job_retry_scheduled",
			append(attrs,
				logging.Duration("retry_delay", state.Delay),
				logging.String(logging.FieldImpact, "job will run again after the delay"),
			)...,
		)
		return OutcomeRetrying, nil
	}

	if err := m.store.Fail(ctx, job.ID, descriptor); err != nil {
		return m.persistFailure(logger, err)
	}
	logging.ErrorWithContext(logger, "job failed", "job_failed", attrs...)

	if m.onFailure != nil {
		failed := *job
		failed.Status = jobs.StatusFailed
		failed.Error = descriptor
		m.runFailureHook(ctx, logger, &failed, descriptor)
	}
	return OutcomeFailed, nil
}

// interrupted reports whether runErr is the handler observing cancellation
// of the run context (shutdown or caller cancel) rather than a job failure.
func interrupted(ctx context.Context, runErr error) bool {
	return errors.Is(ctx.Err(), context.Canceled) && errors.Is(runErr, context.Canceled)
}

// release hands an interrupted job back to the queue. The attempt is not
// counted and the final-failure hook does not run.
func (m *Manager) release(ctx context.Context, logger *slog.Logger, job *jobs.Job, elapsed time.Duration) (Outcome, error) {
	if err := m.store.Release(ctx, job.ID); err != nil {
		return m.persistFailure(logger, err)
	}
	logging.WarnWithContext(logger, "job interrupted; returned to queue", "job_interrupted",
		logging.Int("attempt", job.Attempts),
		logging.Duration("job_duration", elapsed),
		logging.String(logging.FieldImpact, "job will run again without spending an attempt"),
	)
	return OutcomeInterrupted, nil
}

func (m *Manager) persistFailure(logger *slog.Logger, err error) (Outcome, error) {
	if jobs.IsTransitionRejected(err) {
		logger.Info("job failure discarded",
			logging.String(logging.FieldEventType, "job_result_discarded"),
			logging.String("reason", err.Error()),
		)
		return OutcomeDiscarded, nil
	}
	wrapped := fmt.Errorf("persist job failure: %w", err)
	logger.Error("failed to persist job failure",
		logging.Error(wrapped),
		logging.String(logging.FieldEventType, "job_persist_failed"),
		logging.String(logging.FieldErrorHint, "check job store access"),
	)
	return "", wrapped
}

func (m *Manager) runFailureHook(ctx context.Context, logger *slog.Logger, job *jobs.Job, descriptor *jobs.JobError) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "final failure hook panicked", "failure_hook_panic",
				logging.Any("panic", r),
			)
		}
	}()
	m.onFailure(ctx, job, descriptor)
}

// describeFailure builds the persisted error descriptor. The message is the
// classified message when available, never a raw provider payload.
func describeFailure(job *jobs.Job, jobErr error, state retry.State) *jobs.JobError {
	details := services.Details(jobErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = fmt.Sprintf("%s failed without error detail", job.WorkType)
	}
	kind := details.Kind
	if kind == services.KindUnknown && state.Timeout {
		kind = services.KindTimeout
	}
	descriptor := &jobs.JobError{
		Kind:      kind,
		Message:   message,
		Hint:      details.Hint,
		Attempts:  job.Attempts,
		Retryable: state.Retryable,
	}
	extra := map[string]string{}
	if details.Component != "" {
		extra["component"] = details.Component
	}
	if details.Operation != "" {
		extra["operation"] = details.Operation
	}
	if state.Reason != "" {
		extra["retry_reason"] = state.Reason
	}
	if state.Exhausted && state.Retryable {
		extra["exhausted"] = "true"
	}
	if errors.Is(jobErr, context.Canceled) {
		extra["interrupted"] = "true"
	}
	if len(extra) > 0 {
		descriptor.Details = extra
	}
	return descriptor
}
