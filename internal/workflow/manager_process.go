package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"vitae/internal/jobs"
	"vitae/internal/logging"
	"vitae/internal/services"
)

// settleTimeout bounds the store writes that record a job outcome. They run
// on a context detached from shutdown so a finished job is never left
// processing.
const settleTimeout = 10 * time.Second

// Process claims a specific pending or retrying job and runs it to an
// outcome. Handler failures are recorded on the job, not returned; the error
// is non-nil only when the store could not be updated.
func (m *Manager) Process(ctx context.Context, job *jobs.Job) (Outcome, error) {
	if job == nil {
		return "", services.Wrap(services.ErrValidation, "workflow", "process", "job required", nil)
	}
	reg, ok := m.registration(job.WorkType)
	if !ok {
		return "", services.Wrap(services.ErrConfiguration, "workflow", "process",
			fmt.Sprintf("no handler registered for %q", job.WorkType), nil)
	}
	workerID := m.workerID(job.WorkType, 0)
	claimed, err := m.store.Claim(ctx, job.ID, workerID)
	if err != nil {
		return "", err
	}
	return m.execute(ctx, reg, workerID, claimed)
}

// execute runs a claimed job inside the failure boundary and settles it.
func (m *Manager) execute(ctx context.Context, reg *registration, workerID string, job *jobs.Job) (Outcome, error) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithWorkType(ctx, job.WorkType)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldWorker, workerID))

	start := time.Now()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("attempt", job.Attempts),
		logging.Int("max_attempts", job.MaxAttempts),
	)
	m.setLastJob(job)

	result, runErr := m.executeWithHeartbeat(ctx, logger, reg.handler, job)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if runErr == nil {
		return m.complete(settleCtx, logger, job, result, time.Since(start))
	}
	if interrupted(ctx, runErr) {
		return m.release(settleCtx, logger, job, time.Since(start))
	}
	return m.handleJobFailure(settleCtx, logger, job, runErr, time.Since(start))
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, logger *slog.Logger, handler Handler, job *jobs.Job) (json.RawMessage, error) {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	result, err := m.runHandler(ctx, logger, handler, job)
	hbCancel()
	hbWG.Wait()
	return result, err
}

// runHandler converts handler panics into service errors.
func (m *Manager) runHandler(ctx context.Context, logger *slog.Logger, handler Handler, job *jobs.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "job handler panicked", "job_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			result = nil
			err = services.Wrap(services.ErrService, "workflow", "handle "+job.WorkType,
				fmt.Sprintf("handler panic: %v", r), nil)
		}
	}()
	return handler.Handle(ctx, job, m.progressFunc(ctx, logger, job.ID))
}

func (m *Manager) progressFunc(ctx context.Context, logger *slog.Logger, jobID string) ProgressFunc {
	return func(percent float64, step string) {
		if err := m.store.UpdateProgress(ctx, jobID, percent, step); err != nil {
			logger.Debug("progress update skipped", logging.Error(err))
		}
	}
}

func (m *Manager) complete(ctx context.Context, logger *slog.Logger, job *jobs.Job, result json.RawMessage, elapsed time.Duration) (Outcome, error) {
	if err := m.store.Complete(ctx, job.ID, result); err != nil {
		if jobs.IsTransitionRejected(err) {
			logger.Info("job result discarded",
				logging.String(logging.FieldEventType, "job_result_discarded"),
				logging.String("reason", err.Error()),
			)
			return OutcomeDiscarded, nil
		}
		wrapped := fmt.Errorf("persist job result: %w", err)
		logger.Error("failed to persist job result",
			logging.Error(wrapped),
			logging.String(logging.FieldEventType, "job_persist_failed"),
			logging.String(logging.FieldErrorHint, "check job store access"),
		)
		return "", wrapped
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Int("attempt", job.Attempts),
		logging.Duration("job_duration", elapsed),
	)
	return OutcomeCompleted, nil
}
