package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vitae/internal/logging"
	"vitae/internal/services"
)

// Start begins background processing: a fixed pool of workers per registered
// work type plus the stale-job reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.order) == 0 {
		m.mu.Unlock()
		return errors.New("workflow handlers not configured")
	}
	regs := make([]*registration, 0, len(m.order))
	for _, workType := range m.order {
		regs = append(regs, m.registrations[workType])
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := 0
	for _, reg := range regs {
		workers += reg.workers
	}
	m.wg.Add(workers + 1)
	m.mu.Unlock()

	for _, reg := range regs {
		for n := 1; n <= reg.workers; n++ {
			go m.runWorker(runCtx, reg, m.workerID(reg.workType, n))
		}
	}
	go m.runReclaimer(runCtx)

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.Int("workers", workers),
		logging.Any("work_types", m.WorkTypes()),
	)
	return nil
}

// Stop terminates background processing and waits for in-flight jobs to
// settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

// Running reports whether background workers are active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) runWorker(ctx context.Context, reg *registration, workerID string) {
	defer m.wg.Done()
	logger := m.logger.With(
		logging.String(logging.FieldWorkType, reg.workType),
		logging.String(logging.FieldWorker, workerID),
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNext(ctx, reg.workType, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		if _, err := m.execute(ctx, reg, workerID, job); err != nil && ctx.Err() == nil {
			m.setLastError(err)
		}
	}
}

// RunOnce claims and processes at most one runnable job of workType
// synchronously. It reports whether a job was processed.
func (m *Manager) RunOnce(ctx context.Context, workType string) (bool, error) {
	reg, ok := m.registration(workType)
	if !ok {
		return false, services.Wrap(services.ErrConfiguration, "workflow", "run once",
			fmt.Sprintf("no handler registered for %q", workType), nil)
	}
	workerID := m.workerID(workType, 0)
	job, err := m.store.ClaimNext(ctx, workType, workerID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	_, err = m.execute(ctx, reg, workerID, job)
	return true, err
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	interval := m.heartbeat.interval
	if interval <= 0 || m.heartbeat.timeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.heartbeat.ReclaimStaleJobs(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("reclaim stale jobs failed; stuck jobs may remain processing",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check job store access"),
				)
			}
		}
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_claim_failed"),
		logging.String(logging.FieldErrorHint, "check job store access"),
	)
	m.waitForJobOrShutdown(ctx)
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
