package workflow

import (
	"context"

	"vitae/internal/jobs"
	"vitae/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running       bool                `json:"running"`
	LastError     string              `json:"last_error,omitempty"`
	LastJob       *jobs.Job           `json:"last_job,omitempty"`
	JobStats      map[jobs.Status]int `json:"job_stats"`
	HandlerHealth map[string]Health   `json:"handler_health"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastJob := m.lastJob
	regs := make([]*registration, 0, len(m.order))
	for _, workType := range m.order {
		regs = append(regs, m.registrations[workType])
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}

	health := make(map[string]Health, len(regs))
	for _, reg := range regs {
		if reporter, ok := reg.handler.(HealthReporter); ok {
			health[reg.workType] = reporter.HealthCheck(ctx)
			continue
		}
		health[reg.workType] = Healthy(reg.workType)
	}

	summary := StatusSummary{Running: running, JobStats: stats, HandlerHealth: health}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastJob != nil {
		copy := *lastJob
		summary.LastJob = &copy
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *jobs.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
