package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vitae/internal/jobs"
	"vitae/internal/logging"
)

// HeartbeatMonitor manages job heartbeats and stale job reclamation.
type HeartbeatMonitor struct {
	store    Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStaleJobs returns processing jobs that stopped sending heartbeats to
// retrying (or failed when no attempts remain).
func (h *HeartbeatMonitor) ReclaimStaleJobs(ctx context.Context) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs",
			logging.String(logging.FieldEventType, "jobs_reclaimed"),
			logging.Int("count", reclaimed),
		)
	}
	return nil
}

// StartLoop runs a heartbeat updater for a specific job until context
// cancellation. It stops early once the job leaves processing.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := h.store.UpdateHeartbeat(ctx, jobID)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			case jobs.IsTransitionRejected(err):
				logger.Info("job left processing; heartbeat stopped",
					logging.String(logging.FieldEventType, "heartbeat_stopped"),
					logging.Error(err),
				)
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
