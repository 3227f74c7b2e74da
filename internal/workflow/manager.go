package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vitae/internal/config"
	"vitae/internal/jobs"
	"vitae/internal/logging"
	"vitae/internal/retry"
	"vitae/internal/services"
)

// Manager coordinates job processing using registered handlers.
type Manager struct {
	store        Store
	logger       *slog.Logger
	pollInterval time.Duration
	retryBase    time.Duration
	onFailure    FailureHook
	instanceID   string
	now          func() time.Time

	heartbeat *HeartbeatMonitor

	registrations map[string]*registration
	order         []string

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *jobs.Job
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithFinalFailureHook registers a hook invoked once per permanently failed job.
func WithFinalFailureHook(hook FailureHook) ManagerOption {
	return func(m *Manager) {
		m.onFailure = hook
	}
}

// WithClock overrides the time source used for retry scheduling.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithInstanceID sets the prefix used for worker identifiers.
func WithInstanceID(id string) ManagerOption {
	return func(m *Manager) {
		if id = strings.TrimSpace(id); id != "" {
			m.instanceID = id
		}
	}
}

// NewManager constructs a workflow manager from configuration.
func NewManager(cfg *config.Config, store Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow-manager")
	m := &Manager{
		store:         store,
		logger:        logger,
		pollInterval:  cfg.PollInterval(),
		retryBase:     cfg.JobRetryBaseDelay(),
		instanceID:    defaultInstanceID(),
		now:           time.Now,
		heartbeat:     NewHeartbeatMonitor(store, logger, cfg.HeartbeatInterval(), cfg.HeartbeatTimeout()),
		registrations: make(map[string]*registration),
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Second
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register binds a handler and a fixed worker count to a work type. It must
// be called before Start.
func (m *Manager) Register(workType string, handler Handler, workers int) error {
	workType = strings.TrimSpace(workType)
	if workType == "" {
		return services.Wrap(services.ErrConfiguration, "workflow", "register", "work type required", nil)
	}
	if handler == nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "register",
			fmt.Sprintf("handler required for %q", workType), nil)
	}
	if workers <= 0 {
		workers = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return services.Wrap(services.ErrConfiguration, "workflow", "register", "manager already running", nil)
	}
	if _, exists := m.registrations[workType]; exists {
		return services.Wrap(services.ErrConfiguration, "workflow", "register",
			fmt.Sprintf("work type %q already registered", workType), nil)
	}
	m.registrations[workType] = &registration{workType: workType, handler: handler, workers: workers}
	m.order = append(m.order, workType)
	return nil
}

// WorkTypes returns registered work types in registration order.
func (m *Manager) WorkTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *Manager) registration(workType string) (*registration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.registrations[workType]
	return reg, ok
}

func (m *Manager) workerID(workType string, n int) string {
	return fmt.Sprintf("%s/%s-%d", m.instanceID, workType, n)
}

func (m *Manager) policyFor(job *jobs.Job) retry.Policy {
	return retry.Policy{MaxAttempts: job.MaxAttempts, BaseDelay: m.retryBase}
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "vitae"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
