package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vitae/internal/logging"
	"vitae/internal/retry"
	"vitae/internal/services"
)

const defaultCallTimeout = 60 * time.Second

// RetryOption customizes WithRetry.
type RetryOption func(*retrying)

// WithPolicy sets the call-level attempt bound and backoff base.
func WithPolicy(policy retry.Policy) RetryOption {
	return func(r *retrying) {
		r.policy = policy
	}
}

// WithCallTimeout bounds each individual call. Zero disables the bound.
func WithCallTimeout(timeout time.Duration) RetryOption {
	return func(r *retrying) {
		r.timeout = timeout
	}
}

// WithSleeper overrides how backoff waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) RetryOption {
	return func(r *retrying) {
		if sleeper != nil {
			r.sleep = sleeper
		}
	}
}

// WithLogger sets the logger used for retry notices.
func WithLogger(logger *slog.Logger) RetryOption {
	return func(r *retrying) {
		r.logger = logger
	}
}

// WithRetry wraps next with the call-level retry loop. Each attempt runs
// under its own deadline; a call that exceeds it fails with
// services.ErrTimeout and is not re-issued here. Retry-After hints from the
// provider lengthen the backoff, never shorten it.
func WithRetry(next Generator, opts ...RetryOption) Generator {
	r := &retrying{
		next:    next,
		policy:  retry.Policy{MaxAttempts: 3, BaseDelay: time.Second},
		timeout: defaultCallTimeout,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "llm")
	return r
}

type retrying struct {
	next    Generator
	policy  retry.Policy
	timeout time.Duration
	sleep   func(context.Context, time.Duration) error
	logger  *slog.Logger
}

func (r *retrying) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	for attempt := 1; ; attempt++ {
		out, err := r.once(ctx, messages, opts)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		state, again := r.policy.ShouldRetryCall(err, attempt)
		if !again {
			if attempt > 1 {
				return "", fmt.Errorf("generate: failed after %d attempts: %w", attempt, err)
			}
			return "", err
		}

		delay := state.Delay
		var hinted interface{ RetryAfterDelay() time.Duration }
		if errors.As(err, &hinted) && hinted.RetryAfterDelay() > delay {
			delay = hinted.RetryAfterDelay()
		}
		logger := logging.WithContext(ctx, r.logger)
		logger.Info("generation call failed; retrying",
			logging.String(logging.FieldEventType, "llm_call_retry"),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", state.MaxAttempts),
			logging.Duration("delay", delay),
			logging.String("reason", state.Reason),
			logging.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
}

func (r *retrying) once(ctx context.Context, messages []Message, opts Options) (string, error) {
	if r.timeout <= 0 {
		return r.next.Generate(ctx, messages, opts)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	out, err := r.next.Generate(callCtx, messages, opts)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", services.Wrap(services.ErrTimeout, "llm", "generate",
			fmt.Sprintf("no response within %s", r.timeout), err)
	}
	return out, err
}

// HealthCheck forwards to the wrapped generator when it supports health
// checks, bounded by the per-call timeout.
func (r *retrying) HealthCheck(ctx context.Context) error {
	checker, ok := r.next.(HealthChecker)
	if !ok {
		return nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return checker.HealthCheck(ctx)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
