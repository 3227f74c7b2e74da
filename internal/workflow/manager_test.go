package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"vitae/internal/jobs"
	"vitae/internal/logging"
	"vitae/internal/services"
	"vitae/internal/testsupport"
	"vitae/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testWorkType = "echo"

type hookRecorder struct {
	mu    sync.Mutex
	calls []*jobs.JobError
}

func (h *hookRecorder) hook(_ context.Context, job *jobs.Job, jobErr *jobs.JobError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if job.Status != jobs.StatusFailed {
		panic("hook invoked for non-failed job")
	}
	h.calls = append(h.calls, jobErr)
}

func (h *hookRecorder) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func newManager(t *testing.T, opts ...testsupport.ConfigOption) (*workflow.Manager, *jobs.Store, *hookRecorder) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	hooks := &hookRecorder{}
	mgr := workflow.NewManager(cfg, store, logging.NewNop(), workflow.WithFinalFailureHook(hooks.hook))
	return mgr, store, hooks
}

func getJob(t *testing.T, store *jobs.Store, id string) *jobs.Job {
	t.Helper()
	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return job
}

func TestProcessCompletesJob(t *testing.T) {
	mgr, store, hooks := newManager(t)
	handler := workflow.HandlerFunc(func(ctx context.Context, job *jobs.Job, progress workflow.ProgressFunc) (json.RawMessage, error) {
		if id, ok := services.JobIDFromContext(ctx); !ok || id != job.ID {
			return nil, errors.New("job id missing from context")
		}
		progress(50, "Halfway")
		return json.RawMessage(`{"echo":` + string(job.Payload) + `}`), nil
	})
	if err := mgr.Register(testWorkType, handler, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	job := testsupport.NewJob(t, store, testWorkType, map[string]string{"msg": "hi"}, 3)
	outcome, err := mgr.Process(context.Background(), job)
	if err != nil || outcome != workflow.OutcomeCompleted {
		t.Fatalf("Process = %q, %v", outcome, err)
	}

	got := getJob(t, store, job.ID)
	if got.Status != jobs.StatusCompleted || got.Attempts != 1 || got.ProgressPercent != 100 {
		t.Fatalf("unexpected job: %+v", got)
	}
	if string(got.Result) != `{"echo":{"msg":"hi"}}` {
		t.Fatalf("unexpected result %s", got.Result)
	}
	if hooks.count() != 0 {
		t.Fatalf("failure hook should not run on success")
	}
}

func TestRetryBoundIsExactlyMaxAttempts(t *testing.T) {
	mgr, store, hooks := newManager(t)
	var calls atomic.Int32
	handler := workflow.HandlerFunc(func(context.Context, *jobs.Job, workflow.ProgressFunc) (json.RawMessage, error) {
		calls.Add(1)
		return nil, errors.New("upstream connection reset")
	})
	if err := mgr.Register(testWorkType, handler, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	const maxAttempts = 3
	job := testsupport.NewJob(t, store, testWorkType, map[string]int{}, maxAttempts)
	var outcomes []workflow.Outcome
	for i := 0; i < maxAttempts+2; i++ {
		current := getJob(t, store, job.ID)
		if current.Status.Terminal() {
			break
		}
		outcome, err := mgr.Process(context.Background(), current)
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		outcomes = append(outcomes, outcome)
	}

	want := []workflow.Outcome{workflow.OutcomeRetrying, workflow.OutcomeRetrying, workflow.OutcomeFailed}
	if len(outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Fatalf("outcomes = %v, want %v", outcomes, want)
		}
	}
	if calls.Load() != maxAttempts {
		t.Fatalf("handler ran %d times, want %d", calls.Load(), maxAttempts)
	}

	final := getJob(t, store, job.ID)
	if final.Status != jobs.StatusFailed || final.Attempts != maxAttempts {
		t.Fatalf("unexpected final job: %+v", final)
	}
	if final.Error == nil || !final.Error.Retryable || final.Error.Attempts != maxAttempts {
		t.Fatalf("unexpected error descriptor: %+v", final.Error)
	}
	if final.Error.Details["exhausted"] != "true" {
		t.Fatalf("expected exhausted detail, got %+v", final.Error.Details)
	}
	if hooks.count() != 1 {
		t.Fatalf("failure hook ran %d times, want 1", hooks.count())
	}
	if _, err := mgr.Process(context.Background(), final); !jobs.IsTransitionRejected(err) {
		t.Fatalf("expected failed job to reject processing, got %v", err)
	}
}

func TestFatalErrorFailsWithoutRetry(t *testing.T) {
	mgr, store, hooks := newManager(t)
	handler := workflow.HandlerFunc(func(context.Context, *jobs.Job, workflow.ProgressFunc) (json.RawMessage, error) {
		return nil, services.WithHint(
			services.Wrap(services.ErrValidation, "document", "extract", "document is empty", nil),
			"Upload a non-empty file",
		)
	})
	if err := mgr.Register(testWorkType, handler, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	job := testsupport.NewJob(t, store, testWorkType, map[string]int{}, 5)

	outcome, err := mgr.Process(context.Background(), job)
	if err != nil || outcome != workflow.OutcomeFailed {
		t.Fatalf("Process = %q, %v", outcome, err)
	}
	final := getJob(t, store, job.ID)
	if final.Attempts != 1 || final.Error == nil {
		t.Fatalf("unexpected job: %+v", final)
	}
	if final.Error.Kind != services.KindValidation || final.Error.Retryable || final.Error.Message != "document is empty" {
		t.Fatalf("unexpected error descriptor: %+v", final.Error)
	}
	if final.Error.Hint != "Upload a non-empty file" {
		t.Fatalf("expected hint to be stored, got %+v", final.Error)
	}
	if hooks.count() != 1 {
		t.Fatalf("failure hook ran %d times, want 1", hooks.count())
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	mgr, store, _ := newManager(t)
	handler := workflow.HandlerFunc(func(context.Context, *jobs.Job, workflow.ProgressFunc) (json.RawMessage, error) {
		panic("nil map write")
	})
	if err := mgr.Register(testWorkType, handler, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	job := testsupport.NewJob(t, store, testWorkType, map[string]int{}, 2)

	outcome, err := mgr.Process(context.Background(), job)
	if err != nil || outcome != workflow.OutcomeRetrying {
		t.Fatalf("Process = %q, %v", outcome, err)
	}
	got := getJob(t, store, job.ID)
	if got.Status != jobs.StatusRetrying || got.Error == nil || got.Error.Kind != services.KindService {
		t.Fatalf("unexpected job after panic: %+v", got)
	}
}

func TestRetryDelayFollowsBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Jobs.RetryBaseDelaySeconds = 5
	store := testsupport.MustOpenStore(t, cfg)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr := workflow.NewManager(cfg, store, logging.NewNop(), workflow.WithClock(func() time.Time { return fixed }))
	handler := workflow.HandlerFunc(func(context.Context, *jobs.Job, workflow.ProgressFunc) (json.RawMessage, error) {
		return nil, services.Wrap(services.ErrTimeout, "llm", "generate", "no response within 1m0s", nil)
	})
	if err := mgr.Register(testWorkType, handler, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	job := testsupport.NewJob(t, store, testWorkType, map[string]int{}, 3)

	for i, wantDelay := range []time.Duration{5 * time.Second, 10 * time.Second} {
		if _, err := mgr.Process(context.Background(), getJob(t, store, job.ID)); err != nil {
			t.Fatalf("Process %d failed: %v", i, err)
		}
		got := getJob(t, store, job.ID)
		if got.NextRunAt == nil || !got.NextRunAt.Equal(fixed.Add(wantDelay)) {
			t.Fatalf("attempt %d: next run = %v, want %v", i+1, got.NextRunAt, fixed.Add(wantDelay))
		}
		if got.Error == nil || got.Error.Kind != services.KindTimeout {
			t.Fatalf("attempt %d: unexpected error %+v", i+1, got.Error)
		}
	}
}

func TestCancelledJobDiscardsResult(t *testing.T) {
	mgr, store, _ := newManager(t)
	handler := workflow.HandlerFunc(func(ctx context.Context, job *jobs.Job, _ workflow.ProgressFunc) (json.RawMessage, error) {
		if err := store.Cancel(ctx, job.ID); err != nil {
			return nil, err
		}
		return json.RawMessage(`{"late":true}`), nil
	})
	if err := mgr.Register(testWorkType, handler, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	job := testsupport.NewJob(t, store, testWorkType, map[string]int{}, 1)

	outcome, err := mgr.Process(context.Background(), job)
	if err != nil || outcome != workflow.OutcomeDiscarded {
		t.Fatalf("Process = %q, %v", outcome, err)
	}
	got := getJob(t, store, job.ID)
	if got.Status != jobs.StatusCancelled || got.Result != nil {
		t.Fatalf("unexpected cancelled job: %+v", got)
	}
}

func TestStopReturnsInterruptedJobWithoutSpendingAttempt(t *testing.T) {
	mgr, store, hooks := newManager(t)
	started := make(chan string, 1)
	var calls atomic.Int32
	handler := workflow.HandlerFunc(func(ctx context.Context, job *jobs.Job, _ workflow.ProgressFunc) (json.RawMessage, error) {
		if calls.Add(1) == 1 {
			started <- job.ID
			<-ctx.Done()
			return nil, fmt.Errorf("extract: %w", ctx.Err())
		}
		return json.RawMessage(`{"ok":true}`), nil
	})
	if err := mgr.Register(testWorkType, handler, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	job := testsupport.NewJob(t, store, testWorkType, map[string]int{}, 1)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		mgr.Stop()
		t.Fatal("handler never started")
	}
	mgr.Stop()

	got := getJob(t, store, job.ID)
	if got.Status != jobs.StatusRetrying || got.Attempts != 0 || got.Error != nil {
		t.Fatalf("expected job back in queue with attempt returned, got %+v", got)
	}
	if hooks.count() != 0 {
		t.Fatalf("final failure hook must not run on shutdown, ran %d times", hooks.count())
	}

	outcome, err := mgr.Process(context.Background(), got)
	if err != nil || outcome != workflow.OutcomeCompleted {
		t.Fatalf("Process after restart = %q, %v", outcome, err)
	}
	if final := getJob(t, store, job.ID); final.Status != jobs.StatusCompleted || final.Attempts != 1 {
		t.Fatalf("unexpected final job: %+v", final)
	}
}

func TestProcessCallerCancelIsInterruption(t *testing.T) {
	mgr, store, hooks := newManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	handler := workflow.HandlerFunc(func(ctx context.Context, _ *jobs.Job, _ workflow.ProgressFunc) (json.RawMessage, error) {
		cancel()
		return nil, ctx.Err()
	})
	if err := mgr.Register(testWorkType, handler, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	job := testsupport.NewJob(t, store, testWorkType, map[string]int{}, 1)

	outcome, err := mgr.Process(ctx, job)
	if err != nil || outcome != workflow.OutcomeInterrupted {
		t.Fatalf("Process = %q, %v", outcome, err)
	}
	if got := getJob(t, store, job.ID); got.Status != jobs.StatusRetrying || got.Attempts != 0 {
		t.Fatalf("unexpected job: %+v", got)
	}
	if hooks.count() != 0 {
		t.Fatal("final failure hook must not run for an interruption")
	}
}

func TestRunOnce(t *testing.T) {
	mgr, store, _ := newManager(t)
	handler := workflow.HandlerFunc(func(context.Context, *jobs.Job, workflow.ProgressFunc) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	if err := mgr.Register(testWorkType, handler, 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	ctx := context.Background()

	if ran, err := mgr.RunOnce(ctx, testWorkType); err != nil || ran {
		t.Fatalf("RunOnce on empty store = %v, %v", ran, err)
	}
	job := testsupport.NewJob(t, store, testWorkType, map[string]int{}, 1)
	if ran, err := mgr.RunOnce(ctx, testWorkType); err != nil || !ran {
		t.Fatalf("RunOnce = %v, %v", ran, err)
	}
	if got := getJob(t, store, job.ID); got.Status != jobs.StatusCompleted {
		t.Fatalf("unexpected status %s", got.Status)
	}
	if _, err := mgr.RunOnce(ctx, "unknown"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	mgr, _, _ := newManager(t)
	handler := workflow.HandlerFunc(func(context.Context, *jobs.Job, workflow.ProgressFunc) (json.RawMessage, error) {
		return nil, nil
	})
	if err := mgr.Register("", handler, 1); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected error for empty work type, got %v", err)
	}
	if err := mgr.Register(testWorkType, nil, 1); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected error for nil handler, got %v", err)
	}
	if err := mgr.Register(testWorkType, handler, 0); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := mgr.Register(testWorkType, handler, 1); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer mgr.Stop()
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if err := mgr.Register("late", handler, 1); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected registration after start to fail, got %v", err)
	}
}

func TestStartDrainsQueueWithWorkerPool(t *testing.T) {
	mgr, store, _ := newManager(t)
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	handler := workflow.HandlerFunc(func(context.Context, *jobs.Job, workflow.ProgressFunc) (json.RawMessage, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return json.RawMessage(`{"ok":true}`), nil
	})
	const workers = 2
	if err := mgr.Register(testWorkType, handler, workers); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, testsupport.NewJob(t, store, testWorkType, map[string]int{"n": i}, 1).ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		stats, err := store.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats[jobs.StatusCompleted] == len(ids) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("jobs not drained in time: %v", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}
	mgr.Stop()

	if maxSeen > workers {
		t.Fatalf("observed %d concurrent jobs with %d workers", maxSeen, workers)
	}
	summary := mgr.Status(context.Background())
	if summary.Running || summary.JobStats[jobs.StatusCompleted] != len(ids) {
		t.Fatalf("unexpected status summary: %+v", summary)
	}
	if health := summary.HandlerHealth[testWorkType]; !health.Ready {
		t.Fatalf("expected healthy handler, got %+v", health)
	}
}
