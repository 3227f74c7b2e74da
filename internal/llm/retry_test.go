package llm_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vitae/internal/llm"
	"vitae/internal/retry"
	"vitae/internal/services"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func TestWithRetryRecoversFromTransientFailures(t *testing.T) {
	var calls atomic.Int32
	gen := llm.GeneratorFunc(func(ctx context.Context, _ []llm.Message, _ llm.Options) (string, error) {
		if calls.Add(1) < 3 {
			return "", &llm.StatusError{Provider: "openai", StatusCode: 503, Body: "overloaded"}
		}
		return `{"ok":true}`, nil
	})
	sleeper := &recordingSleeper{}
	wrapped := llm.WithRetry(gen,
		llm.WithPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond}),
		llm.WithSleeper(sleeper.sleep),
	)

	out, err := wrapped.Generate(context.Background(), []llm.Message{llm.User("hi")}, llm.Options{})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("unexpected output %q", out)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
	if diff := cmp.Diff([]time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.delays); diff != "" {
		t.Fatalf("backoff mismatch (-want +got):\n%s", diff)
	}
}

func TestWithRetryStopsAtAttemptBound(t *testing.T) {
	var calls atomic.Int32
	gen := llm.GeneratorFunc(func(context.Context, []llm.Message, llm.Options) (string, error) {
		calls.Add(1)
		return "", errors.New("connection reset by peer")
	})
	wrapped := llm.WithRetry(gen,
		llm.WithPolicy(retry.Policy{MaxAttempts: 4, BaseDelay: time.Millisecond}),
		llm.WithSleeper((&recordingSleeper{}).sleep),
	)
	if _, err := wrapped.Generate(context.Background(), nil, llm.Options{}); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("expected exactly 4 calls, got %d", got)
	}
}

func TestWithRetryDoesNotRepeatNonRetryableFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid response", services.Wrap(services.ErrInvalidResponse, "interpret", "parse", "no object", nil)},
		{"configuration", services.Wrap(services.ErrConfiguration, "openai", "generate", "api key required", nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			gen := llm.GeneratorFunc(func(context.Context, []llm.Message, llm.Options) (string, error) {
				calls.Add(1)
				return "", tc.err
			})
			wrapped := llm.WithRetry(gen, llm.WithSleeper((&recordingSleeper{}).sleep))
			_, err := wrapped.Generate(context.Background(), nil, llm.Options{})
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected original error, got %v", err)
			}
			if got := calls.Load(); got != 1 {
				t.Fatalf("expected 1 call, got %d", got)
			}
		})
	}
}

func TestWithRetryRepeatsClientStatusErrors(t *testing.T) {
	for _, status := range []int{400, 401, 404, 422} {
		var calls atomic.Int32
		gen := llm.GeneratorFunc(func(context.Context, []llm.Message, llm.Options) (string, error) {
			calls.Add(1)
			return "", &llm.StatusError{Provider: "openai", StatusCode: status, Body: "rejected"}
		})
		sleeper := &recordingSleeper{}
		wrapped := llm.WithRetry(gen,
			llm.WithPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}),
			llm.WithSleeper(sleeper.sleep),
		)
		_, err := wrapped.Generate(context.Background(), nil, llm.Options{})
		var statusErr *llm.StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != status {
			t.Fatalf("status %d: expected status error, got %v", status, err)
		}
		if got := calls.Load(); got != 3 {
			t.Fatalf("status %d: expected 3 calls, got %d", status, got)
		}
	}
}

func TestWithRetryTimeoutSurfacesWithoutReissue(t *testing.T) {
	var calls atomic.Int32
	gen := llm.GeneratorFunc(func(ctx context.Context, _ []llm.Message, _ llm.Options) (string, error) {
		calls.Add(1)
		<-ctx.Done()
		return "", ctx.Err()
	})
	wrapped := llm.WithRetry(gen,
		llm.WithCallTimeout(20*time.Millisecond),
		llm.WithSleeper((&recordingSleeper{}).sleep),
	)
	_, err := wrapped.Generate(context.Background(), nil, llm.Options{})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("timeouts must not be re-issued; got %d calls", got)
	}
}

func TestWithRetryHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	gen := llm.GeneratorFunc(func(context.Context, []llm.Message, llm.Options) (string, error) {
		if calls.Add(1) == 1 {
			return "", &llm.StatusError{Provider: "openai", StatusCode: 429, RetryAfter: 5 * time.Second}
		}
		return "ok", nil
	})
	sleeper := &recordingSleeper{}
	wrapped := llm.WithRetry(gen,
		llm.WithPolicy(retry.Policy{MaxAttempts: 2, BaseDelay: time.Second}),
		llm.WithSleeper(sleeper.sleep),
	)
	if _, err := wrapped.Generate(context.Background(), nil, llm.Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if diff := cmp.Diff([]time.Duration{5 * time.Second}, sleeper.delays); diff != "" {
		t.Fatalf("delay mismatch (-want +got):\n%s", diff)
	}
}

func TestWithRetryStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	gen := llm.GeneratorFunc(func(context.Context, []llm.Message, llm.Options) (string, error) {
		calls.Add(1)
		cancel()
		return "", errors.New("network unreachable")
	})
	wrapped := llm.WithRetry(gen, llm.WithSleeper((&recordingSleeper{}).sleep))
	_, err := wrapped.Generate(ctx, nil, llm.Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestStatusErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		kind      string
	}{
		{400, false, "service"},
		{401, false, "configuration"},
		{408, true, "timeout"},
		{429, true, "service"},
		{500, true, "service"},
	}
	for _, tc := range tests {
		err := &llm.StatusError{Provider: "p", StatusCode: tc.status}
		if err.Retryable() != tc.retryable {
			t.Fatalf("status %d: Retryable = %v", tc.status, err.Retryable())
		}
		if err.ErrorKind() != tc.kind {
			t.Fatalf("status %d: ErrorKind = %q", tc.status, err.ErrorKind())
		}
		// Client errors carry no fatal marker, so they land on the retryable default.
		if got := retry.Classify(err).Retryable; !got {
			t.Fatalf("status %d: Classify retryable = %v", tc.status, got)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := llm.ParseRetryAfter("7"); !ok || d != 7*time.Second {
		t.Fatalf("ParseRetryAfter(7) = %v, %v", d, ok)
	}
	if _, ok := llm.ParseRetryAfter("soon"); ok {
		t.Fatal("expected garbage header to be rejected")
	}
	if _, ok := llm.ParseRetryAfter(""); ok {
		t.Fatal("expected empty header to be rejected")
	}
}
