package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"vitae/internal/config"
	"vitae/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob enqueues a job of workType with the given payload.
func NewJob(t testing.TB, store *jobs.Store, workType string, payload any, maxAttempts int) *jobs.Job {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	job, err := store.Create(context.Background(), jobs.NewJob{
		WorkType:    workType,
		Payload:     raw,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
