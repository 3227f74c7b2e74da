package daemonrun_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"vitae/internal/config"
	"vitae/internal/daemonrun"
	"vitae/internal/jobs"
	"vitae/internal/testsupport"
	"vitae/internal/workflow"
)

func TestRunProcessesQueuedExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{
				"content": `{"profile":{"name":"Jane Doe"},"experience":[{"organization":"Acme","title":"Engineer"}]}`,
			}}},
		})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithProvider(config.ProviderOpenAI, server.URL))
	cfg.Jobs.Workers = 1
	cfg.Logging.Level = "error"

	seed := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, seed, workflow.WorkTypeExtract,
		workflow.ExtractPayload{Text: "Jane Doe\n\nExperience\nAcme - Engineer\n"}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: "error"})
	}()

	deadline := time.Now().Add(10 * time.Second)
	var got *jobs.Job
	for {
		var err error
		got, err = seed.Get(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status.Terminal() || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed job, got %+v", got)
	}
	var result workflow.ExtractResult
	if err := json.Unmarshal(got.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Record.Profile.Name != "Jane Doe" || len(result.Record.Experience) != 1 {
		t.Fatalf("unexpected record: %+v", result.Record)
	}
	if _, err := os.Stat(cfg.Paths.DataDir + "/vitaed.pid"); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed on shutdown, stat err=%v", err)
	}
}

func TestRunRejectsMissingCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = ""
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err == nil {
		t.Fatal("expected missing API key to fail startup")
	}
}
