package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vitae/internal/config"
	"vitae/internal/jobs"
	"vitae/internal/prompts"
	"vitae/internal/workflow"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	docPath    string
}

func setupCLITestEnv(t *testing.T, baseURL string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("VITAE_LLM_API_KEY", "")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:1/v1/chat/completions"
	}

	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[llm]
provider = "openai"
api_key = "test"
base_url = %q
model = "test-model"
retry_base_delay_ms = 1

[jobs]
poll_interval_ms = 10
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), baseURL)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	docPath := filepath.Join(base, "resume.txt")
	if err := os.WriteFile(docPath, []byte("Jane Doe\n\nExperience\nAcme - Engineer 2020-2023\n"), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return &cliTestEnv{baseDir: base, configPath: configPath, docPath: docPath}
}

func (e *cliTestEnv) store(t *testing.T) *jobs.Store {
	t.Helper()
	cfg, _, _, err := config.Load(e.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := jobs.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestSubmitListShowCancel(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, env, "--json", "submit", env.docPath, "--max-attempts", "2")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var submitted jobs.Job
	if err := json.Unmarshal([]byte(out), &submitted); err != nil {
		t.Fatalf("decode submit output %q: %v", out, err)
	}
	if submitted.Status != jobs.StatusPending || submitted.MaxAttempts != 2 || submitted.WorkType != workflow.WorkTypeExtract {
		t.Fatalf("unexpected submitted job: %+v", submitted)
	}
	var payload workflow.ExtractPayload
	if err := json.Unmarshal(submitted.Payload, &payload); err != nil || payload.Path != env.docPath {
		t.Fatalf("unexpected payload %s (err %v)", submitted.Payload, err)
	}

	out, _, err = runCLI(t, env, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, submitted.ID)
	requireContains(t, out, "Pending")

	out, _, err = runCLI(t, env, "jobs", "list", "--status", "completed")
	if err != nil {
		t.Fatalf("jobs list --status: %v", err)
	}
	requireContains(t, out, "No jobs found")

	out, _, err = runCLI(t, env, "jobs", "show", submitted.ID)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, "Attempts:  0/2")

	out, _, err = runCLI(t, env, "jobs", "cancel", submitted.ID, "missing-id")
	if err != nil {
		t.Fatalf("jobs cancel: %v", err)
	}
	requireContains(t, out, "Job "+submitted.ID+" cancelled")
	requireContains(t, out, "Job missing-id not found")

	out, _, err = runCLI(t, env, "jobs", "cancel", submitted.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	requireContains(t, out, "already finished")

	out, _, err = runCLI(t, env, "--json", "jobs", "stats")
	if err != nil {
		t.Fatalf("jobs stats: %v", err)
	}
	var health jobs.HealthSummary
	if err := json.Unmarshal([]byte(out), &health); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if health.Total != 1 || health.Cancelled != 1 {
		t.Fatalf("unexpected stats: %+v", health)
	}
}

func TestSubmitRejectsDirectories(t *testing.T) {
	env := setupCLITestEnv(t, "")
	if _, _, err := runCLI(t, env, "submit", env.baseDir); err == nil {
		t.Fatal("expected directory submission to fail")
	}
}

func TestSubmitWaitReportsFinalJob(t *testing.T) {
	env := setupCLITestEnv(t, "")
	store := env.store(t)
	failed := &jobs.JobError{Kind: "validation", Message: "document is empty", Attempts: 1}

	// Settle the job from another goroutine as a daemon would.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx := context.Background()
		for i := 0; i < 500; i++ {
			list, err := store.List(ctx, jobs.Filter{})
			if err == nil && len(list) == 1 {
				if _, err := store.Claim(ctx, list[0].ID, "test-worker"); err == nil {
					_ = store.Fail(ctx, list[0].ID, failed)
				}
				return
			}
			<-time.After(10 * time.Millisecond)
		}
	}()

	out, _, err := runCLI(t, env, "submit", env.docPath, "--wait", "--timeout", "10s")
	<-done
	if err == nil {
		t.Fatal("expected failed job to produce an error")
	}
	requireContains(t, err.Error(), "finished as failed")
	requireContains(t, out, "validation: document is empty")
}

func TestSubmitWaitTimeout(t *testing.T) {
	env := setupCLITestEnv(t, "")
	_, _, err := runCLI(t, env, "submit", env.docPath, "--wait", "--timeout", "50ms")
	if err == nil || !strings.Contains(err.Error(), "waiting for job") {
		t.Fatalf("expected wait timeout, got %v", err)
	}
}

func TestExtractCommandPrintsRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{
				"content": `{"profile":{"name":"Jane Doe"},"experience":[{"organization":"Acme","title":"Engineer"}]}`,
			}}},
		})
	}))
	defer server.Close()
	env := setupCLITestEnv(t, server.URL)

	out, _, err := runCLI(t, env, "extract", env.docPath)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	var result workflow.ExtractResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode extract output: %v", err)
	}
	if result.Record.Profile.Name != "Jane Doe" || len(result.Record.Experience) != 1 {
		t.Fatalf("unexpected record: %+v", result.Record)
	}
	if result.Record.Skills == nil || result.Record.Awards == nil {
		t.Fatalf("expected empty lists rather than null: %+v", result.Record)
	}

	list, err := env.store(t).List(context.Background(), jobs.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("synchronous extract must not queue jobs, found %d", len(list))
	}
}

func TestTemplatesList(t *testing.T) {
	env := setupCLITestEnv(t, "")
	out, _, err := runCLI(t, env, "templates", "list")
	if err != nil {
		t.Fatalf("templates list: %v", err)
	}
	for _, name := range []string{prompts.ExtractProfile, prompts.ExtractExperience, prompts.ExtractQualifications} {
		requireContains(t, out, name)
	}
	requireContains(t, out, "builtin")
}

func TestConfigInit(t *testing.T) {
	env := setupCLITestEnv(t, "")
	target := filepath.Join(env.baseDir, "fresh", "config.toml")

	out, _, err := runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
}

func TestEnvFileIsLoaded(t *testing.T) {
	env := setupCLITestEnv(t, "")
	envPath := filepath.Join(env.baseDir, "custom.env")
	if err := os.WriteFile(envPath, []byte("VITAE_CLI_TEST_MARKER=from-env-file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("VITAE_CLI_TEST_MARKER") })

	if _, _, err := runCLI(t, env, "--env-file", envPath, "jobs", "stats"); err != nil {
		t.Fatalf("jobs stats with env file: %v", err)
	}
	if got := os.Getenv("VITAE_CLI_TEST_MARKER"); got != "from-env-file" {
		t.Fatalf("expected env file to be loaded, got %q", got)
	}
	if _, _, err := runCLI(t, env, "--env-file", filepath.Join(env.baseDir, "absent.env"), "jobs", "stats"); err == nil {
		t.Fatal("expected missing explicit env file to fail")
	}
}
