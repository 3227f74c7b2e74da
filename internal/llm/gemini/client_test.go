package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vitae/internal/llm"
	"vitae/internal/llm/gemini"
	"vitae/internal/services"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := gemini.NewClient(context.Background(), gemini.Config{Model: "gemini-2.5-flash"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/demo-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []any{map[string]any{"text": `{"skills":[]}`}},
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
	defer server.Close()

	client, err := gemini.NewClient(context.Background(), gemini.Config{
		APIKey:  "test",
		BaseURL: server.URL,
		Model:   "demo-model",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	out, err := client.Generate(context.Background(), []llm.Message{
		llm.System("extract skills"),
		llm.User("resume"),
	}, llm.Options{JSON: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"skills":[]}` {
		t.Fatalf("unexpected output %q", out)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Fatalf("expected system instruction in request, got %v", body)
	}
}

func TestGenerateMapsAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 503, "message": "overloaded", "status": "UNAVAILABLE"},
		})
	}))
	defer server.Close()

	client, err := gemini.NewClient(context.Background(), gemini.Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Generate(context.Background(), []llm.Message{llm.User("x")}, llm.Options{})
	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable || !statusErr.Retryable() {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}
