// Package providers selects a generation provider by name and applies the
// call-level retry policy from configuration.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"vitae/internal/config"
	"vitae/internal/llm"
	"vitae/internal/llm/gemini"
	"vitae/internal/llm/openai"
	"vitae/internal/retry"
	"vitae/internal/services"
)

// Factory builds an unwrapped generator from provider settings.
type Factory func(ctx context.Context, cfg config.LLM, httpClient *http.Client) (llm.Generator, error)

var factories = map[string]Factory{
	config.ProviderOpenRouter: newOpenAICompatible(config.ProviderOpenRouter),
	config.ProviderOpenAI:     newOpenAICompatible(config.ProviderOpenAI),
	config.ProviderGemini:     newGemini,
}

// Names returns the registered provider names in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
}

// WithLogger sets the logger used by the retry layer.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient overrides the HTTP client handed to provider clients.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// New returns the configured provider wrapped with llm.WithRetry using the
// [llm] retry and timeout settings. The result also implements
// llm.HealthChecker.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (llm.Generator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "providers", "new", "config required", nil)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	name := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	factory, ok := factories[name]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "providers", "new",
			fmt.Sprintf("unknown provider %q (known: %s)", cfg.LLM.Provider, strings.Join(Names(), ", ")), nil)
	}
	if err := cfg.ValidateLLMCredentials(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "providers", "new", "missing credentials", err)
	}
	gen, err := factory(ctx, cfg.LLM, o.httpClient)
	if err != nil {
		return nil, err
	}
	return llm.WithRetry(gen,
		llm.WithPolicy(retry.Policy{MaxAttempts: cfg.LLM.RetryAttempts, BaseDelay: cfg.LLMRetryBaseDelay()}),
		llm.WithCallTimeout(cfg.LLMTimeout()),
		llm.WithLogger(o.logger),
	), nil
}

func newOpenAICompatible(provider string) Factory {
	return func(_ context.Context, cfg config.LLM, httpClient *http.Client) (llm.Generator, error) {
		return openai.NewClient(openai.Config{
			Provider:        provider,
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			Referer:         cfg.Referer,
			Title:           cfg.Title,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		}, openai.WithHTTPClient(httpClient)), nil
	}
}

func newGemini(ctx context.Context, cfg config.LLM, httpClient *http.Client) (llm.Generator, error) {
	return gemini.NewClient(ctx, gemini.Config{
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		HTTPClient:      httpClient,
	})
}
