// Package gemini implements llm.Generator over the Gemini API using the
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"vitae/internal/llm"
	"vitae/internal/services"
)

const providerName = "gemini"

// Config captures the settings required to reach the Gemini API.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint; empty uses the SDK default.
	BaseURL         string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	HTTPClient      *http.Client
}

// Client wraps a genai client bound to one default model.
type Client struct {
	client *genai.Client
	cfg    Config
}

// NewClient constructs a Gemini client. It fails with a configuration error
// when no API key is set.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIKey == "" {
		return nil, services.WithHint(
			services.Wrap(services.ErrConfiguration, providerName, "new client", "api key required", nil),
			"Set llm.api_key or GEMINI_API_KEY",
		)
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, providerName, "new client", "create genai client", err)
	}
	return &Client{client: client, cfg: cfg}, nil
}

// Generate issues one GenerateContent call. System messages become the
// system instruction; assistant messages map to the model role.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	if len(messages) == 0 {
		return "", services.Wrap(services.ErrValidation, providerName, "generate", "at least one message required", nil)
	}

	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	temperature := c.cfg.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := c.cfg.MaxOutputTokens
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(maxTokens)
	}
	if opts.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	model := c.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return "", translateError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		reason := ""
		if len(resp.Candidates) > 0 {
			reason = string(resp.Candidates[0].FinishReason)
		}
		return "", services.Wrap(services.ErrService, providerName, "generate",
			fmt.Sprintf("empty content (finish_reason=%q)", reason), nil)
	}
	return text, nil
}

// HealthCheck issues a minimal JSON request.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.Generate(ctx, []llm.Message{
		llm.User(`Respond with {"ok":true}`),
	}, llm.Options{JSON: true, Temperature: llm.Temperature(0), MaxOutputTokens: 16})
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ReplaceAll(content, " ", ""), `"ok":true`) {
		return services.Wrap(services.ErrInvalidResponse, providerName, "health check", "unexpected response", nil)
	}
	return nil
}

// translateError maps SDK API errors onto llm.StatusError so the failure
// classifier sees the HTTP status.
func translateError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusError(*apiErrPtr)
	}
	return fmt.Errorf("%s request: %w", providerName, err)
}

func statusError(apiErr genai.APIError) error {
	return &llm.StatusError{
		Provider:   providerName,
		StatusCode: apiErr.Code,
		Body:       strings.TrimSpace(apiErr.Status + " " + apiErr.Message),
	}
}
