// Package openai implements llm.Generator over OpenAI-compatible chat
// completion endpoints, including OpenRouter.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vitae/internal/llm"
	"vitae/internal/services"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 90 * time.Second
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	maxResponseBytes   = 8 << 20
)

// Config captures the runtime settings required to talk to the endpoint.
type Config struct {
	// Provider names the service in errors and logs.
	Provider        string
	APIKey          string
	BaseURL         string
	Model           string
	Referer         string
	Title           string
	Temperature     float64
	MaxOutputTokens int
}

// Client wraps a chat completion API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client using the supplied configuration. Per-call
// deadlines come from the caller's context; the HTTP client timeout is only
// a backstop.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			Provider:        strings.TrimSpace(cfg.Provider),
			APIKey:          strings.TrimSpace(cfg.APIKey),
			BaseURL:         strings.TrimSpace(cfg.BaseURL),
			Model:           strings.TrimSpace(cfg.Model),
			Referer:         strings.TrimSpace(cfg.Referer),
			Title:           strings.TrimSpace(cfg.Title),
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Provider == "" {
		client.cfg.Provider = "openai"
	}
	return client
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Some providers return the streaming schema (delta) even when
		// stream=false.
		Delta chatCompletionMessage `json:"delta"`
		// Legacy completion-style responses.
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content      string        `json:"content"`
	ToolCalls    []toolCall    `json:"tool_calls"`
	FunctionCall *functionCall `json:"function_call"`
	Refusal      string        `json:"refusal"`
}

type toolCall struct {
	Type     string       `json:"type"`
	ID       string       `json:"id"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Generate issues one chat completion request and returns the raw content.
// It never retries; wrap the client with llm.WithRetry for that.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	if c.cfg.APIKey == "" {
		return "", services.WithHint(
			services.Wrap(services.ErrConfiguration, c.cfg.Provider, "generate", "api key required", nil),
			"Set llm.api_key in config.toml or the provider API key environment variable",
		)
	}
	if len(messages) == 0 {
		return "", services.Wrap(services.ErrValidation, c.cfg.Provider, "generate", "at least one message required", nil)
	}

	payload := chatCompletionRequest{
		Model:       firstNonEmpty(opts.Model, c.cfg.Model),
		Messages:    make([]chatMessage, 0, len(messages)),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxOutputTokens,
	}
	for _, msg := range messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if opts.Temperature != nil {
		payload.Temperature = *opts.Temperature
	}
	if opts.MaxOutputTokens > 0 {
		payload.MaxTokens = opts.MaxOutputTokens
	}
	if opts.JSON {
		payload.ResponseFormat = map[string]string{"type": jsonResponseType}
	}

	completion, body, err := c.send(ctx, payload)
	if err != nil {
		return "", err
	}
	content, finishReason := extractCompletionPayload(completion)
	if content != "" {
		return content, nil
	}
	if len(completion.Choices) == 0 {
		return "", services.Wrap(services.ErrService, c.cfg.Provider, "generate", "empty choices", nil)
	}
	return "", services.Wrap(services.ErrService, c.cfg.Provider, "generate",
		fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
			finishReason, extractCompletionRefusal(completion), summarizePayloadSnippet(string(body))),
		nil)
}

// HealthCheck issues a small JSON request to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.Generate(ctx, []llm.Message{
		llm.System("You must respond with JSON only."),
		llm.User(`Respond with {"ok":true}`),
	}, llm.Options{JSON: true, Temperature: llm.Temperature(0), MaxOutputTokens: 16})
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ReplaceAll(content, " ", ""), `"ok":true`) {
		return services.Wrap(services.ErrInvalidResponse, c.cfg.Provider, "health check",
			"unexpected response: "+summarizePayloadSnippet(content), nil)
	}
	return nil
}

func (c *Client) send(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, []byte, error) {
	var completion chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, nil, fmt.Errorf("%s request: encode body: %w", c.cfg.Provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, nil, services.Wrap(services.ErrConfiguration, c.cfg.Provider, "build request", c.cfg.BaseURL, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, nil, fmt.Errorf("%s request: http error: %w", c.cfg.Provider, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return completion, nil, fmt.Errorf("%s request: read body: %w", c.cfg.Provider, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := llm.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return completion, body, &llm.StatusError{
			Provider:   c.cfg.Provider,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, body, services.Wrap(services.ErrService, c.cfg.Provider, "decode response",
			summarizePayloadSnippet(string(body)), err)
	}
	if completion.Error != nil {
		return completion, body, services.Wrap(services.ErrService, c.cfg.Provider, "generate",
			"api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	return completion, body, nil
}

func extractCompletionPayload(completion chatCompletionResponse) (string, string) {
	var finishReason string
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if content := firstNonEmpty(
			choice.Message.Content,
			choice.Delta.Content,
			choice.Text,
		); content != "" {
			return content, finishReason
		}
		if args := firstNonEmpty(
			functionCallArguments(choice.Message.FunctionCall),
			functionCallArguments(choice.Delta.FunctionCall),
		); args != "" {
			return args, finishReason
		}
		if args := firstNonEmpty(
			toolCallArguments(choice.Message.ToolCalls),
			toolCallArguments(choice.Delta.ToolCalls),
		); args != "" {
			return args, finishReason
		}
	}
	return "", finishReason
}

func extractCompletionRefusal(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		if refusal := firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal); refusal != "" {
			return refusal
		}
	}
	return ""
}

func functionCallArguments(fc *functionCall) string {
	if fc == nil {
		return ""
	}
	return strings.TrimSpace(fc.Arguments)
}

func toolCallArguments(calls []toolCall) string {
	for _, call := range calls {
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			return args
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func summarizePayloadSnippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
