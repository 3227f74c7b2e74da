package llm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a generation request.
type Message struct {
	Role    Role
	Content string
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Options tune a single generation call. Zero values defer to the provider
// client's configured defaults.
type Options struct {
	Model           string
	Temperature     *float64
	MaxOutputTokens int
	// JSON requests a JSON-only response when the provider supports it.
	JSON bool
}

// Temperature returns a pointer suitable for Options.Temperature.
func Temperature(v float64) *float64 { return &v }

// Generator produces text for a conversation.
type Generator interface {
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)
}

// HealthChecker verifies that a provider is reachable and credentials work.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, messages []Message, opts Options) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	return f(ctx, messages, opts)
}

// StatusError is a non-success HTTP response from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s request: http %d: %s", e.Provider, e.StatusCode, body)
}

// HTTPStatus exposes the status code to the failure classifier.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Retryable reports whether the status indicates a transient condition.
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// RetryAfterDelay returns the server-requested wait, if any.
func (e *StatusError) RetryAfterDelay() time.Duration { return e.RetryAfter }

func (e *StatusError) ErrorKind() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return "configuration"
	case e.StatusCode == http.StatusRequestTimeout:
		return "timeout"
	default:
		return "service"
	}
}

// ParseRetryAfter parses a Retry-After header in seconds or HTTP-date form.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
