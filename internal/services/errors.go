package services

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrInvalidResponse = errors.New("invalid response")
	ErrService         = errors.New("service error")
	ErrTimeout         = errors.New("timeout")
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrTransient       = errors.New("transient failure")
)

// Error kinds persisted on failed jobs and emitted in logs.
const (
	KindConfiguration   = "configuration"
	KindInvalidResponse = "invalid_response"
	KindService         = "service"
	KindTimeout         = "timeout"
	KindValidation      = "validation"
	KindNotFound        = "not_found"
	KindTransient       = "transient"
	KindCancelled       = "cancelled"
	KindUnknown         = "unknown"
)

// Error is a classified failure carrying component context. It matches its
// marker and its cause through errors.Is.
type Error struct {
	Marker    error
	Component string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Component, e.Operation, e.Message)
	marker := e.Marker
	if marker == nil {
		marker = ErrTransient
	}
	if e.Cause != nil {
		return marker.Error() + ": " + detail + ": " + e.Cause.Error()
	}
	return marker.Error() + ": " + detail
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error that includes component context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &Error{
		Marker:    marker,
		Component: strings.TrimSpace(component),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// WithHint attaches an operator-facing hint to err. Errors that are not
// *Error are wrapped as transient.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		clone := *svcErr
		clone.Hint = strings.TrimSpace(hint)
		return &clone
	}
	return &Error{Marker: ErrTransient, Hint: strings.TrimSpace(hint), Cause: err}
}

// Kind returns the stable kind string for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidResponse):
		return KindInvalidResponse
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrService):
		return KindService
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	if k, ok := err.(interface{ ErrorKind() string }); ok {
		if kind := strings.TrimSpace(k.ErrorKind()); kind != "" {
			return kind
		}
	}
	return KindUnknown
}

// ErrorDetails is the log/persistence view of a classified error.
type ErrorDetails struct {
	Kind      string
	Component string
	Operation string
	Message   string
	Hint      string
}

// Details extracts the outermost classified context from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: Kind(err), Message: err.Error()}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		details.Component = svcErr.Component
		details.Operation = svcErr.Operation
		details.Hint = svcErr.Hint
		if svcErr.Message != "" {
			details.Message = svcErr.Message
		}
	}
	return details
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
