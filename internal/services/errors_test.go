package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"vitae/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrService, "llm", "generate", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrService) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"llm", "generate", "request failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestKindMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "extraction", "extract", "empty", nil), services.KindValidation},
		{services.Wrap(services.ErrConfiguration, "prompts", "load", "missing", nil), services.KindConfiguration},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrTimeout, "llm", "generate", "deadline", nil)), services.KindTimeout},
		{services.Wrap(services.ErrInvalidResponse, "interpret", "parse", "bad", nil), services.KindInvalidResponse},
		{fmt.Errorf("stop: %w", context.Canceled), services.KindCancelled},
		{errors.New("plain"), services.KindUnknown},
	}
	for _, tc := range tests {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestDetailsAndHint(t *testing.T) {
	err := services.Wrap(services.ErrConfiguration, "llm", "init", "api key missing", nil)
	err = services.WithHint(err, "set llm.api_key")
	details := services.Details(fmt.Errorf("startup: %w", err))
	if details.Kind != services.KindConfiguration {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Component != "llm" || details.Operation != "init" {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.Message != "api key missing" || details.Hint != "set llm.api_key" {
		t.Fatalf("unexpected details %+v", details)
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatal("hint lost marker")
	}
}
