package services_test

import (
	"context"
	"testing"

	"vitae/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-1")
	ctx = services.WithWorkType(ctx, "extract")
	ctx = services.WithChunk(ctx, "profile")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-1" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if wt, ok := services.WorkTypeFromContext(ctx); !ok || wt != "extract" {
		t.Fatalf("unexpected work type: %v %v", wt, ok)
	}
	if chunk, ok := services.ChunkFromContext(ctx); !ok || chunk != "profile" {
		t.Fatalf("unexpected chunk: %v %v", chunk, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithChunk(ctx, "")
	ctx = services.WithJobID(ctx, "")
	if _, ok := services.ChunkFromContext(ctx); ok {
		t.Fatal("expected no chunk value")
	}
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id value")
	}
}
