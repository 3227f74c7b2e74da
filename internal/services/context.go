package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	workTypeKey  contextKey = "work_type"
	chunkKey     contextKey = "chunk"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithWorkType annotates context with the job work type.
func WithWorkType(ctx context.Context, workType string) context.Context {
	if workType == "" {
		return ctx
	}
	return context.WithValue(ctx, workTypeKey, workType)
}

// WorkTypeFromContext returns the work type if present.
func WorkTypeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(workTypeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithChunk annotates context with the extraction chunk name.
func WithChunk(ctx context.Context, chunk string) context.Context {
	if chunk == "" {
		return ctx
	}
	return context.WithValue(ctx, chunkKey, chunk)
}

// ChunkFromContext returns the chunk name if present.
func ChunkFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(chunkKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
