package services

import "context"

type contextKey int

const (
	jobIDKey contextKey = iota
	stageKey
	adapterKey
	requestIDKey
)

// WithJobID attaches a job identifier to the context for logging.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext extracts the job identifier when present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(jobIDKey).(string)
	return value, ok && value != ""
}

// WithStage attaches a pipeline stage name to the context for logging.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext extracts the stage name when present.
func StageFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(stageKey).(string)
	return value, ok && value != ""
}

// WithAdapter attaches the delivery adapter name to the context for logging.
func WithAdapter(ctx context.Context, adapter string) context.Context {
	return context.WithValue(ctx, adapterKey, adapter)
}

// AdapterFromContext extracts the adapter name when present.
func AdapterFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(adapterKey).(string)
	return value, ok && value != ""
}

// WithRequestID attaches a correlation identifier to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the correlation identifier when present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(requestIDKey).(string)
	return value, ok && value != ""
}
