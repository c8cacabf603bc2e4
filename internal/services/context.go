package services

import "context"

type contextKey string

const (
	taskIDKey      contextKey = "task_id"
	stageKey       contextKey = "stage"
	playthroughKey contextKey = "playthrough"
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTaskID annotates context with the snapshot task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	return withString(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the snapshot task identifier if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, taskIDKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithPlaythrough annotates context with the resolved playthrough identifier.
func WithPlaythrough(ctx context.Context, id string) context.Context {
	return withString(ctx, playthroughKey, id)
}

// PlaythroughFromContext returns the playthrough identifier if present.
func PlaythroughFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, playthroughKey)
}
