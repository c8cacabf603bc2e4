package logging

import (
	"context"
	"log/slog"

	"vigil/internal/services"
)

// Shared structured-logging keys. Every package logs through these names so
// one grep finds a task, a stage, or a playthrough across the whole run.
const (
	FieldComponent   = "component"
	FieldTaskID      = "task_id"
	FieldStage       = "stage"
	FieldPlaythrough = "playthrough"
	FieldPath        = "path"
	// FieldGameDay carries the resolved linear game day of a snapshot.
	FieldGameDay = "game_day"
	// FieldEventType classifies log events for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint names the operator's next step after a failure.
	FieldErrorHint = "error_hint"
	// FieldAlert flags lines that need human follow-up.
	FieldAlert = "alert"
	// FieldSessionID ties log lines to one daemon session.
	FieldSessionID = "session_id"
)

// ContextFields extracts the task, stage, and playthrough annotations from
// ctx as slog attributes, in that order.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.TaskIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTaskID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if id, ok := services.PlaythroughFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPlaythrough, id))
	}
	return fields
}

// WithContext returns a logger carrying every annotation ctx holds. A nil
// logger falls back to the no-op logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
