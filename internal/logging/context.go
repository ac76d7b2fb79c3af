package logging

import (
	"context"
	"log/slog"

	"proxyencoder/internal/services"
)

// Field names shared by every component.
const (
	FieldComponent = "component"
	FieldJobID     = "job_id"
	FieldBatchID   = "batch_id"
	FieldClip      = "clip"
	FieldWorker    = "worker"

	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact describes what a warning costs the user.
	FieldImpact = "impact"
)

// ContextFields returns the job scope stamped on ctx as attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	scope, ok := services.JobFromContext(ctx)
	if !ok {
		return nil
	}
	var attrs []slog.Attr
	for _, f := range [...]struct{ key, value string }{
		{FieldJobID, scope.JobID},
		{FieldBatchID, scope.BatchID},
		{FieldClip, scope.Clip},
		{FieldWorker, scope.Worker},
	} {
		if f.value != "" {
			attrs = append(attrs, slog.String(f.key, f.value))
		}
	}
	return attrs
}

// WithContext adds the job scope on ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if attrs := ContextFields(ctx); len(attrs) > 0 {
		return logger.With(Args(attrs...)...)
	}
	return logger
}
