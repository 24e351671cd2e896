package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for extraction run identifiers.
	FieldRunID = "run_id"
	// FieldInput is the standardized structured logging key for the bundle file being processed.
	FieldInput = "input"
	// FieldObject is the standardized structured logging key for the object within a bundle.
	FieldObject = "object"
	// FieldDest is the standardized structured logging key for rendered destination paths.
	FieldDest = "dest"
	// FieldEventType classifies log records for filtering (e.g. "object_failed").
	FieldEventType = "event_type"
	// FieldErrorHint carries an actionable next step for warnings and errors.
	FieldErrorHint = "error_hint"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	inputKey
)

// WithRunID tags ctx with the extraction run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run identifier stored by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok && id != ""
}

// WithInput tags ctx with the bundle file currently being processed.
func WithInput(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, inputKey, path)
}

// InputFromContext returns the bundle path stored by WithInput.
func InputFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	path, ok := ctx.Value(inputKey).(string)
	return path, ok && path != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if input, ok := InputFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldInput, input))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return slog.New(logger.Handler().WithAttrs(fields))
}
