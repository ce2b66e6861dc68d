package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldBuildID is the standardized structured logging key for build identifiers.
	FieldBuildID = "build_id"
	// FieldPackage is the standardized structured logging key for the package being processed.
	FieldPackage = "package"
	// FieldEventType classifies a log line for filtering (e.g. "materialize_failed").
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey int

const (
	buildIDKey contextKey = iota
	packageKey
)

// WithBuildID returns a context carrying the build identifier.
func WithBuildID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, buildIDKey, id)
}

// BuildIDFromContext returns the build identifier stored by WithBuildID.
func BuildIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(buildIDKey).(string)
	return id, ok && id != ""
}

// WithPackage returns a context carrying the package currently being processed.
func WithPackage(ctx context.Context, pkg string) context.Context {
	return context.WithValue(ctx, packageKey, pkg)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := BuildIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBuildID, id))
	}
	if pkg, ok := ctx.Value(packageKey).(string); ok && pkg != "" {
		fields = append(fields, slog.String(FieldPackage, pkg))
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
	return logger.With(attrsToArgs(fields)...)
}
