package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across plansum.
// Use these constants instead of raw strings.
const (
	// Identity
	FieldRunID = "run_id"
	FieldDocID = "doc_id"

	// Components
	FieldComponent  = "component"
	FieldCapability = "capability"

	// Document lifecycle
	FieldState    = "state"
	FieldOutcome  = "outcome"
	FieldAttempt  = "attempt"
	FieldThemes   = "themes"
	FieldFlagged  = "flagged"
	FieldProvider = "provider"
	FieldModel    = "model"

	// Reduction
	FieldBatch     = "batch"
	FieldBatches   = "batches"
	FieldLevel     = "level"
	FieldTokens    = "tokens"
	FieldTokenMax  = "token_max"
	FieldPolicy    = "policy"
	FieldTheme     = "theme"
	FieldStance    = "stance"
	FieldFragments = "fragments"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount      = "count"
	FieldProcessed  = "processed"
	FieldTotalCount = "total_count"
	FieldWorkers    = "workers"

	// Files and paths
	FieldPath = "path"
)

type contextKey string

const (
	runIDKey contextKey = "logger_run_id"
	docIDKey contextKey = "logger_doc_id"
)

// WithRunID adds a run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithDocID adds a document ID to the context for logging
func WithDocID(ctx context.Context, docID string) context.Context {
	return context.WithValue(ctx, docIDKey, docID)
}

// RunIDFromContext returns the run ID carried by ctx, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// DocIDFromContext returns the document ID carried by ctx, or "".
func DocIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(docIDKey).(string)
	return id
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if docID, ok := ctx.Value(docIDKey).(string); ok && docID != "" {
		fields = append(fields, FieldDocID, docID)
	}

	return fields
}

// FromContext decorates base with the run/document fields carried by ctx.
// A nil base falls back to the global Logger.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
