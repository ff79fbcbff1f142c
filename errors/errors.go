// Package errors provides error handling for plansum.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operators
//   - Marking, so error classes survive wrapping across package boundaries
//
// Usage:
//
//	// Wrap with context
//	if err := summarize(); err != nil {
//	    return errors.Wrap(err, "summarize representation")
//	}
//
//	// Classify a capability failure
//	return errors.Mark(err, errors.ErrParse)
//
//	// Check the class later
//	if errors.Is(err, errors.ErrParse) {
//	    // terminal, not retried
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New           = crdb.New
	Newf          = crdb.Newf
	Wrap          = crdb.Wrap
	Wrapf         = crdb.Wrapf
	WithStack     = crdb.WithStack
	WithMessage   = crdb.WithMessage
	WithMessagef  = crdb.WithMessagef
	Mark          = crdb.Mark
	CombineErrors = crdb.CombineErrors
)

// User-facing messages and details
var (
	WithHint      = crdb.WithHint
	WithHintf     = crdb.WithHintf
	WithDetail    = crdb.WithDetail
	WithDetailf   = crdb.WithDetailf
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Sentinel errors shared across plansum.
// Mark or wrap these; check them with errors.Is.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidConfig indicates configuration failed validation
	ErrInvalidConfig = New("invalid configuration")

	// ErrNoThemeFound means theme selection returned an empty set for a document.
	// Terminal for that document; never retried.
	ErrNoThemeFound = New("no theme found")

	// ErrParse means a capability produced output that could not be structurally validated.
	ErrParse = New("capability output could not be parsed")

	// ErrCombine means a batch-level combine call failed during reduction.
	ErrCombine = New("combine failed")

	// ErrCondense means a policy group could not be condensed during reduction.
	ErrCondense = New("condense failed")

	// ErrUnavailable means a capability could not be reached at all.
	// This is the only error class that aborts a whole run.
	ErrUnavailable = New("capability unavailable")

	// ErrBudgetExceeded means recorded model spend already reached the configured ceiling.
	ErrBudgetExceeded = New("budget exceeded")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsParseError checks if an error is or wraps ErrParse
func IsParseError(err error) bool {
	return err != nil && Is(err, ErrParse)
}

// IsUnavailableError checks if an error is or wraps ErrUnavailable
func IsUnavailableError(err error) bool {
	return err != nil && Is(err, ErrUnavailable)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewParseError creates a parse error with a formatted message
func NewParseError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrParse)
}

// MarkUnavailable classifies err as a capability outage, keeping its message and stack.
func MarkUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrUnavailable)
}
