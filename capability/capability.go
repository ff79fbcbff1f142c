// Package capability defines the external collaborators the workflow and
// reducer depend on: theme selection, summarization, validation, revision,
// combining and condensing. Implementations classify their failures with the
// sentinels in package errors so callers can tell a bad answer
// (errors.ErrParse) from an unreachable backend (errors.ErrUnavailable).
package capability

import (
	"context"

	"github.com/teranos/plansum/consult"
)

// Validation is a hallucination check verdict.
type Validation struct {
	Flagged     bool   `json:"flagged"`
	Explanation string `json:"explanation,omitempty"`
}

// ThemeSelector picks the themes a representation touches.
// An empty set means no theme applies.
type ThemeSelector interface {
	SelectThemes(ctx context.Context, text string) (consult.ThemeSet, error)
}

// Summarizer produces a structured summary restricted to themes.
type Summarizer interface {
	Summarize(ctx context.Context, text string, themes consult.ThemeSet) (*consult.StructuredSummary, error)
}

// Validator checks a summary text against its source.
type Validator interface {
	ValidateSummary(ctx context.Context, source, summary string) (Validation, error)
}

// Reviser rewrites a flagged summary using the validator's explanation.
type Reviser interface {
	ReviseSummary(ctx context.Context, source string, s *consult.StructuredSummary, explanation string, themes consult.ThemeSet) (*consult.StructuredSummary, error)
}

// Combiner merges fragments into one text.
type Combiner interface {
	Combine(ctx context.Context, fragments []string) (string, error)
}

// Condenser rewrites the notes of one policy group into a short passage with citations.
type Condenser interface {
	CondensePolicyGroup(ctx context.Context, theme consult.Theme, policy string, notes []consult.PolicyNote) (string, error)
}

// TokenCounter returns a monotonic cost estimate for text.
type TokenCounter func(text string) int

// Ports bundles the document-stage capabilities.
type Ports struct {
	Themes    ThemeSelector
	Summarize Summarizer
	Validate  Validator
	Revise    Reviser
}

// ReducePorts bundles the aggregation-stage capabilities.
type ReducePorts struct {
	Combine  Combiner
	Condense Condenser
	Tokens   TokenCounter
}
