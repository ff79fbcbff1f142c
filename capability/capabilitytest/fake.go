// Package capabilitytest provides scripted, call-counting capability fakes.
package capabilitytest

import (
	"context"
	"strings"
	"sync"

	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/consult"
)

// Operation names used for call counting.
const (
	OpSelectThemes = "select_themes"
	OpSummarize    = "summarize"
	OpValidate     = "validate"
	OpRevise       = "revise"
	OpCombine      = "combine"
	OpCondense     = "condense"
)

// Fake implements every capability port. Unset funcs fall back to
// deterministic defaults: one theme, a clean validation, joined combines.
// Safe for concurrent use.
type Fake struct {
	SelectThemesFunc func(ctx context.Context, text string) (consult.ThemeSet, error)
	SummarizeFunc    func(ctx context.Context, text string, themes consult.ThemeSet) (*consult.StructuredSummary, error)
	ValidateFunc     func(ctx context.Context, source, summary string) (capability.Validation, error)
	ReviseFunc       func(ctx context.Context, source string, s *consult.StructuredSummary, explanation string, themes consult.ThemeSet) (*consult.StructuredSummary, error)
	CombineFunc      func(ctx context.Context, fragments []string) (string, error)
	CondenseFunc     func(ctx context.Context, theme consult.Theme, policy string, notes []consult.PolicyNote) (string, error)

	mu            sync.Mutex
	calls         map[string]int
	callsByText   map[string]int
	combineInputs [][]string
}

// New returns a Fake with default behaviour.
func New() *Fake {
	return &Fake{}
}

// Ports exposes the fake as document-stage ports.
func (f *Fake) Ports() capability.Ports {
	return capability.Ports{Themes: f, Summarize: f, Validate: f, Revise: f}
}

// ReducePorts exposes the fake as reduce-stage ports with the given counter.
func (f *Fake) ReducePorts(tokens capability.TokenCounter) capability.ReducePorts {
	return capability.ReducePorts{Combine: f, Condense: f, Tokens: tokens}
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// CallsFor returns how many times op was invoked for a source text.
func (f *Fake) CallsFor(op, text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callsByText[op+"\x00"+text]
}

// CombineInputs returns the fragment lists passed to Combine, in call order.
func (f *Fake) CombineInputs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.combineInputs))
	for i, in := range f.combineInputs {
		out[i] = append([]string(nil), in...)
	}
	return out
}

func (f *Fake) record(op, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
		f.callsByText = make(map[string]int)
	}
	f.calls[op]++
	f.callsByText[op+"\x00"+text]++
}

// SelectThemes implements capability.ThemeSelector.
func (f *Fake) SelectThemes(ctx context.Context, text string) (consult.ThemeSet, error) {
	f.record(OpSelectThemes, text)
	if f.SelectThemesFunc != nil {
		return f.SelectThemesFunc(ctx, text)
	}
	return consult.NewThemeSet(consult.ThemeHomes), nil
}

// Summarize implements capability.Summarizer.
func (f *Fake) Summarize(ctx context.Context, text string, themes consult.ThemeSet) (*consult.StructuredSummary, error) {
	f.record(OpSummarize, text)
	if f.SummarizeFunc != nil {
		return f.SummarizeFunc(ctx, text, themes)
	}
	return SummaryFor(text, themes, consult.StanceNeutral), nil
}

// ValidateSummary implements capability.Validator.
func (f *Fake) ValidateSummary(ctx context.Context, source, summary string) (capability.Validation, error) {
	f.record(OpValidate, source)
	if f.ValidateFunc != nil {
		return f.ValidateFunc(ctx, source, summary)
	}
	return capability.Validation{}, nil
}

// ReviseSummary implements capability.Reviser.
func (f *Fake) ReviseSummary(ctx context.Context, source string, s *consult.StructuredSummary, explanation string, themes consult.ThemeSet) (*consult.StructuredSummary, error) {
	f.record(OpRevise, source)
	if f.ReviseFunc != nil {
		return f.ReviseFunc(ctx, source, s, explanation, themes)
	}
	revised := s.Clone()
	revised.Summary = "revised: " + s.Summary
	return revised, nil
}

// Combine implements capability.Combiner.
func (f *Fake) Combine(ctx context.Context, fragments []string) (string, error) {
	f.record(OpCombine, "")
	f.mu.Lock()
	f.combineInputs = append(f.combineInputs, append([]string(nil), fragments...))
	f.mu.Unlock()
	if f.CombineFunc != nil {
		return f.CombineFunc(ctx, fragments)
	}
	return strings.Join(fragments, "\n"), nil
}

// CondensePolicyGroup implements capability.Condenser.
func (f *Fake) CondensePolicyGroup(ctx context.Context, theme consult.Theme, policy string, notes []consult.PolicyNote) (string, error) {
	f.record(OpCondense, policy)
	if f.CondenseFunc != nil {
		return f.CondenseFunc(ctx, theme, policy, notes)
	}
	parts := make([]string, len(notes))
	for i, n := range notes {
		parts[i] = n.Text + " [" + strings.Join(n.Sources, ", ") + "]"
	}
	return strings.Join(parts, "; "), nil
}

// SummaryFor builds a valid summary of text citing the first policy of each theme.
func SummaryFor(text string, themes consult.ThemeSet, stance consult.Stance) *consult.StructuredSummary {
	s := &consult.StructuredSummary{
		Summary:        "summary of: " + text,
		Stance:         stance,
		Themes:         append([]consult.Theme(nil), themes...),
		IsConstructive: true,
	}
	for _, th := range themes {
		policies := consult.Policies(th)
		if len(policies) == 0 {
			continue
		}
		s.Policies = append(s.Policies, consult.PolicySelection{
			Theme:    th,
			Policies: []consult.PolicyDetail{{Policy: policies[0], Details: []string{text}}},
		})
	}
	return s
}

// FlagTimes returns a ValidateFunc that flags each source's first n validations.
func FlagTimes(n int) func(ctx context.Context, source, summary string) (capability.Validation, error) {
	var mu sync.Mutex
	seen := make(map[string]int)
	return func(_ context.Context, source, _ string) (capability.Validation, error) {
		mu.Lock()
		defer mu.Unlock()
		seen[source]++
		if seen[source] <= n {
			return capability.Validation{Flagged: true, Explanation: "unsupported claim"}, nil
		}
		return capability.Validation{}, nil
	}
}

var (
	_ capability.ThemeSelector = (*Fake)(nil)
	_ capability.Summarizer    = (*Fake)(nil)
	_ capability.Validator     = (*Fake)(nil)
	_ capability.Reviser       = (*Fake)(nil)
	_ capability.Combiner      = (*Fake)(nil)
	_ capability.Condenser     = (*Fake)(nil)
)
