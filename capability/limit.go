package capability

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
)

// NewLimiter builds a limiter from requests per second and burst.
// rps <= 0 means unlimited.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Limit wraps every port so each call first waits on limiter.
// A nil limiter returns ports unchanged.
func Limit(ports Ports, limiter *rate.Limiter) Ports {
	if limiter == nil {
		return ports
	}
	g := gate{limiter}
	return Ports{
		Themes:    limitedThemes{g, ports.Themes},
		Summarize: limitedSummarizer{g, ports.Summarize},
		Validate:  limitedValidator{g, ports.Validate},
		Revise:    limitedReviser{g, ports.Revise},
	}
}

// LimitReduce wraps the reduce-stage ports the same way. Tokens is untouched.
func LimitReduce(ports ReducePorts, limiter *rate.Limiter) ReducePorts {
	if limiter == nil {
		return ports
	}
	g := gate{limiter}
	return ReducePorts{
		Combine:  limitedCombiner{g, ports.Combine},
		Condense: limitedCondenser{g, ports.Condense},
		Tokens:   ports.Tokens,
	}
}

type gate struct{ l *rate.Limiter }

func (g gate) wait(ctx context.Context) error {
	if err := g.l.Wait(ctx); err != nil {
		// Wait fails only on cancellation or a deadline shorter than the delay
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "rate limiter")
	}
	return nil
}

type limitedThemes struct {
	gate
	next ThemeSelector
}

func (l limitedThemes) SelectThemes(ctx context.Context, text string) (consult.ThemeSet, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.next.SelectThemes(ctx, text)
}

type limitedSummarizer struct {
	gate
	next Summarizer
}

func (l limitedSummarizer) Summarize(ctx context.Context, text string, themes consult.ThemeSet) (*consult.StructuredSummary, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Summarize(ctx, text, themes)
}

type limitedValidator struct {
	gate
	next Validator
}

func (l limitedValidator) ValidateSummary(ctx context.Context, source, summary string) (Validation, error) {
	if err := l.wait(ctx); err != nil {
		return Validation{}, err
	}
	return l.next.ValidateSummary(ctx, source, summary)
}

type limitedReviser struct {
	gate
	next Reviser
}

func (l limitedReviser) ReviseSummary(ctx context.Context, source string, s *consult.StructuredSummary, explanation string, themes consult.ThemeSet) (*consult.StructuredSummary, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.next.ReviseSummary(ctx, source, s, explanation, themes)
}

type limitedCombiner struct {
	gate
	next Combiner
}

func (l limitedCombiner) Combine(ctx context.Context, fragments []string) (string, error) {
	if err := l.wait(ctx); err != nil {
		return "", err
	}
	return l.next.Combine(ctx, fragments)
}

type limitedCondenser struct {
	gate
	next Condenser
}

func (l limitedCondenser) CondensePolicyGroup(ctx context.Context, theme consult.Theme, policy string, notes []consult.PolicyNote) (string, error) {
	if err := l.wait(ctx); err != nil {
		return "", err
	}
	return l.next.CondensePolicyGroup(ctx, theme, policy, notes)
}
