package consult

import (
	"strings"

	"github.com/teranos/plansum/errors"
)

// Document is one representation submitted to the consultation.
// Created once at batch start and never mutated.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Stance is the respondent's overall position on the plan.
type Stance string

const (
	StanceSupport Stance = "SUPPORT"
	StanceObject  Stance = "OBJECT"
	StanceNeutral Stance = "NEUTRAL"
)

// ParseStance normalises free-form stance labels; unknown labels become neutral.
func ParseStance(s string) Stance {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUPPORT", "SUPPORTING", "FOR":
		return StanceSupport
	case "OBJECT", "OBJECTING", "OPPOSE", "AGAINST":
		return StanceObject
	default:
		return StanceNeutral
	}
}

// Sentiment classifies how a place is spoken about.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Place is a geographical location mentioned in a representation.
type Place struct {
	Name      string    `json:"place"`
	Sentiment Sentiment `json:"sentiment"`
}

// PolicyDetail is one policy referenced by a representation, with the
// points the respondent made about it.
type PolicyDetail struct {
	Policy  string   `json:"policy"`
	Details []string `json:"details"`
}

// PolicySelection groups the policies of a single theme.
type PolicySelection struct {
	Theme    Theme          `json:"theme"`
	Policies []PolicyDetail `json:"policies"`
}

// Validate rejects policies that are not part of the selection's theme.
func (p PolicySelection) Validate() error {
	if !p.Theme.Valid() {
		return errors.NewParseError("unknown theme %q", p.Theme)
	}
	for _, d := range p.Policies {
		if !HasPolicy(p.Theme, d.Policy) {
			return errors.NewParseError("policy %q is not valid for theme %q", d.Policy, p.Theme)
		}
	}
	return nil
}

// StructuredSummary is the summarizer's output for one representation.
type StructuredSummary struct {
	Summary        string            `json:"summary"`
	Stance         Stance            `json:"stance"`
	Themes         []Theme           `json:"themes"`
	Policies       []PolicySelection `json:"policies"`
	Places         []Place           `json:"places"`
	IsConstructive bool              `json:"is_constructive"`
}

// Validate checks the structural contract a summary must satisfy before the
// workflow accepts it. Failures are parse errors.
func (s *StructuredSummary) Validate() error {
	if s == nil {
		return errors.NewParseError("summary is missing")
	}
	if strings.TrimSpace(s.Summary) == "" {
		return errors.NewParseError("summary text is empty")
	}
	for _, t := range s.Themes {
		if !t.Valid() {
			return errors.NewParseError("unknown theme %q", t)
		}
	}
	for _, p := range s.Policies {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy so snapshots never share slices.
func (s *StructuredSummary) Clone() *StructuredSummary {
	if s == nil {
		return nil
	}
	out := *s
	out.Themes = append([]Theme(nil), s.Themes...)
	out.Places = append([]Place(nil), s.Places...)
	out.Policies = make([]PolicySelection, len(s.Policies))
	for i, sel := range s.Policies {
		out.Policies[i] = PolicySelection{Theme: sel.Theme, Policies: make([]PolicyDetail, len(sel.Policies))}
		for j, d := range sel.Policies {
			out.Policies[i].Policies[j] = PolicyDetail{Policy: d.Policy, Details: append([]string(nil), d.Details...)}
		}
	}
	if s.Policies == nil {
		out.Policies = nil
	}
	return &out
}

// PolicyMention is one note about a policy, attributed to its source document.
// Derived from accepted summaries for the reduce stage.
type PolicyMention struct {
	Theme  Theme
	Policy string
	Note   string
	Source string
	Stance Stance
}

// PolicyNote is one distinct note about a policy and the documents that made it.
type PolicyNote struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

// Mentions flattens the summary's policy selections into attributed notes.
func (s *StructuredSummary) Mentions(source string) []PolicyMention {
	if s == nil {
		return nil
	}
	var out []PolicyMention
	for _, sel := range s.Policies {
		for _, d := range sel.Policies {
			for _, note := range d.Details {
				note = strings.TrimSpace(note)
				if note == "" {
					continue
				}
				out = append(out, PolicyMention{
					Theme:  sel.Theme,
					Policy: d.Policy,
					Note:   note,
					Source: source,
					Stance: s.Stance,
				})
			}
		}
	}
	return out
}
