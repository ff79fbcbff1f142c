// Package workflow runs the per-document summarize/validate/revise state
// machine and merges each document's snapshots into a keyed aggregate.
package workflow

import (
	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
)

// State is the position of a document in its state machine.
// It names the step that runs next; StateTerminal runs nothing.
type State int

const (
	StateInit           State = iota // select themes next
	StateThemesSelected              // summarize next
	StateSummarized                  // validate next
	StateRevise                      // revise next
	StateRevised                     // validate the revision next
	StateTerminal
)

var stateNames = [...]string{"init", "themes_selected", "summarized", "revise", "revised", "terminal"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText reads a state name back, so stored reports decode.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return errors.Newf("unknown state %q", text)
}

// Outcome is how a document finished.
type Outcome int

const (
	OutcomePending            Outcome = iota
	OutcomeAccepted                   // validated clean
	OutcomeAcceptedBestEffort         // still flagged after the last revision
	OutcomeFailed
)

var outcomeNames = [...]string{"pending", "accepted", "accepted_best_effort", "failed"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// MarshalText renders the outcome name in JSON and logs.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText reads an outcome name back.
func (o *Outcome) UnmarshalText(text []byte) error {
	*o = ParseOutcome(string(text))
	return nil
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) Outcome {
	for i, name := range outcomeNames {
		if name == s {
			return Outcome(i)
		}
	}
	return OutcomePending
}

// DocumentRecord is the state of one document. Optional fields are set once
// State has passed the step that fills them: Themes after StateInit, Summary
// from StateSummarized, Validation after the first validation.
type DocumentRecord struct {
	ID         string                     `json:"id"`
	Themes     consult.ThemeSet           `json:"themes"`
	Summary    *consult.StructuredSummary `json:"summary,omitempty"`
	Validation *capability.Validation     `json:"validation,omitempty"`
	Attempts   int                        `json:"attempts"`
	Processed  bool                       `json:"processed"`
	Failed     bool                       `json:"failed"`
	State      State                      `json:"state"`
	Outcome    Outcome                    `json:"outcome"`
	Err        string                     `json:"error,omitempty"`
}

// NewRecord returns the initial record for a document.
func NewRecord(id string) DocumentRecord {
	return DocumentRecord{ID: id, State: StateInit, Outcome: OutcomePending}
}

// Clone deep-copies the record so snapshots never alias the task's copy.
func (r DocumentRecord) Clone() DocumentRecord {
	out := r
	out.Themes = append(consult.ThemeSet(nil), r.Themes...)
	out.Summary = r.Summary.Clone()
	if r.Validation != nil {
		v := *r.Validation
		out.Validation = &v
	}
	return out
}

// Usable reports whether the record can feed the reducer.
// Best-effort records are usable.
func (r DocumentRecord) Usable() bool {
	return r.Processed && !r.Failed && !r.Themes.Empty() && r.Summary != nil
}
