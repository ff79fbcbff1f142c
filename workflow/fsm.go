package workflow

import (
	"fmt"

	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
)

// Event is the result of one capability call.
type Event interface{ eventName() string }

// ThemesSelected carries the theme selection result.
type ThemesSelected struct{ Themes consult.ThemeSet }

// ThemeSelectFailed means theme selection returned an error.
type ThemeSelectFailed struct{ Err error }

// Summarized carries the first summary.
type Summarized struct{ Summary *consult.StructuredSummary }

// SummarizeFailed means the summarizer returned an error, usually errors.ErrParse.
type SummarizeFailed struct{ Err error }

// Validated carries a validation verdict.
type Validated struct{ Validation capability.Validation }

// ValidateFailed means the validator returned an error.
type ValidateFailed struct{ Err error }

// Revised carries a corrected summary.
type Revised struct{ Summary *consult.StructuredSummary }

// ReviseFailed means the reviser returned an error.
type ReviseFailed struct{ Err error }

func (ThemesSelected) eventName() string    { return "themes_selected" }
func (ThemeSelectFailed) eventName() string { return "theme_select_failed" }
func (Summarized) eventName() string        { return "summarized" }
func (SummarizeFailed) eventName() string   { return "summarize_failed" }
func (Validated) eventName() string         { return "validated" }
func (ValidateFailed) eventName() string    { return "validate_failed" }
func (Revised) eventName() string           { return "revised" }
func (ReviseFailed) eventName() string      { return "revise_failed" }

// Transition applies ev to rec and returns the next record. It is pure: rec
// is not modified. Terminal records are returned unchanged, so Processed
// never reverts. An event that does not fit the current state fails the
// document.
func Transition(rec DocumentRecord, ev Event, maxAttempts int) DocumentRecord {
	if rec.Processed || rec.State == StateTerminal {
		return rec
	}
	next := rec.Clone()

	switch e := ev.(type) {
	case ThemesSelected:
		if rec.State != StateInit {
			break
		}
		next.Themes = consult.NewThemeSet(e.Themes...)
		if next.Themes.Empty() {
			return fail(next, errors.ErrNoThemeFound)
		}
		next.State = StateThemesSelected
		return next

	case ThemeSelectFailed:
		if rec.State == StateInit {
			return fail(next, e.Err)
		}

	case Summarized:
		if rec.State != StateThemesSelected {
			break
		}
		if e.Summary == nil {
			return fail(next, errors.NewParseError("summarizer returned no summary"))
		}
		next.Summary = e.Summary.Clone()
		next.State = StateSummarized
		return next

	case SummarizeFailed:
		if rec.State == StateThemesSelected {
			return fail(next, e.Err)
		}

	case Validated:
		if rec.State != StateSummarized && rec.State != StateRevised {
			break
		}
		v := e.Validation
		next.Validation = &v
		switch {
		case !v.Flagged:
			return finish(next, OutcomeAccepted)
		case next.Attempts >= maxAttempts:
			return finish(next, OutcomeAcceptedBestEffort)
		default:
			next.State = StateRevise
			return next
		}

	case ValidateFailed:
		if rec.State == StateSummarized || rec.State == StateRevised {
			return fail(next, e.Err)
		}

	case Revised:
		if rec.State != StateRevise {
			break
		}
		if e.Summary == nil {
			return fail(next, errors.NewParseError("reviser returned no summary"))
		}
		next.Attempts++
		next.Summary = e.Summary.Clone()
		next.State = StateRevised
		return next

	case ReviseFailed:
		if rec.State == StateRevise {
			return fail(next, e.Err)
		}
	}

	return fail(next, errors.Newf("unexpected event %s in state %s", eventName(ev), rec.State))
}

func eventName(ev Event) string {
	if ev == nil {
		return "<nil>"
	}
	return ev.eventName()
}

func finish(rec DocumentRecord, outcome Outcome) DocumentRecord {
	rec.State = StateTerminal
	rec.Processed = true
	rec.Outcome = outcome
	return rec
}

func fail(rec DocumentRecord, err error) DocumentRecord {
	rec = finish(rec, OutcomeFailed)
	rec.Failed = true
	if err != nil {
		rec.Err = err.Error()
	} else {
		rec.Err = fmt.Sprintf("failed in state %s", rec.State)
	}
	return rec
}
