package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/logger"
)

// EmitFunc receives every snapshot a task produces, in order.
type EmitFunc func(DocumentRecord)

// Task drives one document through the state machine.
type Task struct {
	ports       capability.Ports
	maxAttempts int
	logger      *zap.SugaredLogger
}

// NewTask creates a task runner. maxAttempts bounds revisions per document.
func NewTask(ports capability.Ports, maxAttempts int, log *zap.SugaredLogger) *Task {
	return &Task{ports: ports, maxAttempts: maxAttempts, logger: logger.OrNop(log)}
}

// Run processes doc until its record is terminal, emitting a snapshot after
// every transition. Capability errors end the document with OutcomeFailed;
// only errors.ErrUnavailable and context cancellation are returned, and
// the returned record is then not terminal.
func (t *Task) Run(ctx context.Context, doc consult.Document, emit EmitFunc) (DocumentRecord, error) {
	ctx = logger.WithDocID(ctx, doc.ID)
	log := logger.FromContext(ctx, t.logger)
	start := time.Now()

	rec := NewRecord(doc.ID)
	emit(rec.Clone())

	for !rec.Processed {
		ev, err := t.step(ctx, doc, rec)
		if err != nil {
			log.Warnw("Document aborted",
				logger.FieldState, rec.State.String(),
				logger.FieldError, err.Error())
			return rec, err
		}
		rec = Transition(rec, ev, t.maxAttempts)
		log.Debugw("Document transition",
			logger.FieldState, rec.State.String(),
			logger.FieldAttempt, rec.Attempts)
		emit(rec.Clone())
	}

	log.Infow("Document finished",
		logger.FieldOutcome, rec.Outcome.String(),
		logger.FieldAttempt, rec.Attempts,
		logger.FieldThemes, rec.Themes.Strings(),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	if rec.Failed {
		log.Warnw("Document failed", logger.FieldError, rec.Err)
	}
	return rec, nil
}

// step performs the capability call for rec's state. A non-nil error aborts
// the run; every other failure is returned as a failure event.
func (t *Task) step(ctx context.Context, doc consult.Document, rec DocumentRecord) (Event, error) {
	switch rec.State {
	case StateInit:
		themes, err := t.ports.Themes.SelectThemes(ctx, doc.Text)
		if err != nil {
			return abortOr(ctx, err, ThemeSelectFailed{Err: err})
		}
		return ThemesSelected{Themes: themes}, nil

	case StateThemesSelected:
		s, err := t.ports.Summarize.Summarize(ctx, doc.Text, rec.Themes)
		if err != nil {
			return abortOr(ctx, err, SummarizeFailed{Err: err})
		}
		return Summarized{Summary: s}, nil

	case StateSummarized, StateRevised:
		v, err := t.ports.Validate.ValidateSummary(ctx, doc.Text, rec.Summary.Summary)
		if err != nil {
			return abortOr(ctx, err, ValidateFailed{Err: err})
		}
		return Validated{Validation: v}, nil

	case StateRevise:
		explanation := ""
		if rec.Validation != nil {
			explanation = rec.Validation.Explanation
		}
		s, err := t.ports.Revise.ReviseSummary(ctx, doc.Text, rec.Summary, explanation, rec.Themes)
		if err != nil {
			return abortOr(ctx, err, ReviseFailed{Err: err})
		}
		return Revised{Summary: s}, nil
	}
	return nil, errors.Newf("no step for state %s", rec.State)
}

func abortOr(ctx context.Context, err error, ev Event) (Event, error) {
	if IsHardError(ctx, err) {
		return nil, err
	}
	return ev, nil
}

// IsHardError reports whether err must stop the whole run rather than fail
// a single document.
func IsHardError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return errors.IsUnavailableError(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
