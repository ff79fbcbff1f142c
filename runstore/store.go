// Package runstore persists runs and per-document records in SQLite so a
// batch can be inspected while it runs and after it finishes.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/logger"
	"github.com/teranos/plansum/workflow"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one batch execution.
type Run struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Source         string     `json:"source"`
	Status         Status     `json:"status"`
	TotalDocuments int        `json:"total_documents"`
	MaxAttempts    int        `json:"max_attempts"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Error          string     `json:"error,omitempty"`
	Report         string     `json:"-"`
}

// DocumentRow is the persisted view of a DocumentRecord.
type DocumentRow struct {
	RunID       string                     `json:"run_id"`
	DocID       string                     `json:"doc_id"`
	State       string                     `json:"state"`
	Outcome     string                     `json:"outcome"`
	Attempts    int                        `json:"attempts"`
	Themes      []string                   `json:"themes"`
	Summary     *consult.StructuredSummary `json:"summary,omitempty"`
	Flagged     bool                       `json:"flagged"`
	Explanation string                     `json:"explanation,omitempty"`
	Error       string                     `json:"error,omitempty"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// Store reads and writes runs and document records.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewStore creates a store over a migrated database.
func NewStore(db *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, logger: logger.OrNop(log), now: time.Now}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// CreateRun inserts run with status running. An empty ID is generated.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now().UTC()
	}
	run.Status = StatusRunning

	const query = `
		INSERT INTO runs (id, title, source, status, total_documents, max_attempts, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Title, run.Source, run.Status,
		run.TotalDocuments, run.MaxAttempts, run.StartedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create run")
	}
	return nil
}

// FinishRun marks a run completed or failed. A non-nil report is stored as JSON.
func (s *Store) FinishRun(ctx context.Context, id string, status Status, report interface{}, runErr error) error {
	var reportJSON sql.NullString
	if report != nil {
		data, err := json.Marshal(report)
		if err != nil {
			return errors.Wrap(err, "failed to marshal report")
		}
		reportJSON = sql.NullString{String: string(data), Valid: true}
	}
	var errMsg sql.NullString
	if runErr != nil {
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}

	const query = `
		UPDATE runs SET status = ?, finished_at = ?, error_message = ?, report = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, status, s.now().UTC(), errMsg, reportJSON, id)
	if err != nil {
		return errors.Wrap(err, "failed to finish run")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("run not found: %s", id)
	}
	return nil
}

const runColumns = `id, title, source, status, total_documents, max_attempts,
	started_at, finished_at, error_message, report`

func scanRun(row interface{ Scan(...interface{}) error }) (*Run, error) {
	var (
		run        Run
		finishedAt sql.NullTime
		errMsg     sql.NullString
		report     sql.NullString
	)
	err := row.Scan(&run.ID, &run.Title, &run.Source, &run.Status,
		&run.TotalDocuments, &run.MaxAttempts, &run.StartedAt,
		&finishedAt, &errMsg, &report)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	run.Error = errMsg.String
	run.Report = report.String
	return &run, nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("run not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get run")
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, *run)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate runs")
}

// UpsertRecord stores the latest snapshot of a document, keyed by run and document.
func (s *Store) UpsertRecord(ctx context.Context, runID string, rec workflow.DocumentRecord) error {
	themes, err := json.Marshal(rec.Themes.Strings())
	if err != nil {
		return errors.Wrap(err, "failed to marshal themes")
	}
	var summary sql.NullString
	if rec.Summary != nil {
		data, err := json.Marshal(rec.Summary)
		if err != nil {
			return errors.Wrap(err, "failed to marshal summary")
		}
		summary = sql.NullString{String: string(data), Valid: true}
	}
	var flagged bool
	var explanation string
	if rec.Validation != nil {
		flagged = rec.Validation.Flagged
		explanation = rec.Validation.Explanation
	}
	errMsg := sql.NullString{String: rec.Err, Valid: rec.Err != ""}

	const query = `
		INSERT INTO document_records (
			run_id, doc_id, state, outcome, attempts, themes, summary,
			flagged, explanation, error_message, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, doc_id) DO UPDATE SET
			state = excluded.state,
			outcome = excluded.outcome,
			attempts = excluded.attempts,
			themes = excluded.themes,
			summary = excluded.summary,
			flagged = excluded.flagged,
			explanation = excluded.explanation,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		runID, rec.ID, rec.State.String(), rec.Outcome.String(), rec.Attempts,
		string(themes), summary, flagged, explanation, errMsg, s.now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to upsert record %s", rec.ID)
	}
	return nil
}

// ListRecords returns a run's document records ordered by document ID.
func (s *Store) ListRecords(ctx context.Context, runID string) ([]DocumentRow, error) {
	const query = `
		SELECT run_id, doc_id, state, outcome, attempts, themes, summary,
		       flagged, explanation, error_message, updated_at
		FROM document_records WHERE run_id = ? ORDER BY doc_id`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list records")
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var (
			row     DocumentRow
			themes  string
			summary sql.NullString
			errMsg  sql.NullString
		)
		if err := rows.Scan(&row.RunID, &row.DocID, &row.State, &row.Outcome, &row.Attempts,
			&themes, &summary, &row.Flagged, &row.Explanation, &errMsg, &row.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan record")
		}
		if err := json.Unmarshal([]byte(themes), &row.Themes); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal themes for %s", row.DocID)
		}
		if summary.Valid {
			row.Summary = &consult.StructuredSummary{}
			if err := json.Unmarshal([]byte(summary.String), row.Summary); err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal summary for %s", row.DocID)
			}
		}
		row.Error = errMsg.String
		out = append(out, row)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate records")
}

// CountByOutcome returns the number of records per outcome for a run.
func (s *Store) CountByOutcome(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM document_records WHERE run_id = ? GROUP BY outcome`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count outcomes")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan outcome count")
		}
		counts[outcome] = n
	}
	return counts, errors.Wrap(rows.Err(), "failed to iterate outcome counts")
}

// Observer mirrors every merged snapshot of runID into the store.
// Write failures are logged and do not affect the run.
func (s *Store) Observer(runID string) workflow.MergeObserver {
	return workflow.ObserverFunc(func(ctx context.Context, rec workflow.DocumentRecord, _ int) {
		if err := s.UpsertRecord(context.WithoutCancel(ctx), runID, rec); err != nil {
			s.logger.Warnw("Failed to persist document record",
				logger.FieldRunID, runID,
				logger.FieldDocID, rec.ID,
				logger.FieldError, err.Error())
		}
	})
}
