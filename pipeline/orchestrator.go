// Package pipeline runs a whole batch: dispatch every document, wait for the
// completion barrier, then reduce the records into a report.
package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/plansum/budget"
	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/logger"
	"github.com/teranos/plansum/reduce"
	"github.com/teranos/plansum/runstore"
	"github.com/teranos/plansum/workflow"
)

// Config wires an Orchestrator. Store and Budget are optional.
type Config struct {
	Ports       capability.Ports
	ReducePorts capability.ReducePorts
	MaxAttempts int
	Workers     int
	TokenMax    int
	MaxDepth    int
	Store       *runstore.Store
	Budget      *budget.Tracker
	Observers   []workflow.MergeObserver
	Logger      *zap.SugaredLogger
}

// Input is one batch of representations.
type Input struct {
	Title     string
	Source    string
	Documents []consult.Document
}

// Result is a completed run.
type Result struct {
	RunID    string
	Report   *reduce.Report
	Records  []workflow.DocumentRecord
	Duration time.Duration
}

// Orchestrator runs batches.
type Orchestrator struct {
	cfg    Config
	logger *zap.SugaredLogger
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg, logger: logger.OrNop(cfg.Logger)}
}

// Run processes in.Documents and returns the report. The reducer runs
// exactly once, after every document has terminated. A hard failure
// (unavailable capability, exhausted budget, cancellation) returns an error
// and no result.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	if err := validateDocuments(in.Documents); err != nil {
		return nil, err
	}

	if o.cfg.Budget != nil {
		if err := o.cfg.Budget.CheckBudget(ctx, 0); err != nil {
			return nil, err
		}
	}

	runID := runstore.NewRunID()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx, o.logger)

	observers := append([]workflow.MergeObserver(nil), o.cfg.Observers...)
	if o.cfg.Store != nil {
		run := &runstore.Run{
			ID:             runID,
			Title:          in.Title,
			Source:         in.Source,
			TotalDocuments: len(in.Documents),
			MaxAttempts:    o.cfg.MaxAttempts,
		}
		if err := o.cfg.Store.CreateRun(ctx, run); err != nil {
			return nil, err
		}
		observers = append(observers, o.cfg.Store.Observer(runID))
	}

	log.Infow("Run started",
		logger.FieldTotalCount, len(in.Documents),
		logger.FieldWorkers, o.cfg.Workers)

	agg := workflow.NewAggregateState()
	barrier := workflow.NewBarrier(len(in.Documents))
	dispatcher := workflow.NewDispatcher(workflow.DispatcherConfig{
		Ports:       o.cfg.Ports,
		MaxAttempts: o.cfg.MaxAttempts,
		Workers:     o.cfg.Workers,
		Logger:      o.logger.Named("workflow"),
		Observers:   observers,
	})

	if err := o.await(ctx, dispatcher, in.Documents, agg, barrier); err != nil {
		o.fail(ctx, runID, err)
		return nil, err
	}

	records := agg.Records()
	if len(records) != barrier.Total() {
		err := errors.Newf("aggregate holds %d records for %d documents", len(records), barrier.Total())
		o.fail(ctx, runID, err)
		return nil, err
	}

	reducer := reduce.New(o.cfg.ReducePorts, reduce.Config{
		TokenMax: o.cfg.TokenMax,
		MaxDepth: o.cfg.MaxDepth,
		Workers:  o.cfg.Workers,
		Logger:   o.logger.Named("reduce"),
	})
	rep, err := reducer.Reduce(ctx, records)
	if err != nil {
		o.fail(ctx, runID, err)
		return nil, err
	}

	if o.cfg.Store != nil {
		if err := o.cfg.Store.FinishRun(context.WithoutCancel(ctx), runID, runstore.StatusCompleted, rep, nil); err != nil {
			log.Warnw("Failed to record run completion", logger.FieldError, err.Error())
		}
	}

	result := &Result{RunID: runID, Report: rep, Records: records, Duration: time.Since(start)}
	log.Infow("Run complete",
		"accepted", rep.Stats.Accepted,
		"best_effort", rep.Stats.BestEffort,
		"failed", rep.Stats.Failed,
		logger.FieldDurationMS, result.Duration.Milliseconds())
	return result, nil
}

// await dispatches the batch and blocks until the barrier releases or the
// dispatcher fails.
func (o *Orchestrator) await(ctx context.Context, d *workflow.Dispatcher, docs []consult.Document, agg *workflow.AggregateState, barrier *workflow.Barrier) error {
	errCh := make(chan error, 1)
	go func() { errCh <- d.Dispatch(ctx, docs, agg, barrier) }()

	select {
	case <-barrier.Done():
		// Every document is terminal; collect the dispatcher's exit.
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return err
		}
		if !barrier.Released() {
			return errors.Newf("dispatch finished with %d of %d documents processed", agg.Processed(), barrier.Total())
		}
		return nil
	}
}

func (o *Orchestrator) fail(ctx context.Context, runID string, err error) {
	log := logger.FromContext(ctx, o.logger)
	log.Errorw("Run failed", logger.FieldError, err.Error())
	if o.cfg.Store == nil {
		return
	}
	if ferr := o.cfg.Store.FinishRun(context.WithoutCancel(ctx), runID, runstore.StatusFailed, nil, err); ferr != nil {
		log.Warnw("Failed to record run failure", logger.FieldError, ferr.Error())
	}
}

func validateDocuments(docs []consult.Document) error {
	seen := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" {
			return errors.Newf("document %d has no id", i)
		}
		if _, dup := seen[doc.ID]; dup {
			return errors.WithHint(
				errors.Newf("duplicate document id %q", doc.ID),
				"Document ids key the run's records and must be unique")
		}
		seen[doc.ID] = struct{}{}
	}
	return nil
}
