package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/logger"
)

// MergeObserver is told about every snapshot after it is merged.
// Observers are called from task goroutines and must be safe for concurrent use.
type MergeObserver interface {
	ObserveMerge(ctx context.Context, rec DocumentRecord, processed int)
}

// ObserverFunc adapts a function to MergeObserver.
type ObserverFunc func(ctx context.Context, rec DocumentRecord, processed int)

// ObserveMerge implements MergeObserver.
func (f ObserverFunc) ObserveMerge(ctx context.Context, rec DocumentRecord, processed int) {
	f(ctx, rec, processed)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Ports       capability.Ports
	MaxAttempts int
	Workers     int
	Logger      *zap.SugaredLogger
	Observers   []MergeObserver
}

// Dispatcher fans documents out to tasks and merges their snapshots.
type Dispatcher struct {
	task      *Task
	workers   int
	observers []MergeObserver
	logger    *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher. Workers below one run sequentially.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	log := logger.OrNop(cfg.Logger)
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		task:      NewTask(cfg.Ports, cfg.MaxAttempts, log),
		workers:   workers,
		observers: cfg.Observers,
		logger:    log,
	}
}

// Dispatch runs one task per document, at most Workers at a time, merging
// every snapshot into agg and reporting the processed count to barrier.
// The first hard error cancels the remaining tasks and is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, docs []consult.Document, agg *AggregateState, barrier *Barrier) error {
	log := logger.FromContext(ctx, d.logger)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	log.Infow("Dispatching documents",
		logger.FieldTotalCount, len(docs),
		logger.FieldWorkers, d.workers)

	for _, doc := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_, err := d.task.Run(gctx, doc, func(rec DocumentRecord) {
				processed := agg.Merge(rec)
				for _, o := range d.observers {
					o.ObserveMerge(gctx, rec, processed)
				}
				barrier.Observe(processed)
			})
			if err != nil {
				return errors.Wrapf(err, "document %s", doc.ID)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Errorw("Dispatch aborted",
			logger.FieldProcessed, agg.Processed(),
			logger.FieldTotalCount, len(docs),
			logger.FieldError, err.Error())
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Infow("Dispatch complete",
		logger.FieldProcessed, agg.Processed(),
		logger.FieldTotalCount, len(docs),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}
