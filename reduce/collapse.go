package reduce

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/errors"
	"github.com/teranos/plansum/logger"
	"github.com/teranos/plansum/workflow"
)

// Collapser reduces an ordered list of fragments to one text by combining
// token-bounded batches level by level.
type Collapser struct {
	combine  capability.Combiner
	tokens   capability.TokenCounter
	tokenMax int
	maxDepth int
	workers  int
	logger   *zap.SugaredLogger

	calls atomic.Int64
}

// Collapse returns the single combined text. Batches whose combine fails
// are dropped and reported as failures. If a whole level fails the text is
// the previous level's outputs joined, or empty on the first level. Only
// unavailability or cancellation is returned as an error.
func (c *Collapser) Collapse(ctx context.Context, fragments []string) (string, []Failure, error) {
	log := logger.FromContext(ctx, c.logger)
	var failures []Failure

	level := fragments
	for depth := 1; len(level) > 0; depth++ {
		batches := Partition(level, c.tokens, c.tokenMax)
		log.Debugw("Collapsing level",
			logger.FieldLevel, depth,
			logger.FieldFragments, len(level),
			logger.FieldBatches, len(batches),
			logger.FieldTokenMax, c.tokenMax)

		outputs, levelFailures, err := c.combineLevel(ctx, depth, batches)
		if err != nil {
			return "", failures, err
		}
		failures = append(failures, levelFailures...)

		switch {
		case len(outputs) == 0:
			log.Warnw("Every batch failed to combine", logger.FieldLevel, depth)
			if depth == 1 {
				return "", failures, nil
			}
			return strings.Join(level, "\n\n"), failures, nil
		case len(outputs) == 1:
			return outputs[0], failures, nil
		}

		if depth >= c.maxDepth {
			failures = append(failures, Failure{
				Stage: StageCombine,
				Key:   fmt.Sprintf("level %d", depth),
				Err:   fmt.Sprintf("collapse did not converge within %d levels; %d texts left", c.maxDepth, len(outputs)),
			})
			log.Warnw("Collapse depth limit reached",
				logger.FieldLevel, depth,
				logger.FieldCount, len(outputs))
			return strings.Join(outputs, "\n\n"), failures, nil
		}
		level = outputs
	}
	return "", failures, nil
}

// Calls returns the number of Combine calls made so far.
func (c *Collapser) Calls() int { return int(c.calls.Load()) }

func (c *Collapser) combineLevel(ctx context.Context, depth int, batches [][]string) ([]string, []Failure, error) {
	results := make([]string, len(batches))
	errs := make([]error, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, batch := range batches {
		g.Go(func() error {
			c.calls.Add(1)
			out, err := c.combine.Combine(gctx, batch)
			if err == nil && strings.TrimSpace(out) == "" {
				err = errors.Mark(errors.New("combine returned empty text"), errors.ErrCombine)
			}
			if err != nil {
				if workflow.IsHardError(gctx, err) {
					return err
				}
				errs[i] = err
				return nil
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, errors.Wrapf(err, "combine level %d", depth)
	}

	var (
		outputs  []string
		failures []Failure
	)
	for i, err := range errs {
		if err != nil {
			c.logger.Warnw("Dropping batch",
				logger.FieldLevel, depth,
				logger.FieldBatch, i+1,
				logger.FieldTokens, BatchTokens(batches[i], c.tokens),
				logger.FieldError, err.Error())
			failures = append(failures, Failure{
				Stage: StageCombine,
				Key:   fmt.Sprintf("level %d batch %d", depth, i+1),
				Err:   err.Error(),
			})
			continue
		}
		outputs = append(outputs, results[i])
	}
	return outputs, failures, nil
}
