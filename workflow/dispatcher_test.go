package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/plansum/capability"
	"github.com/teranos/plansum/capability/capabilitytest"
	"github.com/teranos/plansum/consult"
	"github.com/teranos/plansum/errors"
)

func docs(texts ...string) []consult.Document {
	out := make([]consult.Document, len(texts))
	for i, text := range texts {
		out[i] = consult.Document{ID: fmt.Sprintf("doc-%d", i), Text: text}
	}
	return out
}

func dispatch(t *testing.T, fake *capabilitytest.Fake, maxAttempts, workers int, batch []consult.Document) (*AggregateState, *Barrier, error) {
	t.Helper()
	agg := NewAggregateState()
	barrier := NewBarrier(len(batch))
	d := NewDispatcher(DispatcherConfig{Ports: fake.Ports(), MaxAttempts: maxAttempts, Workers: workers})
	err := d.Dispatch(context.Background(), batch, agg, barrier)
	return agg, barrier, err
}

func TestTaskNoThemesSkipsSummarize(t *testing.T) {
	fake := capabilitytest.New()
	fake.SelectThemesFunc = func(context.Context, string) (consult.ThemeSet, error) {
		return consult.NewThemeSet(), nil
	}

	var snapshots []DocumentRecord
	rec, err := NewTask(fake.Ports(), 2, nil).Run(context.Background(), consult.Document{ID: "a", Text: "hello"},
		func(r DocumentRecord) { snapshots = append(snapshots, r) })

	require.NoError(t, err)
	assert.True(t, rec.Processed)
	assert.True(t, rec.Failed)
	assert.Equal(t, 0, fake.Calls(capabilitytest.OpSummarize))
	require.Len(t, snapshots, 2)
	assert.Equal(t, StateInit, snapshots[0].State)
	assert.Equal(t, rec, snapshots[1])
}

func TestTaskNeverFlagged(t *testing.T) {
	fake := capabilitytest.New()
	rec, err := NewTask(fake.Ports(), 3, nil).Run(context.Background(), consult.Document{ID: "a", Text: "hello"}, func(DocumentRecord) {})

	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempts)
	assert.False(t, rec.Failed)
	assert.Equal(t, OutcomeAccepted, rec.Outcome)
	assert.Equal(t, 0, fake.Calls(capabilitytest.OpRevise))
}

func TestTaskAlwaysFlagged(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("max_%d", maxAttempts), func(t *testing.T) {
			fake := capabilitytest.New()
			fake.ValidateFunc = capabilitytest.FlagTimes(1000)

			rec, err := NewTask(fake.Ports(), maxAttempts, nil).Run(context.Background(), consult.Document{ID: "a", Text: "hello"}, func(DocumentRecord) {})

			require.NoError(t, err)
			assert.Equal(t, maxAttempts, rec.Attempts)
			assert.True(t, rec.Processed)
			assert.False(t, rec.Failed)
			assert.Equal(t, OutcomeAcceptedBestEffort, rec.Outcome)
			assert.Equal(t, maxAttempts, fake.Calls(capabilitytest.OpRevise))
			assert.Equal(t, maxAttempts+1, fake.Calls(capabilitytest.OpValidate))
		})
	}
}

func TestTaskParseErrorIsTerminal(t *testing.T) {
	fake := capabilitytest.New()
	fake.SummarizeFunc = func(context.Context, string, consult.ThemeSet) (*consult.StructuredSummary, error) {
		return nil, errors.NewParseError("model returned prose")
	}

	rec, err := NewTask(fake.Ports(), 2, nil).Run(context.Background(), consult.Document{ID: "a", Text: "hello"}, func(DocumentRecord) {})

	require.NoError(t, err)
	assert.True(t, rec.Failed)
	assert.Contains(t, rec.Err, "model returned prose")
	assert.Equal(t, 1, fake.Calls(capabilitytest.OpSummarize))
	assert.Equal(t, 0, fake.Calls(capabilitytest.OpValidate))
}

func TestTaskRevisePassesExplanation(t *testing.T) {
	fake := capabilitytest.New()
	fake.ValidateFunc = capabilitytest.FlagTimes(1)
	var got string
	fake.ReviseFunc = func(_ context.Context, _ string, s *consult.StructuredSummary, explanation string, _ consult.ThemeSet) (*consult.StructuredSummary, error) {
		got = explanation
		return s.Clone(), nil
	}

	rec, err := NewTask(fake.Ports(), 2, nil).Run(context.Background(), consult.Document{ID: "a", Text: "hello"}, func(DocumentRecord) {})

	require.NoError(t, err)
	assert.Equal(t, "unsupported claim", got)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, OutcomeAccepted, rec.Outcome)
}

func TestTaskUnavailableAborts(t *testing.T) {
	fake := capabilitytest.New()
	fake.ValidateFunc = func(context.Context, string, string) (capability.Validation, error) {
		return capability.Validation{}, errors.MarkUnavailable(errors.New("connection refused"))
	}

	rec, err := NewTask(fake.Ports(), 2, nil).Run(context.Background(), consult.Document{ID: "a", Text: "hello"}, func(DocumentRecord) {})

	require.Error(t, err)
	assert.True(t, errors.IsUnavailableError(err))
	assert.False(t, rec.Processed)
	assert.Equal(t, StateSummarized, rec.State)
}

func TestDispatchMixedOutcomes(t *testing.T) {
	fake := capabilitytest.New()
	fake.SelectThemesFunc = func(_ context.Context, text string) (consult.ThemeSet, error) {
		if text == "off topic" {
			return consult.NewThemeSet(), nil
		}
		return consult.NewThemeSet(consult.ThemeHomes), nil
	}
	fake.ValidateFunc = func(_ context.Context, source, _ string) (capability.Validation, error) {
		return capability.Validation{Flagged: source == "stubborn"}, nil
	}

	agg, barrier, err := dispatch(t, fake, 2, 3, docs("clean", "off topic", "stubborn"))
	require.NoError(t, err)

	assert.True(t, barrier.Released())
	assert.Equal(t, 3, agg.Processed())

	clean, _ := agg.Get("doc-0")
	none, _ := agg.Get("doc-1")
	stubborn, _ := agg.Get("doc-2")
	assert.Equal(t, OutcomeAccepted, clean.Outcome)
	assert.Equal(t, OutcomeFailed, none.Outcome)
	assert.Equal(t, OutcomeAcceptedBestEffort, stubborn.Outcome)
	assert.Equal(t, 2, stubborn.Attempts)
}

func TestDispatchRespectsWorkerLimit(t *testing.T) {
	var active, peak int32
	fake := capabilitytest.New()
	fake.SummarizeFunc = func(_ context.Context, text string, themes consult.ThemeSet) (*consult.StructuredSummary, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return capabilitytest.SummaryFor(text, themes, consult.StanceNeutral), nil
	}

	batch := make([]string, 12)
	for i := range batch {
		batch[i] = fmt.Sprintf("text %d", i)
	}
	agg, _, err := dispatch(t, fake, 1, 3, docs(batch...))

	require.NoError(t, err)
	assert.Equal(t, 12, agg.Processed())
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestDispatchUnavailableStopsRun(t *testing.T) {
	fake := capabilitytest.New()
	fake.SelectThemesFunc = func(ctx context.Context, text string) (consult.ThemeSet, error) {
		if text == "boom" {
			return nil, errors.MarkUnavailable(errors.New("provider down"))
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	agg, barrier, err := dispatch(t, fake, 2, 4, docs("a", "boom", "c"))

	require.Error(t, err)
	assert.True(t, errors.IsUnavailableError(err))
	assert.False(t, barrier.Released())
	assert.Less(t, agg.Processed(), 3)
}

func TestDispatchCallsObservers(t *testing.T) {
	fake := capabilitytest.New()
	var mu sync.Mutex
	seen := map[string]int{}
	final := 0

	agg := NewAggregateState()
	barrier := NewBarrier(2)
	d := NewDispatcher(DispatcherConfig{
		Ports:       fake.Ports(),
		MaxAttempts: 1,
		Workers:     2,
		Observers: []MergeObserver{ObserverFunc(func(_ context.Context, rec DocumentRecord, processed int) {
			mu.Lock()
			defer mu.Unlock()
			seen[rec.ID]++
			if processed > final {
				final = processed
			}
		})},
	})

	require.NoError(t, d.Dispatch(context.Background(), docs("x", "y"), agg, barrier))
	assert.Equal(t, 2, final)
	// init, themes selected, summarized, terminal
	assert.Equal(t, 4, seen["doc-0"])
	assert.Equal(t, 4, seen["doc-1"])
}

func TestDispatchEmptyBatch(t *testing.T) {
	agg, barrier, err := dispatch(t, capabilitytest.New(), 2, 2, nil)
	require.NoError(t, err)
	assert.True(t, barrier.Released())
	assert.Empty(t, agg.Records())
}

func TestDispatchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(DispatcherConfig{Ports: capabilitytest.New().Ports(), MaxAttempts: 1, Workers: 1})
	err := d.Dispatch(ctx, docs("a"), NewAggregateState(), NewBarrier(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
