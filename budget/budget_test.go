package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/plansum/ai/tracker"
	"github.com/teranos/plansum/errors"
	plansumtest "github.com/teranos/plansum/internal/testing"
	"github.com/teranos/plansum/internal/util"
)

type fixedSpend struct {
	spend float64
	since time.Time
	err   error
}

func (f *fixedSpend) SpendSince(_ context.Context, since time.Time) (float64, error) {
	f.since = since
	return f.spend, f.err
}

func TestCheckBudget(t *testing.T) {
	ctx := context.Background()

	t.Run("under limit", func(t *testing.T) {
		bt := NewTracker(&fixedSpend{spend: 1.0}, 5.0)
		assert.NoError(t, bt.CheckBudget(ctx, 2.0))
	})

	t.Run("estimate would exceed", func(t *testing.T) {
		bt := NewTracker(&fixedSpend{spend: 4.5}, 5.0)
		err := bt.CheckBudget(ctx, 1.0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrBudgetExceeded))
		assert.Contains(t, err.Error(), "limit $5.00")
		assert.Contains(t, errors.FlattenHints(err), "budget.daily_usd")
	})

	t.Run("zero limit is unlimited", func(t *testing.T) {
		bt := NewTracker(&fixedSpend{spend: 1000}, 0)
		assert.NoError(t, bt.CheckBudget(ctx, 1000))
	})

	t.Run("spend at limit", func(t *testing.T) {
		bt := NewTracker(&fixedSpend{spend: 5.0}, 5.0)
		assert.True(t, errors.Is(bt.CheckBudget(ctx, 0), errors.ErrBudgetExceeded))
	})

	t.Run("source failure", func(t *testing.T) {
		bt := NewTracker(&fixedSpend{err: errors.New("no such table: ai_model_usage")}, 5.0)
		err := bt.CheckBudget(ctx, 0)
		require.Error(t, err)
		assert.False(t, errors.Is(err, errors.ErrBudgetExceeded))
	})
}

func TestGetStatusUsesSlidingWindow(t *testing.T) {
	src := &fixedSpend{spend: 1.25}
	bt := NewTracker(src, 5.0)
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	bt.now = func() time.Time { return now }

	status, err := bt.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), src.since)
	assert.Equal(t, 3.75, status.DailyRemaining)
	assert.False(t, status.Unlimited)
}

func TestSetDailyLimit(t *testing.T) {
	bt := NewTracker(&fixedSpend{spend: 3}, 1)
	require.Error(t, bt.CheckBudget(context.Background(), 0))

	require.NoError(t, bt.SetDailyLimit(10))
	assert.NoError(t, bt.CheckBudget(context.Background(), 0))
	assert.Error(t, bt.SetDailyLimit(-1))
}

func TestTrackerOverUsageTable(t *testing.T) {
	db := plansumtest.CreateTestDB(t)
	usage := tracker.NewUsageTracker(db)
	ctx := context.Background()

	for _, cost := range []float64{2.0, 2.5} {
		require.NoError(t, usage.TrackUsage(ctx, &tracker.ModelUsage{
			OperationType:    "summarize",
			ModelName:        "openai/gpt-4o-mini",
			ModelProvider:    "openrouter",
			RequestTimestamp: time.Now(),
			Cost:             util.Ptr(cost),
			Success:          true,
		}))
	}

	bt := NewTracker(usage, 5.0)
	assert.NoError(t, bt.CheckBudget(ctx, 0.4))
	assert.True(t, errors.Is(bt.CheckBudget(ctx, 0.6), errors.ErrBudgetExceeded))
}
