// Package budget enforces a daily model-spend ceiling.
// Spend is read from ai_model_usage over a sliding 24 hour window, so the
// limit cannot be gamed by starting a run just after midnight.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/plansum/errors"
)

// SpendSource reports recorded model spend. Satisfied by *tracker.UsageTracker.
type SpendSource interface {
	SpendSince(ctx context.Context, since time.Time) (float64, error)
}

// Window is the sliding window the daily limit applies to.
const Window = 24 * time.Hour

// Status is a snapshot of spend against the limit.
type Status struct {
	DailySpend     float64 `json:"daily_spend"`
	DailyLimit     float64 `json:"daily_limit"`
	DailyRemaining float64 `json:"daily_remaining"`
	Unlimited      bool    `json:"unlimited"`
}

// Tracker checks spend against a daily limit.
type Tracker struct {
	source SpendSource
	now    func() time.Time

	mu         sync.RWMutex
	dailyLimit float64
}

// NewTracker creates a tracker. A limit of 0 disables enforcement.
func NewTracker(source SpendSource, dailyLimitUSD float64) *Tracker {
	return &Tracker{source: source, now: time.Now, dailyLimit: dailyLimitUSD}
}

// GetStatus reads the current window's spend.
func (bt *Tracker) GetStatus(ctx context.Context) (*Status, error) {
	spend, err := bt.source.SpendSince(ctx, bt.now().Add(-Window))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get daily spend")
	}

	bt.mu.RLock()
	limit := bt.dailyLimit
	bt.mu.RUnlock()

	return &Status{
		DailySpend:     spend,
		DailyLimit:     limit,
		DailyRemaining: limit - spend,
		Unlimited:      limit == 0,
	}, nil
}

// CheckBudget fails with errors.ErrBudgetExceeded when recorded spend has
// reached the limit or spend plus the estimate would pass it.
func (bt *Tracker) CheckBudget(ctx context.Context, estimatedCostUSD float64) error {
	status, err := bt.GetStatus(ctx)
	if err != nil {
		return err
	}
	if status.Unlimited {
		return nil
	}
	if status.DailySpend >= status.DailyLimit || status.DailySpend+estimatedCostUSD > status.DailyLimit {
		err := errors.Mark(errors.Newf(
			"daily budget would be exceeded: current $%.3f + estimated $%.3f > limit $%.2f",
			status.DailySpend, estimatedCostUSD, status.DailyLimit,
		), errors.ErrBudgetExceeded)
		return errors.WithHint(err, "raise budget.daily_usd in am.toml or wait for the 24h window to roll over")
	}
	return nil
}

// SetDailyLimit changes the limit at runtime.
func (bt *Tracker) SetDailyLimit(usd float64) error {
	if usd < 0 {
		return errors.Newf("daily budget cannot be negative: %.2f", usd)
	}
	bt.mu.Lock()
	bt.dailyLimit = usd
	bt.mu.Unlock()
	return nil
}
