// Package risk gates every proposed order, owns the daily PnL ceiling, and
// generates protective stop orders.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DailyLossTrackerConfig configures the ceiling.
type DailyLossTrackerConfig struct {
	MaxDailyLossAbs decimal.Decimal
	MaxDailyLossPct decimal.Decimal // percent, e.g. 3 means 3%
}

// DailyLossStatus is a read-only snapshot for callers (risk manager readers
// clone status rather than sharing the tracker's internal state).
type DailyLossStatus struct {
	Day           time.Time
	DailyTotal    decimal.Decimal
	TradingPaused bool
	UsagePct      decimal.Decimal
	Warning       string // "", "WARNING", or "CRITICAL"
}

// DailyLossTracker is owned exclusively by the risk manager (spec.md §3
// Ownership, §9 design notes). It lazily observes UTC day rollover on each
// read/write rather than running a timer.
type DailyLossTracker struct {
	mu sync.Mutex

	config  DailyLossTrackerConfig
	balance decimal.Decimal

	day           time.Time
	dailyTotal    decimal.Decimal
	perSymbol     map[string]decimal.Decimal
	tradingPaused bool
	manualPause   bool // admin override, independent of the computed threshold
}

// NewDailyLossTracker constructs a tracker against a starting account
// balance, used to compute the percentage-of-balance ceiling.
func NewDailyLossTracker(config DailyLossTrackerConfig, balance decimal.Decimal) *DailyLossTracker {
	return &DailyLossTracker{
		config:    config,
		balance:   balance,
		day:       utcDay(time.Now()),
		perSymbol: make(map[string]decimal.Decimal),
	}
}

func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// rolloverLocked resets the daily state if the observed day has changed.
// Caller must hold mu.
func (d *DailyLossTracker) rolloverLocked(now time.Time) {
	today := utcDay(now)
	if !today.Equal(d.day) {
		d.day = today
		d.dailyTotal = decimal.Zero
		d.perSymbol = make(map[string]decimal.Decimal)
		d.tradingPaused = d.manualPause
	}
}

// RecordPnL records a signed PnL event and re-evaluates the pause threshold.
func (d *DailyLossTracker) RecordPnL(symbol string, amount decimal.Decimal, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rolloverLocked(ts)
	d.dailyTotal = d.dailyTotal.Add(amount)
	d.perSymbol[symbol] = d.perSymbol[symbol].Add(amount)

	d.evaluateLocked()
}

// SetBalance updates the balance used for the percentage ceiling (e.g. after
// equity changes outside of realized PnL).
func (d *DailyLossTracker) SetBalance(balance decimal.Decimal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balance = balance
}

func (d *DailyLossTracker) effectiveLimit() decimal.Decimal {
	pctLimit := d.balance.Mul(d.config.MaxDailyLossPct).Div(decimal.NewFromInt(100))
	return decimal.Min(d.config.MaxDailyLossAbs, pctLimit)
}

// evaluateLocked sets tradingPaused true when |daily_total| >= effective
// limit and the total is negative. Caller must hold mu.
func (d *DailyLossTracker) evaluateLocked() {
	if d.manualPause {
		d.tradingPaused = true
		return
	}
	if d.dailyTotal.IsNegative() && d.dailyTotal.Abs().GreaterThanOrEqual(d.effectiveLimit()) {
		d.tradingPaused = true
	}
}

// CanTrade reports ¬trading_paused, lazily rolling the day over first.
func (d *DailyLossTracker) CanTrade(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked(now)
	return !d.tradingPaused
}

// Status returns a cloned snapshot of the current day's state.
func (d *DailyLossTracker) Status(now time.Time) DailyLossStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolloverLocked(now)

	limit := d.effectiveLimit()
	usage := decimal.Zero
	if d.dailyTotal.IsNegative() && limit.IsPositive() {
		usage = d.dailyTotal.Abs().Div(limit).Mul(decimal.NewFromInt(100))
	}

	warning := ""
	switch {
	case usage.GreaterThanOrEqual(decimal.NewFromInt(90)):
		warning = "CRITICAL"
	case usage.GreaterThanOrEqual(decimal.NewFromInt(70)):
		warning = "WARNING"
	}

	return DailyLossStatus{
		Day:           d.day,
		DailyTotal:    d.dailyTotal,
		TradingPaused: d.tradingPaused,
		UsagePct:      usage,
		Warning:       warning,
	}
}

// ForceReset clears the daily state and lifts the pause, per spec.md §8's
// invariant: after force_reset, daily_total = 0 and can_trade = true.
func (d *DailyLossTracker) ForceReset(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.day = utcDay(now)
	d.dailyTotal = decimal.Zero
	d.perSymbol = make(map[string]decimal.Decimal)
	d.tradingPaused = false
	d.manualPause = false
}

// SetManualPause is the admin override: toggles trading_paused without
// losing the accumulated daily PnL state.
func (d *DailyLossTracker) SetManualPause(paused bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manualPause = paused
	d.evaluateLocked()
	if !paused {
		// re-evaluate against the threshold alone once the override lifts
		d.tradingPaused = d.dailyTotal.IsNegative() && d.dailyTotal.Abs().GreaterThanOrEqual(d.effectiveLimit())
	}
}
