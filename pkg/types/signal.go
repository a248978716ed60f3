package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a strategy's trading intent: plain data translated by the risk
// manager into a sized OrderRequest (spec.md §9's "Signal → Order
// translation" design note — strategies suggest strength, the risk manager
// decides quantity).
type Signal struct {
	StrategyID  string          `json:"strategyId"`
	Symbol      Symbol          `json:"symbol"`
	Side        OrderSide       `json:"side"`
	SignalType  SignalType      `json:"signalType"`
	Strength    float64         `json:"strength"`
	EntryPrice  decimal.Decimal `json:"entryPrice,omitempty"`
	StopLoss    decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit  decimal.Decimal `json:"takeProfit,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// ClampedStrength clamps Strength into [0,1], treating NaN/Inf as 0 per the
// "strength finite, clamped" invariant in spec.md §3.
func (s Signal) ClampedStrength() float64 {
	v := s.Strength
	if v != v || v-v != 0 || v < 0 { // NaN/Inf check without importing math
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// StopOrder describes a protective order attached to a position.
type StopOrder struct {
	Kind         StopKind        `json:"kind"`
	TriggerPrice decimal.Decimal `json:"triggerPrice"`
	Side         OrderSide       `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	TrailPct     decimal.Decimal `json:"trailPct,omitempty"`
}

// TrailingStopState is the mutable per-position trailing-stop cell owned
// exclusively by the risk manager (spec.md §9). Update advances the
// high-water mark monotonically for longs (mirrored for shorts).
type TrailingStopState struct {
	PositionID    string          `json:"positionId"`
	Side          PositionSide    `json:"side"`
	TrailPct      decimal.Decimal `json:"trailPct"`
	HighWatermark decimal.Decimal `json:"highWatermark"`
	TriggerPrice  decimal.Decimal `json:"triggerPrice"`
}

// NewTrailingStop seeds the state from an entry price, matching spec.md §8
// scenario 4: initial trigger = entry*(1-trail) for longs.
func NewTrailingStop(positionID string, side PositionSide, entryPrice, trailPct decimal.Decimal) *TrailingStopState {
	t := &TrailingStopState{
		PositionID:    positionID,
		Side:          side,
		TrailPct:      trailPct,
		HighWatermark: entryPrice,
	}
	t.recompute()
	return t
}

func (t *TrailingStopState) recompute() {
	one := decimal.NewFromInt(1)
	if t.Side == PositionSideShort {
		t.TriggerPrice = t.HighWatermark.Mul(one.Add(t.TrailPct))
		return
	}
	t.TriggerPrice = t.HighWatermark.Mul(one.Sub(t.TrailPct))
}

// Update advances the high-water mark given a new price and recomputes the
// trigger. Returns the new trigger and true iff the trigger advanced
// favorably (invariant: monotone non-decreasing for longs, non-increasing
// for shorts).
func (t *TrailingStopState) Update(price decimal.Decimal) (decimal.Decimal, bool) {
	prev := t.TriggerPrice
	advanced := false

	if t.Side == PositionSideShort {
		if price.LessThan(t.HighWatermark) {
			t.HighWatermark = price
			t.recompute()
		}
		advanced = t.TriggerPrice.LessThan(prev)
	} else {
		if price.GreaterThan(t.HighWatermark) {
			t.HighWatermark = price
			t.recompute()
		}
		advanced = t.TriggerPrice.GreaterThan(prev)
	}

	return t.TriggerPrice, advanced
}

// ShouldTrigger reports whether price has crossed the trailing trigger.
func (t *TrailingStopState) ShouldTrigger(price decimal.Decimal) bool {
	if t.Side == PositionSideShort {
		return price.GreaterThanOrEqual(t.TriggerPrice)
	}
	return price.LessThanOrEqual(t.TriggerPrice)
}
