package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// GlobalScoreResult is the composite [0,100] score plus per-factor
// attribution produced by internal/scoring's GlobalScorer.
type GlobalScoreResult struct {
	Symbol          Symbol             `json:"symbol"`
	OverallScore    float64            `json:"overallScore"`
	ComponentScores map[string]float64 `json:"componentScores"`
	Recommendation  Recommendation     `json:"recommendation"`
	Confidence      float64            `json:"confidence"`
	Timestamp       time.Time          `json:"timestamp"`
}

// StrategyContext is the shared, read-only view injected into every
// strategy: indicator results, route state and global score per ticker, and
// multi-timeframe kline buffers. Strategies read it under a reader-preferred
// lock (owned by internal/strategy); this struct itself is an immutable
// snapshot handed out per event, per spec.md §9's design note.
type StrategyContext struct {
	Snapshot map[Symbol]*SymbolContext
}

// SymbolContext is the per-ticker slice of StrategyContext.
type SymbolContext struct {
	Route       RouteState
	Score       *GlobalScoreResult
	Buffers     map[Timeframe][]Kline
}

// Get returns the per-symbol context, or a zero-value with a Neutral route
// when nothing has been published yet for that symbol.
func (c StrategyContext) Get(sym Symbol) SymbolContext {
	if c.Snapshot == nil {
		return SymbolContext{Route: RouteNeutral}
	}
	if sc, ok := c.Snapshot[sym]; ok && sc != nil {
		return *sc
	}
	return SymbolContext{Route: RouteNeutral}
}

// TargetAllocation is one entry of a rebalance target vector.
type TargetAllocation struct {
	Symbol       Symbol
	TargetWeight float64
}

// RebalanceOrder is one order emitted by the rebalance engine.
type RebalanceOrder struct {
	Symbol   Symbol
	Side     OrderSide
	Quantity decimal.Decimal
	Notional decimal.Decimal
}
