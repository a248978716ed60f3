// Package rebalance computes the minimal order set that moves a portfolio
// from its current holdings to a target allocation vector (spec.md §4.3).
package rebalance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// CurrentPosition is one line of the portfolio being rebalanced.
type CurrentPosition struct {
	Symbol   types.Symbol
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Config tunes the engine's tolerance band.
type Config struct {
	// Tolerance is the maximum acceptable drift between a position's current
	// weight and its target weight before an order is generated.
	Tolerance decimal.Decimal
}

// DefaultConfig uses a 1% tolerance band.
func DefaultConfig() Config {
	return Config{Tolerance: decimal.NewFromFloat(0.01)}
}

// LotSize returns the minimum tradeable increment for a symbol's market: US
// and KR equities trade in whole shares; crypto has no fixed lot modeled
// here (exchange tick size is a connector concern, out of scope per §1).
func LotSize(sym types.Symbol) decimal.Decimal {
	switch sym.MarketType {
	case types.MarketUsStock, types.MarketKrStock:
		return decimal.NewFromInt(1)
	default:
		return decimal.Zero
	}
}

func roundToLot(qty, lot decimal.Decimal) decimal.Decimal {
	if lot.IsZero() {
		return qty
	}
	return qty.Div(lot).Truncate(0).Mul(lot)
}

// Compute derives the minimal Buy/Sell order set that moves positions to
// targets, given each target weight and the instrument's current price.
// Target weights must sum to 1 (within a small epsilon). Positions held but
// absent from targets are fully closed.
func Compute(positions []CurrentPosition, targets []types.TargetAllocation, totalEquity decimal.Decimal, cfg Config) ([]types.RebalanceOrder, error) {
	if !totalEquity.IsPositive() {
		return nil, fmt.Errorf("%w: total equity must be positive", types.ErrInvalidParameter)
	}

	weightSum := 0.0
	for _, t := range targets {
		weightSum += t.TargetWeight
	}
	if weightSum-1 > 0.001 || weightSum-1 < -0.001 {
		return nil, fmt.Errorf("%w: target weights sum to %.4f, want 1", types.ErrInvalidParameter, weightSum)
	}

	current := make(map[types.Symbol]CurrentPosition, len(positions))
	for _, p := range positions {
		current[p.Symbol] = p
	}
	targeted := make(map[types.Symbol]bool, len(targets))

	var orders []types.RebalanceOrder

	for _, t := range targets {
		targeted[t.Symbol] = true
		pos, held := current[t.Symbol]
		if !pos.Price.IsPositive() {
			return nil, fmt.Errorf("%w: no price available for %s", types.ErrInvalidParameter, t.Symbol)
		}
		currentQty := decimal.Zero
		if held {
			currentQty = pos.Quantity
		}
		targetWeight := decimal.NewFromFloat(t.TargetWeight)
		currentWeight := currentQty.Mul(pos.Price).Div(totalEquity)
		if currentWeight.Sub(targetWeight).Abs().LessThanOrEqual(cfg.Tolerance) {
			continue
		}

		targetQty := totalEquity.Mul(targetWeight).Div(pos.Price)
		delta := roundToLot(targetQty.Sub(currentQty), LotSize(t.Symbol))
		if delta.IsZero() {
			continue
		}
		orders = append(orders, orderFromDelta(t.Symbol, delta, pos.Price))
	}

	for sym, pos := range current {
		if targeted[sym] || !pos.Quantity.IsPositive() {
			continue
		}
		delta := roundToLot(pos.Quantity.Neg(), LotSize(sym))
		if delta.IsZero() {
			continue
		}
		orders = append(orders, orderFromDelta(sym, delta, pos.Price))
	}

	return orders, nil
}

func orderFromDelta(sym types.Symbol, delta, price decimal.Decimal) types.RebalanceOrder {
	side := types.OrderSideBuy
	qty := delta
	if delta.IsNegative() {
		side = types.OrderSideSell
		qty = delta.Neg()
	}
	return types.RebalanceOrder{
		Symbol:   sym,
		Side:     side,
		Quantity: qty,
		Notional: qty.Mul(price),
	}
}
