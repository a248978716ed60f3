// Package indicator computes deterministic technical indicator series over
// Kline sequences: SMA, EMA, RSI, MACD, Bollinger Bands, ATR, Keltner
// Channel, TTM Squeeze, VWAP, OBV and SuperTrend. Every function here is a
// pure function of its inputs.
package indicator

import "github.com/shopspring/decimal"

const sqrtMaxIterations = 10

var sqrtTolerance = decimal.New(1, -7) // 10^-7

// sqrtDecimal computes a square root via Newton-Raphson, terminating early
// once successive iterates differ by less than sqrtTolerance, capped at
// sqrtMaxIterations. Returns zero for non-positive input.
func sqrtDecimal(d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return decimal.Zero
	}

	two := decimal.NewFromInt(2)
	x := d
	for i := 0; i < sqrtMaxIterations; i++ {
		next := x.Add(d.Div(x)).Div(two)
		if next.Sub(x).Abs().LessThan(sqrtTolerance) {
			return next
		}
		x = next
	}
	return x
}
