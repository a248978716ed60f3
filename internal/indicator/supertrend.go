package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// SuperTrendParams configures the ATR-based trend bands.
type SuperTrendParams struct {
	Period     int
	Multiplier decimal.Decimal
}

// SuperTrendPoint is one bar's trend line plus its direction (true = up).
type SuperTrendPoint struct {
	Value   *decimal.Decimal
	Uptrend bool
}

// SuperTrend computes the canonical ATR-banded trend-following indicator:
// basic bands = (H+L)/2 +/- multiplier*ATR, finalized bands ratchet toward
// price, and the trend flips when price crosses the active final band.
func SuperTrend(high, low, close []decimal.Decimal, p SuperTrendParams) ([]SuperTrendPoint, error) {
	if p.Period <= 0 {
		return nil, types.ErrInvalidParameter
	}

	atr, err := ATR(high, low, close, p.Period)
	if err != nil {
		return nil, err
	}

	out := make([]SuperTrendPoint, len(close))
	two := decimal.NewFromInt(2)

	var finalUpper, finalLower decimal.Decimal
	uptrend := true
	started := false

	for i := range close {
		if atr[i] == nil {
			continue
		}
		mid := high[i].Add(low[i]).Div(two)
		basicUpper := mid.Add(p.Multiplier.Mul(*atr[i]))
		basicLower := mid.Sub(p.Multiplier.Mul(*atr[i]))

		if !started {
			finalUpper, finalLower = basicUpper, basicLower
			uptrend = close[i].GreaterThanOrEqual(finalLower)
			started = true
		} else {
			if basicUpper.LessThan(finalUpper) || close[i-1].GreaterThan(finalUpper) {
				finalUpper = basicUpper
			}
			if basicLower.GreaterThan(finalLower) || close[i-1].LessThan(finalLower) {
				finalLower = basicLower
			}

			switch {
			case uptrend && close[i].LessThan(finalLower):
				uptrend = false
			case !uptrend && close[i].GreaterThan(finalUpper):
				uptrend = true
			}
		}

		var v decimal.Decimal
		if uptrend {
			v = finalLower
		} else {
			v = finalUpper
		}
		out[i] = SuperTrendPoint{Value: &v, Uptrend: uptrend}
	}
	return out, nil
}
