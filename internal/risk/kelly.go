package risk

import "github.com/shopspring/decimal"

// KellyFraction computes f = W - (1-W)/R, the Kelly criterion fraction of
// capital to risk, where W is the historical win rate in [0,1] and R is the
// average win/loss ratio. Negative results (negative edge) clamp to zero.
func KellyFraction(winRate, winLossRatio decimal.Decimal) decimal.Decimal {
	if winLossRatio.IsZero() {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	f := winRate.Sub(one.Sub(winRate).Div(winLossRatio))
	if f.IsNegative() {
		return decimal.Zero
	}
	return f
}

// HalfKelly halves the Kelly fraction, the conventional de-risking applied
// before sizing a live position.
func HalfKelly(winRate, winLossRatio decimal.Decimal) decimal.Decimal {
	return KellyFraction(winRate, winLossRatio).Div(decimal.NewFromInt(2))
}

// KellyPositionSize sizes a position from half-Kelly against balance and
// entry price, capped at maxSinglePosition (an absolute notional ceiling).
func KellyPositionSize(balance, entryPrice, winRate, winLossRatio, maxSinglePosition decimal.Decimal) decimal.Decimal {
	if entryPrice.IsZero() {
		return decimal.Zero
	}
	fraction := HalfKelly(winRate, winLossRatio)
	notional := balance.Mul(fraction)
	if notional.GreaterThan(maxSinglePosition) {
		notional = maxSinglePosition
	}
	if notional.IsNegative() {
		return decimal.Zero
	}
	return notional.Div(entryPrice)
}
