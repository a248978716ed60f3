package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// trueRange computes TR[i] = max(H-L, |H-C_prev|, |L-C_prev|). For i==0
// there is no previous close, so TR[0] = H[0]-L[0].
func trueRange(high, low, close []decimal.Decimal) []decimal.Decimal {
	tr := make([]decimal.Decimal, len(high))
	for i := range high {
		hl := high[i].Sub(low[i])
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := high[i].Sub(close[i-1]).Abs()
		lc := low[i].Sub(close[i-1]).Abs()
		tr[i] = decimal.Max(hl, hc, lc)
	}
	return tr
}

// ATR computes Wilder's average true range: the first valid value is the
// simple mean of the first period true ranges, thereafter smoothed with
// alpha = 1/period.
func ATR(high, low, close []decimal.Decimal, period int) ([]*decimal.Decimal, error) {
	if period <= 0 {
		return nil, types.ErrInvalidParameter
	}
	if len(high) < period || len(low) < period || len(close) < period {
		return nil, types.NewInsufficientData(period, len(close))
	}

	tr := trueRange(high, low, close)
	out := make([]*decimal.Decimal, len(close))

	seed := decimal.Zero
	for i := 0; i < period; i++ {
		seed = seed.Add(tr[i])
	}
	seed = seed.Div(decimal.NewFromInt(int64(period)))
	out[period-1] = &seed

	alpha := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(period)))
	oneMinusAlpha := decimal.NewFromInt(1).Sub(alpha)
	prev := seed
	for i := period; i < len(close); i++ {
		cur := tr[i].Mul(alpha).Add(prev.Mul(oneMinusAlpha))
		out[i] = &cur
		prev = cur
	}
	return out, nil
}
