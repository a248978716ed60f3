package indicator

import "github.com/shopspring/decimal"

// VWAP computes the running volume-weighted average price over
// high/low/close/volume, using the typical price (H+L+C)/3 per bar. Callers
// that need session resets should slice the input to one session.
func VWAP(high, low, close, volume []decimal.Decimal) []*decimal.Decimal {
	out := make([]*decimal.Decimal, len(close))
	cumPV := decimal.Zero
	cumVol := decimal.Zero
	three := decimal.NewFromInt(3)

	for i := range close {
		typical := high[i].Add(low[i]).Add(close[i]).Div(three)
		cumPV = cumPV.Add(typical.Mul(volume[i]))
		cumVol = cumVol.Add(volume[i])
		if cumVol.IsZero() {
			continue
		}
		v := cumPV.Div(cumVol)
		out[i] = &v
	}
	return out
}
