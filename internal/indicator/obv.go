package indicator

import "github.com/shopspring/decimal"

// OBV computes on-balance volume: cumulative volume added when close rises,
// subtracted when close falls, unchanged on a flat close.
func OBV(close, volume []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(close))
	if len(close) == 0 {
		return out
	}
	out[0] = decimal.Zero
	running := decimal.Zero
	for i := 1; i < len(close); i++ {
		switch {
		case close[i].GreaterThan(close[i-1]):
			running = running.Add(volume[i])
		case close[i].LessThan(close[i-1]):
			running = running.Sub(volume[i])
		}
		out[i] = running
	}
	return out
}
