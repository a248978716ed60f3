package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// SMA computes the simple moving average over a trailing window of period.
// Output length equals len(prices); the first period-1 positions are nil
// (None). Returns InsufficientData if prices is shorter than period, or
// InvalidParameter if period <= 0.
func SMA(prices []decimal.Decimal, period int) ([]*decimal.Decimal, error) {
	if period <= 0 {
		return nil, types.ErrInvalidParameter
	}
	if len(prices) < period {
		return nil, types.NewInsufficientData(period, len(prices))
	}

	out := make([]*decimal.Decimal, len(prices))
	sum := decimal.Zero
	for i, p := range prices {
		sum = sum.Add(p)
		if i >= period {
			sum = sum.Sub(prices[i-period])
		}
		if i >= period-1 {
			avg := sum.Div(decimal.NewFromInt(int64(period)))
			out[i] = &avg
		}
	}
	return out, nil
}

// smaAt computes a single trailing-window average ending at index i
// (inclusive), used by callers that need one value rather than a series.
func smaAt(prices []decimal.Decimal, i, period int) decimal.Decimal {
	sum := decimal.Zero
	for j := i - period + 1; j <= i; j++ {
		sum = sum.Add(prices[j])
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}
