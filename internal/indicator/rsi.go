package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// RSI computes Wilder's relative strength index. avg loss = 0 yields 100;
// avg gain = 0 yields 0; both zero (a flat window) yields 50. Result is
// always in [0,100] where valid.
func RSI(prices []decimal.Decimal, period int) ([]*decimal.Decimal, error) {
	if period <= 0 {
		return nil, types.ErrInvalidParameter
	}
	if len(prices) < period+1 {
		return nil, types.NewInsufficientData(period+1, len(prices))
	}

	out := make([]*decimal.Decimal, len(prices))
	periodD := decimal.NewFromInt(int64(period))

	var avgGain, avgLoss decimal.Decimal
	for i := 1; i <= period; i++ {
		delta := prices[i].Sub(prices[i-1])
		if delta.IsPositive() {
			avgGain = avgGain.Add(delta)
		} else {
			avgLoss = avgLoss.Add(delta.Abs())
		}
	}
	avgGain = avgGain.Div(periodD)
	avgLoss = avgLoss.Div(periodD)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		delta := prices[i].Sub(prices[i-1])
		gain, loss := decimal.Zero, decimal.Zero
		if delta.IsPositive() {
			gain = delta
		} else {
			loss = delta.Abs()
		}
		avgGain = avgGain.Mul(periodD.Sub(decimal.NewFromInt(1))).Add(gain).Div(periodD)
		avgLoss = avgLoss.Mul(periodD.Sub(decimal.NewFromInt(1))).Add(loss).Div(periodD)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss decimal.Decimal) *decimal.Decimal {
	var v decimal.Decimal
	switch {
	case avgLoss.IsZero() && avgGain.IsZero():
		v = decimal.NewFromInt(50)
	case avgLoss.IsZero():
		v = decimal.NewFromInt(100)
	case avgGain.IsZero():
		v = decimal.Zero
	default:
		rs := avgGain.Div(avgLoss)
		hundred := decimal.NewFromInt(100)
		v = hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
	}
	return &v
}
