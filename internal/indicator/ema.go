package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// EMA computes the classical exponential moving average with alpha =
// 2/(period+1), seeded by the SMA of the first period values. Positions
// before the seed are nil.
func EMA(prices []decimal.Decimal, period int) ([]*decimal.Decimal, error) {
	if period <= 0 {
		return nil, types.ErrInvalidParameter
	}
	if len(prices) < period {
		return nil, types.NewInsufficientData(period, len(prices))
	}

	out := make([]*decimal.Decimal, len(prices))
	alpha := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))
	oneMinusAlpha := decimal.NewFromInt(1).Sub(alpha)

	seed := smaAt(prices, period-1, period)
	out[period-1] = &seed

	prev := seed
	for i := period; i < len(prices); i++ {
		cur := prices[i].Mul(alpha).Add(prev.Mul(oneMinusAlpha))
		out[i] = &cur
		prev = cur
	}
	return out, nil
}

// IncrementalEMA accumulates an exponential moving average one value at a
// time, for callers (e.g. strategy runtime) that process a live stream
// rather than a pre-collected slice.
type IncrementalEMA struct {
	Period  int
	alpha   decimal.Decimal
	value   decimal.Decimal
	seeded  bool
	seedBuf []decimal.Decimal
}

// NewIncrementalEMA constructs a streaming EMA calculator.
func NewIncrementalEMA(period int) *IncrementalEMA {
	return &IncrementalEMA{
		Period: period,
		alpha:  decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1))),
	}
}

// Add feeds one value and returns the current EMA once seeded, or false
// while still accumulating the seed window.
func (e *IncrementalEMA) Add(value decimal.Decimal) (decimal.Decimal, bool) {
	if !e.seeded {
		e.seedBuf = append(e.seedBuf, value)
		if len(e.seedBuf) < e.Period {
			return decimal.Zero, false
		}
		e.value = smaAt(e.seedBuf, len(e.seedBuf)-1, e.Period)
		e.seeded = true
		return e.value, true
	}
	oneMinusAlpha := decimal.NewFromInt(1).Sub(e.alpha)
	e.value = value.Mul(e.alpha).Add(e.value.Mul(oneMinusAlpha))
	return e.value, true
}
