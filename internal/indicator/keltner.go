package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// KeltnerParams configures the channel.
type KeltnerParams struct {
	Period     int
	Multiplier decimal.Decimal
}

// KeltnerPoint is one bar's channel values.
type KeltnerPoint struct {
	Upper  *decimal.Decimal
	Middle *decimal.Decimal
	Lower  *decimal.Decimal
}

// KeltnerChannel computes middle = SMA(close), upper/lower = middle +/-
// multiplier*ATR.
func KeltnerChannel(high, low, close []decimal.Decimal, p KeltnerParams) ([]KeltnerPoint, error) {
	if p.Period <= 0 {
		return nil, types.ErrInvalidParameter
	}

	middles, err := SMA(close, p.Period)
	if err != nil {
		return nil, err
	}
	atr, err := ATR(high, low, close, p.Period)
	if err != nil {
		return nil, err
	}

	out := make([]KeltnerPoint, len(close))
	for i := range close {
		if middles[i] == nil || atr[i] == nil {
			continue
		}
		upper := middles[i].Add(p.Multiplier.Mul(*atr[i]))
		lower := middles[i].Sub(p.Multiplier.Mul(*atr[i]))
		out[i] = KeltnerPoint{Upper: &upper, Middle: middles[i], Lower: &lower}
	}
	return out, nil
}
