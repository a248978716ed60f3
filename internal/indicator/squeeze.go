package indicator

import "github.com/shopspring/decimal"

// SqueezeParams bundles the Bollinger and Keltner params the squeeze
// comparison needs.
type SqueezeParams struct {
	Bollinger BollingerParams
	Keltner   KeltnerParams
}

// SqueezePoint reports, per bar, whether Bollinger Bands sit inside the
// Keltner Channel (volatility compression), the running count of consecutive
// squeeze bars, and whether the squeeze just released this bar.
type SqueezePoint struct {
	Squeeze      bool
	SqueezeCount int
	Released     bool
}

// TTMSqueeze computes the TTM Squeeze indicator: squeeze = BB.upper <
// KC.upper && BB.lower > KC.lower; squeeze_count is the consecutive-true
// tail length; released = prev squeeze && !current squeeze.
func TTMSqueeze(high, low, close []decimal.Decimal, p SqueezeParams) ([]SqueezePoint, error) {
	bb, err := BollingerBands(close, p.Bollinger)
	if err != nil {
		return nil, err
	}
	kc, err := KeltnerChannel(high, low, close, p.Keltner)
	if err != nil {
		return nil, err
	}

	out := make([]SqueezePoint, len(close))
	prevSqueeze := false
	count := 0
	for i := range close {
		if bb[i].Upper == nil || bb[i].Lower == nil || kc[i].Upper == nil || kc[i].Lower == nil {
			prevSqueeze = false
			count = 0
			continue
		}
		sq := bb[i].Upper.LessThan(*kc[i].Upper) && bb[i].Lower.GreaterThan(*kc[i].Lower)
		if sq {
			count++
		} else {
			count = 0
		}
		out[i] = SqueezePoint{
			Squeeze:      sq,
			SqueezeCount: count,
			Released:     prevSqueeze && !sq,
		}
		prevSqueeze = sq
	}
	return out, nil
}
