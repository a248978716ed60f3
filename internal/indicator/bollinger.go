package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// BollingerParams configures the band width.
type BollingerParams struct {
	Period int
	K      decimal.Decimal // band multiplier, e.g. 2
}

// BollingerPoint is one bar's band values. PercentB is 0.5 when the band has
// collapsed (upper == lower) rather than a division by zero.
type BollingerPoint struct {
	Upper     *decimal.Decimal
	Middle    *decimal.Decimal
	Lower     *decimal.Decimal
	PercentB  *decimal.Decimal
	Bandwidth *decimal.Decimal
}

// BollingerBands computes middle = SMA, sigma = population stddev over the
// trailing window, upper/lower = middle +/- K*sigma.
func BollingerBands(prices []decimal.Decimal, p BollingerParams) ([]BollingerPoint, error) {
	if p.Period <= 0 {
		return nil, types.ErrInvalidParameter
	}
	if len(prices) < p.Period {
		return nil, types.NewInsufficientData(p.Period, len(prices))
	}

	middles, err := SMA(prices, p.Period)
	if err != nil {
		return nil, err
	}

	out := make([]BollingerPoint, len(prices))
	for i := p.Period - 1; i < len(prices); i++ {
		mid := *middles[i]
		sigma := populationStdDev(prices[i-p.Period+1:i+1], mid)

		upper := mid.Add(p.K.Mul(sigma))
		lower := mid.Sub(p.K.Mul(sigma))

		pt := BollingerPoint{Upper: &upper, Middle: &mid, Lower: &lower}

		width := upper.Sub(lower)
		var pctB decimal.Decimal
		if width.IsZero() {
			pctB = decimal.NewFromFloat(0.5)
		} else {
			pctB = prices[i].Sub(lower).Div(width)
		}
		pt.PercentB = &pctB

		if !mid.IsZero() {
			bw := width.Div(mid)
			pt.Bandwidth = &bw
		}

		out[i] = pt
	}
	return out, nil
}

// populationStdDev computes the population (not sample) standard deviation
// of window around the known mean, using sqrtDecimal for the root.
func populationStdDev(window []decimal.Decimal, mean decimal.Decimal) decimal.Decimal {
	variance := decimal.Zero
	for _, v := range window {
		d := v.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(window))))
	return sqrtDecimal(variance)
}
