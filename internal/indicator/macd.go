package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// MACDParams configures the fast/slow/signal EMA periods.
type MACDParams struct {
	Fast   int
	Slow   int
	Signal int
}

// MACDPoint is one bar's MACD/signal/histogram values, any of which may be
// nil while the underlying EMAs are still warming up.
type MACDPoint struct {
	MACD      *decimal.Decimal
	Signal    *decimal.Decimal
	Histogram *decimal.Decimal
}

// MACD computes MACD = EMA_fast - EMA_slow, signal = EMA_signal(MACD), and
// histogram = MACD - signal.
func MACD(prices []decimal.Decimal, p MACDParams) ([]MACDPoint, error) {
	if p.Fast <= 0 || p.Slow <= 0 || p.Signal <= 0 {
		return nil, types.ErrInvalidParameter
	}
	if p.Fast >= p.Slow {
		return nil, types.ErrInvalidParameter
	}

	fastEMA, err := EMA(prices, p.Fast)
	if err != nil {
		return nil, err
	}
	slowEMA, err := EMA(prices, p.Slow)
	if err != nil {
		return nil, err
	}

	out := make([]MACDPoint, len(prices))
	macdSeries := make([]decimal.Decimal, 0, len(prices))
	macdIdx := make([]int, 0, len(prices))

	for i := range prices {
		if fastEMA[i] == nil || slowEMA[i] == nil {
			continue
		}
		v := fastEMA[i].Sub(*slowEMA[i])
		out[i].MACD = &v
		macdSeries = append(macdSeries, v)
		macdIdx = append(macdIdx, i)
	}

	if len(macdSeries) >= p.Signal {
		signalEMA, err := EMA(macdSeries, p.Signal)
		if err == nil {
			for j, v := range signalEMA {
				if v == nil {
					continue
				}
				i := macdIdx[j]
				out[i].Signal = v
				hist := out[i].MACD.Sub(*v)
				out[i].Histogram = &hist
			}
		}
	}

	return out, nil
}
