// Package scoring computes the composite GlobalScore, the RouteState entry
// gate, and market regime classification used by the strategy runtime.
package scoring

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/indicator"
	"github.com/tyeom/zeroquant-go/pkg/types"
)

const minScoringCloses = 50

// factor weights, summing to 1.0 (spec.md §4.2).
const (
	weightRR   = 0.25
	weightT1   = 0.18
	weightSL   = 0.12
	weightNEAR = 0.12
	weightMOM  = 0.10
	weightLIQ  = 0.13
	weightTEC  = 0.10
)

// ScoreInput is the context GlobalScorer needs to produce a GlobalScoreResult.
// Target, Stop, Entry and VolumePercentile are optional (nil = not provided).
type ScoreInput struct {
	Symbol           types.Symbol
	Closes           []decimal.Decimal
	Price            decimal.Decimal
	Target           *decimal.Decimal
	Stop             *decimal.Decimal
	Entry            *decimal.Decimal
	VolumePercentile *float64
}

// GlobalScorer computes the [0,100] composite score per spec.md §4.2.
type GlobalScorer struct {
	logger *zap.Logger
}

// NewGlobalScorer constructs a GlobalScorer.
func NewGlobalScorer(logger *zap.Logger) *GlobalScorer {
	return &GlobalScorer{logger: logger}
}

// Score computes the GlobalScoreResult. Requires at least 50 closes.
func (g *GlobalScorer) Score(in ScoreInput) (*types.GlobalScoreResult, error) {
	if len(in.Closes) < minScoringCloses {
		return nil, types.NewInsufficientData(minScoringCloses, len(in.Closes))
	}

	price, _ := in.Price.Float64()

	components := map[string]float64{
		"RR":   weightRR * factorRR(in),
		"T1":   weightT1 * factorT1(in),
		"SL":   weightSL * factorSL(in),
		"NEAR": weightNEAR * factorNEAR(in),
		"MOM":  weightMOM * factorMOM(in),
		"LIQ":  weightLIQ * factorLIQ(in),
		"TEC":  weightTEC * factorTEC(in),
	}

	overall := 0.0
	for _, v := range components {
		overall += v
	}
	overall -= penalties(in)
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}

	rec := types.RecommendationHold
	switch {
	case overall >= 70:
		rec = types.RecommendationBuy
	case overall >= 50:
		rec = types.RecommendationWatch
	}

	confidence := 0.2 // symbol (0.1) + market_type (0.1) always present
	if in.Target != nil {
		confidence += 0.2
	}
	if in.Stop != nil {
		confidence += 0.2
	}
	if in.Entry != nil {
		confidence += 0.2
	}
	if in.VolumePercentile != nil {
		confidence += 0.2
	}

	_ = price
	return &types.GlobalScoreResult{
		Symbol:          in.Symbol,
		OverallScore:    overall,
		ComponentScores: components,
		Recommendation:  rec,
		Confidence:      confidence,
		Timestamp:       time.Now(),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// factorRR: min(100, ((target-price)/(price-stop))/3 * 100); 0 if either
// missing or price <= stop.
func factorRR(in ScoreInput) float64 {
	if in.Target == nil || in.Stop == nil {
		return 0
	}
	price := toFloat(in.Price)
	stop := toFloat(*in.Stop)
	target := toFloat(*in.Target)
	if price <= stop {
		return 0
	}
	ratio := (target - price) / (price - stop) / 3 * 100
	return clamp(ratio, 0, 100)
}

// factorT1: min(100, (target-price)/price*100/0.20); 0 if price >= target.
func factorT1(in ScoreInput) float64 {
	if in.Target == nil {
		return 0
	}
	price := toFloat(in.Price)
	target := toFloat(*in.Target)
	if price <= 0 || price >= target {
		return 0
	}
	v := (target - price) / price * 100 / 0.20
	return clamp(v, 0, 100)
}

// factorSL: piecewise on "room" = (price-stop)/price*100: 100 in [4,6],
// linear decay to 40 at 2 and to 50 at 10; 0 if price <= stop.
func factorSL(in ScoreInput) float64 {
	if in.Stop == nil {
		return 0
	}
	price := toFloat(in.Price)
	stop := toFloat(*in.Stop)
	if price <= stop || price <= 0 {
		return 0
	}
	room := (price - stop) / price * 100

	switch {
	case room >= 4 && room <= 6:
		return 100
	case room < 4:
		if room <= 2 {
			return 40
		}
		// linear from 40 @ room=2 to 100 @ room=4
		return 40 + (room-2)/(4-2)*(100-40)
	default: // room > 6
		if room >= 10 {
			return 50
		}
		// linear from 100 @ room=6 to 50 @ room=10
		return 100 + (room-6)/(10-6)*(50-100)
	}
}

// factorNEAR: max(0, 100*(1-|price-entry|/entry/0.05)); 100 if entry absent.
func factorNEAR(in ScoreInput) float64 {
	if in.Entry == nil {
		return 100
	}
	price := toFloat(in.Price)
	entry := toFloat(*in.Entry)
	if entry == 0 {
		return 0
	}
	v := 100 * (1 - abs(price-entry)/entry/0.05)
	return clamp(v, 0, 100)
}

// factorMOM: 40-point RSI band credit + 30-point MACD slope credit + a fixed
// 30-point ERS placeholder (the source formula for ERS is undefined; see
// DESIGN.md open-question decisions).
func factorMOM(in ScoreInput) float64 {
	rsiScore := 0.0
	if r, ok := lastRSI(in.Closes, 14); ok {
		rsiScore = rsiBandCredit(r)
	}

	macdScore := 0.0
	if up, ok := macdSlopeUp(in.Closes); ok && up {
		macdScore = 30
	}

	const ersPlaceholder = 30
	return rsiScore + macdScore + ersPlaceholder
}

func rsiBandCredit(rsi float64) float64 {
	switch {
	case rsi >= 45 && rsi <= 65:
		return 40
	case rsi < 45:
		if rsi <= 30 {
			return 0
		}
		return (rsi - 30) / (45 - 30) * 40
	default: // rsi > 65
		if rsi >= 80 {
			return 0
		}
		return (80 - rsi) / (80 - 65) * 40
	}
}

// factorLIQ: volume_percentile*100; 0 if missing.
func factorLIQ(in ScoreInput) float64 {
	if in.VolumePercentile == nil {
		return 0
	}
	return clamp(*in.VolumePercentile*100, 0, 100)
}

// factorTEC: 50 for |Bollinger z| <= 1 (linear to 0 at 3), + 50 for
// |price-MA20|/MA20 <= 5% (linear to 0 at 10%).
func factorTEC(in ScoreInput) float64 {
	bb, err := indicator.BollingerBands(in.Closes, indicator.BollingerParams{Period: 20, K: decimal.NewFromInt(2)})
	var bbScore float64
	if err == nil && len(bb) > 0 {
		last := bb[len(bb)-1]
		if last.Middle != nil {
			sigma := toFloat(last.Upper.Sub(*last.Middle)) // = K*sigma = 2*sigma
			if sigma != 0 {
				z := abs(toFloat(in.Price)-toFloat(*last.Middle)) / (sigma / 2)
				bbScore = linearDecay(z, 1, 3, 50)
			}
		}
	}

	ma, err := indicator.SMA(in.Closes, 20)
	var maScore float64
	if err == nil && len(ma) > 0 && ma[len(ma)-1] != nil {
		ma20 := toFloat(*ma[len(ma)-1])
		if ma20 != 0 {
			pct := abs(toFloat(in.Price)-ma20) / ma20 * 100
			maScore = linearDecay(pct, 5, 10, 50)
		}
	}

	return bbScore + maScore
}

// linearDecay returns full when x <= lowBound, zero when x >= highBound, and
// linear interpolation between.
func linearDecay(x, lowBound, highBound, full float64) float64 {
	if x <= lowBound {
		return full
	}
	if x >= highBound {
		return 0
	}
	return full * (1 - (x-lowBound)/(highBound-lowBound))
}

func penalties(in ScoreInput) float64 {
	total := 0.0
	closes := in.Closes
	n := len(closes)

	if n > 5 {
		ret5 := (toFloat(closes[n-1]) - toFloat(closes[n-6])) / toFloat(closes[n-6])
		if ret5 > 0.10 {
			total += 6
		}
	}
	if n > 10 {
		ret10 := (toFloat(closes[n-1]) - toFloat(closes[n-11])) / toFloat(closes[n-11])
		if ret10 > 0.20 {
			total += 6
		}
	}
	if r, ok := lastRSI(closes, 14); ok && (r < 45 || r > 65) {
		total += 4
	}
	if up, ok := macdSlopeUp(closes); ok && !up {
		total += 4
	}
	if in.Entry != nil {
		entry := toFloat(*in.Entry)
		if entry != 0 {
			dev := abs(toFloat(in.Price)-entry) / entry
			if dev > 0.05 {
				total += 4
			}
		}
	}
	if in.VolumePercentile != nil && *in.VolumePercentile < 0.2 {
		total += 4
	}
	bb, err := indicator.BollingerBands(closes, indicator.BollingerParams{Period: 20, K: decimal.NewFromInt(2)})
	if err == nil && len(bb) > 0 {
		last := bb[len(bb)-1]
		if last.Middle != nil {
			sigma := toFloat(last.Upper.Sub(*last.Middle)) / 2
			if sigma != 0 {
				z := abs(toFloat(in.Price)-toFloat(*last.Middle)) / sigma
				if z > 3 {
					total += 2
				}
			}
		}
	}

	return total
}

func lastRSI(closes []decimal.Decimal, period int) (float64, bool) {
	out, err := indicator.RSI(closes, period)
	if err != nil || len(out) == 0 || out[len(out)-1] == nil {
		return 0, false
	}
	return toFloat(*out[len(out)-1]), true
}

func macdSlopeUp(closes []decimal.Decimal) (bool, bool) {
	out, err := indicator.MACD(closes, indicator.MACDParams{Fast: 12, Slow: 26, Signal: 9})
	if err != nil || len(out) < 2 {
		return false, false
	}
	last := out[len(out)-1]
	prev := out[len(out)-2]
	if last.MACD == nil || prev.MACD == nil {
		return false, false
	}
	return last.MACD.GreaterThan(*prev.MACD), true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
