package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/internal/indicator"
	"github.com/tyeom/zeroquant-go/pkg/types"
)

// RouteStateParams configures the classifier's thresholds.
type RouteStateParams struct {
	FastMAPeriod int
	SlowMAPeriod int
	RSIPeriod    int
	OverheatRSI  float64 // RSI above this is overheated
	OverheatExt  float64 // price extension above slow MA (fraction) considered overheated
}

// DefaultRouteStateParams mirrors the factor thresholds used elsewhere in
// the scorer (RSI 14, MA 5/20) for consistency across the package.
func DefaultRouteStateParams() RouteStateParams {
	return RouteStateParams{
		FastMAPeriod: 5,
		SlowMAPeriod: 20,
		RSIPeriod:    14,
		OverheatRSI:  80,
		OverheatExt:  0.10,
	}
}

// ClassifyRouteState derives the strategy-facing entry gate from an MA
// cross, RSI momentum, and overextension versus the slow MA (spec.md §4.2).
func ClassifyRouteState(closes []decimal.Decimal, p RouteStateParams) types.RouteState {
	fastMA, errF := indicator.SMA(closes, p.FastMAPeriod)
	slowMA, errS := indicator.SMA(closes, p.SlowMAPeriod)
	if errF != nil || errS != nil || len(fastMA) == 0 || len(slowMA) == 0 {
		return types.RouteNeutral
	}
	fast := fastMA[len(fastMA)-1]
	slow := slowMA[len(slowMA)-1]
	if fast == nil || slow == nil {
		return types.RouteNeutral
	}

	rsi, ok := lastRSI(closes, p.RSIPeriod)
	if !ok {
		return types.RouteNeutral
	}

	price := toFloat(closes[len(closes)-1])
	slowF := toFloat(*slow)
	extension := 0.0
	if slowF != 0 {
		extension = (price - slowF) / slowF
	}

	if rsi >= p.OverheatRSI || extension >= p.OverheatExt {
		return types.RouteOverheat
	}

	bullishCross := fast.GreaterThan(*slow)

	switch {
	case bullishCross && rsi >= 50 && rsi < p.OverheatRSI:
		return types.RouteAttack
	case bullishCross:
		return types.RouteArmed
	case !bullishCross && rsi <= 30:
		return types.RouteWait
	default:
		return types.RouteNeutral
	}
}
