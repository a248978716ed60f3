package scoring

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// RegimeType classifies the prevailing market character.
type RegimeType string

const (
	RegimeBull          RegimeType = "bull"
	RegimeBear          RegimeType = "bear"
	RegimeHighVol       RegimeType = "high_vol"
	RegimeLowVol        RegimeType = "low_vol"
	RegimeMeanReverting RegimeType = "mean_reverting"
	RegimeTrending      RegimeType = "trending"
	RegimeUnknown       RegimeType = "unknown"
)

const minRegimeBars = 70

// RegimeConfig holds the classifier's thresholds.
type RegimeConfig struct {
	TrendWindow      int
	VolatilityWindow int
	VolThreshold     float64
	TrendThreshold   float64
	MRThreshold      float64
}

// DefaultRegimeConfig returns the thresholds used absent overrides.
func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		TrendWindow:      50,
		VolatilityWindow: 20,
		VolThreshold:     0.25,
		TrendThreshold:   0.3,
		MRThreshold:      -0.1,
	}
}

// RegimeState is the detector's current classification.
type RegimeState struct {
	Regime     RegimeType
	Trend      float64
	Volatility float64
	MeanRevert float64
	UpdatedAt  time.Time
}

// RegimeDetector is a stateful wrapper around the deterministic regime
// classifier: it buffers closes per symbol and recomputes on each update,
// mirroring the teacher's stateful RegimeDetector shape (mutex-guarded
// current state + config) without its HMM machinery, which spec.md §4.2
// replaces with closed-form trend/vol/momentum thresholds.
type RegimeDetector struct {
	logger *zap.Logger
	config RegimeConfig

	mu      sync.RWMutex
	closes  map[types.Symbol][]decimal.Decimal
	current map[types.Symbol]*RegimeState
}

// NewRegimeDetector constructs a detector.
func NewRegimeDetector(logger *zap.Logger, config RegimeConfig) *RegimeDetector {
	return &RegimeDetector{
		logger:  logger,
		config:  config,
		closes:  make(map[types.Symbol][]decimal.Decimal),
		current: make(map[types.Symbol]*RegimeState),
	}
}

// AddClose feeds a new close for the symbol and recomputes its regime once
// at least minRegimeBars closes are buffered.
func (d *RegimeDetector) AddClose(sym types.Symbol, close decimal.Decimal, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := append(d.closes[sym], close)
	if len(buf) > minRegimeBars*4 {
		buf = buf[len(buf)-minRegimeBars*4:]
	}
	d.closes[sym] = buf

	if len(buf) < minRegimeBars {
		return
	}
	d.current[sym] = classifyRegime(buf, d.config, now)
}

// Current returns the last computed state for the symbol, or Unknown if
// insufficient bars have been observed.
func (d *RegimeDetector) Current(sym types.Symbol) RegimeState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if st, ok := d.current[sym]; ok {
		return *st
	}
	return RegimeState{Regime: RegimeUnknown}
}

// classifyRegime is the pure classification function: trend slope,
// annualized volatility, and lag-1 autocorrelation (mean reversion) over
// TrendWindow/VolatilityWindow trailing closes.
func classifyRegime(closes []decimal.Decimal, cfg RegimeConfig, now time.Time) *RegimeState {
	returns := toReturns(closes)

	trendWin := cfg.TrendWindow
	if trendWin > len(returns) {
		trendWin = len(returns)
	}
	volWin := cfg.VolatilityWindow
	if volWin > len(returns) {
		volWin = len(returns)
	}

	trend := trendStrength(returns[len(returns)-trendWin:])
	vol := stdDevFloat(returns[len(returns)-volWin:]) * sqrtAnnualize
	mr := lag1Autocorrelation(returns[len(returns)-trendWin:])

	regime := RegimeUnknown
	switch {
	case vol > cfg.VolThreshold:
		regime = RegimeHighVol
	case vol < cfg.VolThreshold/2:
		regime = RegimeLowVol
	case trend > cfg.TrendThreshold:
		regime = RegimeBull
	case trend < -cfg.TrendThreshold:
		regime = RegimeBear
	case mr < cfg.MRThreshold:
		regime = RegimeMeanReverting
	case abs(trend) > cfg.TrendThreshold/2:
		regime = RegimeTrending
	}

	return &RegimeState{Regime: regime, Trend: trend, Volatility: vol, MeanRevert: mr, UpdatedAt: now}
}

var sqrtAnnualize = math.Sqrt(252)

func toReturns(closes []decimal.Decimal) []float64 {
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := toFloat(closes[i-1])
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (toFloat(closes[i])-prev)/prev)
	}
	return out
}

func trendStrength(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range returns {
		sum += r
	}
	vol := stdDevFloat(returns)
	if vol == 0 {
		return 0
	}
	return clamp(sum/(vol*math.Sqrt(float64(len(returns)))), -1, 1)
}

func stdDevFloat(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance)
}

func lag1Autocorrelation(returns []float64) float64 {
	n := len(returns)
	if n < 3 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	var autocov, variance float64
	for i := 1; i < n; i++ {
		autocov += (returns[i] - mean) * (returns[i-1] - mean)
		variance += (returns[i] - mean) * (returns[i] - mean)
	}
	if variance == 0 {
		return 0
	}
	return autocov / variance
}
