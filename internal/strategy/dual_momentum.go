package strategy

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/rebalance"
	"github.com/tyeom/zeroquant-go/pkg/types"
)

// DualAssetClass groups an instrument for relative-momentum comparison.
type DualAssetClass int

const (
	DualAssetStock DualAssetClass = iota
	DualAssetUsBond
	DualAssetSafe
)

// DualMomentumConfig configures the KR-stock-vs-US-bond dual momentum
// allocator. Defaults mirror KODEX 200 / KODEX 코스닥150 against TLT/IEF
// with BIL as the safe asset.
type DualMomentumConfig struct {
	TotalAmount         float64        `json:"totalAmount"`
	MomentumPeriodBars  int            `json:"momentumPeriodBars"`
	UseAbsoluteMomentum bool           `json:"useAbsoluteMomentum"`
	MinGlobalScore      float64        `json:"minGlobalScore"`
	KrStocks            []types.Symbol `json:"krStocks"`
	UsBonds             []types.Symbol `json:"usBonds"`
	SafeAsset           types.Symbol   `json:"safeAsset"`
}

// DefaultDualMomentumConfig mirrors the reference strategy's defaults: a
// 63-trading-day (roughly 3 month) momentum lookback and monthly rebalance.
func DefaultDualMomentumConfig() DualMomentumConfig {
	return DualMomentumConfig{
		TotalAmount:         10_000_000,
		MomentumPeriodBars:  63,
		UseAbsoluteMomentum: true,
		MinGlobalScore:      60,
		KrStocks: []types.Symbol{
			{Base: "069500", Quote: "KRW", MarketType: types.MarketKrStock},
			{Base: "229200", Quote: "KRW", MarketType: types.MarketKrStock},
		},
		UsBonds: []types.Symbol{
			{Base: "TLT", Quote: "USD", MarketType: types.MarketUsStock},
			{Base: "IEF", Quote: "USD", MarketType: types.MarketUsStock},
		},
		SafeAsset: types.Symbol{Base: "BIL", Quote: "USD", MarketType: types.MarketUsStock},
	}
}

type dualAssetSeries struct {
	class      DualAssetClass
	closes     []decimal.Decimal
	momentum   decimal.Decimal
	holdings   decimal.Decimal
	lastPrice  decimal.Decimal
}

// DualMomentumStrategy picks the stronger of KR stocks vs US bonds by
// relative momentum, falls back to a safe asset on negative absolute
// momentum, and rebalances monthly (spec.md §4.3).
type DualMomentumStrategy struct {
	BaseStrategy
	config DualMomentumConfig

	mu               sync.Mutex
	assets           map[types.Symbol]*dualAssetSeries
	lastRebalanceMon time.Month
	lastRebalanceYr  int
}

func NewDualMomentumStrategy(logger *zap.Logger) *DualMomentumStrategy {
	return &DualMomentumStrategy{
		BaseStrategy: newBaseStrategy(logger.Named("strategy.dual_momentum")),
		config:       DefaultDualMomentumConfig(),
		assets:       make(map[types.Symbol]*dualAssetSeries),
	}
}

func (s *DualMomentumStrategy) Name() string        { return "dual_momentum" }
func (s *DualMomentumStrategy) Version() string      { return "1.0.0" }
func (s *DualMomentumStrategy) Description() string {
	return "Monthly relative/absolute momentum allocator between KR stocks and US bonds"
}

func (s *DualMomentumStrategy) Initialize(config json.RawMessage) error {
	s.config = DefaultDualMomentumConfig()
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.config); err != nil {
			return fmt.Errorf("%w: dual_momentum config: %v", types.ErrInvalidParameter, err)
		}
	}
	s.assets = make(map[types.Symbol]*dualAssetSeries)
	for _, sym := range s.config.KrStocks {
		s.assets[sym] = &dualAssetSeries{class: DualAssetStock}
	}
	for _, sym := range s.config.UsBonds {
		s.assets[sym] = &dualAssetSeries{class: DualAssetUsBond}
	}
	s.assets[s.config.SafeAsset] = &dualAssetSeries{class: DualAssetSafe}
	return nil
}

func (s *DualMomentumStrategy) OnMarketData(md types.MarketData) ([]types.Signal, error) {
	if md.Kind != types.MarketDataKindKline || md.KlineData == nil {
		return nil, nil
	}
	k := *md.KlineData

	s.mu.Lock()
	asset, tracked := s.assets[k.Symbol]
	if !tracked {
		s.mu.Unlock()
		return nil, nil
	}
	asset.lastPrice = k.Close
	asset.closes = append(asset.closes, k.Close)
	if len(asset.closes) > s.config.MomentumPeriodBars*2 {
		asset.closes = asset.closes[len(asset.closes)-s.config.MomentumPeriodBars*2:]
	}
	due := s.isRebalanceDue(k.CloseTime)
	s.mu.Unlock()

	if !due {
		return nil, nil
	}
	return s.rebalance(k.CloseTime), nil
}

func (s *DualMomentumStrategy) isRebalanceDue(ts time.Time) bool {
	if ts.Year() == s.lastRebalanceYr && ts.Month() == s.lastRebalanceMon {
		return false
	}
	return true
}

func (s *DualMomentumStrategy) classMomentum(class DualAssetClass) decimal.Decimal {
	sum := decimal.Zero
	n := 0
	for _, a := range s.assets {
		if a.class != class {
			continue
		}
		n++
		if len(a.closes) > s.config.MomentumPeriodBars {
			current := a.closes[len(a.closes)-1]
			past := a.closes[len(a.closes)-1-s.config.MomentumPeriodBars]
			if past.IsPositive() {
				a.momentum = current.Sub(past).Div(past)
			}
		}
		sum = sum.Add(a.momentum)
	}
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

func (s *DualMomentumStrategy) bestInClass(class DualAssetClass) (types.Symbol, *dualAssetSeries, bool) {
	var best types.Symbol
	var bestAsset *dualAssetSeries
	for sym, a := range s.assets {
		if a.class != class {
			continue
		}
		if bestAsset == nil || a.momentum.GreaterThan(bestAsset.momentum) {
			best, bestAsset = sym, a
		}
	}
	return best, bestAsset, bestAsset != nil
}

// rebalance recomputes momentum, selects an asset class, and emits the
// signals needed to move the portfolio fully into the selected asset.
func (s *DualMomentumStrategy) rebalance(ts time.Time) []types.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	krMomentum := s.classMomentum(DualAssetStock)
	usMomentum := s.classMomentum(DualAssetUsBond)

	selectedClass := DualAssetUsBond
	if krMomentum.GreaterThan(usMomentum) {
		selectedClass = DualAssetStock
	}
	selectedMomentum := usMomentum
	if selectedClass == DualAssetStock {
		selectedMomentum = krMomentum
	}

	if s.config.UseAbsoluteMomentum && selectedMomentum.IsNegative() {
		selectedClass = DualAssetSafe
	}

	var targetSymbol types.Symbol
	if selectedClass == DualAssetSafe {
		targetSymbol = s.config.SafeAsset
	} else {
		sym, _, ok := s.bestInClass(selectedClass)
		if !ok {
			return nil
		}
		targetSymbol = sym
	}

	sc := s.Context().Get(targetSymbol)
	totalEquity := decimal.NewFromFloat(s.config.TotalAmount)

	positions := make([]rebalance.CurrentPosition, 0, len(s.assets))
	for sym, a := range s.assets {
		// lastPrice alone is enough: Compute needs a price to size a fresh
		// entry even into a symbol held at zero quantity today.
		if a.lastPrice.IsPositive() {
			positions = append(positions, rebalance.CurrentPosition{Symbol: sym, Quantity: a.holdings, Price: a.lastPrice})
		}
	}
	targetPrice := s.assets[targetSymbol].lastPrice
	if !targetPrice.IsPositive() {
		return nil
	}
	targets := []types.TargetAllocation{{Symbol: targetSymbol, TargetWeight: 1.0}}

	orders, err := rebalance.Compute(positions, targets, totalEquity, rebalance.DefaultConfig())
	if err != nil {
		return nil
	}

	s.lastRebalanceMon, s.lastRebalanceYr = ts.Month(), ts.Year()

	signals := make([]types.Signal, 0, len(orders))
	for _, o := range orders {
		if o.Side == types.OrderSideBuy {
			if !admitsEntry(sc, s.config.MinGlobalScore) {
				continue
			}
			signals = append(signals, types.Signal{
				StrategyID: s.Name(), Symbol: o.Symbol, Side: types.OrderSideBuy,
				SignalType: types.SignalTypeEntry, Strength: 0.5,
				Metadata:  map[string]any{"reason": "rebalance", "quantity": o.Quantity.String()},
				CreatedAt: ts,
			})
		} else {
			signals = append(signals, types.Signal{
				StrategyID: s.Name(), Symbol: o.Symbol, Side: types.OrderSideSell,
				SignalType: types.SignalTypeExit, Strength: 0.5,
				Metadata:  map[string]any{"reason": "rebalance", "quantity": o.Quantity.String()},
				CreatedAt: ts,
			})
		}
		if asset, ok := s.assets[o.Symbol]; ok {
			if o.Side == types.OrderSideBuy {
				asset.holdings = asset.holdings.Add(o.Quantity)
			} else {
				asset.holdings = asset.holdings.Sub(o.Quantity)
			}
		}
	}
	return signals
}

func (s *DualMomentumStrategy) GetState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	holdings := make(map[string]string, len(s.assets))
	for sym, a := range s.assets {
		if a.holdings.IsPositive() {
			holdings[sym.String()] = a.holdings.String()
		}
	}
	return map[string]any{
		"holdings":         holdings,
		"lastRebalanceMon": int(s.lastRebalanceMon),
	}
}
