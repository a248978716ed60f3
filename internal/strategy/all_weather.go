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

// AllWeatherAssetClass groups an asset for seasonality tilts.
type AllWeatherAssetClass int

const (
	AllWeatherStock AllWeatherAssetClass = iota
	AllWeatherBond
	AllWeatherGold
	AllWeatherCommodity
	AllWeatherCash
)

// AllWeatherAsset is one fixed-allocation holding of the portfolio.
type AllWeatherAsset struct {
	Symbol     types.Symbol          `json:"symbol"`
	Class      AllWeatherAssetClass  `json:"assetClass"`
	BaseWeight float64               `json:"baseWeightPct"`
}

// AllWeatherConfig configures a Dalio-style fixed-allocation portfolio with
// a May-October defensive seasonality tilt and an MA-conditioned risk-asset
// scale-down (spec.md §4.3).
type AllWeatherConfig struct {
	TotalAmount       float64           `json:"totalAmount"`
	UseSeasonality    bool              `json:"useSeasonality"`
	RebalanceDays     int               `json:"rebalanceDays"`
	MA50Period        int               `json:"ma50Period"`
	MA150Period       int               `json:"ma150Period"`
	Assets            []AllWeatherAsset `json:"assets"`
}

// DefaultAllWeatherConfig is the US ETF sleeve: SPY/IYK stocks, TLT/IEF
// bonds, GLD gold, PDBC commodities.
func DefaultAllWeatherConfig() AllWeatherConfig {
	usd := func(base string) types.Symbol { return types.Symbol{Base: base, Quote: "USD", MarketType: types.MarketUsStock} }
	return AllWeatherConfig{
		TotalAmount:    10_000_000,
		UseSeasonality: true,
		RebalanceDays:  30,
		MA50Period:     50,
		MA150Period:    150,
		Assets: []AllWeatherAsset{
			{Symbol: usd("SPY"), Class: AllWeatherStock, BaseWeight: 20},
			{Symbol: usd("TLT"), Class: AllWeatherBond, BaseWeight: 27},
			{Symbol: usd("IEF"), Class: AllWeatherBond, BaseWeight: 15},
			{Symbol: usd("GLD"), Class: AllWeatherGold, BaseWeight: 8},
			{Symbol: usd("PDBC"), Class: AllWeatherCommodity, BaseWeight: 8},
			{Symbol: usd("IYK"), Class: AllWeatherStock, BaseWeight: 22},
		},
	}
}

type allWeatherAssetState struct {
	closes    []decimal.Decimal
	holdings  decimal.Decimal
	lastPrice decimal.Decimal
}

// AllWeatherStrategy holds a fixed multi-asset allocation, tilted
// defensively during May-October and scaled down for risk assets trading
// below their 50/150-day moving averages.
type AllWeatherStrategy struct {
	BaseStrategy
	config AllWeatherConfig

	mu             sync.Mutex
	assets         map[types.Symbol]*allWeatherAssetState
	classOf        map[types.Symbol]AllWeatherAssetClass
	baseWeightOf   map[types.Symbol]float64
	lastRebalance  time.Time
}

func NewAllWeatherStrategy(logger *zap.Logger) *AllWeatherStrategy {
	return &AllWeatherStrategy{
		BaseStrategy: newBaseStrategy(logger.Named("strategy.all_weather")),
		config:       DefaultAllWeatherConfig(),
	}
}

func (s *AllWeatherStrategy) Name() string   { return "all_weather" }
func (s *AllWeatherStrategy) Version() string { return "1.0.0" }
func (s *AllWeatherStrategy) Description() string {
	return "Fixed-allocation all-weather portfolio with seasonal and moving-average weight tilts"
}

func (s *AllWeatherStrategy) Initialize(config json.RawMessage) error {
	s.config = DefaultAllWeatherConfig()
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.config); err != nil {
			return fmt.Errorf("%w: all_weather config: %v", types.ErrInvalidParameter, err)
		}
	}
	s.assets = make(map[types.Symbol]*allWeatherAssetState, len(s.config.Assets))
	s.classOf = make(map[types.Symbol]AllWeatherAssetClass, len(s.config.Assets))
	s.baseWeightOf = make(map[types.Symbol]float64, len(s.config.Assets))
	for _, a := range s.config.Assets {
		s.assets[a.Symbol] = &allWeatherAssetState{}
		s.classOf[a.Symbol] = a.Class
		s.baseWeightOf[a.Symbol] = a.BaseWeight
	}
	s.lastRebalance = time.Time{}
	return nil
}

func isHellPeriod(t time.Time) bool {
	m := t.Month()
	return m >= time.May && m <= time.October
}

func (s *AllWeatherStrategy) maAdjustment(a *allWeatherAssetState) decimal.Decimal {
	adj := decimal.NewFromInt(1)
	if len(a.closes) >= s.config.MA150Period {
		ma := average(a.closes[len(a.closes)-s.config.MA150Period:])
		if a.lastPrice.LessThan(ma) {
			adj = adj.Mul(decimal.NewFromFloat(0.5))
		}
	}
	if len(a.closes) >= s.config.MA50Period {
		ma := average(a.closes[len(a.closes)-s.config.MA50Period:])
		if a.lastPrice.LessThan(ma) {
			adj = adj.Mul(decimal.NewFromFloat(0.75))
		}
	}
	return adj
}

func average(xs []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, x := range xs {
		sum = sum.Add(x)
	}
	return sum.Div(decimal.NewFromInt(int64(len(xs))))
}

func (s *AllWeatherStrategy) targetWeights(now time.Time) map[types.Symbol]float64 {
	hell := s.config.UseSeasonality && isHellPeriod(now)
	raw := make(map[types.Symbol]float64, len(s.assets))
	total := 0.0
	for sym, a := range s.assets {
		target := s.baseWeightOf[sym]
		if hell {
			switch s.classOf[sym] {
			case AllWeatherStock:
				target *= 0.7
			case AllWeatherBond:
				target *= 1.2
			}
		}
		if a.lastPrice.IsPositive() {
			adj, _ := s.maAdjustment(a).Float64()
			target *= adj
		}
		raw[sym] = target
		total += target
	}
	if total <= 0 {
		return raw
	}
	for sym := range raw {
		raw[sym] = raw[sym] / total
	}
	return raw
}

func (s *AllWeatherStrategy) OnMarketData(md types.MarketData) ([]types.Signal, error) {
	if md.Kind != types.MarketDataKindKline || md.KlineData == nil {
		return nil, nil
	}
	k := *md.KlineData

	s.mu.Lock()
	a, tracked := s.assets[k.Symbol]
	if !tracked {
		s.mu.Unlock()
		return nil, nil
	}
	a.lastPrice = k.Close
	a.closes = append(a.closes, k.Close)
	maxLen := s.config.MA150Period * 2
	if maxLen > 0 && len(a.closes) > maxLen {
		a.closes = a.closes[len(a.closes)-maxLen:]
	}
	due := s.lastRebalance.IsZero() || k.CloseTime.Sub(s.lastRebalance) >= time.Duration(s.config.RebalanceDays)*24*time.Hour
	s.mu.Unlock()

	if !due {
		return nil, nil
	}
	return s.rebalance(k.CloseTime), nil
}

func (s *AllWeatherStrategy) rebalance(ts time.Time) []types.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	weights := s.targetWeights(ts)
	targets := make([]types.TargetAllocation, 0, len(weights))
	for sym, w := range weights {
		targets = append(targets, types.TargetAllocation{Symbol: sym, TargetWeight: w})
	}

	positions := make([]rebalance.CurrentPosition, 0, len(s.assets))
	for sym, a := range s.assets {
		// lastPrice alone is enough: Compute needs a price to size a fresh
		// entry even into a symbol held at zero quantity today.
		if a.lastPrice.IsPositive() {
			positions = append(positions, rebalance.CurrentPosition{Symbol: sym, Quantity: a.holdings, Price: a.lastPrice})
		}
	}

	orders, err := rebalance.Compute(positions, targets, decimal.NewFromFloat(s.config.TotalAmount), rebalance.DefaultConfig())
	if err != nil {
		return nil
	}
	s.lastRebalance = ts

	signals := make([]types.Signal, 0, len(orders))
	for _, o := range orders {
		sc := s.Context().Get(o.Symbol)
		if o.Side == types.OrderSideBuy {
			if !admitsEntry(sc, 0) {
				continue
			}
			signals = append(signals, types.Signal{
				StrategyID: s.Name(), Symbol: o.Symbol, Side: types.OrderSideBuy,
				SignalType: types.SignalTypeEntry, Strength: 0.5,
				Metadata:  map[string]any{"reason": "all_weather_rebalance", "quantity": o.Quantity.String()},
				CreatedAt: ts,
			})
		} else {
			signals = append(signals, types.Signal{
				StrategyID: s.Name(), Symbol: o.Symbol, Side: types.OrderSideSell,
				SignalType: types.SignalTypeExit, Strength: 0.5,
				Metadata:  map[string]any{"reason": "all_weather_rebalance", "quantity": o.Quantity.String()},
				CreatedAt: ts,
			})
		}
		if a, ok := s.assets[o.Symbol]; ok {
			if o.Side == types.OrderSideBuy {
				a.holdings = a.holdings.Add(o.Quantity)
			} else {
				a.holdings = a.holdings.Sub(o.Quantity)
			}
		}
	}
	return signals
}

func (s *AllWeatherStrategy) GetState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"hellPeriod":    isHellPeriod(time.Now()),
		"lastRebalance": s.lastRebalance,
	}
}
