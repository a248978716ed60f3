package strategy

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// StockGuganConfig configures the price-band ("gugan") strategy: the
// trailing high-low range over a lookback is divided into equal zones, and
// zone transitions drive sizing (spec.md §4.3).
type StockGuganConfig struct {
	DivNum           int     `json:"divNum"`
	TargetPeriod     int     `json:"targetPeriodBars"`
	UseMAFilter      bool    `json:"useMaFilter"`
	BuyMAPeriod      int     `json:"buyMaPeriod"`
	SellMAPeriod     int     `json:"sellMaPeriod"`
	InitialBuyRatio  float64 `json:"initialBuyRatio"`
	StopLossPct      float64 `json:"stopLossPct"`
	MinGlobalScore   float64 `json:"minGlobalScore"`
}

func DefaultStockGuganConfig() StockGuganConfig {
	return StockGuganConfig{
		DivNum:          15,
		TargetPeriod:    20,
		UseMAFilter:     true,
		BuyMAPeriod:     20,
		SellMAPeriod:    5,
		InitialBuyRatio: 1.0,
		MinGlobalScore:  0,
	}
}

type guganBar struct {
	high, low, close decimal.Decimal
}

// StockGuganStrategy divides the trailing high-low range into zones and
// trades zone transitions: a zone-up buys (filtered by MA20), a zone-down
// sells (filtered by MA5), sized proportional to the zone delta.
type StockGuganStrategy struct {
	BaseStrategy
	config StockGuganConfig

	mu          sync.Mutex
	history     []guganBar
	zoneLow     decimal.Decimal
	zoneGap     decimal.Decimal
	haveZones   bool
	started     bool
	currentZone int
}

func NewStockGuganStrategy(logger *zap.Logger) *StockGuganStrategy {
	return &StockGuganStrategy{
		BaseStrategy: newBaseStrategy(logger.Named("strategy.stock_gugan")),
		config:       DefaultStockGuganConfig(),
	}
}

func (s *StockGuganStrategy) Name() string   { return "stock_gugan" }
func (s *StockGuganStrategy) Version() string { return "1.0.0" }
func (s *StockGuganStrategy) Description() string {
	return "Trades transitions across price zones carved from the trailing high-low range, MA-filtered"
}

func (s *StockGuganStrategy) Initialize(config json.RawMessage) error {
	s.config = DefaultStockGuganConfig()
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.config); err != nil {
			return fmt.Errorf("%w: stock_gugan config: %v", types.ErrInvalidParameter, err)
		}
	}
	if s.config.DivNum <= 0 {
		return fmt.Errorf("%w: stock_gugan divNum must be > 0", types.ErrInvalidParameter)
	}
	s.history = nil
	s.haveZones = false
	s.started = false
	return nil
}

func (s *StockGuganStrategy) OnMarketData(md types.MarketData) ([]types.Signal, error) {
	if md.Kind != types.MarketDataKindKline || md.KlineData == nil {
		return nil, nil
	}
	k := *md.KlineData

	s.mu.Lock()
	s.history = append([]guganBar{{high: k.High, low: k.Low, close: k.Close}}, s.history...)
	keep := s.config.TargetPeriod + 10
	if len(s.history) > keep {
		s.history = s.history[:keep]
	}
	s.recalculateZones()
	zone, ok := s.currentZoneFor(k.Close)
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return s.onZone(k, zone), nil
}

func (s *StockGuganStrategy) recalculateZones() {
	if len(s.history) < s.config.TargetPeriod {
		return
	}
	high := s.history[0].high
	low := s.history[0].low
	for _, bar := range s.history[:s.config.TargetPeriod] {
		if bar.high.GreaterThan(high) {
			high = bar.high
		}
		if bar.low.LessThan(low) {
			low = bar.low
		}
	}
	if high.LessThanOrEqual(low) {
		return
	}
	s.zoneLow = low
	s.zoneGap = high.Sub(low).Div(decimal.NewFromInt(int64(s.config.DivNum)))
	s.haveZones = true
}

func (s *StockGuganStrategy) currentZoneFor(price decimal.Decimal) (int, bool) {
	if !s.haveZones || !s.zoneGap.IsPositive() {
		return 0, false
	}
	for step := 1; step <= s.config.DivNum; step++ {
		threshold := s.zoneLow.Add(s.zoneGap.Mul(decimal.NewFromInt(int64(step))))
		if price.LessThan(threshold) {
			return step, true
		}
	}
	return s.config.DivNum, true
}

func (s *StockGuganStrategy) ma(period int) (decimal.Decimal, bool) {
	if len(s.history) < period {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, bar := range s.history[:period] {
		sum = sum.Add(bar.close)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), true
}

func (s *StockGuganStrategy) onZone(k types.Kline, zone int) []types.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		s.currentZone = zone
		sc := s.Context().Get(k.Symbol)
		if !admitsEntry(sc, s.config.MinGlobalScore) {
			return nil
		}
		strength := s.config.InitialBuyRatio / float64(s.config.DivNum)
		return []types.Signal{{
			StrategyID: s.Name(), Symbol: k.Symbol, Side: types.OrderSideBuy,
			SignalType: types.SignalTypeEntry, Strength: strength, EntryPrice: k.Close,
			Metadata:  map[string]any{"zone": zone, "action": "initial"},
			CreatedAt: k.CloseTime,
		}}
	}

	prevZone := s.currentZone
	if zone == prevZone {
		return nil
	}
	zoneChange := zone - prevZone
	s.currentZone = zone

	ma20, haveMA20 := s.ma(s.config.BuyMAPeriod)
	ma5, haveMA5 := s.ma(s.config.SellMAPeriod)
	var prevClose decimal.Decimal
	havePrevClose := false
	if len(s.history) > 0 {
		prevClose = s.history[0].close
		havePrevClose = true
	}

	strength := decimal.NewFromInt(int64(abs(zoneChange))).Div(decimal.NewFromInt(int64(s.config.DivNum)))
	strengthF, _ := strength.Float64()

	if zoneChange > 0 {
		maOK := true
		if s.config.UseMAFilter && haveMA20 && havePrevClose {
			maOK = prevClose.GreaterThan(ma20)
		}
		if !maOK {
			return nil
		}
		sc := s.Context().Get(k.Symbol)
		if !admitsEntry(sc, s.config.MinGlobalScore) {
			return nil
		}
		return []types.Signal{{
			StrategyID: s.Name(), Symbol: k.Symbol, Side: types.OrderSideBuy,
			SignalType: types.SignalTypeEntry, Strength: strengthF, EntryPrice: k.Close,
			Metadata: map[string]any{"zone": zone, "prevZone": prevZone, "zoneChange": zoneChange, "action": "zone_up_buy"},
			CreatedAt: k.CloseTime,
		}}
	}

	maOK := true
	if s.config.UseMAFilter && haveMA5 && havePrevClose {
		maOK = prevClose.LessThan(ma5)
	}
	if !maOK {
		return nil
	}
	return []types.Signal{{
		StrategyID: s.Name(), Symbol: k.Symbol, Side: types.OrderSideSell,
		SignalType: types.SignalTypeExit, Strength: strengthF, EntryPrice: k.Close,
		Metadata: map[string]any{"zone": zone, "prevZone": prevZone, "zoneChange": zoneChange, "action": "zone_down_sell"},
		CreatedAt: k.CloseTime,
	}}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (s *StockGuganStrategy) GetState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"currentZone": s.currentZone,
		"haveZones":   s.haveZones,
		"started":     s.started,
	}
}
