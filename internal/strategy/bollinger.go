package strategy

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/indicator"
	"github.com/tyeom/zeroquant-go/pkg/types"
)

// BollingerConfig configures the Bollinger mean-reversion strategy.
type BollingerConfig struct {
	Period             int     `json:"period"`
	StdMultiplier      float64 `json:"stdMultiplier"`
	RSIPeriod          int     `json:"rsiPeriod"`
	RSIOversold        float64 `json:"rsiOversold"`
	RSIOverbought      float64 `json:"rsiOverbought"`
	UseRSIConfirmation bool    `json:"useRsiConfirmation"`
	StopLossPct        float64 `json:"stopLossPct"`
	TakeProfitPct      float64 `json:"takeProfitPct"`
	MinGlobalScore     float64 `json:"minGlobalScore"`
}

// DefaultBollingerConfig matches the reference strategy's defaults.
func DefaultBollingerConfig() BollingerConfig {
	return BollingerConfig{
		Period:             20,
		StdMultiplier:      2.0,
		RSIPeriod:          14,
		RSIOversold:        30,
		RSIOverbought:      70,
		UseRSIConfirmation: true,
		StopLossPct:        2.0,
		TakeProfitPct:      4.0,
		MinGlobalScore:     50,
	}
}

type bollingerSymbolState struct {
	closes     []decimal.Decimal
	inPosition bool
	side       types.OrderSide
}

// BollingerStrategy buys at the lower band (optionally confirmed by an
// oversold RSI) and exits at the middle band, per spec.md §4.3.
type BollingerStrategy struct {
	BaseStrategy
	config BollingerConfig

	mu    sync.Mutex
	state map[types.Symbol]*bollingerSymbolState
}

// NewBollingerStrategy constructs the strategy with default configuration;
// call Initialize to override it.
func NewBollingerStrategy(logger *zap.Logger) *BollingerStrategy {
	return &BollingerStrategy{
		BaseStrategy: newBaseStrategy(logger.Named("strategy.bollinger")),
		config:       DefaultBollingerConfig(),
		state:        make(map[types.Symbol]*bollingerSymbolState),
	}
}

func (s *BollingerStrategy) Name() string { return "bollinger_mean_reversion" }
func (s *BollingerStrategy) Version() string { return "1.0.0" }
func (s *BollingerStrategy) Description() string {
	return "Buys at the lower Bollinger band with optional RSI oversold confirmation, exits at the middle band"
}

// Initialize parses the strategy's JSON config over the defaults.
func (s *BollingerStrategy) Initialize(config json.RawMessage) error {
	s.config = DefaultBollingerConfig()
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.config); err != nil {
			return fmt.Errorf("%w: bollinger config: %v", types.ErrInvalidParameter, err)
		}
	}
	if s.config.Period <= 1 {
		return fmt.Errorf("%w: bollinger period must be > 1", types.ErrInvalidParameter)
	}
	s.state = make(map[types.Symbol]*bollingerSymbolState)
	return nil
}

// OnMarketData processes one kline per call; non-kline events are ignored.
func (s *BollingerStrategy) OnMarketData(md types.MarketData) ([]types.Signal, error) {
	if md.Kind != types.MarketDataKindKline || md.KlineData == nil {
		return nil, nil
	}
	k := *md.KlineData

	s.mu.Lock()
	st, ok := s.state[k.Symbol]
	if !ok {
		st = &bollingerSymbolState{}
		s.state[k.Symbol] = st
	}
	st.closes = append(st.closes, k.Close)
	maxLen := s.config.Period * 6
	if len(st.closes) > maxLen {
		st.closes = st.closes[len(st.closes)-maxLen:]
	}
	closes := append([]decimal.Decimal(nil), st.closes...)
	inPosition, side := st.inPosition, st.side
	s.mu.Unlock()

	if len(closes) < s.config.Period {
		return nil, nil
	}

	bands, err := indicator.BollingerBands(closes, indicator.BollingerParams{
		Period: s.config.Period,
		K:      decimal.NewFromFloat(s.config.StdMultiplier),
	})
	if err != nil {
		return nil, nil
	}
	last := bands[len(bands)-1]
	if last.Upper == nil || last.Middle == nil || last.Lower == nil {
		return nil, nil
	}
	current := k.Close

	if inPosition {
		return s.checkExit(k, current, *last.Middle, side), nil
	}
	return s.checkEntry(k, current, *last.Upper, *last.Lower, closes), nil
}

func (s *BollingerStrategy) checkExit(k types.Kline, current, middle decimal.Decimal, side types.OrderSide) []types.Signal {
	crossed := false
	exitSide := types.OrderSideSell
	if side == types.OrderSideBuy && current.GreaterThanOrEqual(middle) {
		crossed = true
		exitSide = types.OrderSideSell
	} else if side == types.OrderSideSell && current.LessThanOrEqual(middle) {
		crossed = true
		exitSide = types.OrderSideBuy
	}
	if !crossed {
		return nil
	}

	s.mu.Lock()
	if st, ok := s.state[k.Symbol]; ok {
		st.inPosition = false
	}
	s.mu.Unlock()

	return []types.Signal{{
		StrategyID: s.Name(),
		Symbol:     k.Symbol,
		Side:       exitSide,
		SignalType: types.SignalTypeExit,
		Strength:   1,
		CreatedAt:  k.CloseTime,
	}}
}

func (s *BollingerStrategy) checkEntry(k types.Kline, current, upper, lower decimal.Decimal, closes []decimal.Decimal) []types.Signal {
	sc := s.Context().Get(k.Symbol)

	var rsiVal float64
	haveRSI := false
	if s.config.UseRSIConfirmation {
		if series, err := indicator.RSI(closes, s.config.RSIPeriod); err == nil && len(series) > 0 && series[len(series)-1] != nil {
			rsiVal, _ = (*series[len(series)-1]).Float64()
			haveRSI = true
		}
	}

	switch {
	case current.LessThanOrEqual(lower):
		if s.config.UseRSIConfirmation && (!haveRSI || rsiVal >= s.config.RSIOversold) {
			return nil
		}
		if !admitsEntry(sc, s.config.MinGlobalScore) {
			return nil
		}
		s.markEntered(k.Symbol, types.OrderSideBuy)
		sl := current.Mul(decimal.NewFromFloat(1 - s.config.StopLossPct/100))
		tp := current.Mul(decimal.NewFromFloat(1 + s.config.TakeProfitPct/100))
		return []types.Signal{{
			StrategyID: s.Name(), Symbol: k.Symbol, Side: types.OrderSideBuy,
			SignalType: types.SignalTypeEntry, Strength: 0.7,
			EntryPrice: current, StopLoss: sl, TakeProfit: tp, CreatedAt: k.CloseTime,
		}}

	case current.GreaterThanOrEqual(upper):
		if s.config.UseRSIConfirmation && (!haveRSI || rsiVal <= s.config.RSIOverbought) {
			return nil
		}
		if !admitsEntry(sc, s.config.MinGlobalScore) {
			return nil
		}
		s.markEntered(k.Symbol, types.OrderSideSell)
		sl := current.Mul(decimal.NewFromFloat(1 + s.config.StopLossPct/100))
		tp := current.Mul(decimal.NewFromFloat(1 - s.config.TakeProfitPct/100))
		return []types.Signal{{
			StrategyID: s.Name(), Symbol: k.Symbol, Side: types.OrderSideSell,
			SignalType: types.SignalTypeEntry, Strength: 0.7,
			EntryPrice: current, StopLoss: sl, TakeProfit: tp, CreatedAt: k.CloseTime,
		}}
	}
	return nil
}

func (s *BollingerStrategy) markEntered(sym types.Symbol, side types.OrderSide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[sym]
	if !ok {
		st = &bollingerSymbolState{}
		s.state[sym] = st
	}
	st.inPosition = true
	st.side = side
}

// GetState reports open-position tracking per symbol for diagnostics.
func (s *BollingerStrategy) GetState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := make(map[string]string, len(s.state))
	for sym, st := range s.state {
		if st.inPosition {
			open[sym.String()] = string(st.side)
		}
	}
	return map[string]any{
		"trackedSymbols": len(s.state),
		"openPositions":  open,
		"asOf":           time.Now().Format(time.RFC3339),
	}
}
