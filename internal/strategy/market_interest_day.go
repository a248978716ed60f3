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

// MarketInterestDayConfig configures the intraday volume-surge momentum
// strategy (spec.md §4.3): entry on a volume surge plus consecutive up-bars
// below an RSI overheat ceiling, exit by trailing stop, take-profit, or a
// maximum hold timer.
type MarketInterestDayConfig struct {
	TradeAmount          float64 `json:"tradeAmount"`
	VolumeMultiplier     float64 `json:"volumeMultiplier"`
	VolumePeriod         int     `json:"volumePeriodBars"`
	ConsecutiveUpBars    int     `json:"consecutiveUpBars"`
	TrailingStopPct      float64 `json:"trailingStopPct"`
	TakeProfitPct        float64 `json:"takeProfitPct"`
	StopLossPct          float64 `json:"stopLossPct"`
	MaxHoldMinutes       int     `json:"maxHoldMinutes"`
	RSIOverbought        float64 `json:"rsiOverbought"`
	RSIPeriod            int     `json:"rsiPeriod"`
	MinGlobalScore       float64 `json:"minGlobalScore"`
}

func DefaultMarketInterestDayConfig() MarketInterestDayConfig {
	return MarketInterestDayConfig{
		TradeAmount:       1_000_000,
		VolumeMultiplier:  2.0,
		VolumePeriod:      20,
		ConsecutiveUpBars: 3,
		TrailingStopPct:   1.5,
		TakeProfitPct:     3,
		StopLossPct:       2,
		MaxHoldMinutes:    120,
		RSIOverbought:     80,
		RSIPeriod:         14,
		MinGlobalScore:    0,
	}
}

type interestDayBar struct {
	close, volume decimal.Decimal
	closeTime     time.Time
}

type interestDayPosition struct {
	side      types.OrderSide
	entryTime time.Time
	trail     *types.TrailingStopState
	takeProfit decimal.Decimal
	stopLoss   decimal.Decimal
}

// MarketInterestDayStrategy is a single-symbol intraday momentum strategy:
// it enters on a volume surge with consecutive up-bars (RSI-gated) and
// exits on trailing stop, take-profit, stop-loss, or a hold-time cap.
type MarketInterestDayStrategy struct {
	BaseStrategy
	config MarketInterestDayConfig

	mu       sync.Mutex
	bars     []interestDayBar
	closes   []decimal.Decimal
	highs    []decimal.Decimal
	lows     []decimal.Decimal
	position map[types.Symbol]*interestDayPosition
}

func NewMarketInterestDayStrategy(logger *zap.Logger) *MarketInterestDayStrategy {
	return &MarketInterestDayStrategy{
		BaseStrategy: newBaseStrategy(logger.Named("strategy.market_interest_day")),
		config:       DefaultMarketInterestDayConfig(),
		position:     make(map[types.Symbol]*interestDayPosition),
	}
}

func (s *MarketInterestDayStrategy) Name() string   { return "market_interest_day" }
func (s *MarketInterestDayStrategy) Version() string { return "1.0.0" }
func (s *MarketInterestDayStrategy) Description() string {
	return "Intraday volume-surge momentum entries with trailing-stop, take-profit, and max-hold exits"
}

func (s *MarketInterestDayStrategy) Initialize(config json.RawMessage) error {
	s.config = DefaultMarketInterestDayConfig()
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.config); err != nil {
			return fmt.Errorf("%w: market_interest_day config: %v", types.ErrInvalidParameter, err)
		}
	}
	s.bars = nil
	s.closes = nil
	s.position = make(map[types.Symbol]*interestDayPosition)
	return nil
}

func (s *MarketInterestDayStrategy) OnMarketData(md types.MarketData) ([]types.Signal, error) {
	if md.Kind != types.MarketDataKindKline || md.KlineData == nil {
		return nil, nil
	}
	k := *md.KlineData

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bars = append(s.bars, interestDayBar{close: k.Close, volume: k.Volume, closeTime: k.CloseTime})
	s.closes = append(s.closes, k.Close)
	maxLen := s.config.VolumePeriod * 3
	if maxLen < s.config.RSIPeriod*3 {
		maxLen = s.config.RSIPeriod * 3
	}
	if len(s.bars) > maxLen {
		s.bars = s.bars[len(s.bars)-maxLen:]
		s.closes = s.closes[len(s.closes)-maxLen:]
	}

	if pos, open := s.position[k.Symbol]; open {
		return s.checkExit(k, pos), nil
	}
	return s.checkEntry(k), nil
}

func (s *MarketInterestDayStrategy) checkExit(k types.Kline, pos *interestDayPosition) []types.Signal {
	price := k.Close

	if trigger, _ := pos.trail.Update(price); pos.trail.ShouldTrigger(price) {
		_ = trigger
		return s.closePosition(k, pos, "trailing_stop")
	}
	if pos.side == types.OrderSideBuy && price.GreaterThanOrEqual(pos.takeProfit) {
		return s.closePosition(k, pos, "take_profit")
	}
	if pos.side == types.OrderSideBuy && price.LessThanOrEqual(pos.stopLoss) {
		return s.closePosition(k, pos, "stop_loss")
	}
	if k.CloseTime.Sub(pos.entryTime) >= time.Duration(s.config.MaxHoldMinutes)*time.Minute {
		return s.closePosition(k, pos, "max_hold")
	}
	return nil
}

func (s *MarketInterestDayStrategy) closePosition(k types.Kline, pos *interestDayPosition, reason string) []types.Signal {
	delete(s.position, k.Symbol)
	exitSide := types.OrderSideSell
	if pos.side == types.OrderSideSell {
		exitSide = types.OrderSideBuy
	}
	return []types.Signal{{
		StrategyID: s.Name(), Symbol: k.Symbol, Side: exitSide,
		SignalType: types.SignalTypeExit, Strength: 1, EntryPrice: k.Close,
		Metadata:  map[string]any{"reason": reason},
		CreatedAt: k.CloseTime,
	}}
}

func (s *MarketInterestDayStrategy) checkEntry(k types.Kline) []types.Signal {
	if len(s.bars) < s.config.VolumePeriod+s.config.ConsecutiveUpBars {
		return nil
	}

	volWindow := s.bars[len(s.bars)-1-s.config.VolumePeriod : len(s.bars)-1]
	avgVol := decimal.Zero
	for _, b := range volWindow {
		avgVol = avgVol.Add(b.volume)
	}
	avgVol = avgVol.Div(decimal.NewFromInt(int64(len(volWindow))))
	if !avgVol.IsPositive() {
		return nil
	}
	surge := k.Volume.GreaterThanOrEqual(avgVol.Mul(decimal.NewFromFloat(s.config.VolumeMultiplier)))
	if !surge {
		return nil
	}

	upStreak := true
	for i := 0; i < s.config.ConsecutiveUpBars; i++ {
		idx := len(s.bars) - 1 - i
		if idx <= 0 || !s.bars[idx].close.GreaterThan(s.bars[idx-1].close) {
			upStreak = false
			break
		}
	}
	if !upStreak {
		return nil
	}

	rsiSeries, err := indicator.RSI(s.closes, s.config.RSIPeriod)
	if err == nil && len(rsiSeries) > 0 && rsiSeries[len(rsiSeries)-1] != nil {
		rsiVal, _ := (*rsiSeries[len(rsiSeries)-1]).Float64()
		if rsiVal >= s.config.RSIOverbought {
			return nil
		}
	}

	sc := s.Context().Get(k.Symbol)
	if !admitsEntry(sc, s.config.MinGlobalScore) {
		return nil
	}

	entry := k.Close
	trail := types.NewTrailingStop(k.Symbol.String(), types.PositionSideLong, entry, decimal.NewFromFloat(s.config.TrailingStopPct/100))
	s.position[k.Symbol] = &interestDayPosition{
		side:       types.OrderSideBuy,
		entryTime:  k.CloseTime,
		trail:      trail,
		takeProfit: entry.Mul(decimal.NewFromFloat(1 + s.config.TakeProfitPct/100)),
		stopLoss:   entry.Mul(decimal.NewFromFloat(1 - s.config.StopLossPct/100)),
	}

	return []types.Signal{{
		StrategyID: s.Name(), Symbol: k.Symbol, Side: types.OrderSideBuy,
		SignalType: types.SignalTypeEntry, Strength: 0.6, EntryPrice: entry,
		StopLoss: s.position[k.Symbol].stopLoss, TakeProfit: s.position[k.Symbol].takeProfit,
		Metadata:  map[string]any{"reason": "volume_surge"},
		CreatedAt: k.CloseTime,
	}}
}

func (s *MarketInterestDayStrategy) GetState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := make([]string, 0, len(s.position))
	for sym := range s.position {
		open = append(open, sym.String())
	}
	return map[string]any{"openPositions": open}
}
