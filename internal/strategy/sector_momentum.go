package strategy

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/rebalance"
	"github.com/tyeom/zeroquant-go/pkg/types"
)

// SectorMomentumConfig configures the sector-ETF momentum rotation
// strategy. Scores each tracked sector by a weighted blend of short/medium/
// long horizon returns and holds the top N equally weighted.
type SectorMomentumConfig struct {
	TotalAmount  float64        `json:"totalAmount"`
	TopN         int            `json:"topN"`
	ShortPeriod  int            `json:"shortPeriodBars"`
	MediumPeriod int            `json:"mediumPeriodBars"`
	LongPeriod   int            `json:"longPeriodBars"`
	ShortWeight  float64        `json:"shortWeight"`
	MediumWeight float64        `json:"mediumWeight"`
	LongWeight   float64        `json:"longWeight"`
	MinGlobalScore float64      `json:"minGlobalScore"`
	Sectors      []types.Symbol `json:"sectors"`
}

// DefaultSectorMomentumConfig uses the US sector SPDR set with the
// reference weighting (short 20d * 0.5 + medium 60d * 0.3 + long 120d * 0.2).
func DefaultSectorMomentumConfig() SectorMomentumConfig {
	usSectors := []string{"XLK", "XLF", "XLV", "XLY", "XLP", "XLE", "XLI", "XLB", "XLU", "XLRE", "XLC"}
	sectors := make([]types.Symbol, 0, len(usSectors))
	for _, s := range usSectors {
		sectors = append(sectors, types.Symbol{Base: s, Quote: "USD", MarketType: types.MarketUsStock})
	}
	return SectorMomentumConfig{
		TotalAmount:    10_000_000,
		TopN:           3,
		ShortPeriod:    20,
		MediumPeriod:   60,
		LongPeriod:     120,
		ShortWeight:    0.5,
		MediumWeight:   0.3,
		LongWeight:     0.2,
		MinGlobalScore: 50,
		Sectors:        sectors,
	}
}

type sectorSeries struct {
	closes    []decimal.Decimal
	score     decimal.Decimal
	holdings  decimal.Decimal
	lastPrice decimal.Decimal
}

// SectorMomentumStrategy ranks sector ETFs by a multi-horizon momentum score
// and rotates monthly into the top N (spec.md §4.3).
type SectorMomentumStrategy struct {
	BaseStrategy
	config SectorMomentumConfig

	mu               sync.Mutex
	sectors          map[types.Symbol]*sectorSeries
	lastRebalanceMon time.Month
	lastRebalanceYr  int
}

func NewSectorMomentumStrategy(logger *zap.Logger) *SectorMomentumStrategy {
	return &SectorMomentumStrategy{
		BaseStrategy: newBaseStrategy(logger.Named("strategy.sector_momentum")),
		config:       DefaultSectorMomentumConfig(),
		sectors:      make(map[types.Symbol]*sectorSeries),
	}
}

func (s *SectorMomentumStrategy) Name() string   { return "sector_momentum" }
func (s *SectorMomentumStrategy) Version() string { return "1.0.0" }
func (s *SectorMomentumStrategy) Description() string {
	return "Ranks sector ETFs by weighted short/medium/long momentum, rotates into the top N monthly"
}

func (s *SectorMomentumStrategy) Initialize(config json.RawMessage) error {
	s.config = DefaultSectorMomentumConfig()
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.config); err != nil {
			return fmt.Errorf("%w: sector_momentum config: %v", types.ErrInvalidParameter, err)
		}
	}
	if s.config.TopN <= 0 {
		return fmt.Errorf("%w: sector_momentum topN must be > 0", types.ErrInvalidParameter)
	}
	s.sectors = make(map[types.Symbol]*sectorSeries, len(s.config.Sectors))
	for _, sym := range s.config.Sectors {
		s.sectors[sym] = &sectorSeries{}
	}
	return nil
}

func (s *SectorMomentumStrategy) OnMarketData(md types.MarketData) ([]types.Signal, error) {
	if md.Kind != types.MarketDataKindKline || md.KlineData == nil {
		return nil, nil
	}
	k := *md.KlineData

	s.mu.Lock()
	sec, tracked := s.sectors[k.Symbol]
	if !tracked {
		s.mu.Unlock()
		return nil, nil
	}
	sec.lastPrice = k.Close
	sec.closes = append(sec.closes, k.Close)
	maxLen := s.config.LongPeriod * 2
	if len(sec.closes) > maxLen {
		sec.closes = sec.closes[len(sec.closes)-maxLen:]
	}
	due := k.CloseTime.Year() != s.lastRebalanceYr || k.CloseTime.Month() != s.lastRebalanceMon
	s.mu.Unlock()

	if !due {
		return nil, nil
	}
	return s.rebalance(k.CloseTime), nil
}

func periodReturn(closes []decimal.Decimal, period int) decimal.Decimal {
	if len(closes) <= period {
		return decimal.Zero
	}
	current := closes[len(closes)-1]
	past := closes[len(closes)-1-period]
	if !past.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(past).Div(past)
}

func (s *SectorMomentumStrategy) rebalance(ts time.Time) []types.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	type ranked struct {
		symbol types.Symbol
		score  decimal.Decimal
	}
	ranks := make([]ranked, 0, len(s.sectors))
	for sym, sec := range s.sectors {
		short := periodReturn(sec.closes, s.config.ShortPeriod)
		medium := periodReturn(sec.closes, s.config.MediumPeriod)
		long := periodReturn(sec.closes, s.config.LongPeriod)
		score := short.Mul(decimal.NewFromFloat(s.config.ShortWeight)).
			Add(medium.Mul(decimal.NewFromFloat(s.config.MediumWeight))).
			Add(long.Mul(decimal.NewFromFloat(s.config.LongWeight)))
		sec.score = score
		ranks = append(ranks, ranked{symbol: sym, score: score})
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].score.GreaterThan(ranks[j].score) })

	topN := s.config.TopN
	if topN > len(ranks) {
		topN = len(ranks)
	}
	weight := 1.0 / float64(topN)

	targets := make([]types.TargetAllocation, 0, topN)
	for i := 0; i < topN; i++ {
		targets = append(targets, types.TargetAllocation{Symbol: ranks[i].symbol, TargetWeight: weight})
	}
	if len(targets) == 0 {
		return nil
	}

	positions := make([]rebalance.CurrentPosition, 0, len(s.sectors))
	for sym, sec := range s.sectors {
		// lastPrice alone is enough: Compute needs a price to size a fresh
		// entry even into a symbol held at zero quantity today.
		if sec.lastPrice.IsPositive() {
			positions = append(positions, rebalance.CurrentPosition{Symbol: sym, Quantity: sec.holdings, Price: sec.lastPrice})
		}
	}

	orders, err := rebalance.Compute(positions, targets, decimal.NewFromFloat(s.config.TotalAmount), rebalance.DefaultConfig())
	if err != nil {
		return nil
	}

	s.lastRebalanceMon, s.lastRebalanceYr = ts.Month(), ts.Year()

	signals := make([]types.Signal, 0, len(orders))
	for _, o := range orders {
		sc := s.Context().Get(o.Symbol)
		if o.Side == types.OrderSideBuy {
			if !admitsEntry(sc, s.config.MinGlobalScore) {
				continue
			}
			signals = append(signals, types.Signal{
				StrategyID: s.Name(), Symbol: o.Symbol, Side: types.OrderSideBuy,
				SignalType: types.SignalTypeEntry, Strength: 0.5,
				Metadata:  map[string]any{"reason": "sector_rotation", "quantity": o.Quantity.String()},
				CreatedAt: ts,
			})
		} else {
			signals = append(signals, types.Signal{
				StrategyID: s.Name(), Symbol: o.Symbol, Side: types.OrderSideSell,
				SignalType: types.SignalTypeExit, Strength: 0.5,
				Metadata:  map[string]any{"reason": "sector_rotation", "quantity": o.Quantity.String()},
				CreatedAt: ts,
			})
		}
		if sec, ok := s.sectors[o.Symbol]; ok {
			if o.Side == types.OrderSideBuy {
				sec.holdings = sec.holdings.Add(o.Quantity)
			} else {
				sec.holdings = sec.holdings.Sub(o.Quantity)
			}
		}
	}
	return signals
}

func (s *SectorMomentumStrategy) GetState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	scores := make(map[string]string, len(s.sectors))
	for sym, sec := range s.sectors {
		scores[sym.String()] = sec.score.String()
	}
	return map[string]any{"scores": scores, "lastRebalanceMon": int(s.lastRebalanceMon)}
}
