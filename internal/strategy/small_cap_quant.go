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

// StockFundamentals is the quarterly fundamentals snapshot small_cap_quant
// filters the universe by. The pipeline is fed fundamentals out of band
// (spec.md treats market-data ingestion as an external collaborator); a
// snapshot is loaded wholesale via Initialize's config.
type StockFundamentals struct {
	Symbol           types.Symbol `json:"symbol"`
	MarketCapBillion float64      `json:"marketCapBillion"`
	Sector           string       `json:"sector"`
	OperatingProfit  float64      `json:"operatingProfit"`
	ROE              float64      `json:"roe"`
	EPS              float64      `json:"eps"`
	BPS              float64      `json:"bps"`
	PBR              float64      `json:"pbr"`
	PER              float64      `json:"per"`
}

var excludedSectors = []string{"금융", "은행", "보험", "증권"}

func (f StockFundamentals) passesFilter(cfg SmallCapQuantConfig) bool {
	if f.MarketCapBillion < cfg.MinMarketCapBillion {
		return false
	}
	for _, excluded := range excludedSectors {
		if f.Sector == excluded {
			return false
		}
	}
	if f.OperatingProfit <= 0 {
		return false
	}
	if f.ROE < cfg.MinROE {
		return false
	}
	if f.EPS <= 0 || f.BPS <= 0 {
		return false
	}
	if f.PBR < cfg.MinPBR || f.PER < cfg.MinPER {
		return false
	}
	return true
}

// SmallCapQuantConfig configures the small-cap quant strategy: a market-
// regime gate (index above its moving average) combined with a fundamentals
// filter and smallest-market-cap-first ranking.
type SmallCapQuantConfig struct {
	TargetCount         int                  `json:"targetCount"`
	MAPeriod            int                  `json:"maPeriod"`
	TotalAmount         float64              `json:"totalAmount"`
	MinMarketCapBillion float64              `json:"minMarketCapBillion"`
	MinROE              float64              `json:"minRoe"`
	MinPBR              float64              `json:"minPbr"`
	MinPER              float64              `json:"minPer"`
	IndexSymbol         types.Symbol         `json:"indexSymbol"`
	Universe            []StockFundamentals  `json:"universe"`
}

func DefaultSmallCapQuantConfig() SmallCapQuantConfig {
	return SmallCapQuantConfig{
		TargetCount:         20,
		MAPeriod:            20,
		TotalAmount:         10_000_000,
		MinMarketCapBillion: 50,
		MinROE:              5,
		MinPBR:              0.2,
		MinPER:              2,
		IndexSymbol:         types.Symbol{Base: "229200", Quote: "KRW", MarketType: types.MarketKrStock},
	}
}

type smallCapHolding struct {
	holdings  decimal.Decimal
	lastPrice decimal.Decimal
}

// SmallCapQuantStrategy holds the smallest-market-cap names passing a
// fundamentals screen while the reference small-cap index trades above its
// moving average, and liquidates fully when it falls below (spec.md §4.3).
type SmallCapQuantStrategy struct {
	BaseStrategy
	config SmallCapQuantConfig

	mu               sync.Mutex
	indexCloses      []decimal.Decimal
	indexPrice       decimal.Decimal
	holdings         map[types.Symbol]*smallCapHolding
	lastRebalanceMon time.Month
	lastRebalanceYr  int
}

func NewSmallCapQuantStrategy(logger *zap.Logger) *SmallCapQuantStrategy {
	return &SmallCapQuantStrategy{
		BaseStrategy: newBaseStrategy(logger.Named("strategy.small_cap_quant")),
		config:       DefaultSmallCapQuantConfig(),
		holdings:     make(map[types.Symbol]*smallCapHolding),
	}
}

func (s *SmallCapQuantStrategy) Name() string   { return "small_cap_quant" }
func (s *SmallCapQuantStrategy) Version() string { return "1.0.0" }
func (s *SmallCapQuantStrategy) Description() string {
	return "Holds smallest-market-cap names passing a fundamentals screen while the small-cap index trades above its moving average"
}

func (s *SmallCapQuantStrategy) Initialize(config json.RawMessage) error {
	s.config = DefaultSmallCapQuantConfig()
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.config); err != nil {
			return fmt.Errorf("%w: small_cap_quant config: %v", types.ErrInvalidParameter, err)
		}
	}
	s.holdings = make(map[types.Symbol]*smallCapHolding)
	return nil
}

func (s *SmallCapQuantStrategy) OnMarketData(md types.MarketData) ([]types.Signal, error) {
	if md.Kind != types.MarketDataKindKline || md.KlineData == nil {
		return nil, nil
	}
	k := *md.KlineData

	s.mu.Lock()
	if k.Symbol == s.config.IndexSymbol {
		s.indexPrice = k.Close
		s.indexCloses = append(s.indexCloses, k.Close)
		if len(s.indexCloses) > s.config.MAPeriod*3 {
			s.indexCloses = s.indexCloses[len(s.indexCloses)-s.config.MAPeriod*3:]
		}
	} else if h, tracked := s.holdings[k.Symbol]; tracked {
		h.lastPrice = k.Close
	} else {
		for _, f := range s.config.Universe {
			if f.Symbol == k.Symbol {
				s.holdings[k.Symbol] = &smallCapHolding{lastPrice: k.Close}
				break
			}
		}
	}
	due := k.CloseTime.Year() != s.lastRebalanceYr || k.CloseTime.Month() != s.lastRebalanceMon
	s.mu.Unlock()

	if !due || k.Symbol != s.config.IndexSymbol {
		return nil, nil
	}
	return s.rebalance(k.CloseTime), nil
}

func (s *SmallCapQuantStrategy) indexAboveMA() (bool, bool) {
	if len(s.indexCloses) < s.config.MAPeriod {
		return false, false
	}
	sum := decimal.Zero
	window := s.indexCloses[len(s.indexCloses)-s.config.MAPeriod:]
	for _, c := range window {
		sum = sum.Add(c)
	}
	ma := sum.Div(decimal.NewFromInt(int64(s.config.MAPeriod)))
	return s.indexPrice.GreaterThan(ma), true
}

func (s *SmallCapQuantStrategy) rebalance(ts time.Time) []types.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	aboveMA, known := s.indexAboveMA()
	s.lastRebalanceMon, s.lastRebalanceYr = ts.Month(), ts.Year()

	var targets []types.TargetAllocation
	if known && aboveMA {
		var screened []StockFundamentals
		for _, f := range s.config.Universe {
			if f.passesFilter(s.config) {
				screened = append(screened, f)
			}
		}
		sort.Slice(screened, func(i, j int) bool { return screened[i].MarketCapBillion < screened[j].MarketCapBillion })
		n := s.config.TargetCount
		if n > len(screened) {
			n = len(screened)
		}
		if n > 0 {
			weight := 1.0 / float64(n)
			targets = make([]types.TargetAllocation, 0, n)
			for i := 0; i < n; i++ {
				targets = append(targets, types.TargetAllocation{Symbol: screened[i].Symbol, TargetWeight: weight})
			}
		}
	}
	// aboveMA == false, or nothing passed the screen: targets stays empty,
	// which closes every currently held position.

	positions := make([]rebalance.CurrentPosition, 0, len(s.holdings))
	for sym, h := range s.holdings {
		// lastPrice alone is enough: Compute needs a price to size a fresh
		// entry even into a symbol held at zero quantity today.
		if h.lastPrice.IsPositive() {
			positions = append(positions, rebalance.CurrentPosition{Symbol: sym, Quantity: h.holdings, Price: h.lastPrice})
		}
	}

	var orders []types.RebalanceOrder
	if len(targets) > 0 {
		computed, err := rebalance.Compute(positions, targets, decimal.NewFromFloat(s.config.TotalAmount), rebalance.DefaultConfig())
		if err != nil {
			return nil
		}
		orders = computed
	} else {
		for _, p := range positions {
			if !p.Quantity.IsPositive() {
				continue
			}
			orders = append(orders, types.RebalanceOrder{Symbol: p.Symbol, Side: types.OrderSideSell, Quantity: p.Quantity, Notional: p.Quantity.Mul(p.Price)})
		}
	}

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
				Metadata:  map[string]any{"reason": "small_cap_screen", "quantity": o.Quantity.String()},
				CreatedAt: ts,
			})
		} else {
			signals = append(signals, types.Signal{
				StrategyID: s.Name(), Symbol: o.Symbol, Side: types.OrderSideSell,
				SignalType: types.SignalTypeExit, Strength: 0.5,
				Metadata:  map[string]any{"reason": "small_cap_screen", "quantity": o.Quantity.String()},
				CreatedAt: ts,
			})
		}
		h, ok := s.holdings[o.Symbol]
		if !ok {
			h = &smallCapHolding{}
			s.holdings[o.Symbol] = h
		}
		if o.Side == types.OrderSideBuy {
			h.holdings = h.holdings.Add(o.Quantity)
		} else {
			h.holdings = h.holdings.Sub(o.Quantity)
		}
	}
	return signals
}

func (s *SmallCapQuantStrategy) GetState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	aboveMA, known := s.indexAboveMA()
	return map[string]any{
		"indexAboveMA":     aboveMA,
		"indexStateKnown":  known,
		"trackedHoldings":  len(s.holdings),
		"lastRebalanceMon": int(s.lastRebalanceMon),
	}
}
