package strategy

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func sectorSymbols() (types.Symbol, types.Symbol) {
	return types.Symbol{Base: "AAA", Quote: "USD", MarketType: types.MarketUsStock},
		types.Symbol{Base: "BBB", Quote: "USD", MarketType: types.MarketUsStock}
}

func newTestSectorMomentum(t *testing.T, aaa, bbb types.Symbol) *SectorMomentumStrategy {
	t.Helper()
	s := NewSectorMomentumStrategy(zap.NewNop())
	raw, err := json.Marshal(struct {
		TotalAmount    float64        `json:"totalAmount"`
		TopN           int            `json:"topN"`
		ShortPeriod    int            `json:"shortPeriodBars"`
		MediumPeriod   int            `json:"mediumPeriodBars"`
		LongPeriod     int            `json:"longPeriodBars"`
		ShortWeight    float64        `json:"shortWeight"`
		MediumWeight   float64        `json:"mediumWeight"`
		LongWeight     float64        `json:"longWeight"`
		MinGlobalScore float64        `json:"minGlobalScore"`
		Sectors        []types.Symbol `json:"sectors"`
	}{100000, 1, 3, 5, 8, 0.5, 0.3, 0.2, 0, []types.Symbol{aaa, bbb}})
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := s.Initialize(raw); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s.SetContext(types.StrategyContext{Snapshot: map[types.Symbol]*types.SymbolContext{
		aaa: {Route: types.RouteAttack},
		bbb: {Route: types.RouteAttack},
	}})
	return s
}

func TestSectorMomentumRotatesIntoTopScorer(t *testing.T) {
	aaa, bbb := sectorSymbols()
	s := newTestSectorMomentum(t, aaa, bbb)

	day := 0
	feed := func(sym types.Symbol, price float64, month time.Month) []types.Signal {
		ts := time.Date(2026, month, day%28+1, 0, 0, 0, 0, time.UTC)
		day++
		sigs, err := s.OnMarketData(guganKline(sym, price, ts))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return sigs
	}

	// First ever tick always triggers a (degenerate) rebalance before any
	// history accumulates; drain it.
	feed(aaa, 100, time.January)
	feed(bbb, 100, time.January)

	// Build up a strong uptrend for AAA and a flat series for BBB across
	// the rest of January.
	aaaPrice := 100.0
	for i := 0; i < 9; i++ {
		aaaPrice += 3
		feed(aaa, aaaPrice, time.January)
		feed(bbb, 100, time.January)
	}

	// February 1st: month changes, triggering the real rebalance over the
	// accumulated history. (The degenerate day-0 rebalance above may have
	// bought into whichever symbol tied first on zero history; only this
	// tick's allocation into the higher-momentum sector is asserted on.)
	sigs := feed(aaa, aaaPrice+3, time.February)
	feed(bbb, 100, time.February)

	var boughtAAA bool
	for _, sig := range sigs {
		if sig.Symbol == aaa && sig.SignalType == types.SignalTypeEntry && sig.Side == types.OrderSideBuy {
			boughtAAA = true
		}
	}
	if !boughtAAA {
		t.Fatalf("signals = %+v, want a buy entry into the higher-momentum sector AAA", sigs)
	}
}

func TestSectorMomentumNoRebalanceWithinSameMonth(t *testing.T) {
	aaa, bbb := sectorSymbols()
	s := newTestSectorMomentum(t, aaa, bbb)

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.OnMarketData(guganKline(aaa, 100, ts)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same month, different day: must not re-trigger.
	sigs, err := s.OnMarketData(guganKline(aaa, 105, ts.Add(5*24*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("got %d signals, want 0 within the same rebalance month", len(sigs))
	}
}
