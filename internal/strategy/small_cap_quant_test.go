package strategy

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func newTestSmallCapQuant(t *testing.T, index, a, b types.Symbol) *SmallCapQuantStrategy {
	t.Helper()
	s := NewSmallCapQuantStrategy(zap.NewNop())
	cfg := struct {
		TargetCount         int                   `json:"targetCount"`
		MAPeriod            int                   `json:"maPeriod"`
		TotalAmount         float64               `json:"totalAmount"`
		MinMarketCapBillion float64               `json:"minMarketCapBillion"`
		MinROE              float64               `json:"minRoe"`
		MinPBR              float64               `json:"minPbr"`
		MinPER              float64               `json:"minPer"`
		IndexSymbol         types.Symbol          `json:"indexSymbol"`
		Universe            []StockFundamentals   `json:"universe"`
	}{
		TargetCount: 1, MAPeriod: 5, TotalAmount: 100000,
		MinMarketCapBillion: 50, MinROE: 5, MinPBR: 0.2, MinPER: 2,
		IndexSymbol: index,
		Universe: []StockFundamentals{
			{Symbol: a, MarketCapBillion: 60, Sector: "IT", OperatingProfit: 10, ROE: 10, EPS: 5, BPS: 10, PBR: 1, PER: 5},
			{Symbol: b, MarketCapBillion: 80, Sector: "IT", OperatingProfit: 10, ROE: 10, EPS: 5, BPS: 10, PBR: 1, PER: 5},
		},
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := s.Initialize(raw); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s.SetContext(types.StrategyContext{Snapshot: map[types.Symbol]*types.SymbolContext{
		a: {Route: types.RouteAttack},
		b: {Route: types.RouteAttack},
	}})
	return s
}

func TestSmallCapQuantBuysSmallestCapWhenIndexAboveMA(t *testing.T) {
	index := types.Symbol{Base: "229200", Quote: "KRW", MarketType: types.MarketKrStock}
	a := types.Symbol{Base: "AAA", Quote: "KRW", MarketType: types.MarketKrStock}
	b := types.Symbol{Base: "BBB", Quote: "KRW", MarketType: types.MarketKrStock}
	s := newTestSmallCapQuant(t, index, a, b)

	// Seed a's and b's lastPrice by ticking the universe symbols once each
	// (these never drive the due check themselves).
	if _, err := s.OnMarketData(guganKline(a, 50, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.OnMarketData(guganKline(b, 50, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Feed the index flat through January (builds MA history; the first
	// index bar runs a rebalance that emits nothing while the MA is not yet
	// known, and no further rebalance fires within the month).
	for i := 0; i < 5; i++ {
		ts := time.Date(2026, 1, i+2, 0, 0, 0, 0, time.UTC)
		if _, err := s.OnMarketData(guganKline(index, 100, ts)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// February 1st: index jumps above its 5-day MA, month changes, a
	// rebalance fires and should buy into the smallest-market-cap name (a).
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	sigs, err := s.OnMarketData(guganKline(index, 130, feb))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var boughtA bool
	for _, sig := range sigs {
		if sig.Symbol == a && sig.SignalType == types.SignalTypeEntry && sig.Side == types.OrderSideBuy {
			boughtA = true
		}
		if sig.Symbol == b {
			t.Fatalf("signals = %+v, want only the smallest-cap name (a) bought (targetCount=1)", sigs)
		}
	}
	if !boughtA {
		t.Fatalf("signals = %+v, want a buy entry into the smallest-cap name", sigs)
	}
}

func TestSmallCapQuantLiquidatesWhenIndexBelowMA(t *testing.T) {
	index := types.Symbol{Base: "229200", Quote: "KRW", MarketType: types.MarketKrStock}
	a := types.Symbol{Base: "AAA", Quote: "KRW", MarketType: types.MarketKrStock}
	b := types.Symbol{Base: "BBB", Quote: "KRW", MarketType: types.MarketKrStock}
	s := newTestSmallCapQuant(t, index, a, b)

	if _, err := s.OnMarketData(guganKline(a, 50, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.OnMarketData(guganKline(b, 50, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// January: a flat index builds MA history; on February 1st it jumps
	// above its MA, so that month's rebalance buys into the smallest-cap name.
	for i := 0; i < 5; i++ {
		ts := time.Date(2026, 1, i+2, 0, 0, 0, 0, time.UTC)
		if _, err := s.OnMarketData(guganKline(index, 100, ts)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	sigs, err := s.OnMarketData(guganKline(index, 130, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var boughtA bool
	for _, sig := range sigs {
		if sig.Symbol == a && sig.Side == types.OrderSideBuy {
			boughtA = true
		}
	}
	if !boughtA {
		t.Fatalf("setup failed: want a holding established before testing liquidation, got %+v", sigs)
	}

	// February: index slides well below its 5-day MA for the March
	// rebalance. No targets survive the regime gate, so the held position
	// must be fully liquidated.
	for i := 0; i < 4; i++ {
		ts := time.Date(2026, 2, i+2, 0, 0, 0, 0, time.UTC)
		if _, err := s.OnMarketData(guganKline(index, 90, ts)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	mar := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sigs2, err := s.OnMarketData(guganKline(index, 50, mar))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var soldA bool
	for _, sig := range sigs2 {
		if sig.SignalType == types.SignalTypeEntry {
			t.Fatalf("signals = %+v, want no new entries while the index is below its MA", sigs2)
		}
		if sig.Symbol == a && sig.Side == types.OrderSideSell {
			soldA = true
		}
	}
	if !soldA {
		t.Fatalf("signals = %+v, want the held position in a liquidated", sigs2)
	}
}
