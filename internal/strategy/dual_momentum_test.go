package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func decFromFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func feedDualMomentum(t *testing.T, s *DualMomentumStrategy, sym types.Symbol, prices []float64, start time.Time) []types.Signal {
	t.Helper()
	var last []types.Signal
	for i, p := range prices {
		sigs, err := s.OnMarketData(klineMD(sym, decFromFloat(p), start.Add(time.Duration(i)*24*time.Hour)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last = sigs
	}
	return last
}

func TestDualMomentumRebalancesMonthlyOnce(t *testing.T) {
	s := NewDualMomentumStrategy(zap.NewNop())
	if err := s.Initialize(nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s.config.MomentumPeriodBars = 5
	s.config.UseAbsoluteMomentum = false

	kr := s.config.KrStocks[0]
	s.SetContext(types.StrategyContext{Snapshot: map[types.Symbol]*types.SymbolContext{
		kr: {Route: types.RouteAttack},
	}})
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Rising KR price within January only (no month boundary crossed yet):
	// strong positive momentum, a single auto-rebalance fires once
	// MomentumPeriodBars+1 closes exist (the sixth bar) and does not repeat
	// for the rest of the month.
	prices := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		prices = append(prices, 100+float64(i))
	}
	sigsAtEachBar := feedDualMomentum(t, s, kr, prices, start)
	_ = sigsAtEachBar

	// First bar of February should trigger exactly one rebalance cycle.
	febStart := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	sigs, err := s.OnMarketData(klineMD(kr, decFromFloat(140), febStart))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) == 0 {
		t.Fatal("expected a rebalance signal on the first bar of a new month")
	}

	// Another bar in the same month must not re-trigger.
	sigs2, err := s.OnMarketData(klineMD(kr, decFromFloat(141), febStart.Add(24*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs2) != 0 {
		t.Fatalf("got %d signals on a second bar in the same month, want 0", len(sigs2))
	}
}
