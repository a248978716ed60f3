package strategy

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func newTestAllWeather(t *testing.T, a, b types.Symbol) *AllWeatherStrategy {
	t.Helper()
	s := NewAllWeatherStrategy(zap.NewNop())
	cfg := AllWeatherConfig{
		TotalAmount:    100000,
		UseSeasonality: false,
		RebalanceDays:  30,
		MA50Period:     50,
		MA150Period:    150,
		Assets: []AllWeatherAsset{
			{Symbol: a, Class: AllWeatherStock, BaseWeight: 60},
			{Symbol: b, Class: AllWeatherBond, BaseWeight: 40},
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

func TestAllWeatherInitialRebalanceAllocatesBaseWeights(t *testing.T) {
	a := types.Symbol{Base: "AAA", Quote: "USD", MarketType: types.MarketUsStock}
	b := types.Symbol{Base: "BBB", Quote: "USD", MarketType: types.MarketUsStock}
	s := newTestAllWeather(t, a, b)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Until every configured asset has a known price, Compute can't size an
	// order for the still-unpriced ones, so the rebalance attempt silently
	// no-ops and the due flag stays set for the next tick.
	sigs, err := s.OnMarketData(klineMD(a, decFromFloat(100), start))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("got %d signals before every asset has a price, want 0", len(sigs))
	}

	sigs, err = s.OnMarketData(klineMD(b, decFromFloat(50), start.Add(24*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bought := make(map[types.Symbol]bool)
	for _, sig := range sigs {
		if sig.SignalType != types.SignalTypeEntry || sig.Side != types.OrderSideBuy {
			t.Fatalf("signals = %+v, want only buy entries on the first full rebalance", sigs)
		}
		bought[sig.Symbol] = true
	}
	if !bought[a] || !bought[b] {
		t.Fatalf("signals = %+v, want buy entries into both base-weight assets", sigs)
	}
}

func TestAllWeatherNoRebalanceWithinWindow(t *testing.T) {
	a := types.Symbol{Base: "AAA", Quote: "USD", MarketType: types.MarketUsStock}
	b := types.Symbol{Base: "BBB", Quote: "USD", MarketType: types.MarketUsStock}
	s := newTestAllWeather(t, a, b)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.OnMarketData(klineMD(a, decFromFloat(100), start)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.OnMarketData(klineMD(b, decFromFloat(50), start.Add(24*time.Hour))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A few days later, well inside the 30-day rebalance window: must not
	// re-trigger.
	sigs, err := s.OnMarketData(klineMD(a, decFromFloat(101), start.Add(3*24*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("got %d signals inside the rebalance window, want 0", len(sigs))
	}
}
