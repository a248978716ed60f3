package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func testSymbol() types.Symbol {
	return types.Symbol{Base: "AAA", Quote: "USD", MarketType: types.MarketUsStock}
}

func klineMD(sym types.Symbol, close decimal.Decimal, ts time.Time) types.MarketData {
	k := types.Kline{Symbol: sym, Timeframe: types.Timeframe1d, Close: close, Open: close, High: close, Low: close, CloseTime: ts}
	return types.NewKlineData(k, "test", ts)
}

func feedFlat(t *testing.T, s *BollingerStrategy, sym types.Symbol, price float64, n int, start time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := s.OnMarketData(klineMD(sym, decimal.NewFromFloat(price), start.Add(time.Duration(i)*24*time.Hour))); err != nil {
			t.Fatalf("unexpected error feeding flat price: %v", err)
		}
	}
}

func TestBollingerEntersOnLowerBandTouch(t *testing.T) {
	s := NewBollingerStrategy(zap.NewNop())
	if err := s.Initialize(nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s.config.UseRSIConfirmation = false
	sym := testSymbol()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	feedFlat(t, s, sym, 100, 20, start)

	sigs, err := s.OnMarketData(klineMD(sym, decimal.NewFromFloat(80), start.Add(20*24*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1 entry on lower-band touch", len(sigs))
	}
	if sigs[0].SignalType != types.SignalTypeEntry || sigs[0].Side != types.OrderSideBuy {
		t.Fatalf("signal = %+v, want buy entry", sigs[0])
	}
}

func TestBollingerExitsAtMiddleBand(t *testing.T) {
	s := NewBollingerStrategy(zap.NewNop())
	if err := s.Initialize(nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s.config.UseRSIConfirmation = false
	sym := testSymbol()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	feedFlat(t, s, sym, 100, 20, start)
	if _, err := s.OnMarketData(klineMD(sym, decimal.NewFromFloat(80), start.Add(20*24*time.Hour))); err != nil {
		t.Fatalf("unexpected error entering: %v", err)
	}

	sigs, err := s.OnMarketData(klineMD(sym, decimal.NewFromFloat(100), start.Add(21*24*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 || sigs[0].SignalType != types.SignalTypeExit {
		t.Fatalf("got %+v, want a single exit signal reverting to the middle band", sigs)
	}
}

func TestBollingerSkipsEntryWhenRouteRejects(t *testing.T) {
	s := NewBollingerStrategy(zap.NewNop())
	if err := s.Initialize(nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s.config.UseRSIConfirmation = false
	sym := testSymbol()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.SetContext(types.StrategyContext{Snapshot: map[types.Symbol]*types.SymbolContext{
		sym: {Route: types.RouteOverheat},
	}})

	feedFlat(t, s, sym, 100, 20, start)
	sigs, err := s.OnMarketData(klineMD(sym, decimal.NewFromFloat(80), start.Add(20*24*time.Hour)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("got %d signals, want 0 (Overheat must gate entry)", len(sigs))
	}
}
