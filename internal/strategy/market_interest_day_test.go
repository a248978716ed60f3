package strategy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func volumeKline(sym types.Symbol, close, volume float64, ts time.Time) types.MarketData {
	k := types.Kline{
		Symbol: sym, Timeframe: types.Timeframe1m,
		Close: decimal.NewFromFloat(close), Open: decimal.NewFromFloat(close),
		High: decimal.NewFromFloat(close), Low: decimal.NewFromFloat(close),
		Volume: decimal.NewFromFloat(volume), CloseTime: ts,
	}
	return types.NewKlineData(k, "test", ts)
}

func newTestMarketInterestDay(t *testing.T, sym types.Symbol) *MarketInterestDayStrategy {
	t.Helper()
	s := NewMarketInterestDayStrategy(zap.NewNop())
	cfg := MarketInterestDayConfig{
		TradeAmount:       1_000_000,
		VolumeMultiplier:  2.0,
		VolumePeriod:      5,
		ConsecutiveUpBars: 3,
		TrailingStopPct:   1.5,
		TakeProfitPct:     3,
		StopLossPct:       2,
		MaxHoldMinutes:    120,
		// RSI confirmation is exercised separately in the indicator package;
		// set the ceiling out of reach here to isolate the volume/up-streak
		// entry logic under test.
		RSIOverbought: 1000,
		RSIPeriod:     5,
		MinGlobalScore: 0,
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := s.Initialize(raw); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s.SetContext(types.StrategyContext{Snapshot: map[types.Symbol]*types.SymbolContext{
		sym: {Route: types.RouteAttack},
	}})
	return s
}

func TestMarketInterestDayEntersOnVolumeSurgeWithUpStreak(t *testing.T) {
	sym := types.Symbol{Base: "AAA", Quote: "USD", MarketType: types.MarketUsStock}
	s := newTestMarketInterestDay(t, sym)

	start := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	closes := []float64{100, 100, 100, 100, 100, 101, 102, 103, 104}
	var sigs []types.Signal
	for i, c := range closes {
		vol := 100.0
		if i == len(closes)-1 {
			vol = 300
		}
		var err error
		sigs, err = s.OnMarketData(volumeKline(sym, c, vol, start.Add(time.Duration(i)*time.Minute)))
		if err != nil {
			t.Fatalf("unexpected error at bar %d: %v", i, err)
		}
	}

	if len(sigs) != 1 {
		t.Fatalf("got %d signals on the surge bar, want 1 entry", len(sigs))
	}
	sig := sigs[0]
	if sig.SignalType != types.SignalTypeEntry || sig.Side != types.OrderSideBuy {
		t.Fatalf("signal = %+v, want a buy entry", sig)
	}
	if !sig.StopLoss.LessThan(sig.EntryPrice) || !sig.TakeProfit.GreaterThan(sig.EntryPrice) {
		t.Fatalf("signal = %+v, want stop loss below and take profit above the entry price", sig)
	}
}

func TestMarketInterestDayExitsOnTakeProfit(t *testing.T) {
	sym := types.Symbol{Base: "AAA", Quote: "USD", MarketType: types.MarketUsStock}
	s := newTestMarketInterestDay(t, sym)

	start := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	closes := []float64{100, 100, 100, 100, 100, 101, 102, 103, 104}
	for i, c := range closes {
		vol := 100.0
		if i == len(closes)-1 {
			vol = 300
		}
		if _, err := s.OnMarketData(volumeKline(sym, c, vol, start.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("unexpected error at bar %d: %v", i, err)
		}
	}

	// Entry price is 104, take profit at +3% = 107.12. Push price above it.
	sigs, err := s.OnMarketData(volumeKline(sym, 110, 50, start.Add(time.Duration(len(closes))*time.Minute)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("got %d signals on the take-profit bar, want 1 exit", len(sigs))
	}
	sig := sigs[0]
	if sig.SignalType != types.SignalTypeExit || sig.Side != types.OrderSideSell {
		t.Fatalf("signal = %+v, want a sell exit", sig)
	}
	if sig.Metadata["reason"] != "take_profit" {
		t.Fatalf("signal metadata = %+v, want reason take_profit", sig.Metadata)
	}
}

func TestMarketInterestDayNoEntryWithoutVolumeSurge(t *testing.T) {
	sym := types.Symbol{Base: "AAA", Quote: "USD", MarketType: types.MarketUsStock}
	s := newTestMarketInterestDay(t, sym)

	start := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	closes := []float64{100, 100, 100, 100, 100, 101, 102, 103, 104}
	var sigs []types.Signal
	for i, c := range closes {
		var err error
		// Flat volume throughout: up-streak is present but no surge.
		sigs, err = s.OnMarketData(volumeKline(sym, c, 100, start.Add(time.Duration(i)*time.Minute)))
		if err != nil {
			t.Fatalf("unexpected error at bar %d: %v", i, err)
		}
	}
	if len(sigs) != 0 {
		t.Fatalf("got %d signals without a volume surge, want 0", len(sigs))
	}
}
