package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func fillReport(sym types.Symbol, side types.OrderSide, qty, price decimal.Decimal, ts time.Time, id string) types.ExecutionReport {
	return types.ExecutionReport{
		ExchangeOrderID: id, ExecutionID: id,
		Symbol: sym, Side: side, Quantity: qty, Price: price, Fee: decimal.Zero, Timestamp: ts,
	}
}

func TestBookDailyTradeStatsAccumulatesAcrossSells(t *testing.T) {
	sym := testSymbol(t)
	b := NewBook(zap.NewNop())
	day := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)

	b.ApplyBuy(sym, "test", "s1", fillReport(sym, types.OrderSideBuy, decimal.NewFromInt(100), decimal.NewFromInt(50), day, "b1"))

	if _, _, err := b.ApplySell(sym, fillReport(sym, types.OrderSideSell, decimal.NewFromInt(40), decimal.NewFromInt(60), day.Add(time.Hour), "s1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := b.ApplySell(sym, fillReport(sym, types.OrderSideSell, decimal.NewFromInt(20), decimal.NewFromInt(40), day.Add(2*time.Hour), "s2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total, wins, pnl := b.DailyTradeStats(day.Add(3 * time.Hour))
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want 1 (one profitable sell, one loss)", wins)
	}
	// (60-50)*40 + (40-50)*20 = 400 - 200 = 200
	if !pnl.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("pnl = %v, want 200", pnl)
	}
}

func TestBookDailyTradeStatsRollsOverOnNewDay(t *testing.T) {
	sym := testSymbol(t)
	b := NewBook(zap.NewNop())
	day1 := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)

	b.ApplyBuy(sym, "test", "s1", fillReport(sym, types.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(50), day1, "b1"))
	if _, _, err := b.ApplySell(sym, fillReport(sym, types.OrderSideSell, decimal.NewFromInt(10), decimal.NewFromInt(60), day1.Add(time.Hour), "s1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total, _, _ := b.DailyTradeStats(day1)
	if total != 1 {
		t.Fatalf("total on day1 = %d, want 1", total)
	}

	day2 := day1.Add(24 * time.Hour)
	total, wins, pnl := b.DailyTradeStats(day2)
	if total != 0 || wins != 0 || !pnl.IsZero() {
		t.Fatalf("stats on day2 = (%d, %d, %v), want all zero after rollover", total, wins, pnl)
	}
}
