package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func testSymbol(t *testing.T) types.Symbol {
	t.Helper()
	sym, err := types.NewSymbol("AAPL", "USD", types.MarketUsStock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sym
}

func TestDailyLossTrackerPausesAtThreshold(t *testing.T) {
	tracker := NewDailyLossTracker(DailyLossTrackerConfig{
		MaxDailyLossAbs: decimal.NewFromInt(1000),
		MaxDailyLossPct: decimal.NewFromInt(10),
	}, decimal.NewFromInt(10000))

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	if !tracker.CanTrade(now) {
		t.Fatal("expected can_trade before any losses")
	}

	tracker.RecordPnL("AAPL", decimal.NewFromInt(-999), now)
	if !tracker.CanTrade(now) {
		t.Fatal("expected can_trade just under the ceiling")
	}

	tracker.RecordPnL("AAPL", decimal.NewFromInt(-1), now)
	if tracker.CanTrade(now) {
		t.Fatal("expected trading paused once |daily_total| >= ceiling")
	}

	status := tracker.Status(now)
	if status.Warning != "CRITICAL" {
		t.Fatalf("warning = %q, want CRITICAL", status.Warning)
	}
}

func TestDailyLossTrackerResetsOnDayRollover(t *testing.T) {
	tracker := NewDailyLossTracker(DailyLossTrackerConfig{
		MaxDailyLossAbs: decimal.NewFromInt(100),
		MaxDailyLossPct: decimal.NewFromInt(100),
	}, decimal.NewFromInt(1000))

	day1 := time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)
	tracker.RecordPnL("AAPL", decimal.NewFromInt(-150), day1)
	if tracker.CanTrade(day1) {
		t.Fatal("expected paused on day1")
	}

	day2 := time.Date(2026, 1, 6, 0, 1, 0, 0, time.UTC)
	if !tracker.CanTrade(day2) {
		t.Fatal("expected a fresh day to clear the pause")
	}
}

func TestDailyLossTrackerForceReset(t *testing.T) {
	tracker := NewDailyLossTracker(DailyLossTrackerConfig{
		MaxDailyLossAbs: decimal.NewFromInt(10),
		MaxDailyLossPct: decimal.NewFromInt(100),
	}, decimal.NewFromInt(1000))

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	tracker.RecordPnL("AAPL", decimal.NewFromInt(-50), now)
	if tracker.CanTrade(now) {
		t.Fatal("expected paused before reset")
	}

	tracker.ForceReset(now)
	status := tracker.Status(now)
	if !status.DailyTotal.IsZero() {
		t.Fatalf("daily_total = %v, want 0 after force_reset", status.DailyTotal)
	}
	if !tracker.CanTrade(now) {
		t.Fatal("expected can_trade true after force_reset")
	}
}

func TestValidateOrderRejectsBelowMinOrderSize(t *testing.T) {
	mgr := NewManager(zap.NewNop(), DefaultConfig(), decimal.NewFromInt(10000))
	req := types.OrderRequest{
		Symbol:   testSymbol(t),
		Side:     types.OrderSideBuy,
		Quantity: decimal.NewFromFloat(0.00001),
		Price:    decimal.NewFromInt(100),
	}
	result := mgr.ValidateOrder(req, nil, decimal.NewFromInt(10000), decimal.Zero, time.Now())
	if result.Valid {
		t.Fatal("expected rejection below min_order_size")
	}
}

func TestValidateOrderRejectsAboveMaxSinglePosition(t *testing.T) {
	config := DefaultConfig()
	config.MaxPositionPct = decimal.NewFromFloat(0.01) // 1% of balance
	mgr := NewManager(zap.NewNop(), config, decimal.NewFromInt(10000))

	req := types.OrderRequest{
		Symbol:   testSymbol(t),
		Side:     types.OrderSideBuy,
		Quantity: decimal.NewFromInt(100), // 100*100 = 10000, far above 1% of 10000
		Price:    decimal.NewFromInt(100),
	}
	result := mgr.ValidateOrder(req, nil, decimal.NewFromInt(10000), decimal.Zero, time.Now())
	if result.Valid {
		t.Fatal("expected rejection above max single position size")
	}
	if result.ModifiedOrder == nil || !result.ModifiedOrder.Quantity.IsPositive() {
		t.Fatal("expected a suggested adjusted quantity")
	}
}

func TestValidateOrderRejectsAboveVolatilityThreshold(t *testing.T) {
	config := DefaultConfig()
	config.VolatilityThreshold = decimal.NewFromFloat(0.03)
	mgr := NewManager(zap.NewNop(), config, decimal.NewFromInt(10000))

	req := types.OrderRequest{
		Symbol:   testSymbol(t),
		Side:     types.OrderSideBuy,
		Quantity: decimal.NewFromFloat(0.1),
		Price:    decimal.NewFromInt(100),
	}
	result := mgr.ValidateOrder(req, nil, decimal.NewFromInt(10000), decimal.NewFromFloat(0.10), time.Now())
	if result.Valid {
		t.Fatal("expected rejection above volatility threshold")
	}
}

func TestValidateOrderBlockedWhileDailyLimitReached(t *testing.T) {
	mgr := NewManager(zap.NewNop(), DefaultConfig(), decimal.NewFromInt(10000))
	now := time.Now()
	mgr.Daily().RecordPnL("AAPL", decimal.NewFromInt(-1_000_000), now)

	req := types.OrderRequest{
		Symbol:   testSymbol(t),
		Side:     types.OrderSideBuy,
		Quantity: decimal.NewFromFloat(0.1),
		Price:    decimal.NewFromInt(100),
	}
	result := mgr.ValidateOrder(req, nil, decimal.NewFromInt(10000), decimal.Zero, now)
	if result.Valid {
		t.Fatal("expected daily limit to short-circuit validation")
	}
	if len(result.Messages) != 1 || result.Messages[0] != "daily limit reached" {
		t.Fatalf("messages = %v, want exactly [daily limit reached]", result.Messages)
	}
}

func TestTrailingStopAdvancesOnlyFavorably(t *testing.T) {
	mgr := NewManager(zap.NewNop(), DefaultConfig(), decimal.NewFromInt(10000))
	position := types.Position{ID: "p1", Side: types.PositionSideLong}
	state := mgr.AttachTrailingStop(position.ID, position.Side, decimal.NewFromInt(100), decimal.NewFromFloat(0.05))

	initialTrigger := state.TriggerPrice
	if !initialTrigger.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("initial trigger = %v, want 95", initialTrigger)
	}

	mgr.UpdateTrailingStop(position.ID, decimal.NewFromInt(110))
	advanced, _ := mgr.TrailingStop(position.ID)
	if !advanced.TriggerPrice.Equal(decimal.NewFromFloat(104.5)) {
		t.Fatalf("trigger after rally = %v, want 104.5", advanced.TriggerPrice)
	}

	mgr.UpdateTrailingStop(position.ID, decimal.NewFromInt(105))
	unchanged, _ := mgr.TrailingStop(position.ID)
	if !unchanged.TriggerPrice.Equal(advanced.TriggerPrice) {
		t.Fatal("trigger must not retreat on a pullback")
	}

	if !unchanged.ShouldTrigger(decimal.NewFromFloat(104.4)) {
		t.Fatal("expected trigger once price falls to/through trigger_price")
	}
}

func TestStopLossAndTakeProfitMirrorForShorts(t *testing.T) {
	long := types.Position{Side: types.PositionSideLong, EntryPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}
	sl := StopLoss(long, decimal.NewFromInt(5))
	if !sl.TriggerPrice.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("long stop_loss trigger = %v, want 95", sl.TriggerPrice)
	}

	short := types.Position{Side: types.PositionSideShort, EntryPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}
	slShort := StopLoss(short, decimal.NewFromInt(5))
	if !slShort.TriggerPrice.Equal(decimal.NewFromInt(105)) {
		t.Fatalf("short stop_loss trigger = %v, want 105", slShort.TriggerPrice)
	}
}

func TestRiskRewardRatio(t *testing.T) {
	ratio := RiskRewardRatio(decimal.NewFromInt(100), decimal.NewFromInt(95), decimal.NewFromInt(115))
	if !ratio.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("ratio = %v, want 3", ratio)
	}
}

func TestKellyFractionClampsNegativeEdgeToZero(t *testing.T) {
	f := KellyFraction(decimal.NewFromFloat(0.3), decimal.NewFromFloat(1.0))
	if !f.IsZero() {
		t.Fatalf("kelly fraction = %v, want 0 for a losing edge", f)
	}
}
