package portfolio

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

func TestSingleLotAverageCost(t *testing.T) {
	tr := NewCostBasisTracker(testSymbol(t))
	tr.Buy("l1", decimal.NewFromInt(100), decimal.NewFromFloat(150.00), decimal.NewFromFloat(10.00), time.Now(), "")

	if !tr.TotalQuantity().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("total_quantity = %v, want 100", tr.TotalQuantity())
	}
	if !tr.AveragePrice().Equal(decimal.NewFromFloat(150.00)) {
		t.Fatalf("average_price = %v, want 150.00", tr.AveragePrice())
	}
	// (100*150 + 10) / 100 = 150.10
	if !tr.AverageCost().Equal(decimal.NewFromFloat(150.10)) {
		t.Fatalf("average_cost = %v, want 150.10", tr.AverageCost())
	}
}

func TestAveragingDown(t *testing.T) {
	tr := NewCostBasisTracker(testSymbol(t))
	tr.Buy("l1", decimal.NewFromInt(100), decimal.NewFromInt(50), decimal.Zero, time.Now(), "")
	tr.Buy("l2", decimal.NewFromInt(50), decimal.NewFromInt(40), decimal.Zero, time.Now(), "")

	if !tr.TotalQuantity().Equal(decimal.NewFromInt(150)) {
		t.Fatalf("total_quantity = %v, want 150", tr.TotalQuantity())
	}
	// (100*50 + 50*40) / 150 = 46.666...
	avg := tr.AveragePrice()
	if avg.LessThanOrEqual(decimal.NewFromFloat(46.66)) || avg.GreaterThanOrEqual(decimal.NewFromFloat(46.67)) {
		t.Fatalf("average_price = %v, want ~46.667", avg)
	}
}

func TestFIFOSaleConsumesOldestLotFirst(t *testing.T) {
	tr := NewCostBasisTracker(testSymbol(t))
	t1 := time.Now().Add(-30 * 24 * time.Hour)
	t2 := time.Now().Add(-10 * 24 * time.Hour)
	tr.Buy("l1", decimal.NewFromInt(100), decimal.NewFromFloat(50.00), decimal.Zero, t1, "")
	tr.Buy("l2", decimal.NewFromInt(50), decimal.NewFromFloat(60.00), decimal.Zero, t2, "")

	result, err := tr.Sell(decimal.NewFromInt(80), decimal.NewFromFloat(70.00), decimal.NewFromFloat(5.00), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.CostBasis.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("cost_basis = %v, want 4000", result.CostBasis)
	}
	if !result.Proceeds.Equal(decimal.NewFromInt(5595)) {
		t.Fatalf("proceeds = %v, want 5595", result.Proceeds)
	}
	if !result.RealizedPnL.Equal(decimal.NewFromInt(1595)) {
		t.Fatalf("realized_pnl = %v, want 1595", result.RealizedPnL)
	}
	if !tr.TotalQuantity().Equal(decimal.NewFromInt(70)) {
		t.Fatalf("total_quantity after sale = %v, want 70", tr.TotalQuantity())
	}
}

func TestFIFOMultipleLotsPartialConsumption(t *testing.T) {
	tr := NewCostBasisTracker(testSymbol(t))
	now := time.Now()
	tr.Buy("l1", decimal.NewFromInt(50), decimal.NewFromInt(100), decimal.Zero, now.Add(-60*24*time.Hour), "")
	tr.Buy("l2", decimal.NewFromInt(30), decimal.NewFromInt(120), decimal.Zero, now.Add(-30*24*time.Hour), "")
	tr.Buy("l3", decimal.NewFromInt(20), decimal.NewFromInt(110), decimal.Zero, now.Add(-10*24*time.Hour), "")

	result, err := tr.Sell(decimal.NewFromInt(70), decimal.NewFromInt(130), decimal.Zero, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 50*100 + 20*120 = 7400
	if !result.CostBasis.Equal(decimal.NewFromInt(7400)) {
		t.Fatalf("cost_basis = %v, want 7400", result.CostBasis)
	}
	if len(result.LotsUsed) != 2 {
		t.Fatalf("lots_used length = %d, want 2", len(result.LotsUsed))
	}
	if !result.LotsUsed[0].QuantityUsed.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("first lot consumed = %v, want 50", result.LotsUsed[0].QuantityUsed)
	}
	if !result.LotsUsed[1].QuantityUsed.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("second lot consumed = %v, want 20", result.LotsUsed[1].QuantityUsed)
	}
	// 10 left in lot2 + 20 in lot3 = 30
	if !tr.TotalQuantity().Equal(decimal.NewFromInt(30)) {
		t.Fatalf("total_quantity after sale = %v, want 30", tr.TotalQuantity())
	}
}

func TestSellMoreThanHeldIsAnError(t *testing.T) {
	tr := NewCostBasisTracker(testSymbol(t))
	tr.Buy("l1", decimal.NewFromInt(50), decimal.NewFromInt(100), decimal.Zero, time.Now(), "")

	if _, err := tr.Sell(decimal.NewFromInt(100), decimal.NewFromInt(110), decimal.Zero, time.Now()); err == nil {
		t.Fatal("expected an error selling more than held")
	}
}

func TestUnrealizedPnL(t *testing.T) {
	tr := NewCostBasisTracker(testSymbol(t))
	tr.Buy("l1", decimal.NewFromInt(100), decimal.NewFromFloat(50.00), decimal.NewFromFloat(10.00), time.Now(), "")

	// market value 6000, cost basis 5010 => 990
	unrealized := tr.UnrealizedPnL(decimal.NewFromFloat(60.00))
	if !unrealized.Equal(decimal.NewFromInt(990)) {
		t.Fatalf("unrealized_pnl = %v, want 990", unrealized)
	}
}

func TestBuildTrackerFromExecutionsSkipsOversells(t *testing.T) {
	sym := testSymbol(t)
	now := time.Now()
	execs := []TimedExecution{
		{Side: types.OrderSideBuy, Report: types.ExecutionReport{ExecutionID: "e1", Quantity: decimal.NewFromInt(100), Price: decimal.NewFromFloat(150), Fee: decimal.NewFromFloat(5), Timestamp: now.Add(-30 * 24 * time.Hour)}},
		{Side: types.OrderSideBuy, Report: types.ExecutionReport{ExecutionID: "e2", Quantity: decimal.NewFromInt(50), Price: decimal.NewFromFloat(140), Fee: decimal.NewFromFloat(5), Timestamp: now.Add(-20 * 24 * time.Hour)}},
		{Side: types.OrderSideSell, Report: types.ExecutionReport{ExecutionID: "e3", Quantity: decimal.NewFromInt(80), Price: decimal.NewFromFloat(160), Fee: decimal.NewFromFloat(8), Timestamp: now.Add(-10 * 24 * time.Hour)}},
		// an over-sell relative to what remains (70) must be skipped, not error out.
		{Side: types.OrderSideSell, Report: types.ExecutionReport{ExecutionID: "e4", Quantity: decimal.NewFromInt(500), Price: decimal.NewFromFloat(160), Timestamp: now}},
	}

	tracker := BuildTrackerFromExecutions(zap.NewNop(), sym, execs)
	if !tracker.TotalQuantity().Equal(decimal.NewFromInt(70)) {
		t.Fatalf("total_quantity = %v, want 70 (oversell skipped)", tracker.TotalQuantity())
	}
	if tracker.totalRealizedPnL.IsZero() {
		t.Fatal("expected non-zero realized pnl from the valid sale")
	}
}

func TestEquityCurveMaxDrawdown(t *testing.T) {
	c := NewEquityCurve()
	now := time.Now()
	c.Record(now, decimal.NewFromInt(1000))
	c.Record(now.Add(time.Hour), decimal.NewFromInt(1200))
	c.Record(now.Add(2*time.Hour), decimal.NewFromInt(900))
	c.Record(now.Add(3*time.Hour), decimal.NewFromInt(1100))

	// drawdown from peak 1200 to trough 900 = 300/1200 * 100 = 25%
	dd := c.MaxDrawdown()
	if !dd.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("max_drawdown = %v, want 25", dd)
	}
}
