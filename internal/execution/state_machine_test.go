package execution

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func newTestOrder(qty decimal.Decimal) *types.Order {
	return &types.Order{ID: "o1", Quantity: qty, Status: types.OrderStatusPending}
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	order := newTestOrder(decimal.NewFromInt(10))
	if err := Transition(order, types.OrderStatusFilled); err == nil {
		t.Fatal("expected pending -> filled to be illegal")
	}
	if err := Transition(order, types.OrderStatusOpen); err != nil {
		t.Fatalf("pending -> open should be legal: %v", err)
	}
	if err := Transition(order, types.OrderStatusOpen); err == nil {
		t.Fatal("a terminal-free but already-open order moving to open again should still be rejected (not a declared edge)")
	}
}

func TestTransitionNeverLeavesTerminalStatus(t *testing.T) {
	order := newTestOrder(decimal.NewFromInt(10))
	order.Status = types.OrderStatusFilled
	if err := Transition(order, types.OrderStatusCancelled); err == nil {
		t.Fatal("expected no transitions out of a terminal status")
	}
}

func TestApplyFillAccumulatesAndAveragesPrice(t *testing.T) {
	order := newTestOrder(decimal.NewFromInt(100))
	order.Status = types.OrderStatusOpen

	if err := ApplyFill(order, decimal.NewFromInt(40), decimal.NewFromInt(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != types.OrderStatusPartiallyFilled {
		t.Fatalf("status = %s, want partially_filled", order.Status)
	}
	if !order.AverageFillPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("avg_fill_price = %v, want 10", order.AverageFillPrice)
	}

	if err := ApplyFill(order, decimal.NewFromInt(60), decimal.NewFromInt(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != types.OrderStatusFilled {
		t.Fatalf("status = %s, want filled", order.Status)
	}
	// (40*10 + 60*20) / 100 = 16
	if !order.AverageFillPrice.Equal(decimal.NewFromInt(16)) {
		t.Fatalf("avg_fill_price = %v, want 16", order.AverageFillPrice)
	}
	if !order.FilledQuantity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("filled_quantity = %v, want 100", order.FilledQuantity)
	}
}

func TestApplyFillRejectsOverfill(t *testing.T) {
	order := newTestOrder(decimal.NewFromInt(10))
	order.Status = types.OrderStatusOpen
	if err := ApplyFill(order, decimal.NewFromInt(11), decimal.NewFromInt(10)); err == nil {
		t.Fatal("expected overfill to be rejected")
	}
}

func TestApplyFillRejectsOnTerminalOrder(t *testing.T) {
	order := newTestOrder(decimal.NewFromInt(10))
	order.Status = types.OrderStatusCancelled
	if err := ApplyFill(order, decimal.NewFromInt(1), decimal.NewFromInt(10)); err == nil {
		t.Fatal("expected fill against a cancelled order to be rejected")
	}
}
