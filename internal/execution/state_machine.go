package execution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// transitions enumerates every legal order-status edge (spec.md §4.6).
// Terminal statuses (Filled, Cancelled, Rejected, Expired) have no outgoing
// edges; Expired is reachable from any non-terminal status.
var transitions = map[types.OrderStatus]map[types.OrderStatus]bool{
	types.OrderStatusPending: {
		types.OrderStatusOpen:     true,
		types.OrderStatusRejected: true,
		types.OrderStatusExpired:  true,
	},
	types.OrderStatusOpen: {
		types.OrderStatusPartiallyFilled: true,
		types.OrderStatusFilled:          true,
		types.OrderStatusCancelled:       true,
		types.OrderStatusExpired:         true,
	},
	types.OrderStatusPartiallyFilled: {
		types.OrderStatusFilled:    true,
		types.OrderStatusCancelled: true,
		types.OrderStatusExpired:   true,
	},
}

// CanTransition reports whether from->to is a legal edge in the order state
// machine.
func CanTransition(from, to types.OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	return transitions[from][to]
}

// Transition validates and applies a status change, returning an error that
// names both endpoints on an illegal edge. It never mutates order on error.
func Transition(order *types.Order, to types.OrderStatus) error {
	if !CanTransition(order.Status, to) {
		return fmt.Errorf("%w: illegal order transition %s -> %s", types.ErrValidation, order.Status, to)
	}
	order.Status = to
	return nil
}

// ApplyFill advances FilledQuantity and AverageFillPrice monotonically and
// derives the resulting status (PartiallyFilled while Remaining() > 0,
// Filled once it reaches zero). qty must be positive and must not exceed
// the order's remaining quantity.
func ApplyFill(order *types.Order, qty, price decimal.Decimal) error {
	if order.Status.Terminal() {
		return fmt.Errorf("%w: cannot fill a terminal order (status=%s)", types.ErrValidation, order.Status)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("%w: fill quantity must be positive", types.ErrValidation)
	}
	if qty.GreaterThan(order.Remaining()) {
		return fmt.Errorf("%w: fill quantity %s exceeds remaining %s", types.ErrValidation, qty, order.Remaining())
	}

	priorFilled := order.FilledQuantity
	priorNotional := priorFilled.Mul(order.AverageFillPrice)
	newFilled := priorFilled.Add(qty)
	order.AverageFillPrice = priorNotional.Add(qty.Mul(price)).Div(newFilled)
	order.FilledQuantity = newFilled

	if order.Remaining().IsZero() {
		return Transition(order, types.OrderStatusFilled)
	}
	if order.Status == types.OrderStatusPartiallyFilled {
		return nil
	}
	return Transition(order, types.OrderStatusPartiallyFilled)
}
