package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a trading order and its lifecycle state.
//
// Invariants: 0 <= FilledQuantity <= Quantity; status transitions are
// monotone per the state machine owned by internal/execution.
type Order struct {
	ID               string          `json:"id"`
	ExchangeOrderID  string          `json:"exchangeOrderId,omitempty"`
	Symbol           Symbol          `json:"symbol"`
	Side             OrderSide       `json:"side"`
	OrderType        OrderType       `json:"orderType"`
	Quantity         decimal.Decimal `json:"quantity"`
	FilledQuantity   decimal.Decimal `json:"filledQuantity"`
	Price            decimal.Decimal `json:"price,omitempty"`
	StopPrice        decimal.Decimal `json:"stopPrice,omitempty"`
	AverageFillPrice decimal.Decimal `json:"averageFillPrice,omitempty"`
	Status           OrderStatus     `json:"status"`
	TimeInForce      TimeInForce     `json:"timeInForce"`
	StrategyID       string          `json:"strategyId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

// Remaining is the unfilled quantity.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// OrderRequest is the input to the executor's submit pipeline, produced
// either by translating a Signal (via the risk manager's sizing decision)
// or by a manual API call.
type OrderRequest struct {
	Symbol      Symbol
	Side        OrderSide
	OrderType   OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	StopPrice   decimal.Decimal
	TimeInForce TimeInForce
	StrategyID  string
	SignalID    string
	Metadata    map[string]any
}

// ExecutionReport is a single exchange-reported fill event, keyed by
// (ExchangeOrderID, ExecutionID) for idempotent application (spec.md §8
// round-trip property: applying a Filled fill twice must not double-count).
type ExecutionReport struct {
	ExchangeOrderID string
	ExecutionID     string
	Symbol          Symbol
	Side            OrderSide
	Quantity        decimal.Decimal
	Price           decimal.Decimal
	Fee             decimal.Decimal
	Timestamp       time.Time
}
