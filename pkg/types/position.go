package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open or closed holding in a Symbol.
//
// Open iff ClosedAt is nil and Quantity > 0.
type Position struct {
	ID            string          `json:"id"`
	Exchange      string          `json:"exchange"`
	Symbol        Symbol          `json:"symbol"`
	Side          PositionSide    `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice,omitempty"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl,omitempty"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	StrategyID    string          `json:"strategyId,omitempty"`
	OpenedAt      time.Time       `json:"openedAt"`
	ClosedAt      *time.Time      `json:"closedAt,omitempty"`
}

// IsOpen reports the open invariant: ClosedAt == nil && Quantity > 0.
func (p Position) IsOpen() bool {
	return p.ClosedAt == nil && p.Quantity.IsPositive()
}

// Lot is a single per-buy record consumed FIFO by the cost-basis tracker.
//
// Invariant: Quantity <= OriginalQuantity. CostPerUnit is only meaningful
// while Quantity > 0.
type Lot struct {
	ID               string          `json:"id"`
	Quantity         decimal.Decimal `json:"quantity"`
	OriginalQuantity decimal.Decimal `json:"originalQuantity"`
	Price            decimal.Decimal `json:"price"`
	Fee              decimal.Decimal `json:"fee"`
	AcquiredAt       time.Time       `json:"acquiredAt"`
	ExecutionID      string          `json:"executionId,omitempty"`
}

// CostPerUnit is (quantity*price + fee) / quantity, zero when quantity == 0.
func (l Lot) CostPerUnit() decimal.Decimal {
	if l.Quantity.IsZero() {
		return decimal.Zero
	}
	return l.Quantity.Mul(l.Price).Add(l.Fee).Div(l.Quantity)
}

// DailyPnLRecord is one signed PnL event aggregated per UTC day.
type DailyPnLRecord struct {
	Timestamp   time.Time       `json:"timestamp"`
	Symbol      Symbol          `json:"symbol"`
	Amount      decimal.Decimal `json:"amount"`
	TradeID     string          `json:"tradeId,omitempty"`
	Description string          `json:"description,omitempty"`
}
