package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// Connector is the external-exchange contract every venue adapter
// implements (spec.md §6). Exchange-specific wire formats and auth live in
// internal/connector; this package only depends on the interface.
type Connector interface {
	Name() string

	// Submit places an order and returns the exchange's order id.
	Submit(ctx context.Context, order types.Order) (exchangeOrderID string, err error)
	Cancel(ctx context.Context, exchangeOrderID string) error
	// Modify adjusts quantity and/or price on a resting order; a nil
	// argument leaves that field unchanged.
	Modify(ctx context.Context, exchangeOrderID string, quantity, price *decimal.Decimal) error

	Balance(ctx context.Context, currency string) (decimal.Decimal, error)
	Holdings(ctx context.Context) ([]types.Position, error)

	// Subscribe streams live market data for symbols onto the returned
	// channel until ctx is cancelled. Implementations close the channel on
	// exit.
	Subscribe(ctx context.Context, symbols []types.Symbol) (<-chan types.MarketData, error)
	// FetchKlines is the polling alternative to Subscribe, used by
	// connectors (like KIS) without a usable streaming feed for the
	// requested timeframe.
	FetchKlines(ctx context.Context, symbol types.Symbol, tf types.Timeframe, limit int) ([]types.Kline, error)

	// Fills streams execution reports for orders this connector submitted.
	Fills(ctx context.Context) (<-chan types.ExecutionReport, error)
}

// DefaultIOTimeout bounds any single connector call (spec.md §5).
const DefaultIOTimeout = 30 * time.Second
