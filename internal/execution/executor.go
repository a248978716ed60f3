// Package execution hosts the order state machine and the submit pipeline
// that turns a validated OrderRequest into a live order, applies fills, and
// keeps the portfolio book in sync (spec.md §4.6).
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/events"
	"github.com/tyeom/zeroquant-go/internal/notify"
	"github.com/tyeom/zeroquant-go/internal/portfolio"
	"github.com/tyeom/zeroquant-go/internal/risk"
	"github.com/tyeom/zeroquant-go/pkg/types"
	"github.com/tyeom/zeroquant-go/pkg/utils"
)

// Config tunes the executor's retry and paper-trading behavior.
type Config struct {
	RetryAttempts int
	RetryDelay    time.Duration
	IOTimeout     time.Duration
	PaperTrading  bool
}

// DefaultConfig mirrors the teacher's safe-by-default posture: paper
// trading on, modest retries.
func DefaultConfig() Config {
	return Config{
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		IOTimeout:     DefaultIOTimeout,
		PaperTrading:  true,
	}
}

// Executor wires the risk manager, order registry, portfolio book, and
// connector set into the submit pipeline described by spec.md §4.6.
type Executor struct {
	logger *zap.Logger
	config Config

	orders   *OrderManager
	risk     *risk.Manager
	book     *portfolio.Book
	bus      *events.Bus
	notifier notify.Notifier

	connectors map[string]Connector

	stopsMu sync.RWMutex
	stops   map[string]positionStops
}

// NewExecutor constructs an executor over already-built risk/portfolio/event
// components, per spec.md §9's ownership table (none of those components
// are owned by the executor itself — only referenced).
func NewExecutor(logger *zap.Logger, config Config, riskMgr *risk.Manager, book *portfolio.Book, bus *events.Bus) *Executor {
	return &Executor{
		logger:     logger.Named("executor"),
		config:     config,
		orders:     NewOrderManager(logger),
		risk:       riskMgr,
		book:       book,
		bus:        bus,
		connectors: make(map[string]Connector),
		stops:      make(map[string]positionStops),
	}
}

// AddConnector registers a venue connector by name (e.g. "kis", "binance",
// "paper").
func (e *Executor) AddConnector(c Connector) {
	e.connectors[c.Name()] = c
}

// SetNotifier attaches the notification-contract sink (spec.md §6); nil is
// valid and simply means no notifications are emitted.
func (e *Executor) SetNotifier(n notify.Notifier) {
	e.notifier = n
}

func (e *Executor) notify(ctx context.Context, n notify.Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("notification delivery failed", zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

// Orders exposes the order registry for read-only queries (API layer).
func (e *Executor) Orders() *OrderManager { return e.orders }

// Balance reads a connector's balance in the given currency, e.g. for the
// API layer sizing a manual order the same way signalHandler sizes a
// strategy-derived one.
func (e *Executor) Balance(ctx context.Context, connectorName, currency string) (decimal.Decimal, error) {
	conn, ok := e.connectors[connectorName]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown connector %q", types.ErrValidation, connectorName)
	}
	return conn.Balance(ctx, currency)
}

// Submit runs the 8-step pipeline from spec.md §4.6: risk validation,
// registration, connector submission, and the Open transition. Fill
// application happens asynchronously as the connector streams executions
// (see StreamFills).
func (e *Executor) Submit(ctx context.Context, req types.OrderRequest, connectorName string, positions []types.Position, balance, volatility decimal.Decimal) (types.Order, error) {
	conn, ok := e.connectors[connectorName]
	if !ok {
		return types.Order{}, fmt.Errorf("%w: unknown connector %q", types.ErrValidation, connectorName)
	}

	validation := e.risk.ValidateOrder(req, positions, balance, volatility, time.Now())
	if !validation.Valid {
		e.publish(ctx, events.TypeOrderRejected, req.Symbol.String(), validation)
		return types.Order{}, &types.ValidationError{Messages: validation.Messages, SuggestedResult: validation.ModifiedOrder}
	}
	if validation.ModifiedOrder != nil {
		req = *validation.ModifiedOrder
	}

	order := e.orders.Register(req)
	e.publish(ctx, events.TypeOrderSubmitted, order.Symbol.String(), order)

	submitCtx, cancel := context.WithTimeout(ctx, e.config.IOTimeout)
	defer cancel()

	retryCfg := utils.DefaultRetryConfig()
	retryCfg.MaxAttempts = e.config.RetryAttempts + 1
	retryCfg.InitialDelay = e.config.RetryDelay
	attempt := 0
	exchangeOrderID, err := utils.Retry(retryCfg, func() (string, error) {
		attempt++
		id, submitErr := conn.Submit(submitCtx, order)
		if submitErr != nil {
			e.logger.Warn("order submission failed, retrying",
				zap.String("order_id", order.ID),
				zap.Int("attempt", attempt),
				zap.Error(submitErr))
		}
		return id, submitErr
	})
	if err != nil {
		rejected, rejectErr := e.orders.Reject(order.ID)
		if rejectErr != nil {
			e.logger.Error("failed to mark order rejected after submit failure", zap.String("order_id", order.ID), zap.Error(rejectErr))
		}
		e.publish(ctx, events.TypeOrderRejected, order.Symbol.String(), rejected)
		return types.Order{}, fmt.Errorf("connector submit failed after %d attempts: %w", e.config.RetryAttempts+1, err)
	}

	opened, err := e.orders.MarkOpen(order.ID, exchangeOrderID)
	if err != nil {
		return types.Order{}, err
	}
	e.publish(ctx, events.TypeOrderOpen, opened.Symbol.String(), opened)
	return opened, nil
}

// Cancel delegates to the connector and transitions the order to Cancelled
// on success.
func (e *Executor) Cancel(ctx context.Context, connectorName, orderID string) (types.Order, error) {
	order, ok := e.orders.Get(orderID)
	if !ok {
		return types.Order{}, fmt.Errorf("%w: unknown order %s", types.ErrValidation, orderID)
	}
	conn, ok := e.connectors[connectorName]
	if !ok {
		return types.Order{}, fmt.Errorf("%w: unknown connector %q", types.ErrValidation, connectorName)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, e.config.IOTimeout)
	defer cancel()

	if err := conn.Cancel(cancelCtx, order.ExchangeOrderID); err != nil {
		return types.Order{}, fmt.Errorf("connector cancel failed: %w", err)
	}

	cancelled, err := e.orders.Cancel(orderID)
	if err != nil {
		return types.Order{}, err
	}
	e.publish(ctx, events.TypeOrderCancelled, cancelled.Symbol.String(), cancelled)
	return cancelled, nil
}

// ApplyFill applies a single execution report to its order and, on Filled,
// updates the portfolio book and publishes order_filled / position events
// (spec.md §4.6 steps 6-7). Safe to call repeatedly with the same report —
// duplicates are absorbed by the order manager's idempotency set.
func (e *Executor) ApplyFill(ctx context.Context, orderID, exchange, strategyID string, report types.ExecutionReport) (types.Order, error) {
	order, changed, err := e.orders.ApplyFill(orderID, report)
	if err != nil {
		return types.Order{}, err
	}
	if !changed {
		return order, nil
	}

	e.publish(ctx, events.TypeOrderFilled, order.Symbol.String(), order)
	e.notify(ctx, notify.OrderFilled(order.Symbol.String(), order.Side, report.Quantity, report.Price, order.ID, report.Timestamp))

	if order.Side == types.OrderSideBuy {
		pos := e.book.ApplyBuy(order.Symbol, exchange, strategyID, report)
		e.publish(ctx, events.TypePositionOpened, order.Symbol.String(), pos)
		e.notify(ctx, notify.PositionOpened(order.Symbol.String(), pos.Side, pos.Quantity, pos.EntryPrice, report.Timestamp))
		e.attachStops(order, *pos)
	} else {
		result, pos, err := e.book.ApplySell(order.Symbol, report)
		if err != nil {
			e.logger.Error("failed to apply sell to portfolio book",
				zap.String("order_id", orderID), zap.Error(err))
			e.notify(ctx, notify.SystemError("portfolio_sell_failed", err.Error(), report.Timestamp))
			return order, nil
		}
		if pos != nil && !pos.IsOpen() {
			e.publish(ctx, events.TypePositionClosed, order.Symbol.String(), map[string]any{"position": pos, "sale": result})
			e.notify(ctx, notify.PositionClosed(order.Symbol.String(), pos.Side, result.QuantitySold, pos.EntryPrice, result.SalePrice, result.RealizedPnL, result.RealizedPnLPct, report.Timestamp))
			e.releaseStops(pos.ID)
		}
	}

	return order, nil
}

// StreamFills drains a connector's fill stream and applies each report to
// its order until ctx is cancelled. Intended to run in its own goroutine
// per connector.
func (e *Executor) StreamFills(ctx context.Context, connectorName string) error {
	conn, ok := e.connectors[connectorName]
	if !ok {
		return fmt.Errorf("%w: unknown connector %q", types.ErrValidation, connectorName)
	}
	fills, err := conn.Fills(ctx)
	if err != nil {
		return fmt.Errorf("failed to open fill stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case report, ok := <-fills:
			if !ok {
				return nil
			}
			orders := e.orders.OrdersBySymbol(report.Symbol)
			var target *types.Order
			for i := range orders {
				if orders[i].ExchangeOrderID == report.ExchangeOrderID {
					target = &orders[i]
					break
				}
			}
			if target == nil {
				e.logger.Warn("fill report for unknown order", zap.String("exchange_order_id", report.ExchangeOrderID))
				continue
			}
			if _, err := e.ApplyFill(ctx, target.ID, connectorName, target.StrategyID, report); err != nil {
				e.logger.Error("failed to apply streamed fill", zap.String("order_id", target.ID), zap.Error(err))
			}
		}
	}
}

func (e *Executor) publish(ctx context.Context, t events.Type, symbol string, payload any) {
	e.bus.Publish(ctx, events.Event{Type: t, Symbol: symbol, Payload: payload})
}
