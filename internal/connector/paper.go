// Package connector implements the Connector contract against concrete
// venues. PaperConnector is a fully in-process simulator used for the
// PaperTrading mode described in spec.md §4.6 end note and grounded on the
// KIS auth/session shape in original_source's trader-exchange crate, minus
// any real network calls.
package connector

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// PaperConfig tunes the simulator's fill behavior.
type PaperConfig struct {
	BaseSlippage       decimal.Decimal // applied against the quoted price, e.g. 0.0005
	CommissionRate     decimal.Decimal // e.g. 0.00015
	FillLatency        time.Duration
	StartingBalanceUSD decimal.Decimal
}

// DefaultPaperConfig matches a conservative retail-commission assumption.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		BaseSlippage:       decimal.NewFromFloat(0.0005),
		CommissionRate:     decimal.NewFromFloat(0.00015),
		FillLatency:        50 * time.Millisecond,
		StartingBalanceUSD: decimal.NewFromInt(100_000),
	}
}

// PaperConnector simulates a venue in-process: every Submit fills
// immediately (after FillLatency) at the quoted price plus a random
// slippage draw, with no real order book or network I/O.
type PaperConnector struct {
	logger *zap.Logger
	config PaperConfig

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	quotes   map[string]decimal.Decimal // last known price per symbol key
	fills    chan types.ExecutionReport
}

// NewPaperConnector constructs a simulator seeded with a starting USD
// balance.
func NewPaperConnector(logger *zap.Logger, config PaperConfig) *PaperConnector {
	return &PaperConnector{
		logger:   logger.Named("connector.paper"),
		config:   config,
		balances: map[string]decimal.Decimal{"USD": config.StartingBalanceUSD},
		quotes:   make(map[string]decimal.Decimal),
		fills:    make(chan types.ExecutionReport, 256),
	}
}

// Name satisfies execution.Connector.
func (p *PaperConnector) Name() string { return "paper" }

// SetQuote seeds the simulator's notion of the current price for a symbol;
// a test harness or market-data feed calls this before Submit.
func (p *PaperConnector) SetQuote(symbol types.Symbol, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[symbol.String()] = price
}

// Submit fills the order immediately against the last known quote.
func (p *PaperConnector) Submit(ctx context.Context, order types.Order) (string, error) {
	p.mu.Lock()
	price, ok := p.quotes[order.Symbol.String()]
	p.mu.Unlock()
	if !ok || !price.IsPositive() {
		return "", fmt.Errorf("%w: no quote available for %s", types.ErrValidation, order.Symbol)
	}

	select {
	case <-time.After(p.config.FillLatency):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	slip := p.config.BaseSlippage.Mul(decimal.NewFromFloat(0.5 + rand.Float64()))
	fillPrice := price
	if order.Side == types.OrderSideBuy {
		fillPrice = price.Mul(decimal.NewFromInt(1).Add(slip))
	} else {
		fillPrice = price.Mul(decimal.NewFromInt(1).Sub(slip))
	}
	if order.OrderType == types.OrderTypeLimit && !order.Price.IsZero() {
		if order.Side == types.OrderSideBuy && fillPrice.GreaterThan(order.Price) {
			fillPrice = order.Price
		}
		if order.Side == types.OrderSideSell && fillPrice.LessThan(order.Price) {
			fillPrice = order.Price
		}
	}

	exchangeOrderID := uuid.NewString()
	fee := order.Quantity.Mul(fillPrice).Mul(p.config.CommissionRate)

	p.mu.Lock()
	p.applyBalanceLocked(order, fillPrice, fee)
	p.mu.Unlock()

	report := types.ExecutionReport{
		ExchangeOrderID: exchangeOrderID,
		ExecutionID:     uuid.NewString(),
		Symbol:          order.Symbol,
		Side:            order.Side,
		Quantity:        order.Quantity,
		Price:           fillPrice,
		Fee:             fee,
		Timestamp:       time.Now(),
	}

	select {
	case p.fills <- report:
	default:
		p.logger.Warn("paper connector fill channel full, dropping", zap.String("symbol", order.Symbol.String()))
	}

	return exchangeOrderID, nil
}

func (p *PaperConnector) applyBalanceLocked(order types.Order, price, fee decimal.Decimal) {
	notional := order.Quantity.Mul(price)
	quote := order.Symbol.Quote
	if quote == "" {
		quote = "USD"
	}
	bal := p.balances[quote]
	if order.Side == types.OrderSideBuy {
		p.balances[quote] = bal.Sub(notional).Sub(fee)
	} else {
		p.balances[quote] = bal.Add(notional).Sub(fee)
	}
}

// Cancel is a no-op: paper fills are instantaneous, so nothing is ever
// resting long enough to cancel.
func (p *PaperConnector) Cancel(ctx context.Context, exchangeOrderID string) error {
	return nil
}

// Modify is unsupported for instantaneous paper fills.
func (p *PaperConnector) Modify(ctx context.Context, exchangeOrderID string, quantity, price *decimal.Decimal) error {
	return fmt.Errorf("%w: paper connector orders fill immediately and cannot be modified", types.ErrValidation)
}

// Balance returns the simulated cash balance for a currency.
func (p *PaperConnector) Balance(ctx context.Context, currency string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[currency], nil
}

// Holdings is unimplemented: the simulator defers position tracking to
// internal/portfolio.Book, which derives it from fills.
func (p *PaperConnector) Holdings(ctx context.Context) ([]types.Position, error) {
	return nil, nil
}

// Subscribe is unsupported; the paper connector expects quotes pushed in
// via SetQuote rather than streamed.
func (p *PaperConnector) Subscribe(ctx context.Context, symbols []types.Symbol) (<-chan types.MarketData, error) {
	return nil, fmt.Errorf("%w: paper connector has no live feed, call SetQuote instead", types.ErrValidation)
}

// FetchKlines is unsupported for the same reason as Subscribe.
func (p *PaperConnector) FetchKlines(ctx context.Context, symbol types.Symbol, tf types.Timeframe, limit int) ([]types.Kline, error) {
	return nil, fmt.Errorf("%w: paper connector has no historical data", types.ErrValidation)
}

// Fills returns the channel of simulated execution reports.
func (p *PaperConnector) Fills(ctx context.Context) (<-chan types.ExecutionReport, error) {
	return p.fills, nil
}
