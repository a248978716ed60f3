package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// Book owns one CostBasisTracker and one Position per symbol, and the
// account's equity curve. It is the position half of the portfolio
// component; internal/execution applies fills here after a successful
// order submission.
type Book struct {
	logger *zap.Logger

	mu        sync.RWMutex
	trackers  map[string]*CostBasisTracker
	positions map[string]*types.Position
	equity    *EquityCurve

	tradeDay   time.Time
	tradeTotal int
	tradeWins  int
	tradePnL   decimal.Decimal
}

// NewBook constructs an empty position book.
func NewBook(logger *zap.Logger) *Book {
	return &Book{
		logger:    logger.Named("portfolio"),
		trackers:  make(map[string]*CostBasisTracker),
		positions: make(map[string]*types.Position),
		equity:    NewEquityCurve(),
		tradeDay:  utcDay(time.Now()),
	}
}

func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// rolloverTradeStatsLocked resets the realized-trade counters when the
// observed day has changed, mirroring the risk package's DailyLossTracker.
func (b *Book) rolloverTradeStatsLocked(now time.Time) {
	day := utcDay(now)
	if day.Equal(b.tradeDay) {
		return
	}
	b.tradeDay = day
	b.tradeTotal = 0
	b.tradeWins = 0
	b.tradePnL = decimal.Zero
}

// DailyTradeStats reports the count and realized PnL of sells applied so far
// on now's UTC day, sourcing notify.DailySummary's inputs.
func (b *Book) DailyTradeStats(now time.Time) (total, wins int, pnl decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverTradeStatsLocked(now)
	return b.tradeTotal, b.tradeWins, b.tradePnL
}

func (b *Book) tracker(symbol types.Symbol) *CostBasisTracker {
	key := symbol.String()
	t, ok := b.trackers[key]
	if !ok {
		t = NewCostBasisTracker(symbol)
		b.trackers[key] = t
	}
	return t
}

// ApplyBuy adds a lot and opens/extends the symbol's position.
func (b *Book) ApplyBuy(symbol types.Symbol, exchange, strategyID string, exec types.ExecutionReport) *types.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tracker(symbol)
	t.Buy(exec.ExecutionID, exec.Quantity, exec.Price, exec.Fee, exec.Timestamp, exec.ExecutionID)

	key := symbol.String()
	pos, ok := b.positions[key]
	if !ok || !pos.IsOpen() {
		pos = &types.Position{
			ID:         exec.ExecutionID,
			Exchange:   exchange,
			Symbol:     symbol,
			Side:       types.PositionSideLong,
			StrategyID: strategyID,
			OpenedAt:   exec.Timestamp,
		}
		b.positions[key] = pos
	}
	pos.Quantity = t.TotalQuantity()
	pos.EntryPrice = t.AverageCost()
	pos.CurrentPrice = exec.Price
	return pos
}

// ApplySell consumes lots FIFO and updates realized PnL and the position
// quantity; closes the position when it empties.
func (b *Book) ApplySell(symbol types.Symbol, exec types.ExecutionReport) (*SaleResult, *types.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.tracker(symbol)
	result, err := t.Sell(exec.Quantity, exec.Price, exec.Fee, exec.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	b.rolloverTradeStatsLocked(exec.Timestamp)
	b.tradeTotal++
	if result.RealizedPnL.IsPositive() {
		b.tradeWins++
	}
	b.tradePnL = b.tradePnL.Add(result.RealizedPnL)

	key := symbol.String()
	pos := b.positions[key]
	if pos != nil {
		pos.Quantity = t.TotalQuantity()
		pos.CurrentPrice = exec.Price
		pos.RealizedPnL = pos.RealizedPnL.Add(result.RealizedPnL)
		if !pos.Quantity.IsPositive() {
			closedAt := exec.Timestamp
			pos.ClosedAt = &closedAt
		}
	}

	return result, pos, nil
}

// MarkPrice updates the live price and unrealized PnL of an open position.
func (b *Book) MarkPrice(symbol types.Symbol, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := symbol.String()
	pos, ok := b.positions[key]
	if !ok || !pos.IsOpen() {
		return
	}
	t := b.tracker(symbol)
	pos.CurrentPrice = price
	pos.UnrealizedPnL = t.UnrealizedPnL(price)
}

// Position returns the current position for a symbol, if any.
func (b *Book) Position(symbol types.Symbol) (types.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[symbol.String()]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// OpenPositions returns a snapshot of every currently open position.
func (b *Book) OpenPositions() []types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		if pos.IsOpen() {
			out = append(out, *pos)
		}
	}
	return out
}

// Tracker exposes a symbol's cost-basis tracker for read-only queries.
func (b *Book) Tracker(symbol types.Symbol) (*CostBasisTracker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.trackers[symbol.String()]
	return t, ok
}

// RecordEquity samples total account equity onto the curve.
func (b *Book) RecordEquity(ts time.Time, equity decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.equity.Record(ts, equity)
}

// Equity exposes the account's equity curve.
func (b *Book) Equity() *EquityCurve {
	return b.equity
}

// TotalEquity sums cash plus the market value of every open position at its
// last marked price.
func (b *Book) TotalEquity(cash decimal.Decimal) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := cash
	for key, pos := range b.positions {
		if !pos.IsOpen() {
			continue
		}
		t := b.trackers[key]
		total = total.Add(t.TotalQuantity().Mul(pos.CurrentPrice))
	}
	return total
}
