package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/events"
	"github.com/tyeom/zeroquant-go/internal/notify"
	"github.com/tyeom/zeroquant-go/pkg/types"
	"github.com/tyeom/zeroquant-go/pkg/utils"
)

// positionStops bundles the protective orders attached to one open position:
// a fixed stop-loss, a fixed take-profit, and an optional trailing stop
// whose state lives in the risk manager (spec.md §4.4's protective-stop
// generation step, wired here rather than left dangling as unit-tested-only
// helpers).
type positionStops struct {
	positionID string
	symbol     types.Symbol
	stopLoss   *types.StopOrder
	takeProfit *types.StopOrder
}

// attachStops derives and records the protective orders for a position that
// just opened, reading the entry/target/trail prices the risk manager
// attached to the filled order's metadata during Translate. A position
// opened through the manual API (no metadata) gets no protective stops,
// which is the documented trade-off of that path.
func (e *Executor) attachStops(order types.Order, pos types.Position) {
	sl, hasSL := decimalFromMetadata(order.Metadata, "stopLoss")
	tp, hasTP := decimalFromMetadata(order.Metadata, "takeProfit")
	if !hasSL && !hasTP {
		return
	}

	exitSide := types.OrderSideSell
	if pos.Side == types.PositionSideShort {
		exitSide = types.OrderSideBuy
	}

	stops := positionStops{positionID: pos.ID, symbol: pos.Symbol}
	if hasSL && sl.IsPositive() {
		stops.stopLoss = &types.StopOrder{Kind: types.StopKindStopLoss, TriggerPrice: sl, Side: exitSide, Quantity: pos.Quantity}
	}
	if hasTP && tp.IsPositive() {
		stops.takeProfit = &types.StopOrder{Kind: types.StopKindTakeProfit, TriggerPrice: tp, Side: exitSide, Quantity: pos.Quantity}
	}

	e.stopsMu.Lock()
	e.stops[pos.ID] = stops
	e.stopsMu.Unlock()

	if trailPct, ok := decimalFromMetadata(order.Metadata, "trailPct"); ok && trailPct.IsPositive() {
		e.risk.AttachTrailingStop(pos.ID, pos.Side, pos.EntryPrice, trailPct)
	}

	e.logger.Info("protective stops attached",
		zap.String("position_id", pos.ID),
		zap.String("symbol", pos.Symbol.String()),
		zap.Bool("stop_loss", stops.stopLoss != nil),
		zap.Bool("take_profit", stops.takeProfit != nil),
		zap.Bool("trailing", trailPctPresent(order.Metadata)))
}

func trailPctPresent(metadata map[string]any) bool {
	_, ok := decimalFromMetadata(metadata, "trailPct")
	return ok
}

// decimalFromMetadata extracts a decimal.Decimal stashed directly in an
// OrderRequest/Order's Metadata map by Translate (Metadata is map[string]any,
// so no string round-trip is needed).
func decimalFromMetadata(metadata map[string]any, key string) (decimal.Decimal, bool) {
	raw, ok := metadata[key]
	if !ok {
		return decimal.Decimal{}, false
	}
	d, ok := raw.(decimal.Decimal)
	return d, ok
}

// releaseStops drops a closed position's protective orders and trailing
// state.
func (e *Executor) releaseStops(positionID string) {
	e.stopsMu.Lock()
	delete(e.stops, positionID)
	e.stopsMu.Unlock()
	e.risk.RemoveTrailingStop(positionID)
}

// Stops returns the protective orders currently armed for a position, for
// read-only inspection (API layer).
func (e *Executor) Stops(positionID string) ([]types.StopOrder, bool) {
	e.stopsMu.RLock()
	s, ok := e.stops[positionID]
	e.stopsMu.RUnlock()
	if !ok {
		return nil, false
	}
	out := make([]types.StopOrder, 0, 3)
	if s.stopLoss != nil {
		out = append(out, *s.stopLoss)
	}
	if s.takeProfit != nil {
		out = append(out, *s.takeProfit)
	}
	if trail, ok := e.risk.TrailingStop(positionID); ok {
		out = append(out, types.StopOrder{Kind: types.StopKindTrailing, TriggerPrice: trail.TriggerPrice, TrailPct: trail.TrailPct})
	}
	return out, true
}

// CheckStops evaluates every armed position on symbol against price,
// advancing trailing stops and submitting a market exit the moment a
// stop-loss, take-profit, or trailing trigger is crossed (spec.md §4.4).
// Intended to be called by the strategy dispatcher on every tick/kline
// event for a symbol that carries open positions.
func (e *Executor) CheckStops(ctx context.Context, symbol types.Symbol, price decimal.Decimal, connectorName string) {
	if !price.IsPositive() {
		return
	}

	e.stopsMu.RLock()
	var matches []positionStops
	for _, s := range e.stops {
		if s.symbol == symbol {
			matches = append(matches, s)
		}
	}
	e.stopsMu.RUnlock()

	for _, s := range matches {
		e.evaluateTrigger(ctx, s, price, connectorName)
	}
}

func (e *Executor) evaluateTrigger(ctx context.Context, s positionStops, price decimal.Decimal, connectorName string) {
	pos, ok := e.book.Position(s.symbol)
	if !ok || !pos.IsOpen() {
		e.releaseStops(s.positionID)
		return
	}

	var triggered *types.StopOrder
	var kind types.StopKind

	if trail := e.risk.UpdateTrailingStop(s.positionID, price); trail != nil && trail.ShouldTrigger(price) {
		exitSide := types.OrderSideSell
		if pos.Side == types.PositionSideShort {
			exitSide = types.OrderSideBuy
		}
		triggered = &types.StopOrder{Kind: types.StopKindTrailing, TriggerPrice: trail.TriggerPrice, Side: exitSide, Quantity: pos.Quantity}
		kind = types.StopKindTrailing
	}

	if triggered == nil && s.stopLoss != nil && stopCrosses(*s.stopLoss, price) {
		triggered = s.stopLoss
		kind = types.StopKindStopLoss
	}
	if triggered == nil && s.takeProfit != nil && stopCrosses(*s.takeProfit, price) {
		triggered = s.takeProfit
		kind = types.StopKindTakeProfit
	}
	if triggered == nil {
		return
	}

	req := types.OrderRequest{
		Symbol:      s.symbol,
		Side:        triggered.Side,
		OrderType:   types.OrderTypeMarket,
		Quantity:    triggered.Quantity,
		Price:       price,
		TimeInForce: types.TimeInForceIOC,
		StrategyID:  "risk_stop",
		SignalID:    utils.GenerateTradeID(),
	}

	positions := e.book.OpenPositions()
	balance, err := e.balanceFor(ctx, connectorName, s.symbol)
	if err != nil {
		e.logger.Error("failed to read balance for stop exit", zap.String("position_id", s.positionID), zap.Error(err))
		return
	}

	if _, err := e.Submit(ctx, req, connectorName, positions, balance, decimal.Zero); err != nil {
		e.logger.Error("stop-triggered exit submit failed",
			zap.String("position_id", s.positionID), zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	e.releaseStops(s.positionID)

	pnl := price.Sub(pos.EntryPrice).Mul(triggered.Quantity).Abs()
	now := time.Now()
	switch kind {
	case types.StopKindStopLoss, types.StopKindTrailing:
		e.notify(ctx, notify.StopLossTriggered(s.symbol.String(), triggered.Quantity, triggered.TriggerPrice, pnl, now))
	case types.StopKindTakeProfit:
		e.notify(ctx, notify.TakeProfitTriggered(s.symbol.String(), triggered.Quantity, triggered.TriggerPrice, pnl, now))
	}
	e.publish(ctx, events.TypeStopTriggered, s.symbol.String(), map[string]any{"positionId": s.positionID, "kind": kind, "price": price})
}

// stopCrosses reports whether price has crossed a fixed stop-loss/take-profit
// trigger, side-aware: a sell-side stop (closing a long) fires at-or-below
// its stop-loss trigger and at-or-above its take-profit trigger; a buy-side
// stop (closing a short) mirrors both comparisons.
func stopCrosses(stop types.StopOrder, price decimal.Decimal) bool {
	switch stop.Kind {
	case types.StopKindStopLoss:
		if stop.Side == types.OrderSideSell {
			return price.LessThanOrEqual(stop.TriggerPrice)
		}
		return price.GreaterThanOrEqual(stop.TriggerPrice)
	case types.StopKindTakeProfit:
		if stop.Side == types.OrderSideSell {
			return price.GreaterThanOrEqual(stop.TriggerPrice)
		}
		return price.LessThanOrEqual(stop.TriggerPrice)
	default:
		return false
	}
}

// balanceFor reads the connector's balance in the symbol's quote currency
// (USD when the symbol has no quote). An unknown connector yields zero; a
// connector error is returned as is, with no fallback balance.
func (e *Executor) balanceFor(ctx context.Context, connectorName string, symbol types.Symbol) (decimal.Decimal, error) {
	conn, ok := e.connectors[connectorName]
	if !ok {
		return decimal.Zero, nil
	}
	currency := symbol.Quote
	if currency == "" {
		currency = "USD"
	}
	return conn.Balance(ctx, currency)
}
