// Package notify defines the notification contract (spec.md §6): a typed
// event set the executor and risk manager emit on fills, position changes,
// protective-stop triggers, and risk conditions, and the Notifier interface
// that delivers them. Grounded on original_source's Telegram sender, stripped
// of the Telegram transport itself (out of scope; live transports are left
// to an external collaborator behind this interface).
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// Priority mirrors the teacher's NotificationPriority: callers use it to
// decide delivery urgency (rate limiting, paging, etc.) without the
// Notifier needing to inspect Kind itself.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Kind identifies one variant of the notification contract.
type Kind string

const (
	KindOrderFilled         Kind = "order_filled"
	KindPositionOpened      Kind = "position_opened"
	KindPositionClosed      Kind = "position_closed"
	KindStopLossTriggered   Kind = "stop_loss_triggered"
	KindTakeProfitTriggered Kind = "take_profit_triggered"
	KindDailySummary        Kind = "daily_summary"
	KindRiskAlert           Kind = "risk_alert"
	KindStrategyStarted     Kind = "strategy_started"
	KindStrategyStopped     Kind = "strategy_stopped"
	KindSystemError         Kind = "system_error"
	KindSignalAlert         Kind = "signal_alert"
)

// Notification is one delivered event. Fields carries the kind-specific
// payload; constructors below populate it consistently so callers never
// build the map by hand.
type Notification struct {
	Kind      Kind
	Priority  Priority
	Timestamp time.Time
	Fields    map[string]any
}

// Notifier delivers a Notification. Implementations must not block the
// caller on a slow downstream transport.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// OrderFilled reports a completed fill.
func OrderFilled(symbol string, side types.OrderSide, quantity, price decimal.Decimal, orderID string, ts time.Time) Notification {
	return Notification{
		Kind: KindOrderFilled, Priority: PriorityNormal, Timestamp: ts,
		Fields: map[string]any{
			"symbol": symbol, "side": side, "quantity": quantity, "price": price, "orderId": orderID,
		},
	}
}

// PositionOpened reports a new open position.
func PositionOpened(symbol string, side types.PositionSide, quantity, entryPrice decimal.Decimal, ts time.Time) Notification {
	return Notification{
		Kind: KindPositionOpened, Priority: PriorityNormal, Timestamp: ts,
		Fields: map[string]any{
			"symbol": symbol, "side": side, "quantity": quantity, "entryPrice": entryPrice,
		},
	}
}

// PositionClosed reports a fully closed position. Priority escalates to
// High on a loss, matching the teacher's profit/loss emoji branch.
func PositionClosed(symbol string, side types.PositionSide, quantity, entryPrice, exitPrice, pnl, pnlPct decimal.Decimal, ts time.Time) Notification {
	priority := PriorityNormal
	if pnl.IsNegative() {
		priority = PriorityHigh
	}
	return Notification{
		Kind: KindPositionClosed, Priority: priority, Timestamp: ts,
		Fields: map[string]any{
			"symbol": symbol, "side": side, "quantity": quantity,
			"entryPrice": entryPrice, "exitPrice": exitPrice, "pnl": pnl, "pnlPct": pnlPct,
		},
	}
}

// StopLossTriggered reports a protective stop-loss firing.
func StopLossTriggered(symbol string, quantity, triggerPrice, loss decimal.Decimal, ts time.Time) Notification {
	return Notification{
		Kind: KindStopLossTriggered, Priority: PriorityHigh, Timestamp: ts,
		Fields: map[string]any{
			"symbol": symbol, "quantity": quantity, "triggerPrice": triggerPrice, "loss": loss,
		},
	}
}

// TakeProfitTriggered reports a take-profit firing.
func TakeProfitTriggered(symbol string, quantity, triggerPrice, profit decimal.Decimal, ts time.Time) Notification {
	return Notification{
		Kind: KindTakeProfitTriggered, Priority: PriorityNormal, Timestamp: ts,
		Fields: map[string]any{
			"symbol": symbol, "quantity": quantity, "triggerPrice": triggerPrice, "profit": profit,
		},
	}
}

// DailySummary reports the day's realized trading activity.
func DailySummary(day time.Time, totalTrades, winningTrades int, totalPnL decimal.Decimal) Notification {
	winRate := decimal.Zero
	if totalTrades > 0 {
		winRate = decimal.NewFromInt(int64(winningTrades)).Div(decimal.NewFromInt(int64(totalTrades))).Mul(decimal.NewFromInt(100))
	}
	return Notification{
		Kind: KindDailySummary, Priority: PriorityNormal, Timestamp: day,
		Fields: map[string]any{
			"day": day, "totalTrades": totalTrades, "winningTrades": winningTrades,
			"totalPnL": totalPnL, "winRatePct": winRate,
		},
	}
}

// RiskAlert reports a breached or approaching risk threshold.
func RiskAlert(alertType, message string, currentValue, threshold decimal.Decimal, ts time.Time) Notification {
	return Notification{
		Kind: KindRiskAlert, Priority: PriorityCritical, Timestamp: ts,
		Fields: map[string]any{
			"alertType": alertType, "message": message, "currentValue": currentValue, "threshold": threshold,
		},
	}
}

// StrategyStarted reports a strategy entering the registry's active set.
func StrategyStarted(strategyID, strategyName string, ts time.Time) Notification {
	return Notification{
		Kind: KindStrategyStarted, Priority: PriorityNormal, Timestamp: ts,
		Fields: map[string]any{"strategyId": strategyID, "strategyName": strategyName},
	}
}

// StrategyStopped reports a strategy being torn down.
func StrategyStopped(strategyID, strategyName, reason string, ts time.Time) Notification {
	return Notification{
		Kind: KindStrategyStopped, Priority: PriorityNormal, Timestamp: ts,
		Fields: map[string]any{"strategyId": strategyID, "strategyName": strategyName, "reason": reason},
	}
}

// SystemError reports an unrecoverable internal fault.
func SystemError(errorCode, message string, ts time.Time) Notification {
	return Notification{
		Kind: KindSystemError, Priority: PriorityCritical, Timestamp: ts,
		Fields: map[string]any{"errorCode": errorCode, "message": message},
	}
}

// SignalAlert reports a strategy signal. Priority scales with strength,
// mirroring the teacher's 0.8/0.5 thresholds.
func SignalAlert(signalType, symbol string, side *types.OrderSide, price decimal.Decimal, strength float64, reason, strategyName string, ts time.Time) Notification {
	priority := PriorityLow
	switch {
	case strength >= 0.8:
		priority = PriorityHigh
	case strength >= 0.5:
		priority = PriorityNormal
	}
	return Notification{
		Kind: KindSignalAlert, Priority: priority, Timestamp: ts,
		Fields: map[string]any{
			"signalType": signalType, "symbol": symbol, "side": side,
			"price": price, "strength": strength, "reason": reason, "strategyName": strategyName,
		},
	}
}
