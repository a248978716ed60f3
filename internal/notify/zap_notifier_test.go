package notify

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

func newObservedNotifier() (*ZapNotifier, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapNotifier(zap.New(core)), logs
}

func TestZapNotifierLogsOrderFilled(t *testing.T) {
	n, logs := newObservedNotifier()
	ts := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)

	err := n.Notify(context.Background(), OrderFilled("BTC/USDT", types.OrderSideBuy, decimal.NewFromFloat(0.01), decimal.NewFromInt(50000), "12345", ts))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Message != string(KindOrderFilled) {
		t.Fatalf("message = %q, want %q", entry.Message, KindOrderFilled)
	}
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("level = %v, want info for a normal-priority notification", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["symbol"] != "BTC/USDT" || fields["orderId"] != "12345" {
		t.Fatalf("fields = %+v, want symbol and orderId populated", fields)
	}
}

func TestZapNotifierEscalatesPriorityToWarn(t *testing.T) {
	n, logs := newObservedNotifier()
	ts := time.Now()

	if err := n.Notify(context.Background(), RiskAlert("daily_loss", "daily limit reached", decimal.NewFromInt(100), decimal.NewFromInt(90), ts)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("level = %v, want warn for a critical-priority notification", entries[0].Level)
	}
}

func TestDailySummaryComputesWinRate(t *testing.T) {
	n := DailySummary(time.Now(), 4, 3, decimal.NewFromInt(150))
	if n.Fields["winRatePct"].(decimal.Decimal).Cmp(decimal.NewFromInt(75)) != 0 {
		t.Fatalf("winRatePct = %v, want 75", n.Fields["winRatePct"])
	}
}

func TestDailySummaryZeroTradesNoDivideByZero(t *testing.T) {
	n := DailySummary(time.Now(), 0, 0, decimal.Zero)
	if !n.Fields["winRatePct"].(decimal.Decimal).IsZero() {
		t.Fatalf("winRatePct = %v, want 0 with no trades", n.Fields["winRatePct"])
	}
}
