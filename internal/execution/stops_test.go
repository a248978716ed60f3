package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/events"
	"github.com/tyeom/zeroquant-go/internal/portfolio"
	"github.com/tyeom/zeroquant-go/internal/risk"
	"github.com/tyeom/zeroquant-go/pkg/types"
)

// stubConnector is a minimal Connector that just records submitted orders;
// every other method returns a zero value or a closed channel.
type stubConnector struct {
	name      string
	submitted []types.Order
	balance   decimal.Decimal
}

func (c *stubConnector) Name() string { return c.name }
func (c *stubConnector) Submit(ctx context.Context, order types.Order) (string, error) {
	c.submitted = append(c.submitted, order)
	return "ex-" + order.ID, nil
}
func (c *stubConnector) Cancel(ctx context.Context, exchangeOrderID string) error { return nil }
func (c *stubConnector) Modify(ctx context.Context, exchangeOrderID string, quantity, price *decimal.Decimal) error {
	return nil
}
func (c *stubConnector) Balance(ctx context.Context, currency string) (decimal.Decimal, error) {
	return c.balance, nil
}
func (c *stubConnector) Holdings(ctx context.Context) ([]types.Position, error) { return nil, nil }
func (c *stubConnector) Subscribe(ctx context.Context, symbols []types.Symbol) (<-chan types.MarketData, error) {
	ch := make(chan types.MarketData)
	close(ch)
	return ch, nil
}
func (c *stubConnector) FetchKlines(ctx context.Context, symbol types.Symbol, tf types.Timeframe, limit int) ([]types.Kline, error) {
	return nil, nil
}
func (c *stubConnector) Fills(ctx context.Context) (<-chan types.ExecutionReport, error) {
	ch := make(chan types.ExecutionReport)
	close(ch)
	return ch, nil
}

func newTestExecutor(t *testing.T) (*Executor, *stubConnector, *portfolio.Book) {
	t.Helper()
	logger := zap.NewNop()
	bus := events.NewBus(logger, events.DefaultConfig(), nil)
	t.Cleanup(bus.Stop)

	book := portfolio.NewBook(logger)
	riskMgr := risk.NewManager(logger, risk.DefaultConfig(), decimal.NewFromInt(100000))

	cfg := DefaultConfig()
	executor := NewExecutor(logger, cfg, riskMgr, book, bus)

	conn := &stubConnector{name: "paper", balance: decimal.NewFromInt(100000)}
	executor.AddConnector(conn)
	return executor, conn, book
}

func openLongPosition(t *testing.T, executor *Executor, book *portfolio.Book, sym types.Symbol, entryPrice decimal.Decimal, metadata map[string]any) types.Position {
	t.Helper()
	order := types.Order{ID: "o1", Symbol: sym, Side: types.OrderSideBuy, Quantity: decimal.NewFromInt(10), Metadata: metadata}
	pos := book.ApplyBuy(sym, "paper", "strategy1", types.ExecutionReport{
		ExecutionID: "pos1", Symbol: sym, Side: types.OrderSideBuy, Quantity: decimal.NewFromInt(10), Price: entryPrice, Timestamp: time.Now(),
	})
	executor.attachStops(order, *pos)
	return *pos
}

func TestAttachStopsSkipsOrdersWithoutMetadata(t *testing.T) {
	executor, _, book := newTestExecutor(t)
	sym := testSymbol(t)

	pos := openLongPosition(t, executor, book, sym, decimal.NewFromInt(100), nil)

	if _, ok := executor.Stops(pos.ID); ok {
		t.Fatal("expected no stops armed for an order with no stop metadata")
	}
}

func TestAttachStopsArmsStopLossAndTakeProfit(t *testing.T) {
	executor, _, book := newTestExecutor(t)
	sym := testSymbol(t)

	metadata := map[string]any{
		"stopLoss":   decimal.NewFromInt(90),
		"takeProfit": decimal.NewFromInt(120),
	}
	pos := openLongPosition(t, executor, book, sym, decimal.NewFromInt(100), metadata)

	stops, ok := executor.Stops(pos.ID)
	if !ok {
		t.Fatal("expected stops to be armed")
	}
	if len(stops) != 2 {
		t.Fatalf("got %d stops, want 2", len(stops))
	}
}

func TestCheckStopsTriggersMarketExitOnStopLossCross(t *testing.T) {
	executor, conn, book := newTestExecutor(t)
	sym := testSymbol(t)

	metadata := map[string]any{"stopLoss": decimal.NewFromInt(90), "takeProfit": decimal.NewFromInt(120)}
	pos := openLongPosition(t, executor, book, sym, decimal.NewFromInt(100), metadata)
	book.MarkPrice(sym, decimal.NewFromInt(100))

	executor.CheckStops(context.Background(), sym, decimal.NewFromInt(85), "paper")

	if len(conn.submitted) != 1 {
		t.Fatalf("got %d submitted orders, want 1 stop-triggered exit", len(conn.submitted))
	}
	if conn.submitted[0].Side != types.OrderSideSell {
		t.Fatalf("exit side = %v, want sell", conn.submitted[0].Side)
	}
	if _, ok := executor.Stops(pos.ID); ok {
		t.Fatal("expected stops released after the exit order was submitted")
	}
}

func TestCheckStopsDoesNothingWhenPriceIsWithinBand(t *testing.T) {
	executor, conn, book := newTestExecutor(t)
	sym := testSymbol(t)

	metadata := map[string]any{"stopLoss": decimal.NewFromInt(90), "takeProfit": decimal.NewFromInt(120)}
	openLongPosition(t, executor, book, sym, decimal.NewFromInt(100), metadata)

	executor.CheckStops(context.Background(), sym, decimal.NewFromInt(105), "paper")

	if len(conn.submitted) != 0 {
		t.Fatalf("got %d submitted orders, want 0", len(conn.submitted))
	}
}

func testSymbol(t *testing.T) types.Symbol {
	t.Helper()
	sym, err := types.NewSymbol("AAPL", "USD", types.MarketUsStock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sym
}
