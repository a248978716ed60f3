package strategy

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/events"
	"github.com/tyeom/zeroquant-go/pkg/types"
)

// fakeStrategy emits one Entry signal per OnMarketData call, letting tests
// drive the dispatcher's gating logic without depending on any real
// strategy's indicator math.
type fakeStrategy struct {
	id   string
	ctx  types.StrategyContext
	seen int
}

func (f *fakeStrategy) Name() string                      { return f.id }
func (f *fakeStrategy) Version() string                   { return "test" }
func (f *fakeStrategy) Description() string                { return "test fixture" }
func (f *fakeStrategy) Initialize(json.RawMessage) error   { return nil }
func (f *fakeStrategy) SetContext(ctx types.StrategyContext) { f.ctx = ctx }
func (f *fakeStrategy) OnMarketData(md types.MarketData) ([]types.Signal, error) {
	f.seen++
	return []types.Signal{{
		StrategyID: f.id, Symbol: md.SymbolOf(), Side: types.OrderSideBuy,
		SignalType: types.SignalTypeEntry, Strength: 1, EntryPrice: decimal.NewFromInt(100),
	}}, nil
}
func (f *fakeStrategy) OnOrderFilled(types.Order) error       { return nil }
func (f *fakeStrategy) OnPositionUpdate(types.Position) error { return nil }
func (f *fakeStrategy) GetState() map[string]any              { return nil }
func (f *fakeStrategy) Shutdown() error                       { return nil }

type fakeStopChecker struct{ calls int }

func (f *fakeStopChecker) CheckStops(ctx context.Context, symbol types.Symbol, price decimal.Decimal, connectorName string) {
	f.calls++
}

func newTestDispatcher(t *testing.T, onSignal SignalHandler, stops StopChecker) *Dispatcher {
	t.Helper()
	logger := zap.NewNop()
	bus := events.NewBus(logger, events.DefaultConfig(), nil)
	t.Cleanup(bus.Stop)

	registry := NewStrategyRegistry(logger)
	registry.Register(Registration{ID: "fake", New: func() Strategy { return &fakeStrategy{id: "fake"} }})

	return NewDispatcher(logger, bus, registry, DefaultDispatchConfig(), onSignal, stops)
}

func dispatcherTestSymbol(t *testing.T) types.Symbol {
	t.Helper()
	sym, err := types.NewSymbol("AAPL", "USD", types.MarketUsStock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sym
}

func TestDispatcherRejectsEntrySignalWhenRouteDoesNotAdmit(t *testing.T) {
	sym := dispatcherTestSymbol(t)
	var got []types.Signal
	d := newTestDispatcher(t, func(ctx context.Context, sig types.Signal) { got = append(got, sig) }, nil)
	if err := d.AddStrategy("fake", []types.Symbol{sym}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A Wait route does not admit new entries.
	d.mu.Lock()
	d.snapshot[sym] = &types.SymbolContext{Route: types.RouteWait}
	d.mu.Unlock()

	ticker := types.NewTickerData(types.Ticker{Symbol: sym, Last: decimal.NewFromInt(100), Timestamp: time.Now()}, "test", time.Now())
	if err := d.Ingest(context.Background(), ticker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("got %d signals delivered, want 0 (route gate should reject)", len(got))
	}
}

func TestDispatcherForwardsEntrySignalWhenRouteAdmits(t *testing.T) {
	sym := dispatcherTestSymbol(t)
	var got []types.Signal
	d := newTestDispatcher(t, func(ctx context.Context, sig types.Signal) { got = append(got, sig) }, nil)
	if err := d.AddStrategy("fake", []types.Symbol{sym}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.mu.Lock()
	d.snapshot[sym] = &types.SymbolContext{
		Route: types.RouteAttack,
		Score: &types.GlobalScoreResult{Symbol: sym.String(), OverallScore: 80},
	}
	d.mu.Unlock()

	ticker := types.NewTickerData(types.Ticker{Symbol: sym, Last: decimal.NewFromInt(100), Timestamp: time.Now()}, "test", time.Now())
	if err := d.Ingest(context.Background(), ticker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("got %d signals delivered, want 1", len(got))
	}
	if got[0].StrategyID != "fake" {
		t.Fatalf("StrategyID = %q, want fake", got[0].StrategyID)
	}
}

func TestDispatcherIgnoresUnwatchedSymbol(t *testing.T) {
	sym := dispatcherTestSymbol(t)
	other, err := types.NewSymbol("MSFT", "USD", types.MarketUsStock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []types.Signal
	d := newTestDispatcher(t, func(ctx context.Context, sig types.Signal) { got = append(got, sig) }, nil)
	if err := d.AddStrategy("fake", []types.Symbol{sym}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ticker := types.NewTickerData(types.Ticker{Symbol: other, Last: decimal.NewFromInt(100), Timestamp: time.Now()}, "test", time.Now())
	if err := d.Ingest(context.Background(), ticker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("got %d signals delivered for an unwatched symbol, want 0", len(got))
	}
}

func TestDispatcherCallsStopCheckerOnPricedEvent(t *testing.T) {
	sym := dispatcherTestSymbol(t)
	stops := &fakeStopChecker{}
	d := newTestDispatcher(t, nil, stops)

	trade := types.NewTradeData(types.Trade{Symbol: sym, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Timestamp: time.Now()}, "test", time.Now())
	if err := d.Ingest(context.Background(), trade); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stops.calls != 1 {
		t.Fatalf("CheckStops calls = %d, want 1", stops.calls)
	}
}

func TestDispatcherIngestRejectsEmptySymbol(t *testing.T) {
	d := newTestDispatcher(t, nil, nil)
	if err := d.Ingest(context.Background(), types.MarketData{}); err == nil {
		t.Fatal("expected an error for market data with no symbol")
	}
}
