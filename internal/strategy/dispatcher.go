package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/events"
	"github.com/tyeom/zeroquant-go/internal/scoring"
	"github.com/tyeom/zeroquant-go/pkg/types"
)

// maxBufferBars caps how many klines the dispatcher retains per symbol per
// timeframe: comfortably above minScoringCloses (50) without growing
// unbounded across a long-running process.
const maxBufferBars = 300

// SignalHandler receives every signal a strategy emits, in the order the
// dispatcher collected it. The runtime wires this to the risk manager's
// Translate + executor Submit pipeline (spec.md §2 step 6).
type SignalHandler func(ctx context.Context, sig types.Signal)

// StopChecker lets the dispatcher poke the execution layer's protective-stop
// evaluation on every price update, without internal/strategy importing
// internal/execution directly.
type StopChecker interface {
	CheckStops(ctx context.Context, symbol types.Symbol, price decimal.Decimal, connectorName string)
}

// instance is one configured strategy the dispatcher hosts: the live
// Strategy plus the symbols/timeframe it should receive events for.
type instance struct {
	id        string
	strategy  Strategy
	symbols   map[types.Symbol]bool // empty/nil set means "every symbol"
	markets   []types.MarketType
	timeframe types.Timeframe
}

func (i *instance) watches(sym types.Symbol) bool {
	if len(i.symbols) == 0 {
		return true
	}
	return i.symbols[sym]
}

func (i *instance) supportsMarket(mt types.MarketType) bool {
	if len(i.markets) == 0 {
		return true
	}
	for _, m := range i.markets {
		if m == mt {
			return true
		}
	}
	return false
}

// DispatchConfig tunes the scorer/route-state inputs and the entry floor
// every strategy's admitsEntry gate checks against (spec.md §4.3).
type DispatchConfig struct {
	MinEntryScore float64
	RouteParams   scoring.RouteStateParams
	ConnectorName string // which connector's balance/positions back CheckStops
}

// DefaultDispatchConfig mirrors the scorer's own default thresholds.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		MinEntryScore: 55,
		RouteParams:   scoring.DefaultRouteStateParams(),
		ConnectorName: "paper",
	}
}

// Dispatcher hosts an open set of configured Strategy instances and feeds
// them market events in per-symbol order, maintaining the shared
// StrategyContext (RouteState + GlobalScore + kline buffers) each strategy
// reads (spec.md §4.3's core responsibility). It is the sole caller of
// Strategy.OnMarketData in the assembled system.
type Dispatcher struct {
	logger *zap.Logger
	config DispatchConfig

	bus      *events.Bus
	registry *StrategyRegistry
	scorer   *scoring.GlobalScorer
	onSignal SignalHandler
	stops    StopChecker

	mu        sync.RWMutex
	instances []*instance
	buffers   map[types.Symbol]map[types.Timeframe][]types.Kline
	snapshot  map[types.Symbol]*types.SymbolContext
}

// NewDispatcher wires a dispatcher to the bus (for downstream broadcast of
// raw market events), the registry it instantiates strategies from, and the
// callback signals are routed to.
func NewDispatcher(logger *zap.Logger, bus *events.Bus, registry *StrategyRegistry, config DispatchConfig, onSignal SignalHandler, stops StopChecker) *Dispatcher {
	return &Dispatcher{
		logger:   logger.Named("strategy.dispatcher"),
		config:   config,
		bus:      bus,
		registry: registry,
		scorer:   scoring.NewGlobalScorer(logger),
		onSignal: onSignal,
		stops:    stops,
		buffers:  make(map[types.Symbol]map[types.Timeframe][]types.Kline),
		snapshot: make(map[types.Symbol]*types.SymbolContext),
	}
}

// AddStrategy instantiates idOrAlias from the registry and configures it to
// receive events for symbols (empty means every symbol the dispatcher ever
// sees). params is passed through to Strategy.Initialize verbatim.
func (d *Dispatcher) AddStrategy(idOrAlias string, symbols []types.Symbol, params json.RawMessage) error {
	strat, err := d.registry.Create(idOrAlias)
	if err != nil {
		return err
	}
	if err := strat.Initialize(params); err != nil {
		return fmt.Errorf("initializing strategy %s: %w", idOrAlias, err)
	}

	reg, _ := d.registry.Registration(idOrAlias)
	symSet := make(map[types.Symbol]bool, len(symbols))
	for _, s := range symbols {
		symSet[s] = true
	}

	d.mu.Lock()
	d.instances = append(d.instances, &instance{
		id:        reg.ID,
		strategy:  strat,
		symbols:   symSet,
		markets:   reg.SupportedMarkets,
		timeframe: reg.DefaultTimeframe,
	})
	d.mu.Unlock()

	d.logger.Info("strategy registered with dispatcher", zap.String("id", reg.ID), zap.Int("symbols", len(symbols)))
	return nil
}

// Stop shuts down every hosted strategy instance.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, inst := range d.instances {
		if err := inst.strategy.Shutdown(); err != nil {
			d.logger.Warn("strategy shutdown error", zap.String("id", inst.id), zap.Error(err))
		}
	}
}

// Ingest is the single bridge point every market-data source (a live
// connector feed, the paper connector's simulated quotes, or a test
// harness) calls to hand the dispatcher one event. Events for a given
// symbol must be ingested in timestamp order by the caller; Ingest itself
// processes synchronously, so a caller that ingests sequentially gets
// per-symbol ordered delivery to strategies for free (spec.md §4.3, §5).
//
// Ingest also rebroadcasts md onto the event bus as TypeTick/TypeKlineClose
// so the WebSocket hub and other observers see raw market data, independent
// of strategy dispatch.
func (d *Dispatcher) Ingest(ctx context.Context, md types.MarketData) error {
	sym := md.SymbolOf()
	if sym.Base == "" {
		return fmt.Errorf("%w: market data carries no symbol", types.ErrValidation)
	}

	d.rebroadcast(ctx, sym, md)

	price, hasPrice := priceOf(md)
	if hasPrice && d.stops != nil {
		d.stops.CheckStops(ctx, sym, price, d.config.ConnectorName)
	}

	if md.Kind == types.MarketDataKindKline && md.KlineData != nil {
		d.updateContext(*md.KlineData)
	}

	signals, err := d.dispatch(sym, md)
	if err != nil {
		return err
	}
	for _, sig := range signals {
		if d.onSignal != nil {
			d.onSignal(ctx, sig)
		}
		d.bus.Publish(ctx, events.Event{Type: events.TypeSignalAlert, Symbol: sym.String(), Payload: sig})
	}
	return nil
}

func priceOf(md types.MarketData) (decimal.Decimal, bool) {
	switch md.Kind {
	case types.MarketDataKindKline:
		if md.KlineData != nil {
			return md.KlineData.Close, true
		}
	case types.MarketDataKindTicker:
		if md.TickerData != nil {
			return md.TickerData.Last, true
		}
	case types.MarketDataKindTrade:
		if md.TradeData != nil {
			return md.TradeData.Price, true
		}
	}
	return decimal.Decimal{}, false
}

func (d *Dispatcher) rebroadcast(ctx context.Context, sym types.Symbol, md types.MarketData) {
	evtType := events.TypeTick
	if md.Kind == types.MarketDataKindKline {
		evtType = events.TypeKlineClose
	} else if md.Kind == types.MarketDataKindOrderBook {
		evtType = events.TypeOrderBook
	}
	d.bus.Publish(ctx, events.Event{Type: evtType, Symbol: sym.String(), Timestamp: md.ReceivedAt, Payload: md})
}

// updateContext appends k to the symbol/timeframe buffer and, once enough
// closes have accumulated, recomputes the RouteState and GlobalScore for
// that symbol (spec.md §4.2's gating inputs).
func (d *Dispatcher) updateContext(k types.Kline) {
	d.mu.Lock()
	defer d.mu.Unlock()

	byTF, ok := d.buffers[k.Symbol]
	if !ok {
		byTF = make(map[types.Timeframe][]types.Kline)
		d.buffers[k.Symbol] = byTF
	}
	bars := append(byTF[k.Timeframe], k)
	if len(bars) > maxBufferBars {
		bars = bars[len(bars)-maxBufferBars:]
	}
	byTF[k.Timeframe] = bars

	sc, ok := d.snapshot[k.Symbol]
	if !ok {
		sc = &types.SymbolContext{Route: types.RouteNeutral, Buffers: make(map[types.Timeframe][]types.Kline)}
		d.snapshot[k.Symbol] = sc
	}
	sc.Buffers[k.Timeframe] = bars

	closes := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	sc.Route = scoring.ClassifyRouteState(closes, d.config.RouteParams)

	if result, err := d.scorer.Score(scoring.ScoreInput{Symbol: k.Symbol, Closes: closes, Price: k.Close}); err == nil {
		sc.Score = result
	}
}

// contextSnapshot builds the immutable StrategyContext handed to strategies:
// a shallow copy of the per-symbol pointers, matching spec.md §9's
// "immutable snapshot handed out per event" design note.
func (d *Dispatcher) contextSnapshot() types.StrategyContext {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[types.Symbol]*types.SymbolContext, len(d.snapshot))
	for sym, sc := range d.snapshot {
		copied := *sc
		out[sym] = &copied
	}
	return types.StrategyContext{Snapshot: out}
}

// dispatch injects the current context into every instance watching sym and
// its supported market, calls OnMarketData, and collects emitted signals,
// applying the RouteState/GlobalScore entry gate before forwarding Entry
// signals onward (spec.md §4.3: "reject when route in {Overheat, Wait} or
// overall_score below configured floor").
func (d *Dispatcher) dispatch(sym types.Symbol, md types.MarketData) ([]types.Signal, error) {
	ctxSnap := d.contextSnapshot()
	sc := ctxSnap.Get(sym)

	d.mu.RLock()
	matching := make([]*instance, 0, len(d.instances))
	for _, inst := range d.instances {
		if inst.watches(sym) && inst.supportsMarket(sym.MarketType) {
			matching = append(matching, inst)
		}
	}
	d.mu.RUnlock()

	var out []types.Signal
	for _, inst := range matching {
		inst.strategy.SetContext(ctxSnap)
		signals, err := inst.strategy.OnMarketData(md)
		if err != nil {
			d.logger.Warn("strategy OnMarketData error", zap.String("id", inst.id), zap.String("symbol", sym.String()), zap.Error(err))
			continue
		}
		for _, sig := range signals {
			if sig.SignalType == types.SignalTypeEntry || sig.SignalType == types.SignalTypeAddToPosition {
				if !admitsEntry(sc, d.config.MinEntryScore) {
					d.logger.Debug("signal rejected by entry gate",
						zap.String("id", inst.id), zap.String("symbol", sym.String()), zap.String("route", string(sc.Route)))
					continue
				}
			}
			if sig.CreatedAt.IsZero() {
				sig.CreatedAt = time.Now()
			}
			out = append(out, sig)
		}
	}
	return out, nil
}
