// Package strategy hosts the pluggable Strategy contract and the concrete
// strategy families the runtime dispatches market events to (spec.md §4.3).
package strategy

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
)

// Strategy is the contract every strategy implementation satisfies. The
// runtime calls OnMarketData once per event in per-symbol timestamp order;
// implementations must be deterministic given their internal state plus the
// event (spec.md §4.3).
type Strategy interface {
	Name() string
	Version() string
	Description() string

	Initialize(config json.RawMessage) error
	SetContext(ctx types.StrategyContext)
	OnMarketData(md types.MarketData) ([]types.Signal, error)
	OnOrderFilled(order types.Order) error
	OnPositionUpdate(pos types.Position) error
	GetState() map[string]any
	Shutdown() error
}

// Category classifies a strategy's dispatch cadence for the registry.
type Category = types.StrategyCategory

// Registration is one declarative entry in the StrategyRegistry: id, aliases,
// and metadata describing how the runtime should schedule the strategy.
type Registration struct {
	ID              string
	Aliases         []string
	Category        Category
	SupportedMarkets []types.MarketType
	DefaultTimeframe types.Timeframe
	DefaultSymbols  []types.Symbol
	New             func() Strategy
}

// StrategyRegistry holds factory closures keyed by strategy id plus any
// aliases, alongside each registration's scheduling metadata.
type StrategyRegistry struct {
	logger *zap.Logger

	mu          sync.RWMutex
	byID        map[string]Registration
	aliasToID   map[string]string
}

// NewStrategyRegistry constructs an empty registry. Call RegisterBuiltins to
// populate it with the seven strategy families the runtime hosts.
func NewStrategyRegistry(logger *zap.Logger) *StrategyRegistry {
	return &StrategyRegistry{
		logger:    logger.Named("strategy.registry"),
		byID:      make(map[string]Registration),
		aliasToID: make(map[string]string),
	}
}

// Register adds a registration under its id and aliases. A later call with
// the same id overwrites the earlier one.
func (r *StrategyRegistry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[reg.ID] = reg
	for _, alias := range reg.Aliases {
		r.aliasToID[alias] = reg.ID
	}
}

// Create instantiates a fresh Strategy by id or alias.
func (r *StrategyRegistry) Create(idOrAlias string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id := idOrAlias
	if resolved, ok := r.aliasToID[idOrAlias]; ok {
		id = resolved
	}
	reg, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", types.ErrInvalidParameter, idOrAlias)
	}
	return reg.New(), nil
}

// Registration returns the metadata for a registered strategy id or alias.
func (r *StrategyRegistry) Registration(idOrAlias string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := idOrAlias
	if resolved, ok := r.aliasToID[idOrAlias]; ok {
		id = resolved
	}
	reg, ok := r.byID[id]
	return reg, ok
}

// List returns every registered strategy id.
func (r *StrategyRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

// RegisterBuiltins registers the seven strategy families the runtime must
// host (spec.md §4.3).
func RegisterBuiltins(r *StrategyRegistry, logger *zap.Logger) {
	r.Register(Registration{
		ID:               "bollinger_mean_reversion",
		Aliases:          []string{"bollinger"},
		Category:         types.StrategyCategoryRealtime,
		SupportedMarkets: []types.MarketType{types.MarketCrypto, types.MarketUsStock, types.MarketKrStock},
		DefaultTimeframe: types.Timeframe5m,
		New:              func() Strategy { return NewBollingerStrategy(logger) },
	})
	r.Register(Registration{
		ID:               "dual_momentum",
		Category:         types.StrategyCategoryDaily,
		SupportedMarkets: []types.MarketType{types.MarketKrStock, types.MarketUsStock},
		DefaultTimeframe: types.Timeframe1d,
		New:              func() Strategy { return NewDualMomentumStrategy(logger) },
	})
	r.Register(Registration{
		ID:               "sector_momentum",
		Category:         types.StrategyCategoryDaily,
		SupportedMarkets: []types.MarketType{types.MarketUsStock, types.MarketKrStock},
		DefaultTimeframe: types.Timeframe1d,
		New:              func() Strategy { return NewSectorMomentumStrategy(logger) },
	})
	r.Register(Registration{
		ID:               "small_cap_quant",
		Category:         types.StrategyCategoryDaily,
		SupportedMarkets: []types.MarketType{types.MarketKrStock},
		DefaultTimeframe: types.Timeframe1d,
		New:              func() Strategy { return NewSmallCapQuantStrategy(logger) },
	})
	r.Register(Registration{
		ID:               "stock_gugan",
		Aliases:          []string{"price_band"},
		Category:         types.StrategyCategoryDaily,
		SupportedMarkets: []types.MarketType{types.MarketUsStock, types.MarketKrStock},
		DefaultTimeframe: types.Timeframe1d,
		New:              func() Strategy { return NewStockGuganStrategy(logger) },
	})
	r.Register(Registration{
		ID:               "all_weather",
		Category:         types.StrategyCategoryDaily,
		SupportedMarkets: []types.MarketType{types.MarketUsStock, types.MarketKrStock},
		DefaultTimeframe: types.Timeframe1d,
		New:              func() Strategy { return NewAllWeatherStrategy(logger) },
	})
	r.Register(Registration{
		ID:               "market_interest_day",
		Category:         types.StrategyCategoryRealtime,
		SupportedMarkets: []types.MarketType{types.MarketKrStock, types.MarketUsStock},
		DefaultTimeframe: types.Timeframe1m,
		New:              func() Strategy { return NewMarketInterestDayStrategy(logger) },
	})
}

// BaseStrategy implements the bookkeeping common to every strategy:
// shared-context storage under a reader-preferred lock (spec.md §9) and the
// no-op hooks most strategies don't need to override.
type BaseStrategy struct {
	logger *zap.Logger

	mu  sync.RWMutex
	ctx types.StrategyContext
}

func newBaseStrategy(logger *zap.Logger) BaseStrategy {
	return BaseStrategy{logger: logger}
}

// SetContext stores the latest shared snapshot.
func (b *BaseStrategy) SetContext(ctx types.StrategyContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctx = ctx
}

// Context returns the most recently injected snapshot.
func (b *BaseStrategy) Context() types.StrategyContext {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx
}

// OnOrderFilled is a no-op by default; strategies that react to fills
// override it.
func (b *BaseStrategy) OnOrderFilled(order types.Order) error { return nil }

// OnPositionUpdate is a no-op by default; allocation strategies that track
// their own holdings override it.
func (b *BaseStrategy) OnPositionUpdate(pos types.Position) error { return nil }

// Shutdown releases no resources by default.
func (b *BaseStrategy) Shutdown() error { return nil }

// admitsEntry applies the RouteState/GlobalScore entry gate common to every
// strategy's Entry/Buy signal (spec.md §4.3: "reject when route ∈
// {Overheat, Wait} or when overall_score < configured floor"). Exit signals
// are never gated and should not call this.
func admitsEntry(sc types.SymbolContext, minScore float64) bool {
	if !sc.Route.AdmitsEntry() {
		return false
	}
	if sc.Score == nil {
		return true
	}
	return sc.Score.OverallScore >= minScore
}
