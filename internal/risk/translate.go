package risk

import (
	"github.com/shopspring/decimal"

	"github.com/tyeom/zeroquant-go/pkg/types"
	"github.com/tyeom/zeroquant-go/pkg/utils"
)

// Translate converts a strategy Signal into a sized OrderRequest, the "Signal
// → Order translation" step in spec.md §2 step 6 and §9's design note:
// strategies suggest strength and optional stop/target prices, the risk
// manager decides quantity and attaches protective-stop metadata.
//
// Quantity is sized off the strategy's ClampedStrength against the
// per-symbol max-position notional, then rounded down to QuantityStep.
// refPrice anchors both quantity sizing and any stop/target price derived
// from the configured default percentages (used when the signal itself
// carries no StopLoss/TakeProfit).
func (m *Manager) Translate(sig types.Signal, refPrice, balance decimal.Decimal) types.OrderRequest {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	symbolKey := sig.Symbol.String()
	maxNotional := m.maxPositionNotional(symbolKey, balance)
	notional := maxNotional.Mul(decimal.NewFromFloat(sig.ClampedStrength()))

	quantity := decimal.Zero
	if refPrice.IsPositive() {
		quantity = utils.RoundToStepSize(notional.Div(refPrice), cfg.QuantityStep)
	}

	price := utils.RoundToTickSize(refPrice, cfg.TickSize)

	sl, tp := stopPrices(sig, refPrice, cfg)

	metadata := map[string]any{
		"stopLoss":   sl,
		"takeProfit": tp,
	}
	if cfg.DefaultTrailPct.IsPositive() {
		metadata["trailPct"] = cfg.DefaultTrailPct
	}
	for k, v := range sig.Metadata {
		metadata[k] = v
	}

	return types.OrderRequest{
		Symbol:      sig.Symbol,
		Side:        sig.Side,
		OrderType:   types.OrderTypeLimit,
		Quantity:    quantity,
		Price:       price,
		TimeInForce: types.TimeInForceGTC,
		StrategyID:  sig.StrategyID,
		SignalID:    utils.GenerateSignalID(),
		Metadata:    metadata,
	}
}

// stopPrices resolves absolute stop-loss/take-profit prices for a signal: the
// signal's own StopLoss/TakeProfit if set, otherwise the configured default
// percentages applied against refPrice via the position-shaped helpers in
// stops.go (a flat Position with EntryPrice = refPrice is enough to reuse
// them without duplicating the long/short mirroring logic).
func stopPrices(sig types.Signal, refPrice decimal.Decimal, cfg Config) (decimal.Decimal, decimal.Decimal) {
	side := types.PositionSideLong
	if sig.Side == types.OrderSideSell {
		side = types.PositionSideShort
	}
	synthetic := types.Position{Symbol: sig.Symbol, Side: side, EntryPrice: refPrice, Quantity: decimal.NewFromInt(1)}

	sl := sig.StopLoss
	if !sl.IsPositive() {
		sl = StopLoss(synthetic, cfg.DefaultStopLossPct).TriggerPrice
	}
	tp := sig.TakeProfit
	if !tp.IsPositive() {
		tp = TakeProfit(synthetic, cfg.DefaultTakeProfitPct).TriggerPrice
	}
	return sl, tp
}

// Config exposes the manager's tunable surface to callers that need to read
// sizing parameters without mutating them (e.g. internal/strategy's
// dispatcher, for logging context).
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}
