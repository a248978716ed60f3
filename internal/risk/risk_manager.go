package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/notify"
	"github.com/tyeom/zeroquant-go/pkg/types"
)

// Config is the risk manager's tunable surface (spec.md §4.4).
type Config struct {
	MaxPositionPct       decimal.Decimal            // fraction of balance, e.g. 0.10
	SymbolMaxPositionPct map[string]decimal.Decimal // per-symbol override
	MaxTotalExposurePct  decimal.Decimal
	MinOrderSize         decimal.Decimal
	MaxConcurrentPos     int
	VolatilityThreshold  decimal.Decimal // sigma ceiling; rejects above it
	DisabledSymbols      map[string]bool

	DefaultStopLossPct   decimal.Decimal
	DefaultTakeProfitPct decimal.Decimal
	DefaultTrailPct      decimal.Decimal // 0 disables automatic trailing-stop attachment

	QuantityStep decimal.Decimal // Translate rounds sized quantity down to this step
	TickSize     decimal.Decimal // Translate rounds the limit price down to this tick

	DailyLoss DailyLossTrackerConfig
}

// DefaultConfig mirrors the teacher's DefaultRiskConfig proportions, adapted
// to spec.md §4.4's contract shape.
func DefaultConfig() Config {
	return Config{
		MaxPositionPct:       decimal.NewFromFloat(0.10),
		SymbolMaxPositionPct: make(map[string]decimal.Decimal),
		MaxTotalExposurePct:  decimal.NewFromFloat(0.50),
		MinOrderSize:         decimal.NewFromFloat(0.0001),
		MaxConcurrentPos:     20,
		VolatilityThreshold:  decimal.NewFromFloat(0.05),
		DisabledSymbols:      make(map[string]bool),
		DefaultStopLossPct:   decimal.NewFromInt(5),
		DefaultTakeProfitPct: decimal.NewFromInt(10),
		DefaultTrailPct:      decimal.NewFromFloat(0.03),
		QuantityStep:         decimal.NewFromFloat(0.0001),
		TickSize:             decimal.NewFromFloat(0.01),
		DailyLoss: DailyLossTrackerConfig{
			MaxDailyLossAbs: decimal.NewFromInt(1_000_000),
			MaxDailyLossPct: decimal.NewFromInt(3),
		},
	}
}

// ValidationResult is validate_order's output.
type ValidationResult struct {
	Valid         bool
	ModifiedOrder *types.OrderRequest
	Messages      []string
}

// Manager gates every proposed order and generates protective stops. It owns
// the DailyLossTracker and the trailing-stop map exclusively (spec.md §9
// ownership note).
type Manager struct {
	logger *zap.Logger
	config Config

	daily *DailyLossTracker

	mu       sync.RWMutex
	trailing map[string]*types.TrailingStopState // keyed by position id

	notifier notify.Notifier
}

// NewManager constructs a risk manager against a starting balance.
func NewManager(logger *zap.Logger, config Config, balance decimal.Decimal) *Manager {
	return &Manager{
		logger:   logger.Named("risk"),
		config:   config,
		daily:    NewDailyLossTracker(config.DailyLoss, balance),
		trailing: make(map[string]*types.TrailingStopState),
	}
}

// SetNotifier attaches the notification-contract sink (spec.md §6); nil is
// valid and simply means no notifications are emitted.
func (m *Manager) SetNotifier(n notify.Notifier) {
	m.notifier = n
}

func (m *Manager) notify(n notify.Notification) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(context.Background(), n); err != nil {
		m.logger.Warn("notification delivery failed", zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

// Daily exposes the tracker for status reads and PnL recording by the
// executor (the manager remains the sole writer of its trading_paused state
// via RecordPnL/ForceReset/SetManualPause).
func (m *Manager) Daily() *DailyLossTracker { return m.daily }

// ValidateOrder runs the five-step pipeline from spec.md §4.4:
//  1. daily_tracker.can_trade()
//  2. symbol enabled
//  3. volatility filter
//  4. position-sizing limits
//  5. warning attachment from daily-limit usage
func (m *Manager) ValidateOrder(
	req types.OrderRequest,
	positions []types.Position,
	balance decimal.Decimal,
	currentVolatility decimal.Decimal,
	now time.Time,
) ValidationResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := ValidationResult{Valid: true}

	if !m.daily.CanTrade(now) {
		result.Valid = false
		result.Messages = append(result.Messages, "daily limit reached")
		status := m.daily.Status(now)
		m.notify(notify.RiskAlert("daily_loss", "daily loss limit reached, trading paused", status.DailyTotal.Abs(), m.config.DailyLoss.MaxDailyLossAbs, now))
		return result
	}

	symbolKey := req.Symbol.String()
	if m.config.DisabledSymbols[symbolKey] {
		result.Valid = false
		result.Messages = append(result.Messages, fmt.Sprintf("symbol %s disabled", symbolKey))
		return result
	}

	if m.config.VolatilityThreshold.IsPositive() {
		if currentVolatility.GreaterThan(m.config.VolatilityThreshold) {
			result.Valid = false
			result.Messages = append(result.Messages, "volatility exceeds threshold")
			m.notify(notify.RiskAlert("volatility", fmt.Sprintf("%s volatility exceeds threshold", symbolKey), currentVolatility, m.config.VolatilityThreshold, now))
			return result
		}
		warnAt := m.config.VolatilityThreshold.Mul(decimal.NewFromFloat(0.70))
		if currentVolatility.GreaterThan(warnAt) {
			result.Messages = append(result.Messages, "volatility approaching threshold")
		}
	}

	if req.Quantity.LessThan(m.config.MinOrderSize) {
		result.Valid = false
		result.Messages = append(result.Messages, "order size below minimum")
		return result
	}

	orderNotional := req.Quantity.Mul(req.Price)

	maxSingle := m.maxPositionNotional(symbolKey, balance)
	if orderNotional.GreaterThan(maxSingle) {
		adjustedQty := m.adjustedQuantity(maxSingle, positions, balance, req)
		result.Valid = false
		result.Messages = append(result.Messages, "exceeds max single position size")
		if adjustedQty.IsPositive() {
			modified := req
			modified.Quantity = adjustedQty
			result.ModifiedOrder = &modified
		}
		return result
	}

	openCount := 0
	totalNotional := decimal.Zero
	holdsSymbol := false
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		openCount++
		totalNotional = totalNotional.Add(p.Quantity.Mul(p.CurrentPrice))
		if p.Symbol.String() == symbolKey {
			holdsSymbol = true
		}
	}

	maxTotal := balance.Mul(m.config.MaxTotalExposurePct)
	if totalNotional.Add(orderNotional).GreaterThan(maxTotal) {
		result.Valid = false
		result.Messages = append(result.Messages, "exceeds max total exposure")
		m.notify(notify.RiskAlert("total_exposure", "portfolio exposure would exceed limit", totalNotional.Add(orderNotional), maxTotal, now))
		return result
	}

	if !holdsSymbol && req.Side == types.OrderSideBuy && openCount >= m.config.MaxConcurrentPos {
		result.Valid = false
		result.Messages = append(result.Messages, "max concurrent positions reached")
		return result
	}

	status := m.daily.Status(now)
	if status.Warning != "" {
		result.Messages = append(result.Messages, fmt.Sprintf("daily loss usage %s", status.Warning))
	}

	return result
}

func (m *Manager) maxPositionNotional(symbolKey string, balance decimal.Decimal) decimal.Decimal {
	pct := m.config.MaxPositionPct
	if override, ok := m.config.SymbolMaxPositionPct[symbolKey]; ok {
		pct = override
	}
	return balance.Mul(pct)
}

// adjustedQuantity computes the maximum feasible quantity honoring both the
// single-position ceiling and whatever total-exposure headroom remains.
func (m *Manager) adjustedQuantity(maxSingle decimal.Decimal, positions []types.Position, balance decimal.Decimal, req types.OrderRequest) decimal.Decimal {
	if req.Price.IsZero() {
		return decimal.Zero
	}

	totalNotional := decimal.Zero
	for _, p := range positions {
		if p.IsOpen() {
			totalNotional = totalNotional.Add(p.Quantity.Mul(p.CurrentPrice))
		}
	}
	maxTotal := balance.Mul(m.config.MaxTotalExposurePct)
	headroom := maxTotal.Sub(totalNotional)

	capNotional := decimal.Min(maxSingle, headroom)
	if !capNotional.IsPositive() {
		return decimal.Zero
	}
	return capNotional.Div(req.Price)
}

// AttachTrailingStop registers a new trailing stop for a position, replacing
// any prior state (re-entry case).
func (m *Manager) AttachTrailingStop(positionID string, side types.PositionSide, entryPrice, trailPct decimal.Decimal) *types.TrailingStopState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := types.NewTrailingStop(positionID, side, entryPrice, trailPct)
	m.trailing[positionID] = state
	return state
}

// UpdateTrailingStop advances the trailing stop for a position given a new
// price, returning the (possibly unchanged) state. Returns nil if no
// trailing stop is registered for the position.
func (m *Manager) UpdateTrailingStop(positionID string, price decimal.Decimal) *types.TrailingStopState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.trailing[positionID]
	if !ok {
		return nil
	}
	state.Update(price)
	return state
}

// TrailingStop returns the current trailing-stop state for a position, if any.
func (m *Manager) TrailingStop(positionID string) (*types.TrailingStopState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.trailing[positionID]
	return state, ok
}

// RemoveTrailingStop drops a position's trailing stop (on close).
func (m *Manager) RemoveTrailingStop(positionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trailing, positionID)
}
