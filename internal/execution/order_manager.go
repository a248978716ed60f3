package execution

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/pkg/types"
	"github.com/tyeom/zeroquant-go/pkg/utils"
)

// trackedOrder pairs an order with the idempotency set of execution ids
// already applied to it, so a replayed or duplicate fill from a connector's
// reconnect logic cannot double-count (spec.md §8 round-trip property).
type trackedOrder struct {
	mu      sync.Mutex
	order   types.Order
	applied map[string]bool
}

// OrderManager is the single owner of every order's lifecycle state.
// Per-order-id updates are totally ordered via each trackedOrder's own
// lock; cross-order operations (OpenOrders, OrdersBySymbol) take a snapshot-then-release
// read lock over the registry (spec.md §5).
type OrderManager struct {
	logger *zap.Logger

	mu     sync.RWMutex
	orders map[string]*trackedOrder
}

// NewOrderManager constructs an empty registry.
func NewOrderManager(logger *zap.Logger) *OrderManager {
	return &OrderManager{
		logger: logger.Named("order_manager"),
		orders: make(map[string]*trackedOrder),
	}
}

// Register creates a new Pending order from a request and adds it to the
// registry. Called after risk validation passes, before the connector
// submit call (spec.md §4.6 step 2-3).
func (m *OrderManager) Register(req types.OrderRequest) types.Order {
	now := time.Now()
	order := types.Order{
		ID:          utils.GenerateOrderID(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		OrderType:   req.OrderType,
		Quantity:    req.Quantity,
		Price:       req.Price,
		StopPrice:   req.StopPrice,
		Status:      types.OrderStatusPending,
		TimeInForce: req.TimeInForce,
		StrategyID:  req.StrategyID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    req.Metadata,
	}

	m.mu.Lock()
	m.orders[order.ID] = &trackedOrder{order: order, applied: make(map[string]bool)}
	m.mu.Unlock()

	return order
}

func (m *OrderManager) lookup(orderID string) (*trackedOrder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.orders[orderID]
	return t, ok
}

// Get returns a copy of the current order state.
func (m *OrderManager) Get(orderID string) (types.Order, bool) {
	t, ok := m.lookup(orderID)
	if !ok {
		return types.Order{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order, true
}

// MarkOpen transitions Pending -> Open and records the exchange order id,
// called after a successful connector Submit (spec.md §4.6 step 4).
func (m *OrderManager) MarkOpen(orderID, exchangeOrderID string) (types.Order, error) {
	t, ok := m.lookup(orderID)
	if !ok {
		return types.Order{}, fmt.Errorf("%w: unknown order %s", types.ErrValidation, orderID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.order.ExchangeOrderID = exchangeOrderID
	if err := Transition(&t.order, types.OrderStatusOpen); err != nil {
		return types.Order{}, err
	}
	t.order.UpdatedAt = time.Now()
	return t.order, nil
}

// Reject transitions Pending -> Rejected.
func (m *OrderManager) Reject(orderID string) (types.Order, error) {
	t, ok := m.lookup(orderID)
	if !ok {
		return types.Order{}, fmt.Errorf("%w: unknown order %s", types.ErrValidation, orderID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := Transition(&t.order, types.OrderStatusRejected); err != nil {
		return types.Order{}, err
	}
	t.order.UpdatedAt = time.Now()
	return t.order, nil
}

// Cancel transitions Open/PartiallyFilled -> Cancelled.
func (m *OrderManager) Cancel(orderID string) (types.Order, error) {
	t, ok := m.lookup(orderID)
	if !ok {
		return types.Order{}, fmt.Errorf("%w: unknown order %s", types.ErrValidation, orderID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := Transition(&t.order, types.OrderStatusCancelled); err != nil {
		return types.Order{}, err
	}
	t.order.UpdatedAt = time.Now()
	return t.order, nil
}

// Expire transitions any non-terminal order -> Expired.
func (m *OrderManager) Expire(orderID string) (types.Order, error) {
	t, ok := m.lookup(orderID)
	if !ok {
		return types.Order{}, fmt.Errorf("%w: unknown order %s", types.ErrValidation, orderID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.order.Status.Terminal() {
		return types.Order{}, fmt.Errorf("%w: order %s already terminal (%s)", types.ErrValidation, orderID, t.order.Status)
	}
	t.order.Status = types.OrderStatusExpired
	t.order.UpdatedAt = time.Now()
	return t.order, nil
}

// ApplyFill applies an execution report to its order, idempotently keyed by
// ExecutionID: a previously-applied execution id is a silent no-op rather
// than an error, matching spec.md §8's round-trip property. Returns the
// updated order and whether this call actually changed it.
func (m *OrderManager) ApplyFill(orderID string, report types.ExecutionReport) (types.Order, bool, error) {
	t, ok := m.lookup(orderID)
	if !ok {
		return types.Order{}, false, fmt.Errorf("%w: unknown order %s", types.ErrValidation, orderID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.applied[report.ExecutionID] {
		m.logger.Debug("duplicate fill ignored",
			zap.String("order_id", orderID),
			zap.String("execution_id", report.ExecutionID))
		return t.order, false, nil
	}

	if err := ApplyFill(&t.order, report.Quantity, report.Price); err != nil {
		return types.Order{}, false, err
	}
	t.applied[report.ExecutionID] = true
	t.order.UpdatedAt = time.Now()
	return t.order, true, nil
}

// OpenOrders returns a snapshot of every non-terminal order.
func (m *OrderManager) OpenOrders() []types.Order {
	m.mu.RLock()
	tracked := make([]*trackedOrder, 0, len(m.orders))
	for _, t := range m.orders {
		tracked = append(tracked, t)
	}
	m.mu.RUnlock()

	out := make([]types.Order, 0, len(tracked))
	for _, t := range tracked {
		t.mu.Lock()
		if !t.order.Status.Terminal() {
			out = append(out, t.order)
		}
		t.mu.Unlock()
	}
	return out
}

// OrdersBySymbol returns a snapshot of all orders (any status) for a symbol.
func (m *OrderManager) OrdersBySymbol(symbol types.Symbol) []types.Order {
	m.mu.RLock()
	tracked := make([]*trackedOrder, 0, len(m.orders))
	for _, t := range m.orders {
		tracked = append(tracked, t)
	}
	m.mu.RUnlock()

	out := make([]types.Order, 0)
	for _, t := range tracked {
		t.mu.Lock()
		if t.order.Symbol == symbol {
			out = append(out, t.order)
		}
		t.mu.Unlock()
	}
	return out
}
