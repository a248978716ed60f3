// Package events is the in-process publish/subscribe bus that decouples
// internal/execution, internal/risk, and internal/portfolio from their
// downstream consumers (internal/notify, internal/api, internal/strategy).
// Events for a given symbol are sharded onto the same worker so dispatch
// preserves per-symbol timestamp order (synchronous subscriptions see that
// order; async subscriptions run each delivery on its own goroutine, so
// their handlers may observe events out of order), and conflatable types (tick,
// orderbook) keep only the newest value per symbol under backpressure,
// following spec.md §5's concurrency model.
package events

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Type identifies the category of event flowing through the bus.
type Type string

const (
	TypeOrderSubmitted  Type = "order_submitted"
	TypeOrderOpen       Type = "order_open"
	TypeOrderFilled     Type = "order_filled"
	TypeOrderRejected   Type = "order_rejected"
	TypeOrderCancelled  Type = "order_cancelled"
	TypeOrderExpired    Type = "order_expired"
	TypePositionOpened  Type = "position_opened"
	TypePositionClosed  Type = "position_closed"
	TypeStopTriggered   Type = "stop_triggered"
	TypeRiskAlert       Type = "risk_alert"
	TypeDailySummary    Type = "daily_summary"
	TypeStrategyStarted Type = "strategy_started"
	TypeStrategyStopped Type = "strategy_stopped"
	TypeSystemError     Type = "system_error"
	TypeSignalAlert     Type = "signal_alert"
	TypeTick            Type = "tick"
	TypeOrderBook       Type = "orderbook"
	TypeKlineClose      Type = "kline_close"
)

// conflatable event types may be coalesced under backpressure: only the
// latest value per symbol matters to subscribers (spec.md §5).
func (t Type) conflatable() bool {
	return t == TypeTick || t == TypeOrderBook
}

// Event is the envelope every publication carries.
type Event struct {
	ID        string
	Type      Type
	Symbol    string
	Timestamp time.Time
	Payload   any

	// conflationKey is non-empty only for the lightweight marker events
	// enqueued by Publish for a conflatable type; dispatch resolves it
	// back to the freshest stored value before invoking any handler.
	conflationKey string
}

// Handler processes a single event. A returned error is logged, never
// propagated to the publisher.
type Handler func(Event) error

// Filter selectively admits events to a subscription.
type Filter func(Event) bool

// SubscribeOptions configures delivery for one subscription.
type SubscribeOptions struct {
	Filter Filter
	Async  bool // true when no options are passed; false delivers on the bus worker goroutine
}

type subscription struct {
	id      string
	evtType Type
	handler Handler
	opts    SubscribeOptions
	active  atomic.Bool
}

// Subscription is a handle returned by Subscribe, used to Unsubscribe later.
type Subscription struct{ sub *subscription }

// Config tunes worker pool size and buffering.
type Config struct {
	Workers    int
	BufferSize int
}

// DefaultConfig mirrors the teacher's throughput-oriented defaults, scaled
// down for a single-process trading core rather than a market-data firehose.
func DefaultConfig() Config {
	return Config{Workers: 8, BufferSize: 4096}
}

// Bus is the central event router. Publish never blocks the caller for
// conflatable event types; it blocks (with ctx cancellation) for
// never-drop types like TypeKlineClose and TypeOrderFilled per spec.md §5.
// Every event is routed to one of config.Workers shards, hashed by symbol,
// so all events for a symbol are processed by the same goroutine in
// enqueue order.
type Bus struct {
	logger *zap.Logger
	config Config

	mu          sync.RWMutex
	subscribers map[Type][]*subscription
	allSubs     []*subscription

	shards []chan Event

	conflateMu     sync.Mutex
	conflated      map[string]Event // conflationKey -> latest event
	conflatePending map[string]bool // conflationKey -> marker already queued

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	published prometheus.Counter
	processed prometheus.Counter
	dropped   prometheus.Counter
	errors    prometheus.Counter

	latencyMu sync.Mutex
	latencies []time.Duration
}

// NewBus constructs and starts a bus with its worker pool running.
func NewBus(logger *zap.Logger, config Config, registry prometheus.Registerer) *Bus {
	if config.Workers <= 0 {
		config.Workers = 8
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 4096
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		logger:          logger.Named("events"),
		config:          config,
		subscribers:     make(map[Type][]*subscription),
		shards:          make([]chan Event, config.Workers),
		conflated:       make(map[string]Event),
		conflatePending: make(map[string]bool),
		ctx:             ctx,
		cancel:          cancel,
		published:       prometheus.NewCounter(prometheus.CounterOpts{Name: "zeroquant_events_published_total", Help: "Events published to the bus."}),
		processed:       prometheus.NewCounter(prometheus.CounterOpts{Name: "zeroquant_events_processed_total", Help: "Events delivered to at least one handler."}),
		dropped:         prometheus.NewCounter(prometheus.CounterOpts{Name: "zeroquant_events_dropped_total", Help: "Conflatable events dropped under backpressure."}),
		errors:          prometheus.NewCounter(prometheus.CounterOpts{Name: "zeroquant_events_handler_errors_total", Help: "Handler invocations that returned an error or panicked."}),
	}

	if registry != nil {
		registry.MustRegister(b.published, b.processed, b.dropped, b.errors)
	}

	bufPerShard := config.BufferSize / config.Workers
	if bufPerShard < 1 {
		bufPerShard = 1
	}
	for i := 0; i < config.Workers; i++ {
		b.shards[i] = make(chan Event, bufPerShard)
		b.wg.Add(1)
		go b.worker(b.shards[i])
	}

	b.logger.Info("event bus started", zap.Int("workers", config.Workers), zap.Int("buffer_size", config.BufferSize))
	return b
}

// shardFor hashes a symbol to a worker index, so every event for that symbol
// is handled by the same goroutine and preserves enqueue order.
func (b *Bus) shardFor(symbol string) int {
	if symbol == "" || len(b.shards) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(len(b.shards)))
}

func (b *Bus) worker(queue chan Event) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case evt := <-queue:
			start := time.Now()
			b.dispatch(evt)
			b.trackLatency(time.Since(start))
		}
	}
}

// resolve replaces a conflation marker with the freshest stored event for
// its key, clearing the pending flag so the next Publish enqueues a fresh
// marker. Returns ok=false if the key's value already drained (raced with a
// concurrent resolve), in which case there is nothing left to deliver.
func (b *Bus) resolve(evt Event) (Event, bool) {
	if evt.conflationKey == "" {
		return evt, true
	}
	b.conflateMu.Lock()
	defer b.conflateMu.Unlock()
	latest, ok := b.conflated[evt.conflationKey]
	if ok {
		delete(b.conflated, evt.conflationKey)
	}
	delete(b.conflatePending, evt.conflationKey)
	return latest, ok
}

func (b *Bus) dispatch(raw Event) {
	evt, ok := b.resolve(raw)
	if !ok {
		return
	}

	b.mu.RLock()
	subs := append([]*subscription(nil), b.subscribers[evt.Type]...)
	all := append([]*subscription(nil), b.allSubs...)
	b.mu.RUnlock()

	delivered := false
	for _, s := range append(subs, all...) {
		if !s.active.Load() {
			continue
		}
		if s.opts.Filter != nil && !s.opts.Filter(evt) {
			continue
		}
		delivered = true
		if s.opts.Async {
			go b.invoke(s, evt)
		} else {
			b.invoke(s, evt)
		}
	}
	if delivered {
		b.processed.Inc()
	}
}

func (b *Bus) invoke(s *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.errors.Inc()
			b.logger.Error("event handler panic",
				zap.String("subscription_id", s.id),
				zap.String("event_type", string(evt.Type)),
				zap.Any("panic", r))
		}
	}()
	if err := s.handler(evt); err != nil {
		b.errors.Inc()
		b.logger.Warn("event handler error",
			zap.String("subscription_id", s.id),
			zap.String("event_type", string(evt.Type)),
			zap.Error(err))
	}
}

func (b *Bus) trackLatency(d time.Duration) {
	b.latencyMu.Lock()
	defer b.latencyMu.Unlock()
	b.latencies = append(b.latencies, d)
	if len(b.latencies) > 10000 {
		b.latencies = b.latencies[5000:]
	}
}

// P99Latency reports the 99th-percentile processing latency over the most
// recent samples.
func (b *Bus) P99Latency() time.Duration {
	b.latencyMu.Lock()
	defer b.latencyMu.Unlock()
	if len(b.latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), b.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Subscribe registers handler for a single event type.
func (b *Bus) Subscribe(evtType Type, handler Handler, opts ...SubscribeOptions) *Subscription {
	o := SubscribeOptions{Async: true}
	if len(opts) > 0 {
		o = opts[0]
	}
	s := &subscription{id: uuid.NewString(), evtType: evtType, handler: handler, opts: o}
	s.active.Store(true)

	b.mu.Lock()
	b.subscribers[evtType] = append(b.subscribers[evtType], s)
	b.mu.Unlock()
	return &Subscription{sub: s}
}

// SubscribeAll registers handler for every event type published.
func (b *Bus) SubscribeAll(handler Handler, opts ...SubscribeOptions) *Subscription {
	o := SubscribeOptions{Async: true}
	if len(opts) > 0 {
		o = opts[0]
	}
	s := &subscription{id: uuid.NewString(), handler: handler, opts: o}
	s.active.Store(true)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, s)
	b.mu.Unlock()
	return &Subscription{sub: s}
}

// Unsubscribe deactivates a subscription; in-flight async deliveries may
// still complete.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil || s.sub == nil {
		return
	}
	s.sub.active.Store(false)
}

func conflationKey(t Type, symbol string) string {
	return string(t) + "|" + symbol
}

// Publish enqueues an event. Conflatable types (tick, orderbook) always
// overwrite the latest stored value for their (type, symbol) key and enqueue
// at most one pending marker per key, so backpressure drops stale values
// instead of the newest one. All other types block until the queue has room
// or ctx is cancelled, matching the "never drop a fill" rule in spec.md §5.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	shard := b.shards[b.shardFor(evt.Symbol)]

	if evt.Type.conflatable() {
		key := conflationKey(evt.Type, evt.Symbol)

		b.conflateMu.Lock()
		b.conflated[key] = evt
		alreadyPending := b.conflatePending[key]
		if !alreadyPending {
			b.conflatePending[key] = true
		}
		b.conflateMu.Unlock()

		if alreadyPending {
			b.published.Inc()
			return
		}

		marker := Event{ID: evt.ID, Type: evt.Type, Symbol: evt.Symbol, Timestamp: evt.Timestamp, conflationKey: key}
		select {
		case shard <- marker:
			b.published.Inc()
		default:
			b.conflateMu.Lock()
			delete(b.conflatePending, key)
			b.conflateMu.Unlock()
			b.dropped.Inc()
			b.logger.Debug("dropped conflatable marker under backpressure", zap.String("event_type", string(evt.Type)), zap.String("symbol", evt.Symbol))
		}
		return
	}

	select {
	case shard <- evt:
		b.published.Inc()
	case <-ctx.Done():
		b.logger.Error("publish cancelled before delivery", zap.String("event_type", string(evt.Type)), zap.Error(ctx.Err()))
	}
}

// PublishSync delivers synchronously on the caller's goroutine, bypassing
// the queue. Used by callers that must know handlers ran before returning.
func (b *Bus) PublishSync(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.published.Inc()
	b.dispatch(evt)
}

// Stop drains in-flight handlers and halts the worker pool.
func (b *Bus) Stop() {
	b.logger.Info("stopping event bus")
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("event bus stopped")
	case <-time.After(5 * time.Second):
		b.logger.Warn("event bus stop timed out waiting for workers")
	}
}
