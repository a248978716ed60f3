// Package api exposes the strategy runtime's state over HTTP/WebSocket: a
// thin REST surface for strategies, positions, orders, and risk status, a
// WebSocket hub for live updates, and a Prometheus /metrics endpoint. It
// never makes trading decisions itself — every handler is a read, a
// narrowly-scoped control action like the kill switch, or a hand-off
// (manual order submission through the executor's risk-checked Submit,
// market-data ingest into the strategy dispatcher) to components owned
// elsewhere (internal/execution, internal/risk, internal/portfolio,
// internal/strategy).
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tyeom/zeroquant-go/internal/calendar"
	"github.com/tyeom/zeroquant-go/internal/events"
	"github.com/tyeom/zeroquant-go/internal/execution"
	"github.com/tyeom/zeroquant-go/internal/portfolio"
	"github.com/tyeom/zeroquant-go/internal/realitycheck"
	"github.com/tyeom/zeroquant-go/internal/risk"
	"github.com/tyeom/zeroquant-go/internal/strategy"
	"github.com/tyeom/zeroquant-go/pkg/types"
	"github.com/tyeom/zeroquant-go/pkg/utils"
)

// marketDataIngester is satisfied by *strategy.Dispatcher; declared locally
// so this package depends only on the method it actually calls.
type marketDataIngester interface {
	Ingest(ctx context.Context, md types.MarketData) error
}

// Config is the server's HTTP-layer configuration.
type Config struct {
	Host          string
	Port          int
	WebSocketPath string
	MetricsPath   string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// DefaultConfig mirrors the teacher's conservative HTTP timeouts.
func DefaultConfig() Config {
	return Config{
		Host:          "0.0.0.0",
		Port:          8080,
		WebSocketPath: "/ws",
		MetricsPath:   "/metrics",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}

// Server is the HTTP/WebSocket surface over the strategy runtime.
type Server struct {
	logger *zap.Logger
	config Config
	router *mux.Router
	http   *http.Server

	registry *prometheus.Registry
	hub      *Hub

	strategies  *strategy.StrategyRegistry
	book        *portfolio.Book
	riskMgr     *risk.Manager
	executor    *execution.Executor
	cal         *calendar.Calendar
	realityRepo realitycheck.Repository
	dispatcher  marketDataIngester
}

// New builds the server and wires its routes. The caller still starts the
// server with Start, which also starts the Hub loop. dispatcher may be nil,
// in which case the market-data ingest endpoint responds 503.
func New(logger *zap.Logger, config Config, registry *prometheus.Registry, bus *events.Bus, strategies *strategy.StrategyRegistry, book *portfolio.Book, riskMgr *risk.Manager, executor *execution.Executor, cal *calendar.Calendar, realityRepo realitycheck.Repository, dispatcher marketDataIngester) *Server {
	s := &Server{
		logger:      logger.Named("api"),
		config:      config,
		router:      mux.NewRouter(),
		registry:    registry,
		hub:         NewHub(logger, bus),
		strategies:  strategies,
		book:        book,
		riskMgr:     riskMgr,
		executor:    executor,
		cal:         cal,
		realityRepo: realityRepo,
		dispatcher:  dispatcher,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/strategies", s.handleListStrategies).Methods(http.MethodGet)
	v1.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	v1.HandleFunc("/orders", s.handleOpenOrders).Methods(http.MethodGet)
	v1.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)
	v1.HandleFunc("/marketdata", s.handleIngestMarketData).Methods(http.MethodPost)
	v1.HandleFunc("/equity", s.handleEquity).Methods(http.MethodGet)
	v1.HandleFunc("/performance", s.handlePerformance).Methods(http.MethodGet)
	v1.HandleFunc("/risk", s.handleRiskStatus).Methods(http.MethodGet)
	v1.HandleFunc("/calendar/{market}/status", s.handleMarketStatus).Methods(http.MethodGet)
	v1.HandleFunc("/killswitch", s.handleKillSwitch).Methods(http.MethodPost)
	v1.HandleFunc("/realitycheck/daily-stats", s.handleRealityDailyStats).Methods(http.MethodGet)
	v1.HandleFunc("/realitycheck/source-stats", s.handleRealitySourceStats).Methods(http.MethodGet)
	v1.HandleFunc("/realitycheck/recent", s.handleRealityRecent).Methods(http.MethodGet)

	s.router.HandleFunc(s.config.WebSocketPath, s.hub.ServeWS)
	s.router.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Router exposes the underlying mux.Router, e.g. for tests registering
// additional routes.
func (s *Server) Router() *mux.Router { return s.router }

// Start runs the Hub loop and the HTTP listener. It blocks until the
// listener returns (Stop or a fatal accept error).
func (s *Server) Start() error {
	handler := cors.AllowAll().Handler(s.router)
	addr := s.config.Host + ":" + strconv.Itoa(s.config.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	go s.hub.Run()
	s.logger.Info("api server listening", zap.String("addr", addr))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP listener and the hub.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type strategyInfo struct {
	ID               string             `json:"id"`
	Category         string             `json:"category"`
	SupportedMarkets []types.MarketType `json:"supportedMarkets"`
	DefaultTimeframe types.Timeframe    `json:"defaultTimeframe"`
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	ids := s.strategies.List()
	out := make([]strategyInfo, 0, len(ids))
	for _, id := range ids {
		reg, ok := s.strategies.Registration(id)
		if !ok {
			continue
		}
		out = append(out, strategyInfo{
			ID:               reg.ID,
			Category:         string(reg.Category),
			SupportedMarkets: reg.SupportedMarkets,
			DefaultTimeframe: reg.DefaultTimeframe,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.book.OpenPositions())
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.executor.Orders().OpenOrders())
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.book.Equity().Points())
}

// performanceReport derives Sharpe ratio and drawdown from the recorded
// equity curve, the way the teacher's backtest report summarized a run,
// reused here over live equity samples (spec.md §7 "Monitoring").
type performanceReport struct {
	SampleCount        int    `json:"sampleCount"`
	SharpeRatio        string `json:"sharpeRatio"`
	CurrentDrawdownPct string `json:"currentDrawdownPct"`
	MaxDrawdownPct     string `json:"maxDrawdownPct"`
	PeriodsPerYear     int    `json:"periodsPerYear"`
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	curve := s.book.Equity()
	points := curve.Points()

	closes := make([]decimal.Decimal, len(points))
	for i, p := range points {
		closes[i] = p.Equity
	}

	sharpe := decimal.Zero
	if returns := utils.CalculateReturns(closes); len(returns) > 1 {
		sharpe = utils.CalculateSharpeRatio(returns, decimal.Zero, 252)
	}

	s.writeJSON(w, http.StatusOK, performanceReport{
		SampleCount:        len(points),
		SharpeRatio:        sharpe.StringFixed(4),
		CurrentDrawdownPct: curve.CurrentDrawdown().StringFixed(2),
		MaxDrawdownPct:     curve.MaxDrawdown().StringFixed(2),
		PeriodsPerYear:     252,
	})
}

func (s *Server) handleRiskStatus(w http.ResponseWriter, r *http.Request) {
	status := s.riskMgr.Daily().Status(time.Now())
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	market := types.MarketType(vars["market"])
	includeExtended := r.URL.Query().Get("extended") == "true"

	status, err := s.cal.MarketStatus(r.Context(), market, time.Now(), includeExtended)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"market": string(market), "status": string(status)})
}

// handleRealityDailyStats reports how the last N days of recommendations
// actually performed, per spec.md's External Interfaces "Reality check".
func (s *Server) handleRealityDailyStats(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	s.writeJSON(w, http.StatusOK, s.realityRepo.DailyStats(limit))
}

func (s *Server) handleRealitySourceStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.realityRepo.SourceStats())
}

// defaultConnector is the venue a manual order or stop-triggered exit runs
// against absent a per-request override; paper trading is the system's
// safe default (spec.md §1 "paper trading first").
const defaultConnector = "paper"

// manualOrderRequest is the POST /orders wire shape: a flat DTO so callers
// don't need to hand-construct a types.Symbol, decoded then converted into
// the types.OrderRequest the executor's Submit pipeline expects.
type manualOrderRequest struct {
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	MarketType  string `json:"marketType"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	TimeInForce string `json:"timeInForce"`
	StrategyID  string `json:"strategyId"`
	Connector   string `json:"connector"`
}

// handleSubmitOrder accepts a manually-placed order, sizes/validates it
// through the same risk.Manager.ValidateOrder pipeline a signal-derived
// order goes through, and submits it to a connector (spec.md §9 "manual
// order endpoint").
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var body manualOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	quantity, err := decimal.NewFromString(body.Quantity)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid quantity")
		return
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid price")
		return
	}

	connectorName := body.Connector
	if connectorName == "" {
		connectorName = defaultConnector
	}
	tif := types.TimeInForce(body.TimeInForce)
	if tif == "" {
		tif = types.TimeInForceGTC
	}

	req := types.OrderRequest{
		Symbol:      types.Symbol{Base: body.Base, Quote: body.Quote, MarketType: types.MarketType(body.MarketType)},
		Side:        types.OrderSide(body.Side),
		OrderType:   types.OrderType(body.OrderType),
		Quantity:    quantity,
		Price:       price,
		TimeInForce: tif,
		StrategyID:  body.StrategyID,
	}
	if req.StrategyID == "" {
		req.StrategyID = "manual"
	}

	ctx := r.Context()
	balance, err := s.executor.Balance(ctx, connectorName, req.Symbol.Quote)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := s.executor.Submit(ctx, req, connectorName, s.book.OpenPositions(), balance, decimal.Zero)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, order)
}

// handleIngestMarketData feeds one market-data event into the strategy
// dispatcher, the entry point a live connector feed or a test harness would
// otherwise call in-process (spec.md §4.3's single ingestion path).
func (s *Server) handleIngestMarketData(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "market data dispatcher not configured")
		return
	}
	var md types.MarketData
	if err := json.NewDecoder(r.Body).Decode(&md); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if md.ReceivedAt.IsZero() {
		md.ReceivedAt = time.Now()
	}
	if err := s.dispatcher.Ingest(r.Context(), md); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "ingested"})
}

// handleRealityRecent reports recent resolved recommendation performance for
// a source over a trailing window, per spec.md's "Reality check" external
// interface.
func (s *Server) handleRealityRecent(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}
	records := s.realityRepo.RecentPerformance(source, days, time.Now())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"source":  source,
		"window":  utils.FormatDuration(time.Duration(days) * 24 * time.Hour),
		"records": records,
	})
}

func (s *Server) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.riskMgr.Daily().SetManualPause(body.Paused)
	s.writeJSON(w, http.StatusOK, map[string]bool{"paused": body.Paused})
}
