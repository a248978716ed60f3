// Package main wires and runs the strategy execution and risk pipeline: it
// loads configuration, builds the event bus, risk manager, portfolio book,
// order executor, strategy registry, and calendar, attaches a paper-trading
// connector, and serves the REST/WebSocket/metrics API until a termination
// signal arrives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tyeom/zeroquant-go/internal/api"
	"github.com/tyeom/zeroquant-go/internal/calendar"
	"github.com/tyeom/zeroquant-go/internal/connector"
	"github.com/tyeom/zeroquant-go/internal/events"
	"github.com/tyeom/zeroquant-go/internal/execution"
	"github.com/tyeom/zeroquant-go/internal/notify"
	"github.com/tyeom/zeroquant-go/internal/portfolio"
	"github.com/tyeom/zeroquant-go/internal/realitycheck"
	"github.com/tyeom/zeroquant-go/internal/risk"
	"github.com/tyeom/zeroquant-go/internal/strategy"
	"github.com/tyeom/zeroquant-go/pkg/config"
	"github.com/tyeom/zeroquant-go/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting zeroquant server", zap.Bool("paper_mode", cfg.PaperMode))

	registry := prometheus.NewRegistry()

	bus := events.NewBus(logger, events.Config{}, registry)
	defer bus.Stop()

	book := portfolio.NewBook(logger)

	notifier := notify.NewZapNotifier(logger)

	startingBalance := decimal.NewFromInt(100_000)
	riskMgr := risk.NewManager(logger, riskConfigFrom(cfg.Risk), startingBalance)
	riskMgr.SetNotifier(notifier)

	execCfg := execution.DefaultConfig()
	execCfg.PaperTrading = cfg.PaperMode
	executor := execution.NewExecutor(logger, execCfg, riskMgr, book, bus)
	executor.SetNotifier(notifier)

	paperCfg := connector.DefaultPaperConfig()
	paperCfg.StartingBalanceUSD = startingBalance
	paper := connector.NewPaperConnector(logger, paperCfg)
	executor.AddConnector(paper)

	strategies := strategy.NewStrategyRegistry(logger)
	strategy.RegisterBuiltins(strategies, logger)

	dispatchCfg := strategy.DefaultDispatchConfig()
	dispatchCfg.ConnectorName = paper.Name()
	dispatcher := strategy.NewDispatcher(logger, bus, strategies, dispatchCfg, signalHandler(logger, executor, riskMgr, book, paper, dispatchCfg.ConnectorName), executor)
	defer dispatcher.Stop()

	for _, sc := range cfg.Strategies {
		reg, ok := strategies.Registration(sc.ID)
		if !ok {
			logger.Warn("configured strategy is not registered, skipping", zap.String("id", sc.ID))
			continue
		}
		marketType := types.MarketCrypto
		if len(reg.SupportedMarkets) > 0 {
			marketType = reg.SupportedMarkets[0]
		}
		symbols := make([]types.Symbol, 0, len(sc.Symbols))
		for _, raw := range sc.Symbols {
			sym, err := types.ParseSymbol(raw, marketType)
			if err != nil {
				logger.Warn("skipping malformed strategy symbol", zap.String("strategy", sc.ID), zap.String("symbol", raw), zap.Error(err))
				continue
			}
			symbols = append(symbols, sym)
		}
		if err := dispatcher.AddStrategy(sc.ID, symbols, json.RawMessage(sc.ParametersRaw)); err != nil {
			logger.Warn("failed to add strategy to dispatcher", zap.String("id", sc.ID), zap.Error(err))
		}
	}

	cal := calendar.New(logger, calendarSource(cfg.Calendar))
	realityRepo := realitycheck.NewMemoryRepository()

	apiConfig := api.DefaultConfig()
	apiConfig.Host = cfg.Server.Host
	apiConfig.Port = cfg.Server.Port
	apiConfig.WebSocketPath = cfg.Server.WebSocketPath
	apiConfig.MetricsPath = cfg.Server.MetricsPath

	server := api.New(logger, apiConfig, registry, bus, strategies, book, riskMgr, executor, cal, realityRepo, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := executor.StreamFills(ctx, paper.Name()); err != nil && ctx.Err() == nil {
			logger.Error("fill stream ended", zap.Error(err))
		}
	}()

	go runDailySummary(ctx, book, notifier)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// riskConfigFrom adapts the float64-based file/env config surface onto the
// decimal-based risk.Config the manager actually runs on.
func riskConfigFrom(rc config.RiskConfig) risk.Config {
	symbolOverrides := make(map[string]decimal.Decimal, len(rc.SymbolOverrides))
	for symbol, pct := range rc.SymbolOverrides {
		symbolOverrides[symbol] = decimal.NewFromFloat(pct)
	}
	return risk.Config{
		MaxPositionPct:       decimal.NewFromFloat(rc.MaxPositionPct),
		SymbolMaxPositionPct: symbolOverrides,
		MaxTotalExposurePct:  decimal.NewFromFloat(rc.MaxTotalExposurePct),
		MinOrderSize:         decimal.NewFromFloat(rc.MinOrderSize),
		MaxConcurrentPos:     rc.MaxConcurrentPositions,
		VolatilityThreshold:  decimal.NewFromFloat(rc.VolatilityThreshold),
		DisabledSymbols:      make(map[string]bool),
		DefaultStopLossPct:   decimal.NewFromFloat(rc.DefaultStopLossPct),
		DefaultTakeProfitPct: decimal.NewFromFloat(rc.DefaultTakeProfitPct),
		DefaultTrailPct:      decimal.NewFromFloat(rc.DefaultTrailPct),
		QuantityStep:         decimal.NewFromFloat(rc.QuantityStep),
		TickSize:             decimal.NewFromFloat(rc.TickSize),
		DailyLoss: risk.DailyLossTrackerConfig{
			MaxDailyLossAbs: decimal.NewFromFloat(rc.MaxDailyLossAbs),
			MaxDailyLossPct: decimal.NewFromFloat(rc.MaxDailyLossPct),
		},
	}
}

// signalHandler closes over the components Translate and Submit need to
// turn a strategy's Signal into a live order: the risk manager's sizing
// decision, the executor's submit pipeline, and the book's last-known price
// as a fallback reference when a signal carries no EntryPrice (spec.md §2
// step 6, §9 "Signal → Order translation").
func signalHandler(logger *zap.Logger, executor *execution.Executor, riskMgr *risk.Manager, book *portfolio.Book, paper *connector.PaperConnector, connectorName string) strategy.SignalHandler {
	log := logger.Named("signal_handler")
	return func(ctx context.Context, sig types.Signal) {
		refPrice := sig.EntryPrice
		if !refPrice.IsPositive() {
			if pos, ok := book.Position(sig.Symbol); ok {
				refPrice = pos.CurrentPrice
			}
		}
		if !refPrice.IsPositive() {
			log.Debug("dropping signal with no price reference", zap.String("strategy", sig.StrategyID), zap.String("symbol", sig.Symbol.String()))
			return
		}

		balance, err := paper.Balance(ctx, "USD")
		if err != nil {
			log.Warn("failed to read balance for signal sizing", zap.Error(err))
			return
		}

		req := riskMgr.Translate(sig, refPrice, balance)

		positions := book.OpenPositions()
		if _, err := executor.Submit(ctx, req, connectorName, positions, balance, decimal.Zero); err != nil {
			log.Warn("signal-derived order rejected",
				zap.String("strategy", sig.StrategyID), zap.String("symbol", sig.Symbol.String()), zap.Error(err))
		}
	}
}

// runDailySummary emits notify.DailySummary once every 24 hours off the
// book's realized-trade counters, until ctx is cancelled.
func runDailySummary(ctx context.Context, book *portfolio.Book, notifier notify.Notifier) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			total, wins, pnl := book.DailyTradeStats(now)
			_ = notifier.Notify(ctx, notify.DailySummary(now, total, wins, pnl))
		}
	}
}

// calendarSource has no real KR/US holiday feed wired yet (spec.md keeps
// data-collection internals out of scope); an empty StaticHolidaySource
// leaves every weekday a trading day until a feed is attached.
func calendarSource(_ config.CalendarConfig) calendar.HolidaySource {
	return calendar.StaticHolidaySource{}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
