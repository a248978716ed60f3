// Package config loads the layered application configuration (defaults ->
// YAML file -> TRADER_-prefixed environment variables) via spf13/viper into
// typed structs covering spec.md §6's configuration surface.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// RiskConfig is the risk manager's tunable ceilings (spec.md §6 "Risk").
type RiskConfig struct {
	MaxPositionPct        float64            `mapstructure:"max_position_pct"`
	MaxTotalExposurePct   float64            `mapstructure:"max_total_exposure_pct"`
	MaxDailyLossAbs       float64            `mapstructure:"max_daily_loss_abs"`
	MaxDailyLossPct       float64            `mapstructure:"max_daily_loss_pct"`
	DefaultStopLossPct    float64            `mapstructure:"default_stop_loss_pct"`
	DefaultTakeProfitPct  float64            `mapstructure:"default_take_profit_pct"`
	MaxConcurrentPositions int               `mapstructure:"max_concurrent_positions"`
	VolatilityThreshold   float64            `mapstructure:"volatility_threshold"`
	MinOrderSize          float64            `mapstructure:"min_order_size"`
	SymbolOverrides       map[string]float64 `mapstructure:"symbol_overrides"`
	DefaultTrailPct       float64            `mapstructure:"default_trail_pct"`
	QuantityStep          float64            `mapstructure:"quantity_step"`
	TickSize              float64            `mapstructure:"tick_size"`
}

// StrategyConfig names a registered strategy, the symbols it should watch,
// and its JSON parameter blob (schema declared per strategy per spec.md §6
// "Strategy").
type StrategyConfig struct {
	ID            string   `mapstructure:"id"`
	Symbols       []string `mapstructure:"symbols"`
	ParametersRaw string   `mapstructure:"parameters"`
}

// ConnectorConfig is one exchange credential/environment set (spec.md §6
// "Connector").
type ConnectorConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // "paper" | "real"
	AccountCode string `mapstructure:"account_code"`
	TimeoutSec  int    `mapstructure:"timeout_sec"`
	AppKey      string `mapstructure:"app_key"`
	AppSecret   string `mapstructure:"app_secret"`
}

// CalendarConfig lists markets to track and the holiday-cache TTL (spec.md §6
// "Calendar").
type CalendarConfig struct {
	Markets   []string `mapstructure:"markets"`
	CacheTTLH int      `mapstructure:"cache_ttl_hours"`
}

// ServerConfig is the ambient HTTP/WS surface configuration.
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	WebSocketPath string `mapstructure:"websocket_path"`
	MetricsPath   string `mapstructure:"metrics_path"`
}

// Config is the top-level application configuration.
type Config struct {
	LogLevel   string            `mapstructure:"log_level"`
	PaperMode  bool              `mapstructure:"paper_mode"`
	Server     ServerConfig      `mapstructure:"server"`
	Risk       RiskConfig        `mapstructure:"risk"`
	Strategies []StrategyConfig  `mapstructure:"strategies"`
	Connectors []ConnectorConfig `mapstructure:"connectors"`
	Calendar   CalendarConfig    `mapstructure:"calendar"`
}

// Load builds a *viper.Viper layered as defaults -> optional file at path ->
// environment (TRADER_ prefix, "." replaced with "_"), and unmarshals it into
// a Config. path may be empty to skip the file layer.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("paper_mode", true)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.metrics_path", "/metrics")

	v.SetDefault("risk.max_position_pct", 0.10)
	v.SetDefault("risk.max_total_exposure_pct", 0.60)
	v.SetDefault("risk.max_daily_loss_abs", 1_000_000.0)
	v.SetDefault("risk.max_daily_loss_pct", 3.0)
	v.SetDefault("risk.default_stop_loss_pct", 2.0)
	v.SetDefault("risk.default_take_profit_pct", 4.0)
	v.SetDefault("risk.max_concurrent_positions", 10)
	v.SetDefault("risk.volatility_threshold", 0.05)
	v.SetDefault("risk.min_order_size", 10.0)
	v.SetDefault("risk.default_trail_pct", 0.03)
	v.SetDefault("risk.quantity_step", 0.0001)
	v.SetDefault("risk.tick_size", 0.01)

	v.SetDefault("calendar.markets", []string{"kr_stock", "us_stock", "crypto"})
	v.SetDefault("calendar.cache_ttl_hours", 24)
}
