package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/marginguard/exchange"
	"github.com/rustyeddy/marginguard/guard"
	"github.com/rustyeddy/marginguard/risk"
	"github.com/rustyeddy/marginguard/session"
)

// Config is the complete configuration of one marginguard session.
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Routes   []RouteConfig  `json:"routes" yaml:"routes"`
	Rules    RulesConfig    `json:"rules" yaml:"rules"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Status   StatusConfig   `json:"status" yaml:"status"`
}

type AccountConfig struct {
	Balance float64 `json:"balance" yaml:"balance"`
	// UseInitialBalance computes the margin balance from the session start
	// balance instead of the live one.
	UseInitialBalance bool `json:"use_initial_balance" yaml:"use_initial_balance"`
}

type ExchangeConfig struct {
	Name                string  `json:"name" yaml:"name"` // binance, bybit or ftx
	TradeWithBybitRules bool    `json:"trade_with_bybit_rules" yaml:"trade_with_bybit_rules"`
	FeeRate             float64 `json:"fee_rate" yaml:"fee_rate"`
}

type RiskConfig struct {
	Leverage             float64  `json:"leverage" yaml:"leverage"`
	MarginRatioThreshold float64  `json:"margin_ratio_threshold" yaml:"margin_ratio_threshold"`
	MarginAlertRatio     float64  `json:"margin_alert_ratio,omitempty" yaml:"margin_alert_ratio,omitempty"`
	FixedMarginRatio     *float64 `json:"fixed_margin_ratio,omitempty" yaml:"fixed_margin_ratio,omitempty"`
	KeepRunning          bool     `json:"keep_running_in_case_of_liquidation" yaml:"keep_running_in_case_of_liquidation"`
	Live                 bool     `json:"live" yaml:"live"`
}

type RouteConfig struct {
	Symbol   string  `json:"symbol" yaml:"symbol"`
	Leverage float64 `json:"leverage,omitempty" yaml:"leverage,omitempty"`
}

// RulesConfig locates rule documents. Download allows the collaborator to
// be called on a cache miss.
type RulesConfig struct {
	CacheDir         string `json:"cache_dir" yaml:"cache_dir"`
	Download         bool   `json:"download" yaml:"download"`
	BinanceAPIKey    string `json:"binance_api_key,omitempty" yaml:"binance_api_key,omitempty"`
	BinanceSecretKey string `json:"binance_secret_key,omitempty" yaml:"binance_secret_key,omitempty"`
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv", "sqlite" or "postgres"
	CyclesFile string `json:"cycles_file,omitempty" yaml:"cycles_file,omitempty"`
	RoutesFile string `json:"routes_file,omitempty" yaml:"routes_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DSN        string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "json" or "console"
}

type StatusConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"` // empty disables
}

// Environment variables that override the Binance key pair.
const (
	EnvBinanceAPIKey    = "MARGINGUARD_BINANCE_API_KEY"
	EnvBinanceSecretKey = "MARGINGUARD_BINANCE_SECRET_KEY"
)

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON
// otherwise).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides the Binance key pair from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvBinanceAPIKey); v != "" {
		c.Rules.BinanceAPIKey = v
	}
	if v := os.Getenv(EnvBinanceSecretKey); v != "" {
		c.Rules.BinanceSecretKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Risk.MarginRatioThreshold == 0 {
		c.Risk.MarginRatioThreshold = 97
	}
	if c.Journal.Type == "" {
		c.Journal.Type = "none"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if _, err := exchange.ParseKind(c.Exchange.Name); err != nil {
		return fmt.Errorf("exchange.name: %w", err)
	}
	if c.Exchange.FeeRate < 0 || c.Exchange.FeeRate >= 1 {
		return fmt.Errorf("exchange.fee_rate must be between 0 and 1")
	}
	if c.Risk.Leverage <= 0 {
		return fmt.Errorf("risk.leverage must be positive")
	}
	if c.Risk.MarginRatioThreshold <= 0 {
		return fmt.Errorf("risk.margin_ratio_threshold must be positive")
	}
	if c.Risk.MarginAlertRatio < 0 {
		return fmt.Errorf("risk.margin_alert_ratio must not be negative")
	}
	if f := c.Risk.FixedMarginRatio; f != nil && (*f <= 0 || *f >= 1) {
		return fmt.Errorf("risk.fixed_margin_ratio must be between 0 and 1")
	}
	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}
	seen := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		if strings.TrimSpace(r.Symbol) == "" {
			return fmt.Errorf("routes[%d].symbol is required", i)
		}
		if r.Leverage < 0 {
			return fmt.Errorf("routes[%d].leverage must not be negative", i)
		}
		sym := exchange.Normalize(r.Symbol)
		if seen[sym] {
			return fmt.Errorf("duplicate route %s", sym)
		}
		seen[sym] = true
	}
	if c.Rules.CacheDir == "" {
		return fmt.Errorf("rules.cache_dir is required")
	}
	switch c.Journal.Type {
	case "none":
	case "csv":
		if c.Journal.CyclesFile == "" || c.Journal.RoutesFile == "" {
			return fmt.Errorf("journal cycles_file and routes_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal dsn required for Postgres type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv', 'sqlite' or 'postgres'")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}
	return nil
}

// Session translates the configuration into a session configuration.
func (c *Config) Session(id string) (session.Config, error) {
	kind, err := exchange.ParseKind(c.Exchange.Name)
	if err != nil {
		return session.Config{}, err
	}
	mode := guard.Backtest
	if c.Risk.Live {
		mode = guard.Live
	}
	sc := session.Config{
		ID:                  id,
		Exchange:            kind,
		TradeWithBybitRules: c.Exchange.TradeWithBybitRules,
		Mode:                mode,
		KeepRunning:         c.Risk.KeepRunning,
		Balance:             c.Account.Balance,
		UseInitialBalance:   c.Account.UseInitialBalance,
		Policy: risk.Policy{
			Leverage:             c.Risk.Leverage,
			FeeRate:              c.Exchange.FeeRate,
			MarginRatioThreshold: c.Risk.MarginRatioThreshold,
			MarginAlertRatio:     c.Risk.MarginAlertRatio,
			FixedMarginRatio:     c.Risk.FixedMarginRatio,
		},
	}
	for _, r := range c.Routes {
		sc.Routes = append(sc.Routes, session.RouteConfig{Symbol: r.Symbol, Leverage: r.Leverage})
	}
	return sc, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Balance: 10000,
		},
		Exchange: ExchangeConfig{
			Name:    "binance",
			FeeRate: 0.0004,
		},
		Risk: RiskConfig{
			Leverage:             10,
			MarginRatioThreshold: 97,
		},
		Routes: []RouteConfig{
			{Symbol: "BTC-USDT"},
		},
		Rules: RulesConfig{
			CacheDir: "./rules",
		},
		Journal: JournalConfig{
			Type:       "csv",
			CyclesFile: "./cycles.csv",
			RoutesFile: "./sessions.csv",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
