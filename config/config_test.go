package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/marginguard/exchange"
	"github.com/rustyeddy/marginguard/guard"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, 10000.0, cfg.Account.Balance)
	assert.Equal(t, 97.0, cfg.Risk.MarginRatioThreshold)
	assert.Equal(t, "binance", cfg.Exchange.Name)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	ratio := func(v float64) *float64 { return &v }

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"negative balance", func(c *Config) { c.Account.Balance = -1000 }, "account.balance must be positive"},
		{"unknown exchange", func(c *Config) { c.Exchange.Name = "kraken" }, "unknown exchange"},
		{"long exchange name", func(c *Config) { c.Exchange.Name = "Bybit USDT Perpetual" }, ""},
		{"fee rate", func(c *Config) { c.Exchange.FeeRate = 1 }, "exchange.fee_rate"},
		{"zero leverage", func(c *Config) { c.Risk.Leverage = 0 }, "risk.leverage must be positive"},
		{"zero threshold", func(c *Config) { c.Risk.MarginRatioThreshold = 0 }, "risk.margin_ratio_threshold"},
		{"fixed ratio out of range", func(c *Config) { c.Risk.FixedMarginRatio = ratio(1.5) }, "risk.fixed_margin_ratio"},
		{"fixed ratio", func(c *Config) { c.Risk.FixedMarginRatio = ratio(0.01) }, ""},
		{"no routes", func(c *Config) { c.Routes = nil }, "at least one route"},
		{"empty symbol", func(c *Config) { c.Routes = []RouteConfig{{Symbol: " "}} }, "routes[0].symbol is required"},
		{"duplicate route", func(c *Config) {
			c.Routes = []RouteConfig{{Symbol: "ETH-PERP"}, {Symbol: "eth-usdt"}}
		}, "duplicate route ETH-USDT"},
		{"no cache dir", func(c *Config) { c.Rules.CacheDir = "" }, "rules.cache_dir is required"},
		{"csv without files", func(c *Config) { c.Journal.CyclesFile = "" }, "cycles_file and routes_file"},
		{"sqlite without path", func(c *Config) { c.Journal = JournalConfig{Type: "sqlite"} }, "db_path required"},
		{"postgres without dsn", func(c *Config) { c.Journal = JournalConfig{Type: "postgres"} }, "dsn required"},
		{"unknown journal", func(c *Config) { c.Journal = JournalConfig{Type: "kafka"} }, "journal.type"},
		{"no journal", func(c *Config) { c.Journal = JournalConfig{Type: "none"} }, ""},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
		{"yml format", ".yml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			fixed := 0.02
			cfg.Risk.FixedMarginRatio = &fixed
			cfg.Routes = append(cfg.Routes, RouteConfig{Symbol: "ETH-USDT", Leverage: 5})
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "min.yaml")
	doc := `
account:
  balance: 500
exchange:
  name: ftx
risk:
  leverage: 3
routes:
  - symbol: BTC-PERP
rules:
  cache_dir: /tmp/rules
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 97.0, cfg.Risk.MarginRatioThreshold)
	assert.Equal(t, "none", cfg.Journal.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: [unclosed"), 0644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvBinanceAPIKey, "key-from-env")
	t.Setenv(EnvBinanceSecretKey, "")

	cfg := Default()
	cfg.Rules.BinanceSecretKey = "file-secret"
	cfg.ApplyEnv()
	assert.Equal(t, "key-from-env", cfg.Rules.BinanceAPIKey)
	assert.Equal(t, "file-secret", cfg.Rules.BinanceSecretKey)
}

func TestSession(t *testing.T) {
	cfg := Default()
	cfg.Exchange.Name = "Binance Perpetual Futures"
	cfg.Exchange.TradeWithBybitRules = true
	cfg.Risk.Live = true
	cfg.Risk.MarginAlertRatio = 80
	cfg.Account.UseInitialBalance = true
	cfg.Routes = []RouteConfig{{Symbol: "BTC-USDT"}, {Symbol: "ETH-USDT", Leverage: 5}}

	sc, err := cfg.Session("01HSESSION")
	require.NoError(t, err)
	assert.Equal(t, "01HSESSION", sc.ID)
	assert.Equal(t, exchange.Binance, sc.Exchange)
	assert.True(t, sc.TradeWithBybitRules)
	assert.Equal(t, guard.Live, sc.Mode)
	assert.True(t, sc.UseInitialBalance)
	assert.Equal(t, 10.0, sc.Policy.Leverage)
	assert.Equal(t, 0.0004, sc.Policy.FeeRate)
	assert.Equal(t, 80.0, sc.Policy.AlertRatio())
	require.Len(t, sc.Routes, 2)
	assert.Equal(t, 5.0, sc.Routes[1].Leverage)
}
