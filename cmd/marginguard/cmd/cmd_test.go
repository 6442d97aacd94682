package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/marginguard/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cache, err := filepath.Abs(filepath.Join("..", "..", "..", "rules", "testdata"))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Rules.CacheDir = cache
	cfg.Journal = config.JournalConfig{Type: "sqlite", DBPath: filepath.Join(dir, "journal.sqlite")}
	cfg.Logging.Level = "error"
	path := filepath.Join(dir, "marginguard.yaml")
	require.NoError(t, cfg.SaveToFile(path))
	return path
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")

	out, err := run(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")

	out, err = run(t, "config", "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "Route: BTC-USDT (10x)")

	_, err = run(t, "config", "validate", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "marginguard version "+version)
}

func TestRulesShow(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())

	out, err := run(t, "rules", "show", "BTC-USDT", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "binance BTC-USDT")
	assert.Contains(t, out, "maint ratio")
	assert.Contains(t, out, "0.004")
	assert.Contains(t, out, "min qty")
}

func TestReplayAndJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)

	ticks := filepath.Join(dir, "ticks.csv")
	require.NoError(t, os.WriteFile(ticks, []byte(`time,symbol,qty,entry_price,mark_price,balance
2024-03-01T00:00:00Z,BTC-USDT,1,30000,30000,10000
2024-03-01T00:01:00Z,BTC-USDT,1,30000,31000,
`), 0644))
	org := filepath.Join(dir, "summary.org")

	out, err := run(t, "replay", "-c", cfg, "--ticks", ticks, "--org", org)
	require.NoError(t, err)
	assert.Contains(t, out, "2 cycles, 2 updates")
	assert.Contains(t, out, "Summary written to")

	body, err := os.ReadFile(org)
	require.NoError(t, err)
	assert.Contains(t, string(body), "BTC-USDT")

	out, err = run(t, "journal", "sessions", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "binance")
	assert.Contains(t, out, "BTC-USDT")
}

func TestJournalNeedsDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	cfg := config.Default()
	cfg.Journal.CyclesFile = filepath.Join(dir, "cycles.csv")
	cfg.Journal.RoutesFile = filepath.Join(dir, "sessions.csv")
	require.NoError(t, cfg.SaveToFile(path))

	_, err := run(t, "journal", "sessions", "-c", path)
	assert.ErrorContains(t, err, "cannot be queried")
}
