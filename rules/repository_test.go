package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/marginguard/exchange"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", filepath.FromSlash(name)))
	require.NoError(t, err)
	return data
}

// countingDownloader serves fixtures and records every request.
type countingDownloader struct {
	calls []Request
	serve func(req Request) ([]byte, error)
}

func (d *countingDownloader) Download(_ context.Context, req Request) ([]byte, error) {
	d.calls = append(d.calls, req)
	return d.serve(req)
}

func TestRequestCacheName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		req  Request
		want string
	}{
		{Request{Exchange: exchange.Binance, Document: RiskTable, Symbol: "BTC-USDT"}, "BinanceLeverageBrackets.json"},
		{Request{Exchange: exchange.Bybit, Document: RiskTable, Symbol: "BTC-USD"}, "bybit/risk-limit-BTC-USDT.json"},
		{Request{Exchange: exchange.Ftx, Document: RiskTable, Symbol: "BTC-USD"}, "ftx/BTC-PERP.json"},
		{Request{Exchange: exchange.Binance, Document: ExchangeInfo}, "BinanceFuturesExchangeInfo.json"},
		{Request{Exchange: exchange.Bybit, Document: ExchangeInfo}, "BybitPerpetualExchangeInfo.json"},
		{Request{Exchange: exchange.Ftx, Document: ExchangeInfo}, "FTXExchangeInfo.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.req.CacheName())
	}
}

func TestTableFromCache(t *testing.T) {
	t.Parallel()

	repo := NewRepository("testdata")
	ctx := context.Background()

	bt, err := repo.Table(ctx, exchange.Binance, "BTC-USDT")
	require.NoError(t, err)
	require.Len(t, bt.Brackets, 2)
	assert.Equal(t, 50000.0, bt.Brackets[0].NotionalCap)
	assert.Equal(t, 0.005, bt.Brackets[1].MaintMarginRatio)
	assert.Equal(t, 50.0, bt.Brackets[1].Cum)
	assert.False(t, bt.Degraded)

	// string encoded numbers
	et, err := repo.Table(ctx, exchange.Binance, "ETH-PERP")
	require.NoError(t, err)
	require.Len(t, et.Brackets, 3)
	assert.Equal(t, 10000.0, et.Brackets[0].NotionalCap)
	assert.Equal(t, 0.005, et.Brackets[0].MaintMarginRatio)

	yt, err := repo.Table(ctx, exchange.Bybit, "BTC-USDT")
	require.NoError(t, err)
	require.Len(t, yt.RiskLimits, 3)
	assert.Equal(t, 1, yt.RiskLimits[0].IsLowestRisk)
	assert.Equal(t, 57.14, yt.RiskLimits[1].MaxLeverage)

	ft, err := repo.Table(ctx, exchange.Ftx, "BTC-USD")
	require.NoError(t, err)
	require.NotNil(t, ft.Ftx)
	assert.Equal(t, "BTC-PERP", ft.Ftx.Name)
	assert.Equal(t, 0.002, ft.Ftx.IMFFactor)
	assert.Equal(t, 1.0, ft.Ftx.MMFWeight)
}

func TestTableIsMemoized(t *testing.T) {
	t.Parallel()

	repo := NewRepository("testdata")
	a, err := repo.Table(context.Background(), exchange.Binance, "BTC-USDT")
	require.NoError(t, err)
	b, err := repo.Table(context.Background(), exchange.Binance, "btc-usdt")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestTableUnavailable(t *testing.T) {
	t.Parallel()

	repo := NewRepository(t.TempDir())
	_, err := repo.Table(context.Background(), exchange.Binance, "BTC-USDT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRuleUnavailable))

	var uerr *UnavailableError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "BTC-USDT", uerr.Symbol)
	assert.Equal(t, RiskTable, uerr.Document)
}

func TestTableSymbolMissing(t *testing.T) {
	t.Parallel()

	repo := NewRepository("testdata")
	_, err := repo.Table(context.Background(), exchange.Binance, "LTC-USDT")
	assert.ErrorIs(t, err, ErrRuleUnavailable)

	_, err = repo.Table(context.Background(), exchange.Ftx, "DOGE-PERP")
	assert.ErrorIs(t, err, ErrRuleUnavailable)
}

func TestTableParseErrorDegrades(t *testing.T) {
	t.Parallel()

	repo := NewRepository("testdata")
	tbl, err := repo.Table(context.Background(), exchange.Binance, "XRP-USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRuleParse)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "notionalCap", perr.Field)

	require.NotNil(t, tbl)
	assert.True(t, tbl.Degraded)
	assert.Empty(t, tbl.Brackets)
}

func TestTableMalformedFtxUsesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, NewCache(dir).Write("ftx/ETH-PERP.json",
		[]byte(`{"result":[{"name":"ETH-PERP","imfWeight":1}]}`)))

	tbl, err := NewRepository(dir).Table(context.Background(), exchange.Ftx, "ETH-USD")
	assert.ErrorIs(t, err, ErrRuleParse)
	require.NotNil(t, tbl)
	require.NotNil(t, tbl.Ftx)
	assert.Equal(t, DefaultFtxParams.IMFFactor, tbl.Ftx.IMFFactor)
	assert.Equal(t, "ETH-PERP", tbl.Ftx.Name)
}

func TestTableNotJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BinanceLeverageBrackets.json"), []byte("<html>"), 0644))

	tbl, err := NewRepository(dir).Table(context.Background(), exchange.Binance, "BTC-USDT")
	assert.ErrorIs(t, err, ErrRuleParse)
	require.NotNil(t, tbl)
	assert.True(t, tbl.Degraded)
}

func TestDownloadOnCacheMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dl := &countingDownloader{serve: func(req Request) ([]byte, error) {
		return readFixture(t, req.CacheName()), nil
	}}
	repo := NewRepository(dir, WithDownloader(dl))

	tbl, err := repo.Table(context.Background(), exchange.Bybit, "BTC-USDT")
	require.NoError(t, err)
	assert.Len(t, tbl.RiskLimits, 3)
	require.Len(t, dl.calls, 1)
	assert.Equal(t, "BTCUSDT", dl.calls[0].VenueSymbol())

	cached, err := os.ReadFile(filepath.Join(dir, "bybit", "risk-limit-BTC-USDT.json"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(cached), "\n    \""), "cache file should be indented")

	// A fresh repository reads the file written above without downloading.
	again := NewRepository(dir)
	tbl2, err := again.Table(context.Background(), exchange.Bybit, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, tbl.RiskLimits, tbl2.RiskLimits)
}

func TestDownloadSharedDocumentOnce(t *testing.T) {
	t.Parallel()

	dl := &countingDownloader{serve: func(req Request) ([]byte, error) {
		return readFixture(t, req.CacheName()), nil
	}}
	repo := NewRepository(t.TempDir(), WithDownloader(dl))

	_, err := repo.Table(context.Background(), exchange.Binance, "BTC-USDT")
	require.NoError(t, err)
	_, err = repo.Table(context.Background(), exchange.Binance, "ETH-USDT")
	require.NoError(t, err)
	assert.Len(t, dl.calls, 1)
}

func TestDownloadFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	repo := NewRepository(t.TempDir(), WithDownloader(DownloaderFunc(func(context.Context, Request) ([]byte, error) {
		return nil, boom
	})))

	_, err := repo.Table(context.Background(), exchange.Binance, "BTC-USDT")
	assert.ErrorIs(t, err, ErrRuleUnavailable)
	assert.ErrorIs(t, err, boom)
}

func TestRefreshFallsBackToCache(t *testing.T) {
	t.Parallel()

	repo := NewRepository("testdata", WithRefresh(true), WithDownloader(DownloaderFunc(func(context.Context, Request) ([]byte, error) {
		return nil, errors.New("offline")
	})))

	tbl, err := repo.Table(context.Background(), exchange.Binance, "BTC-USDT")
	require.NoError(t, err)
	assert.Len(t, tbl.Brackets, 2)
}

func TestCacheWriteFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	// A regular file where the cache directory should be.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	repo := NewRepository(blocker, WithDownloader(DownloaderFunc(func(_ context.Context, req Request) ([]byte, error) {
		return readFixture(t, req.CacheName()), nil
	})))

	tbl, err := repo.Table(context.Background(), exchange.Binance, "BTC-USDT")
	require.NoError(t, err)
	assert.Len(t, tbl.Brackets, 2)
}

func TestReload(t *testing.T) {
	t.Parallel()

	version := 0
	repo := NewRepository(t.TempDir(), WithDownloader(DownloaderFunc(func(context.Context, Request) ([]byte, error) {
		version++
		if version == 1 {
			return []byte(`[{"symbol":"BTCUSDT","brackets":[{"notionalCap":50000,"maintMarginRatio":0.004}]}]`), nil
		}
		return []byte(`[{"symbol":"BTCUSDT","brackets":[{"notionalCap":50000,"maintMarginRatio":0.006}]}]`), nil
	})))

	first, err := repo.Table(context.Background(), exchange.Binance, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 0.004, first.Brackets[0].MaintMarginRatio)

	same, err := repo.Table(context.Background(), exchange.Binance, "BTC-USDT")
	require.NoError(t, err)
	assert.Same(t, first, same)

	reloaded, err := repo.Reload(context.Background(), exchange.Binance, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 0.006, reloaded.Brackets[0].MaintMarginRatio)
	assert.Equal(t, 2, version)
}

func TestTradingRules(t *testing.T) {
	t.Parallel()

	repo := NewRepository("testdata")
	ctx := context.Background()

	tests := []struct {
		name   string
		kind   exchange.Kind
		symbol string
		want   TradingRules
	}{
		{
			name:   "binance futures",
			kind:   exchange.Binance,
			symbol: "BTC-USDT",
			want:   TradingRules{MinQty: 0.001, StepSize: 0.001, MinNotional: 5, PricePrecision: 2, QuantityPrecision: 3},
		},
		{
			name:   "bybit perpetual",
			kind:   exchange.Bybit,
			symbol: "BTC-USDT",
			want:   TradingRules{MinQty: 0.001, StepSize: 0.001, MinNotional: 0.00001, PricePrecision: 2, QuantityPrecision: 3},
		},
		{
			name:   "ftx",
			kind:   exchange.Ftx,
			symbol: "BTC-USD",
			want:   TradingRules{MinQty: 0.001, StepSize: 0.0001, MinNotional: 0.00001, PricePrecision: 0, QuantityPrecision: 4},
		},
	}
	for _, tt := range tests {
		got, err := repo.TradingRules(ctx, tt.kind, tt.symbol)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestTradingRulesMalformed(t *testing.T) {
	t.Parallel()

	repo := NewRepository("testdata")
	got, err := repo.TradingRules(context.Background(), exchange.Binance, "DOGE-USDT")
	assert.ErrorIs(t, err, ErrRuleParse)
	assert.Equal(t, DefaultTradingRules, got)

	_, err = repo.TradingRules(context.Background(), exchange.Bybit, "ETH-USDT")
	assert.ErrorIs(t, err, ErrRuleUnavailable)
}

func TestPrecisionOf(t *testing.T) {
	assert.Equal(t, 3, precisionOf(0.001))
	assert.Equal(t, 1, precisionOf(0.1))
	assert.Equal(t, 0, precisionOf(1))
	assert.Equal(t, 0, precisionOf(10))
}
