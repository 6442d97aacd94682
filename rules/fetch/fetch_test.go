package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/marginguard/exchange"
	"github.com/rustyeddy/marginguard/rules"
)

func setupTestServer(t *testing.T, routes map[string]string) (*httptest.Server, *HTTP) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	urls := URLs{
		BinanceExchangeInfo: server.URL + "/fapi/v1/exchangeInfo",
		BybitRiskLimit:      server.URL + "/public/linear/risk-limit",
		BybitSymbols:        server.URL + "/v2/public/symbols",
		FtxFutures:          server.URL + "/api/futures",
		FtxMarkets:          server.URL + "/api/markets",
	}
	return server, NewHTTP(resty.NewWithClient(server.Client()), urls)
}

func TestHTTPBybitRiskLimit(t *testing.T) {
	var gotSymbol string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/public/linear/risk-limit", r.URL.Path)
		gotSymbol = r.URL.Query().Get("symbol")
		_, _ = w.Write([]byte(`{"ret_code":0,"ret_msg":"OK","result":[{"id":1,"limit":2000000,"maintain_margin":0.005,"is_lowest_risk":1}]}`))
	}))
	defer server.Close()

	h := NewHTTP(resty.NewWithClient(server.Client()), URLs{BybitRiskLimit: server.URL + "/public/linear/risk-limit"})
	body, err := h.Download(context.Background(), rules.Request{Exchange: exchange.Bybit, Document: rules.RiskTable, Symbol: "BTC-USDT"})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Contains(t, string(body), "maintain_margin")
}

func TestHTTPDocuments(t *testing.T) {
	_, h := setupTestServer(t, map[string]string{
		"/fapi/v1/exchangeInfo": `{"symbols":[]}`,
		"/v2/public/symbols":    `{"ret_code":0,"result":[]}`,
		"/api/futures":          `{"success":true,"result":[]}`,
		"/api/markets":          `{"success":true,"result":[]}`,
	})

	tests := []struct {
		name string
		req  rules.Request
		want string
	}{
		{"binance info", rules.Request{Exchange: exchange.Binance, Document: rules.ExchangeInfo}, `{"symbols":[]}`},
		{"bybit info", rules.Request{Exchange: exchange.Bybit, Document: rules.ExchangeInfo}, `{"ret_code":0,"result":[]}`},
		{"ftx futures", rules.Request{Exchange: exchange.Ftx, Document: rules.RiskTable, Symbol: "BTC-PERP"}, `{"success":true,"result":[]}`},
		{"ftx markets", rules.Request{Exchange: exchange.Ftx, Document: rules.ExchangeInfo}, `{"success":true,"result":[]}`},
	}
	for _, tt := range tests {
		body, err := h.Download(context.Background(), tt.req)
		require.NoError(t, err, tt.name)
		assert.JSONEq(t, tt.want, string(body), tt.name)
	}
}

func TestHTTPErrors(t *testing.T) {
	_, h := setupTestServer(t, map[string]string{
		"/v2/public/symbols": `{"ret_code":10001,"ret_msg":"params error"}`,
		"/api/markets":       `{"success":false,"error":"Not logged in"}`,
		"/api/futures":       `<html>maintenance</html>`,
	})

	_, err := h.Download(context.Background(), rules.Request{Exchange: exchange.Bybit, Document: rules.ExchangeInfo})
	assert.ErrorContains(t, err, "params error")

	_, err = h.Download(context.Background(), rules.Request{Exchange: exchange.Ftx, Document: rules.ExchangeInfo})
	assert.ErrorContains(t, err, "Not logged in")

	_, err = h.Download(context.Background(), rules.Request{Exchange: exchange.Ftx, Document: rules.RiskTable})
	assert.ErrorContains(t, err, "not JSON")

	_, err = h.Download(context.Background(), rules.Request{Exchange: exchange.Binance, Document: rules.ExchangeInfo})
	assert.ErrorContains(t, err, "unexpected status code: 404")

	_, err = h.Download(context.Background(), rules.Request{Exchange: exchange.Binance, Document: rules.RiskTable})
	assert.ErrorContains(t, err, "authenticated")
}

func TestBinanceBrackets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/leverageBracket", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","brackets":[
			{"bracket":1,"initialLeverage":125,"notionalCap":50000,"notionalFloor":0,"maintMarginRatio":0.004,"cum":0},
			{"bracket":2,"initialLeverage":100,"notionalCap":250000,"notionalFloor":50000,"maintMarginRatio":0.005,"cum":50}]}]`))
	}))
	defer server.Close()

	b := NewBinanceBrackets("key", "secret", server.URL)
	h := NewHTTP(nil, DefaultURLs())
	h.Brackets = b

	repo := rules.NewRepository(t.TempDir(), rules.WithDownloader(h))
	tbl, err := repo.Table(context.Background(), exchange.Binance, "BTC-USDT")
	require.NoError(t, err)
	require.Len(t, tbl.Brackets, 2)
	assert.Equal(t, 250000.0, tbl.Brackets[1].NotionalCap)
	assert.Equal(t, 50.0, tbl.Brackets[1].Cum)

	_, err = b.Download(context.Background(), rules.Request{Exchange: exchange.Bybit, Document: rules.RiskTable})
	assert.Error(t, err)
}
