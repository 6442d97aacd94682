package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/rustyeddy/marginguard/exchange"
	"github.com/rustyeddy/marginguard/rules"
)

// URLs are the public endpoints of the rule documents.
type URLs struct {
	BinanceExchangeInfo string
	BybitRiskLimit      string
	BybitSymbols        string
	FtxFutures          string
	FtxMarkets          string
}

func DefaultURLs() URLs {
	return URLs{
		BinanceExchangeInfo: "https://fapi.binance.com/fapi/v1/exchangeInfo",
		BybitRiskLimit:      "https://api.bybit.com/public/linear/risk-limit",
		BybitSymbols:        "https://api.bybit.com/v2/public/symbols",
		FtxFutures:          "https://ftx.com/api/futures",
		FtxMarkets:          "https://ftx.com/api/markets",
	}
}

// NewClient returns the resty client used for rule downloads.
func NewClient() *resty.Client {
	return resty.New().
		SetTransport(&http.Transport{Proxy: http.ProxyFromEnvironment}).
		SetTimeout(15 * time.Second).
		SetRetryCount(3)
}

// HTTP downloads rule documents from the venues' public market metadata
// APIs. Binance leverage brackets require a signed request and are
// delegated to Brackets when set.
type HTTP struct {
	client   *resty.Client
	urls     URLs
	Brackets rules.Downloader
}

func NewHTTP(client *resty.Client, urls URLs) *HTTP {
	if client == nil {
		client = NewClient()
	}
	return &HTTP{client: client, urls: urls}
}

func (h *HTTP) Download(ctx context.Context, req rules.Request) ([]byte, error) {
	switch req.Document {
	case rules.ExchangeInfo:
		switch req.Exchange {
		case exchange.Bybit:
			return h.get(ctx, h.urls.BybitSymbols, nil, bybitOK)
		case exchange.Ftx:
			return h.get(ctx, h.urls.FtxMarkets, nil, ftxOK)
		default:
			return h.get(ctx, h.urls.BinanceExchangeInfo, nil, nil)
		}
	case rules.RiskTable:
		switch req.Exchange {
		case exchange.Bybit:
			return h.get(ctx, h.urls.BybitRiskLimit, map[string]string{"symbol": req.VenueSymbol()}, bybitOK)
		case exchange.Ftx:
			return h.get(ctx, h.urls.FtxFutures, nil, ftxOK)
		default:
			if h.Brackets == nil {
				return nil, fmt.Errorf("binance leverage brackets need an authenticated client")
			}
			return h.Brackets.Download(ctx, req)
		}
	}
	return nil, fmt.Errorf("unsupported document %s", req.Document)
}

// envelope checks the venue's own success flag in a response body.
type envelope func(body []byte) error

func bybitOK(body []byte) error {
	doc := jsoniter.Get(body)
	if code := doc.Get("ret_code"); code.ValueType() == jsoniter.NumberValue && code.ToInt() != 0 {
		return fmt.Errorf("bybit error %d: %s", code.ToInt(), doc.Get("ret_msg").ToString())
	}
	return nil
}

func ftxOK(body []byte) error {
	if ok := jsoniter.Get(body, "success"); ok.ValueType() == jsoniter.BoolValue && !ok.ToBool() {
		return fmt.Errorf("ftx error: %s", jsoniter.Get(body, "error").ToString())
	}
	return nil
}

func (h *HTTP) get(ctx context.Context, url string, query map[string]string, check envelope) ([]byte, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	body := resp.Body()
	if !jsoniter.Valid(body) {
		return nil, fmt.Errorf("response from %s is not JSON", url)
	}
	if check != nil {
		if err := check(body); err != nil {
			return nil, err
		}
	}
	return body, nil
}
