package rules

import (
	"context"
	"fmt"

	"github.com/rustyeddy/marginguard/exchange"
)

// Document selects which upstream document a request refers to.
type Document int

const (
	// RiskTable is the tier table (Binance brackets, Bybit risk limits) or
	// the FTX futures list carrying IMF/MMF parameters.
	RiskTable Document = iota
	// ExchangeInfo carries lot size, precision and notional filters.
	ExchangeInfo
)

func (d Document) String() string {
	switch d {
	case RiskTable:
		return "risk table"
	case ExchangeInfo:
		return "exchange info"
	}
	return fmt.Sprintf("document(%d)", int(d))
}

// Request identifies one upstream document. Symbol is in normalized dash
// form; exchange wide documents ignore it.
type Request struct {
	Exchange exchange.Kind
	Document Document
	Symbol   string
}

// VenueSymbol is the symbol spelled the way the venue API expects it.
func (r Request) VenueSymbol() string {
	return exchange.VenueSymbol(r.Exchange, r.Symbol)
}

// CacheName is the cache file name, relative to the cache directory.
func (r Request) CacheName() string {
	if r.Document == ExchangeInfo {
		switch r.Exchange {
		case exchange.Bybit:
			return "BybitPerpetualExchangeInfo.json"
		case exchange.Ftx:
			return "FTXExchangeInfo.json"
		default:
			return "BinanceFuturesExchangeInfo.json"
		}
	}
	switch r.Exchange {
	case exchange.Bybit:
		return "bybit/risk-limit-" + exchange.Normalize(r.Symbol) + ".json"
	case exchange.Ftx:
		return "ftx/" + r.VenueSymbol() + ".json"
	default:
		return "BinanceLeverageBrackets.json"
	}
}

// Downloader fetches raw upstream documents. It is the only network
// dependency of the rule repository; see rules/fetch for implementations.
type Downloader interface {
	Download(ctx context.Context, req Request) ([]byte, error)
}

// DownloaderFunc adapts a function to the Downloader interface.
type DownloaderFunc func(ctx context.Context, req Request) ([]byte, error)

func (f DownloaderFunc) Download(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}
