package fetch

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2/futures"
	jsoniter "github.com/json-iterator/go"

	"github.com/rustyeddy/marginguard/exchange"
	"github.com/rustyeddy/marginguard/rules"
)

// BinanceBrackets downloads the USDⓈ-M leverage bracket table for all
// symbols. The endpoint is signed, so an API key pair is required.
type BinanceBrackets struct {
	client *futures.Client
}

// NewBinanceBrackets returns a bracket downloader. baseURL overrides the
// production endpoint when not empty.
func NewBinanceBrackets(apiKey, secretKey, baseURL string) *BinanceBrackets {
	c := futures.NewClient(apiKey, secretKey)
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	return &BinanceBrackets{client: c}
}

func (b *BinanceBrackets) Download(ctx context.Context, req rules.Request) ([]byte, error) {
	if req.Exchange != exchange.Binance || req.Document != rules.RiskTable {
		return nil, fmt.Errorf("binance brackets cannot serve %s %s", req.Exchange, req.Document)
	}

	res, err := b.client.NewGetLeverageBracketService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get leverage brackets: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("get leverage brackets: empty response")
	}

	// The cached document keeps the upstream field names.
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(res)
}
