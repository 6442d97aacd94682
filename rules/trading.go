package rules

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/marginguard/exchange"
)

// TradingRules are the order constraints of one symbol.
type TradingRules struct {
	MinQty            float64 `json:"min_qty"`
	StepSize          float64 `json:"step_size"`
	MinNotional       float64 `json:"min_notional"`
	PricePrecision    int     `json:"price_precision"`
	QuantityPrecision int     `json:"quantity_precision"`
}

// DefaultTradingRules are used when an exchange info document cannot be
// parsed.
var DefaultTradingRules = TradingRules{
	MinQty:            1,
	StepSize:          0.1,
	MinNotional:       0.0001,
	PricePrecision:    6,
	QuantityPrecision: 1,
}

// Bybit and FTX publish no minimum notional; a tiny value lets MinQty decide.
const negligibleNotional = 0.00001

// precisionOf returns the number of decimals in an increment such as 0.001.
func precisionOf(increment float64) int {
	exp := decimal.NewFromFloat(increment).Exponent()
	if exp >= 0 {
		return 0
	}
	return int(-exp)
}

func parseTradingRules(raw []byte, kind exchange.Kind, symbol string) (TradingRules, error) {
	doc, err := parseDoc(raw, kind, symbol)
	if err != nil {
		return TradingRules{}, err
	}
	switch kind {
	case exchange.Bybit:
		return parseBybitSymbols(doc, symbol)
	case exchange.Ftx:
		return parseFtxMarkets(doc, symbol)
	default:
		return parseBinanceExchangeInfo(doc, symbol)
	}
}

func find(rows jsoniter.Any, key, want string) jsoniter.Any {
	for i := 0; i < rows.Size(); i++ {
		if rows.Get(i, key).ToString() == want {
			return rows.Get(i)
		}
	}
	return nil
}

func parseBinanceExchangeInfo(doc jsoniter.Any, symbol string) (TradingRules, error) {
	rows, ok := entries(doc, "symbols")
	if !ok {
		return TradingRules{}, &ParseError{Exchange: exchange.Binance, Symbol: symbol, Field: "symbols"}
	}
	rec := find(rows, "symbol", exchange.VenueSymbol(exchange.Binance, symbol))
	if rec == nil {
		return TradingRules{}, errSymbolMissing
	}

	r := fieldReader{rec: rec}
	out := TradingRules{
		PricePrecision:    int(r.required("pricePrecision")),
		QuantityPrecision: int(r.required("quantityPrecision")),
	}

	// Filters are matched by type; their position in the list is not stable.
	filters := rec.Get("filters")
	var haveLot, haveNotional bool
	for i := 0; i < filters.Size(); i++ {
		f := fieldReader{rec: filters.Get(i)}
		switch strings.ToUpper(f.rec.Get("filterType").ToString()) {
		case "LOT_SIZE":
			out.MinQty = f.required("minQty")
			out.StepSize = f.required("stepSize")
			haveLot = f.field == ""
		case "MIN_NOTIONAL":
			out.MinNotional = f.optional("notional", f.optional("minNotional", -1))
			haveNotional = out.MinNotional >= 0
		}
	}
	switch {
	case r.field != "":
		return TradingRules{}, &ParseError{Exchange: exchange.Binance, Symbol: symbol, Field: r.field}
	case !haveLot:
		return TradingRules{}, &ParseError{Exchange: exchange.Binance, Symbol: symbol, Field: "filters.LOT_SIZE"}
	case !haveNotional:
		return TradingRules{}, &ParseError{Exchange: exchange.Binance, Symbol: symbol, Field: "filters.MIN_NOTIONAL"}
	}
	return out, nil
}

func parseBybitSymbols(doc jsoniter.Any, symbol string) (TradingRules, error) {
	rows, ok := entries(doc, "result")
	if !ok {
		return TradingRules{}, &ParseError{Exchange: exchange.Bybit, Symbol: symbol, Field: "result"}
	}
	rec := find(rows, "name", exchange.VenueSymbol(exchange.Bybit, symbol))
	if rec == nil {
		return TradingRules{}, errSymbolMissing
	}

	r := fieldReader{rec: rec}
	lot := fieldReader{rec: rec.Get("lot_size_filter")}
	out := TradingRules{
		PricePrecision: int(r.required("price_scale")),
		MinQty:         lot.required("min_trading_qty"),
		StepSize:       lot.required("qty_step"),
		MinNotional:    negligibleNotional,
	}
	if lot.field != "" {
		return TradingRules{}, &ParseError{Exchange: exchange.Bybit, Symbol: symbol, Field: "lot_size_filter." + lot.field}
	}
	if r.field != "" {
		return TradingRules{}, &ParseError{Exchange: exchange.Bybit, Symbol: symbol, Field: r.field}
	}
	out.QuantityPrecision = precisionOf(out.StepSize)
	return out, nil
}

func parseFtxMarkets(doc jsoniter.Any, symbol string) (TradingRules, error) {
	rows, ok := entries(doc, "result")
	if !ok {
		return TradingRules{}, &ParseError{Exchange: exchange.Ftx, Symbol: symbol, Field: "result"}
	}
	rec := find(rows, "name", exchange.VenueSymbol(exchange.Ftx, symbol))
	if rec == nil {
		return TradingRules{}, errSymbolMissing
	}

	r := fieldReader{rec: rec}
	out := TradingRules{
		StepSize:    r.required("sizeIncrement"),
		MinQty:      r.required("minProvideSize"),
		MinNotional: negligibleNotional,
	}
	price := r.required("priceIncrement")
	if r.field != "" {
		return TradingRules{}, &ParseError{Exchange: exchange.Ftx, Symbol: symbol, Field: r.field}
	}
	out.QuantityPrecision = precisionOf(out.StepSize)
	out.PricePrecision = precisionOf(price)
	return out, nil
}
