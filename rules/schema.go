package rules

import (
	"errors"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/rustyeddy/marginguard/exchange"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BinanceBracket is one row of a Binance leverage bracket table.
type BinanceBracket struct {
	Bracket          int     `json:"bracket"`
	InitialLeverage  float64 `json:"initialLeverage"`
	NotionalCap      float64 `json:"notionalCap"`
	NotionalFloor    float64 `json:"notionalFloor"`
	MaintMarginRatio float64 `json:"maintMarginRatio"`
	Cum              float64 `json:"cum"`
}

// BybitRiskLimit is one row of a Bybit linear risk-limit table.
type BybitRiskLimit struct {
	ID             int     `json:"id"`
	Limit          float64 `json:"limit"`
	MaintainMargin float64 `json:"maintain_margin"`
	StartingMargin float64 `json:"starting_margin"`
	MaxLeverage    float64 `json:"max_leverage"`
	IsLowestRisk   int     `json:"is_lowest_risk"`
}

// FtxParams are the continuous margin parameters of one FTX future.
type FtxParams struct {
	Name      string  `json:"name"`
	IMFFactor float64 `json:"imfFactor"`
	IMFWeight float64 `json:"imfWeight"`
	MMFWeight float64 `json:"mmfWeight"`
}

// DefaultFtxParams replace a malformed FTX record. Weights of 1 never
// discount margin.
var DefaultFtxParams = FtxParams{IMFFactor: 0.002, IMFWeight: 1, MMFWeight: 1}

// Table is the parsed risk table of one symbol. Exactly one of Brackets,
// RiskLimits or Ftx is populated, according to Exchange.
type Table struct {
	Exchange   exchange.Kind
	Symbol     string
	Brackets   []BinanceBracket
	RiskLimits []BybitRiskLimit
	Ftx        *FtxParams

	// Degraded is set when the table was replaced by conservative defaults.
	Degraded bool
}

// number reads a numeric field that upstream APIs sometimes encode as a
// string.
func number(v jsoniter.Any) (float64, bool) {
	switch v.ValueType() {
	case jsoniter.NumberValue:
		return v.ToFloat64(), true
	case jsoniter.StringValue:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.ToString()), 64)
		return f, err == nil
	}
	return 0, false
}

type fieldReader struct {
	rec   jsoniter.Any
	field string
}

func (r *fieldReader) required(key string) float64 {
	f, ok := number(r.rec.Get(key))
	if !ok && r.field == "" {
		r.field = key
	}
	return f
}

func (r *fieldReader) optional(key string, def float64) float64 {
	if f, ok := number(r.rec.Get(key)); ok {
		return f
	}
	return def
}

// entries returns the records of doc: the array itself, or the array under
// the first present key.
func entries(doc jsoniter.Any, keys ...string) (jsoniter.Any, bool) {
	if doc.ValueType() == jsoniter.ArrayValue {
		return doc, true
	}
	for _, k := range keys {
		if v := doc.Get(k); v.ValueType() == jsoniter.ArrayValue {
			return v, true
		}
	}
	return nil, false
}

func parseDoc(raw []byte, kind exchange.Kind, symbol string) (jsoniter.Any, error) {
	doc := json.Get(raw)
	if doc.ValueType() == jsoniter.InvalidValue {
		err := doc.LastError()
		if err == nil {
			err = errors.New("not a JSON document")
		}
		return nil, &ParseError{Exchange: kind, Symbol: symbol, Field: "document", Err: err}
	}
	return doc, nil
}

func parseBinanceBrackets(raw []byte, symbol string) ([]BinanceBracket, error) {
	venue := exchange.VenueSymbol(exchange.Binance, symbol)
	doc, err := parseDoc(raw, exchange.Binance, symbol)
	if err != nil {
		return nil, err
	}

	var rows jsoniter.Any
	if list, ok := entries(doc); ok {
		for i := 0; i < list.Size(); i++ {
			if list.Get(i, "symbol").ToString() == venue {
				rows = list.Get(i, "brackets")
				break
			}
		}
	} else if doc.Get("symbol").ToString() == venue {
		rows = doc.Get("brackets")
	}
	if rows == nil {
		return nil, errSymbolMissing
	}
	if rows.ValueType() != jsoniter.ArrayValue {
		return nil, &ParseError{Exchange: exchange.Binance, Symbol: symbol, Field: "brackets"}
	}

	out := make([]BinanceBracket, 0, rows.Size())
	for i := 0; i < rows.Size(); i++ {
		r := fieldReader{rec: rows.Get(i)}
		b := BinanceBracket{
			Bracket:          int(r.optional("bracket", float64(i+1))),
			InitialLeverage:  r.optional("initialLeverage", 1),
			NotionalCap:      r.required("notionalCap"),
			NotionalFloor:    r.optional("notionalFloor", 0),
			MaintMarginRatio: r.required("maintMarginRatio"),
			Cum:              r.optional("cum", 0),
		}
		if r.field != "" {
			return nil, &ParseError{Exchange: exchange.Binance, Symbol: symbol, Field: r.field}
		}
		out = append(out, b)
	}
	return out, nil
}

func parseBybitRiskLimits(raw []byte, symbol string) ([]BybitRiskLimit, error) {
	venue := exchange.VenueSymbol(exchange.Bybit, symbol)
	doc, err := parseDoc(raw, exchange.Bybit, symbol)
	if err != nil {
		return nil, err
	}
	if code, ok := number(doc.Get("ret_code")); ok && code != 0 {
		return nil, &ParseError{Exchange: exchange.Bybit, Symbol: symbol, Field: "ret_code",
			Err: errors.New(doc.Get("ret_msg").ToString())}
	}
	rows, ok := entries(doc, "result")
	if !ok {
		return nil, &ParseError{Exchange: exchange.Bybit, Symbol: symbol, Field: "result"}
	}

	out := make([]BybitRiskLimit, 0, rows.Size())
	for i := 0; i < rows.Size(); i++ {
		rec := rows.Get(i)
		if s := rec.Get("symbol"); s.ValueType() == jsoniter.StringValue && s.ToString() != venue {
			continue
		}
		r := fieldReader{rec: rec}
		l := BybitRiskLimit{
			ID:             int(r.optional("id", float64(i+1))),
			Limit:          r.required("limit"),
			MaintainMargin: r.required("maintain_margin"),
			StartingMargin: r.optional("starting_margin", 0),
			MaxLeverage:    r.optional("max_leverage", 1),
			IsLowestRisk:   int(r.optional("is_lowest_risk", 0)),
		}
		if r.field != "" {
			return nil, &ParseError{Exchange: exchange.Bybit, Symbol: symbol, Field: r.field}
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, errSymbolMissing
	}
	return out, nil
}

func parseFtxParams(raw []byte, symbol string) (FtxParams, error) {
	venue := exchange.VenueSymbol(exchange.Ftx, symbol)
	doc, err := parseDoc(raw, exchange.Ftx, symbol)
	if err != nil {
		return FtxParams{}, err
	}
	rows, ok := entries(doc, "result")
	if !ok {
		return FtxParams{}, &ParseError{Exchange: exchange.Ftx, Symbol: symbol, Field: "result"}
	}

	for i := 0; i < rows.Size(); i++ {
		rec := rows.Get(i)
		if rec.Get("name").ToString() != venue {
			continue
		}
		r := fieldReader{rec: rec}
		p := FtxParams{
			Name:      venue,
			IMFFactor: r.required("imfFactor"),
			IMFWeight: r.optional("imfWeight", 1),
			MMFWeight: r.optional("mmfWeight", 1),
		}
		if r.field != "" {
			return FtxParams{}, &ParseError{Exchange: exchange.Ftx, Symbol: symbol, Field: r.field}
		}
		return p, nil
	}
	return FtxParams{}, errSymbolMissing
}
