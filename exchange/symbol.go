package exchange

import "strings"

// Normalize maps the host's symbol spelling onto the dash form the rule
// files are keyed by, e.g. "BTC-PERP" and "BTC-USD" both become "BTC-USDT".
func Normalize(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasPrefix(s, "BCO-") {
		s = "BTC-" + strings.TrimPrefix(s, "BCO-")
	}
	switch {
	case strings.HasSuffix(s, "-USD"):
		s += "T"
	case strings.HasSuffix(s, "-PERP"):
		s = strings.TrimSuffix(s, "-PERP") + "-USDT"
	}
	return s
}

// Base returns the base asset of a normalized symbol.
func Base(symbol string) string {
	s := Normalize(symbol)
	if i := strings.Index(s, "-"); i >= 0 {
		return s[:i]
	}
	return s
}

// VenueSymbol returns the symbol as the venue's API spells it:
// "BTCUSDT" for Binance and Bybit, "BTC-PERP" for FTX.
func VenueSymbol(k Kind, symbol string) string {
	if k == Ftx {
		return Base(symbol) + "-PERP"
	}
	return strings.ReplaceAll(Normalize(symbol), "-", "")
}
