package exchange

import (
	"fmt"
	"strings"
)

// Kind identifies the margin model of a venue.
type Kind int

const (
	Binance Kind = iota
	Bybit
	Ftx
)

var kindNames = map[Kind]string{
	Binance: "binance",
	Bybit:   "bybit",
	Ftx:     "ftx",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Continuous reports whether the venue uses IMF/MMF formulas instead of
// discrete tiers.
func (k Kind) Continuous() bool {
	return k == Ftx
}

// ParseKind accepts short names ("binance") as well as the long venue names
// used by trading frameworks ("Binance Perpetual Futures", "Bybit USDT
// Perpetual", "FTX Futures").
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case n == "":
		return 0, fmt.Errorf("exchange name is empty")
	case strings.Contains(n, "binance"):
		return Binance, nil
	case strings.Contains(n, "bybit"):
		return Bybit, nil
	case strings.Contains(n, "ftx"):
		return Ftx, nil
	}
	return 0, fmt.Errorf("unknown exchange %q", name)
}
