package risk

import "math"

// Side is the direction of a one-way position.
type Side int

const (
	Short Side = -1
	Flat  Side = 0
	Long  Side = 1
)

func SideOf(qty float64) Side {
	switch {
	case qty > 0:
		return Long
	case qty < 0:
		return Short
	}
	return Flat
}

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return "flat"
}

// Position is the host's read-only view of one route's position.
type Position struct {
	Symbol     string
	Qty        float64 // signed; sign is the side
	EntryPrice float64
	MarkPrice  float64

	// Value is the notional in quote currency. When zero it is derived from
	// Qty and MarkPrice.
	Value float64

	PnL    float64
	PnLPct float64
}

func (p Position) Side() Side { return SideOf(p.Qty) }

func (p Position) IsOpen() bool { return p.Qty != 0 }

// Notional is the absolute position value in quote currency, 0 when flat.
func (p Position) Notional() float64 {
	if !p.IsOpen() {
		return 0
	}
	if p.Value != 0 {
		return math.Abs(p.Value)
	}
	return math.Abs(p.Qty) * p.MarkPrice
}

// Account is the capital side of the margin calculation.
type Account struct {
	Balance        float64
	InitialBalance float64
	// UseInitialBalance measures margin against the session start balance
	// instead of the live balance.
	UseInitialBalance bool
	AvailableMargin   float64
}

// Capital is the wallet balance margin is measured against.
func (a Account) Capital() float64 {
	if a.UseInitialBalance {
		return a.InitialBalance
	}
	return a.Balance
}
