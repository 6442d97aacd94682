package risk

import "math"

// LP1Input carries the terms of the single-position cross margin
// liquidation price.
type LP1Input struct {
	WalletBalance float64
	// Sums over every other open position, read from the shared registry.
	OtherMaintenanceMargin float64
	OtherUnrealizedPnL     float64

	MaintAmount      float64 // cum of the resolved tier
	MaintMarginRatio float64
	Qty              float64 // signed
	EntryPrice       float64
}

// LiquidationPriceLP1 is
//
//	(WB − TMM1 + UPNL1 + cum − side·|qty|·EP) / (|qty|·MMR − side·|qty|)
//
// Hedge mode terms are zero. The result is undefined for a flat position,
// a zero denominator, or a non-positive price.
func LiquidationPriceLP1(in LP1Input) Metric {
	side := float64(SideOf(in.Qty))
	if side == 0 {
		return Undefined
	}
	q := math.Abs(in.Qty)

	num := in.WalletBalance - in.OtherMaintenanceMargin + in.OtherUnrealizedPnL +
		in.MaintAmount - side*q*in.EntryPrice
	den := q*in.MaintMarginRatio - side*q
	if den == 0 {
		return Undefined
	}
	lp := num / den
	if lp <= 0 {
		return Undefined
	}
	return Defined(lp)
}

// ZeroPrice is the FTX style liquidation price: mark·(1 − mf) for longs and
// mark·(1 + mf) for shorts.
func ZeroPrice(mark float64, marginFraction Metric, side Side) Metric {
	if side == Flat || !marginFraction.Valid {
		return Undefined
	}
	zp := mark * (1 - float64(side)*marginFraction.Value)
	if zp <= 0 {
		return Undefined
	}
	return Defined(zp)
}

// LPRate is liq/mark for longs and mark/liq for shorts. Values near 1 mean
// the position is close to liquidation.
func LPRate(liq Metric, mark float64, side Side) Metric {
	if side == Flat || !liq.Valid || liq.Value <= 0 || mark <= 0 {
		return Undefined
	}
	if side == Long {
		return Defined(liq.Value / mark)
	}
	return Defined(mark / liq.Value)
}
