package risk

import (
	"math"

	"github.com/rustyeddy/marginguard/tier"
)

// MaintenanceMargin is notional × ratio − maintenance amount for discrete
// tier venues. It is never negative.
func MaintenanceMargin(notional float64, t tier.Tier) float64 {
	notional = math.Abs(notional)
	if notional == 0 {
		return 0
	}
	mm := notional*t.MaintMarginRatio - t.MaintAmount
	if mm < 0 {
		return 0
	}
	return mm
}

// MarginBalance is capital plus unrealized PnL, rounded to 6 decimals.
func MarginBalance(capital, unrealizedPnL float64) float64 {
	return round(capital+unrealizedPnL, 6)
}

// MarginRatio is maintenance margin as a percentage of margin balance,
// rounded to 2 decimals. A negative ratio (negative margin balance) is
// folded to abs+100 so it always reads as worse than 100%. The ratio is
// undefined when the margin balance is zero.
func MarginRatio(maintenanceMargin, marginBalance float64) Metric {
	if marginBalance == 0 || !finite(marginBalance) || !finite(maintenanceMargin) {
		return Undefined
	}
	mr := round(maintenanceMargin/marginBalance*100, 2)
	if mr < 0 {
		mr = math.Abs(mr) + 100
	}
	return Defined(mr)
}
