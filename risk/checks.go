package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/marginguard/tier"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	Notional    float64
	MaxLeverage float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Stages at which leverage is checked against the tier table.
const (
	StageSessionStart = "session_start"
	StageBeforeOrder  = "before_order"
	StageSessionEnd   = "session_end"
)

// CheckLeverage reports (never fails) when the configured leverage exceeds
// what the tier for notional allows. Backtests may run with such leverage;
// the caller decides whether to abort.
func CheckLeverage(src tier.Source, leverage, notional float64, stage string) Decision {
	d := Decision{Allowed: true, Notional: math.Abs(notional)}
	if src == nil {
		d.add("NO_TIER_SOURCE", "no tier source configured")
		return d
	}
	if src.Exchange().Continuous() {
		return d
	}

	t := src.Resolve(notional)
	d.MaxLeverage = t.MaxLeverage

	if leverage > t.MaxLeverage {
		d.add("LEVERAGE_ABOVE_TIER",
			fmt.Sprintf("%s: max leverage for position size %.2f on %s is %gx, configured %gx",
				stage, d.Notional, src.Exchange(), t.MaxLeverage, leverage))
	}
	if t.Fallback {
		d.add("NOTIONAL_ABOVE_TIERS",
			fmt.Sprintf("%s: position size %.2f exceeds the last known tier; using maintenance ratio %g",
				stage, d.Notional, t.MaintMarginRatio))
	}
	return d
}
