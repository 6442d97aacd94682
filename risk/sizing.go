package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/marginguard/rules"
)

const (
	// Round trip fees are estimated at six times the fee rate and the
	// result is padded by 5%.
	feeBufferMultiple = 6
	sizeSafetyFactor  = 1.05
	// Fee share assumed while searching for the minimum notional.
	searchFeeMultiple = 3
	// Slack on top of the derived iteration bound.
	searchSlack = 64
	// Hard ceiling for the search, reached only with degenerate step sizes.
	maxSearchIterations = 1_000_000
)

// SizingError reports a minimum order size search that did not converge.
type SizingError struct {
	MinQty      float64
	StepSize    float64
	MinNotional float64
	Price       float64
	Iterations  int
	Reason      string
}

func (e *SizingError) Error() string {
	return fmt.Sprintf("min order size: %s (min_qty=%g step=%g min_notional=%g price=%g iterations=%d)",
		e.Reason, e.MinQty, e.StepSize, e.MinNotional, e.Price, e.Iterations)
}

// OrderSize is a quantity and its quote currency size.
type OrderSize struct {
	Qty  float64
	Size float64
}

// SizeToQty converts a quote currency size to a quantity floored to the
// given precision. A non-zero fee rate reserves three fees' worth of size.
func SizeToQty(size, price float64, precision int, feeRate float64) float64 {
	if price <= 0 || !finite(size) || !finite(price) {
		return 0
	}
	if feeRate != 0 {
		size *= 1 - feeRate*searchFeeMultiple
	}
	q := decimal.NewFromFloat(size).Div(decimal.NewFromFloat(price))
	return q.RoundFloor(int32(precision)).InexactFloat64()
}

// MinOrderSize returns the smallest order that clears the venue minimums
// including a fee buffer.
//
// When MinQty alone is worth at least the minimum notional it is used
// directly. Otherwise the quantity implied by the minimum notional is
// stepped up by StepSize until the fee inclusive size exceeds the minimum.
// The search is bounded and fails with *SizingError.
func MinOrderSize(r rules.TradingRules, price, feeRate float64) (OrderSize, error) {
	fail := func(iter int, reason string) (OrderSize, error) {
		return OrderSize{}, &SizingError{
			MinQty: r.MinQty, StepSize: r.StepSize, MinNotional: r.MinNotional,
			Price: price, Iterations: iter, Reason: reason,
		}
	}
	if price <= 0 || !finite(price) {
		return fail(0, "price must be positive")
	}

	buffered := func(size float64) OrderSize {
		size += size * feeRate * feeBufferMultiple
		size *= sizeSafetyFactor
		return OrderSize{
			Qty:  SizeToQty(size, price, r.QuantityPrecision, feeRate),
			Size: size,
		}
	}

	if r.MinQty*price >= r.MinNotional {
		return buffered(r.MinQty * price), nil
	}

	if r.StepSize <= 0 || !finite(r.StepSize) {
		return fail(0, "step size must be positive")
	}

	bound := math.Ceil(r.MinNotional/(r.StepSize*price)) + searchSlack
	if bound > maxSearchIterations {
		return fail(0, "step size too small for minimum notional")
	}
	limit := int(bound)
	step := decimal.NewFromFloat(r.StepSize)
	qty := decimal.NewFromFloat(SizeToQty(r.MinNotional, price, r.QuantityPrecision, feeRate))

	for i := 1; i <= limit; i++ {
		qty = qty.Add(step)
		size := qty.InexactFloat64() * price
		size += size * feeRate * searchFeeMultiple
		if size > r.MinNotional {
			return buffered(size), nil
		}
	}
	return fail(limit, "iteration bound exceeded")
}
