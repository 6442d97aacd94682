package risk

import "math"

// round rounds half away from zero to the given number of decimals.
func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// Round is round exported for callers that report metrics at the same
// precision as the calculator stores them.
func Round(x float64, places int) float64 {
	return round(x, places)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
