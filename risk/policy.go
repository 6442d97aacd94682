package risk

// Policy holds the per-route risk settings fixed for a session.
type Policy struct {
	Leverage float64 // user configured, e.g. 10
	FeeRate  float64 // taker fee, e.g. 0.0004

	// MarginRatioThreshold is the margin ratio, in percent, at which the
	// account is considered liquidated.
	MarginRatioThreshold float64 // 97

	// MarginAlertRatio raises the shared margin alert. Zero means
	// MarginRatioThreshold.
	MarginAlertRatio float64

	// FixedMarginRatio overrides tier maintenance ratios when set.
	FixedMarginRatio *float64
}

// AlertRatio returns the effective alert level.
func (p Policy) AlertRatio() float64 {
	if p.MarginAlertRatio > 0 {
		return p.MarginAlertRatio
	}
	return p.MarginRatioThreshold
}
