package registry

import (
	"math"
	"time"

	"github.com/rustyeddy/marginguard/risk"
)

// Totals are the account level aggregates seen by one route.
type Totals struct {
	Notional          float64
	UnrealizedPnL     float64
	MaintenanceMargin float64

	// Sums over every route except self.
	OtherMaintenanceMargin float64
	OtherUnrealizedPnL     float64

	// Notional weighted averages of the position fractions.
	AccountIMF risk.Metric
	AccountMMF risk.Metric

	CollateralUsed        float64
	MaintenanceCollateral float64

	// Missing lists sibling routes that have not run yet. They count as zero.
	Missing []string
}

// Aggregate sums the snapshots of routes, using self for its own symbol.
//
// With a single route the totals are self's own values, so the result never
// depends on registry population order. A sibling absent from the registry
// contributes zero and is listed in Missing; the totals converge once every
// route has run.
func (r *Registry) Aggregate(self Snapshot, routes []string) Totals {
	if len(routes) <= 1 {
		return weigh(Totals{
			Notional:              self.PosValue,
			UnrealizedPnL:         self.PnL,
			MaintenanceMargin:     self.MaintenanceMargin,
			CollateralUsed:        self.CollateralUsed,
			MaintenanceCollateral: self.MaintenanceCollateral,
		}, []Snapshot{self})
	}

	var t Totals
	members := make([]Snapshot, 0, len(routes))
	for _, sym := range routes {
		s := self
		if sym != self.Symbol {
			var ok bool
			if s, ok = r.Lookup(sym); !ok {
				t.Missing = append(t.Missing, sym)
				continue
			}
			t.OtherMaintenanceMargin += s.MaintenanceMargin
			t.OtherUnrealizedPnL += s.PnL
		}
		members = append(members, s)
		t.Notional += s.PosValue
		t.UnrealizedPnL += s.PnL
		t.MaintenanceMargin += s.MaintenanceMargin
		t.CollateralUsed += s.CollateralUsed
		t.MaintenanceCollateral += s.MaintenanceCollateral
	}
	t.Notional = risk.Round(t.Notional, 6)
	return weigh(t, members)
}

// weigh fills the account IMF and MMF: Σ (notional / total) × fraction.
func weigh(t Totals, members []Snapshot) Totals {
	if t.Notional == 0 {
		return t
	}
	var imf, mmf float64
	var haveIMF, haveMMF bool
	for _, s := range members {
		w := s.PosValue / t.Notional
		if s.PositionIMF.Valid {
			imf += w * s.PositionIMF.Value
			haveIMF = true
		}
		if s.PositionMMF.Valid {
			mmf += w * s.PositionMMF.Value
			haveMMF = true
		}
	}
	if haveIMF {
		t.AccountIMF = risk.Defined(imf)
	}
	if haveMMF {
		t.AccountMMF = risk.Defined(mmf)
	}
	return t
}

// Account is one route's view of the account after its update.
type Account struct {
	At              time.Time
	TotalValue      float64
	UnrealizedPnL   float64
	MarginBalance   float64
	MaintMargin     float64
	MarginRatio     risk.Metric
	AvailableMargin float64

	// AlertRatio raises MarginAlert when the margin ratio reaches it.
	AlertRatio float64
}

// Record stores the account scalars and updates the running extremes. It
// reports whether the maximum margin ratio increased.
func (r *Registry) Record(a Account) (newMax bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.scalars
	s.UpdatedAt = a.At
	s.TotalValue = a.TotalValue
	s.UnrealizedPnL = a.UnrealizedPnL
	s.MarginBalance = a.MarginBalance
	s.MaintMargin = a.MaintMargin
	s.MarginRatio = a.MarginRatio
	s.MaxTotalValue = math.Max(s.MaxTotalValue, a.TotalValue)

	if !s.MinMargin.Valid || a.AvailableMargin < s.MinMargin.Value {
		s.MinMargin = risk.Defined(a.AvailableMargin)
	}

	s.MarginAlert = a.MarginRatio.Valid && a.AlertRatio > 0 && a.MarginRatio.Value >= a.AlertRatio

	if a.MarginRatio.Valid && (!s.MaxMarginRatio.Valid || a.MarginRatio.Value > s.MaxMarginRatio.Value) {
		s.MaxMarginRatio = a.MarginRatio
		s.MaxMarginRatioTS = a.At
		newMax = true
	}
	return newMax
}

// RecordLPRatio keeps the highest liquidation price ratio seen. Undefined
// ratios are ignored.
func (r *Registry) RecordLPRatio(ratio risk.Metric, at time.Time) (newMax bool) {
	if !ratio.Valid {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &r.scalars
	if !s.MaxLPRatio.Valid || ratio.Value > s.MaxLPRatio.Value {
		s.MaxLPRatio = ratio
		s.MaxLPRatioTS = at
		return true
	}
	return false
}
