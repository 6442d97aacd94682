package session

import (
	"time"

	"github.com/rustyeddy/marginguard/registry"
	"github.com/rustyeddy/marginguard/risk"
)

// WatchRow is one route as shown on the watchlist.
type WatchRow struct {
	Symbol            string      `json:"symbol"`
	Side              string      `json:"side"`
	Qty               float64     `json:"qty"`
	Notional          float64     `json:"notional"`
	PnLPct            float64     `json:"pnl_pct"`
	MaintenanceMargin float64     `json:"maintenance_margin"`
	LiquidationPrice  risk.Metric `json:"liquidation_price"`
	LPRate            risk.Metric `json:"lp_rate"`
	MaxPosValue       float64     `json:"max_position_value"`
	Ready             bool        `json:"ready"`
}

// Watchlist is the live view served by the status endpoint.
type Watchlist struct {
	SessionID string           `json:"session_id"`
	UpdatedAt time.Time        `json:"updated_at"`
	Status    string           `json:"status"`
	Routes    []WatchRow       `json:"routes"`
	Account   registry.Scalars `json:"account"`
}

func watchRow(symbol string, s registry.Snapshot, ready bool) WatchRow {
	return WatchRow{
		Symbol:            symbol,
		Side:              risk.SideOf(s.Qty).String(),
		Qty:               s.Qty,
		Notional:          s.PosValue,
		PnLPct:            s.PnLPct,
		MaintenanceMargin: s.MaintenanceMargin,
		LiquidationPrice:  s.LiquidationPrice,
		LPRate:            s.LPRate,
		MaxPosValue:       s.MaxPosValue,
		Ready:             ready,
	}
}

// Watchlist reads the registry only and is safe to call while routes
// update.
func (s *Session) Watchlist() Watchlist {
	sc := s.reg.Scalars()
	w := Watchlist{
		SessionID: s.id,
		UpdatedAt: sc.UpdatedAt,
		Status:    s.guard.State().String(),
		Account:   sc,
	}
	for _, sym := range s.symbols {
		snap, ok := s.reg.Lookup(sym)
		w.Routes = append(w.Routes, watchRow(sym, snap, ok))
	}
	if sc.UpdatedAt.IsZero() {
		w.Status = "not ready"
	}
	return w
}

// WatchRoute returns the watchlist row for one route.
func (s *Session) WatchRoute(symbol string) (WatchRow, bool) {
	r, ok := s.Route(symbol)
	if !ok {
		return WatchRow{}, false
	}
	snap, ready := s.reg.Lookup(r.Symbol)
	return watchRow(r.Symbol, snap, ready), true
}
