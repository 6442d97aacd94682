// Package registry is the shared, per-session store through which sibling
// routes exchange position state.
//
// Each route writes only its own Snapshot and may read any other route's.
// Session scalars (totals, running maxima, the margin alert) are written by
// whichever route completed its update last.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/marginguard/risk"
)

// Snapshot is one route's position state, overwritten every cycle.
type Snapshot struct {
	Symbol            string    `json:"symbol"`
	IsOpen            bool      `json:"is_open"`
	Qty               float64   `json:"qty"`
	PosValue          float64   `json:"pos_value"`
	PnL               float64   `json:"pnl"`
	PnLPct            float64   `json:"pnl_pct"`
	EntryPrice        float64   `json:"entry_price"`
	MaintenanceMargin float64   `json:"maintenance_margin"`
	MaxPosValue       float64   `json:"max_position_value"`
	UpdatedAt         time.Time `json:"updated_at"`

	// Continuous (FTX) margin model; zero when flat or on tiered venues.
	CollateralUsed        float64     `json:"collateral_used"`
	PositionIMF           risk.Metric `json:"position_imf"`
	PositionMMF           risk.Metric `json:"position_mmf"`
	MaintenanceCollateral float64     `json:"maintenance_collateral"`

	LiquidationPrice risk.Metric `json:"liquidation_price"`
	LPRate           risk.Metric `json:"lp_rate"`
}

// Scalars are the session-wide values.
type Scalars struct {
	UpdatedAt     time.Time `json:"ts"`
	TotalValue    float64   `json:"total_value"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	MarginBalance float64   `json:"margin_balance"`
	MaintMargin   float64   `json:"maint_margin"`

	MarginRatio      risk.Metric `json:"margin_ratio"`
	MaxMarginRatio   risk.Metric `json:"max_margin_ratio"`
	MaxMarginRatioTS time.Time   `json:"max_margin_ratio_ts"`

	MinMargin     risk.Metric `json:"min_margin"`
	MaxTotalValue float64     `json:"max_total_value"`

	MaxLPRatio   risk.Metric `json:"max_lp_ratio"`
	MaxLPRatioTS time.Time   `json:"max_lp_ratio_ts"`

	MarginAlert bool `json:"margin_alert"`
}

// Registry is safe for concurrent use. Routes run sequentially; the lock
// exists for readers outside the cycle such as the status server.
type Registry struct {
	mu      sync.RWMutex
	routes  map[string]Snapshot
	scalars Scalars
}

// New returns an empty registry with every metric undefined.
func New() *Registry {
	return &Registry{routes: make(map[string]Snapshot)}
}

// Reset clears every snapshot and scalar. Called at session start.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = make(map[string]Snapshot)
	r.scalars = Scalars{}
}

// Put overwrites the snapshot for s.Symbol. MaxPosValue is carried over
// from the previous snapshot.
func (r *Registry) Put(s Snapshot) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.routes[s.Symbol]; ok && prev.MaxPosValue > s.MaxPosValue {
		s.MaxPosValue = prev.MaxPosValue
	}
	if s.PosValue > s.MaxPosValue {
		s.MaxPosValue = s.PosValue
	}
	r.routes[s.Symbol] = s
	return s
}

// Lookup returns the snapshot for symbol. found is false until the route
// has completed its first update.
func (r *Registry) Lookup(symbol string) (s Snapshot, found bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, found = r.routes[symbol]
	return s, found
}

// Snapshots returns every stored snapshot ordered by symbol.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.routes))
	for _, s := range r.routes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Scalars returns a copy of the session scalars.
func (r *Registry) Scalars() Scalars {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scalars
}

// MarginAlert reports whether any route raised the margin alert on its last
// update.
func (r *Registry) MarginAlert() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scalars.MarginAlert
}
