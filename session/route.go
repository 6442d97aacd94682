package session

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/marginguard/exchange"
	"github.com/rustyeddy/marginguard/metrics"
	"github.com/rustyeddy/marginguard/registry"
	"github.com/rustyeddy/marginguard/risk"
	"github.com/rustyeddy/marginguard/rules"
	"github.com/rustyeddy/marginguard/tier"
)

// Update is the host's view of one route at a tick.
type Update struct {
	Time       time.Time
	Symbol     string
	Qty        float64 // signed
	EntryPrice float64
	MarkPrice  float64

	// Balance is the realized wallet balance. Nil keeps the previous one;
	// a reported zero is a wiped wallet.
	Balance *float64
	// AvailableMargin as reported by the venue. Zero derives it from the
	// margin balance and the total maintenance margin.
	AvailableMargin float64
}

// FtxMetrics are the continuous margin model values of one route.
type FtxMetrics struct {
	PositionIMF           risk.Metric
	PositionMMF           risk.Metric
	CollateralUsed        float64
	MaintenanceCollateral float64
	AccountIMF            risk.Metric
	AccountMMF            risk.Metric
	ACMF                  risk.Metric
	MarginFraction        risk.Metric
	ZeroPrice             risk.Metric
	PMPD                  risk.Metric
	PositionZeroPrice     risk.Metric
	LiquidationDistance   risk.Metric
	LDInverse             risk.Metric
}

// Result is what one route update computed.
type Result struct {
	Symbol   string
	Time     time.Time
	Position risk.Position
	Tier     tier.Tier

	MaintenanceMargin float64
	MarginBalance     float64
	MarginRatio       risk.Metric
	LiquidationPrice  risk.Metric
	LPRate            risk.Metric
	Totals            registry.Totals

	// Ftx is nil on tiered venues.
	Ftx *FtxMetrics
}

// Route is one traded symbol of a session.
type Route struct {
	Symbol   string
	Leverage float64

	policy   risk.Policy
	kind     exchange.Kind
	resolver *tier.Resolver
	trading  rules.TradingRules
	log      *zap.Logger

	violations []risk.Violation
}

func (r *Route) ftx() (*tier.Ftx, bool) {
	f, ok := r.resolver.Source().(*tier.Ftx)
	return f, ok
}

// Violations returns the leverage warnings raised so far.
func (r *Route) Violations() []risk.Violation {
	return append([]risk.Violation(nil), r.violations...)
}

// TradingRules returns the venue trading rules loaded at session start.
func (r *Route) TradingRules() rules.TradingRules { return r.trading }

// CheckLeverage checks the route leverage against the tier for notional,
// logs and records any violation, and returns the decision.
func (r *Route) CheckLeverage(notional float64, stage string) risk.Decision {
	d := risk.CheckLeverage(r.resolver.Source(), r.Leverage, notional, stage)
	for _, v := range d.Violations {
		metrics.LeverageViolations.WithLabelValues(r.Symbol, stage).Inc()
		r.log.Warn("leverage check failed",
			zap.String("symbol", r.Symbol),
			zap.String("stage", stage),
			zap.String("code", v.Code),
			zap.String("detail", v.Msg),
		)
		r.violations = append(r.violations, v)
	}
	return d
}

// CheckBeforeOrder checks the notional the position would have after an
// order.
func (r *Route) CheckBeforeOrder(notional float64) risk.Decision {
	return r.CheckLeverage(notional, risk.StageBeforeOrder)
}

// MinOrderSize returns the smallest order that clears the venue minimums
// at price.
func (r *Route) MinOrderSize(price float64) (risk.OrderSize, error) {
	return risk.MinOrderSize(r.trading, price, r.policy.FeeRate)
}

func (r *Route) position(u Update) risk.Position {
	p := risk.Position{
		Symbol:     r.Symbol,
		Qty:        u.Qty,
		EntryPrice: u.EntryPrice,
		MarkPrice:  u.MarkPrice,
	}
	if !p.IsOpen() {
		return p
	}
	p.Value = risk.Round(math.Abs(u.Qty)*u.MarkPrice, 6)
	p.PnL = u.Qty * (u.MarkPrice - u.EntryPrice)
	if cost := math.Abs(u.Qty) * u.EntryPrice / math.Max(r.Leverage, 1); cost > 0 {
		p.PnLPct = p.PnL / cost * 100
	}
	return p
}

// snapshot computes the route's own margin figures.
func (r *Route) snapshot(u Update, p risk.Position) (registry.Snapshot, tier.Tier, *FtxMetrics) {
	notional := p.Notional()
	s := registry.Snapshot{
		Symbol:     r.Symbol,
		IsOpen:     p.IsOpen(),
		Qty:        p.Qty,
		PosValue:   notional,
		PnL:        p.PnL,
		PnLPct:     p.PnLPct,
		EntryPrice: p.EntryPrice,
		UpdatedAt:  u.Time,
	}

	t := r.resolver.Resolve(notional)
	f, continuous := r.ftx()
	if !continuous {
		s.MaintenanceMargin = risk.MaintenanceMargin(notional, t)
		return s, t, nil
	}

	params := f.Params()
	fm := &FtxMetrics{
		PositionIMF: risk.PositionIMF(params, p.Qty, r.Leverage, r.policy.FeeRate),
		PositionMMF: risk.PositionMMF(params, p.Qty),
	}
	fm.CollateralUsed = risk.CollateralUsed(fm.PositionIMF, notional)
	fm.MaintenanceCollateral = risk.MaintenanceCollateral(notional, fm.PositionMMF)

	s.MaintenanceMargin = risk.FtxMaintenanceMargin(params, p.Qty, notional)
	s.PositionIMF = fm.PositionIMF
	s.PositionMMF = fm.PositionMMF
	s.CollateralUsed = fm.CollateralUsed
	s.MaintenanceCollateral = fm.MaintenanceCollateral
	return s, t, fm
}

// liquidation fills the liquidation price for a tiered venue with LP1, or
// the zero price and the rest of the continuous metrics for FTX.
func (r *Route) liquidation(res *Result, capital, marginBalance float64) {
	p := res.Position
	if res.Ftx == nil {
		res.LiquidationPrice = risk.LiquidationPriceLP1(risk.LP1Input{
			WalletBalance:          capital,
			OtherMaintenanceMargin: res.Totals.OtherMaintenanceMargin,
			OtherUnrealizedPnL:     res.Totals.OtherUnrealizedPnL,
			MaintAmount:            res.Tier.MaintAmount,
			MaintMarginRatio:       res.Tier.MaintMarginRatio,
			Qty:                    p.Qty,
			EntryPrice:             p.EntryPrice,
		})
		return
	}

	fm := res.Ftx
	notional := p.Notional()
	fm.AccountIMF = res.Totals.AccountIMF
	fm.AccountMMF = res.Totals.AccountMMF
	fm.ACMF = risk.ACMF(fm.AccountMMF)
	fm.MarginFraction = risk.MarginFraction(capital, notional)
	fm.ZeroPrice = risk.ZeroPrice(p.MarkPrice, fm.MarginFraction, p.Side())
	fm.PMPD = risk.PMPD(fm.MaintenanceCollateral, res.Totals.MaintenanceCollateral, marginBalance, notional)
	fm.PositionZeroPrice = risk.PositionZeroPrice(p.MarkPrice, fm.PMPD, p.Side())
	fm.LiquidationDistance = risk.LiquidationDistance(fm.MarginFraction, fm.AccountMMF)
	if fm.LiquidationDistance.Valid {
		fm.LDInverse = risk.Defined(1 - fm.LiquidationDistance.Value)
	}
	res.LiquidationPrice = fm.ZeroPrice
}
