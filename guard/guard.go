// Package guard declares an account liquidated when the aggregated margin
// ratio reaches the configured threshold.
package guard

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/marginguard/metrics"
	"github.com/rustyeddy/marginguard/registry"
	"github.com/rustyeddy/marginguard/risk"
)

type State int

const (
	Active State = iota
	Liquidated
)

func (s State) String() string {
	if s == Liquidated {
		return "liquidated"
	}
	return "active"
}

// Mode selects what a liquidation does to the session.
type Mode int

const (
	Backtest Mode = iota
	Live
)

func (m Mode) String() string {
	if m == Live {
		return "live"
	}
	return "backtest"
}

// ErrLiquidated matches every *LiquidationError.
var ErrLiquidated = errors.New("liquidation detected")

// Report is the diagnostic snapshot taken when the guard trips.
type Report struct {
	At       time.Time
	Symbol   string // route whose update tripped the guard
	Reason   string
	Leverage float64

	Balance         float64
	AvailableMargin float64
	MarginBalance   float64
	MaintMargin     float64
	TotalValue      float64
	UnrealizedPnL   float64

	MarginRatio     risk.Metric
	PrevMarginRatio risk.Metric
	Threshold       float64

	Scalars registry.Scalars
	Routes  []registry.Snapshot
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at %s (%s): margin ratio %s%% (threshold %g%%, previous %s%%)\n",
		r.Reason, r.At.Format(time.RFC3339), r.Symbol, r.MarginRatio, r.Threshold, r.PrevMarginRatio)
	fmt.Fprintf(&b, "  balance %.2f x %g = %.2f, available margin %.2f\n",
		r.Balance, r.Leverage, r.Balance*r.Leverage, r.AvailableMargin)
	fmt.Fprintf(&b, "  total value %.2f, unrealized pnl %.2f, margin balance %.2f, maint margin %.2f\n",
		r.TotalValue, r.UnrealizedPnL, r.MarginBalance, r.MaintMargin)
	fmt.Fprintf(&b, "  max margin ratio %s%% at %s, min margin %s, max lp ratio %s at %s\n",
		r.Scalars.MaxMarginRatio, r.Scalars.MaxMarginRatioTS.Format(time.RFC3339),
		r.Scalars.MinMargin, r.Scalars.MaxLPRatio, r.Scalars.MaxLPRatioTS.Format(time.RFC3339))
	for _, s := range r.Routes {
		fmt.Fprintf(&b, "  %-12s open=%t qty=%g value=%.2f pnl=%.2f mm=%.2f liq=%s\n",
			s.Symbol, s.IsOpen, s.Qty, s.PosValue, s.PnL, s.MaintenanceMargin, s.LiquidationPrice)
	}
	return strings.TrimRight(b.String(), "\n")
}

// LiquidationError unwinds a backtest after the guard trips.
type LiquidationError struct {
	Report Report
}

func (e *LiquidationError) Error() string {
	return ErrLiquidated.Error() + ": " + e.Report.String()
}

func (e *LiquidationError) Is(target error) bool { return target == ErrLiquidated }

// Terminator requests the end of the trading session.
type Terminator func(Report)

type Options struct {
	Mode      Mode
	Threshold float64 // percent, e.g. 97

	// KeepRunning lets a backtest continue past liquidation so the drift
	// can be observed. Ignored in live mode.
	KeepRunning bool

	Terminate Terminator
	Logger    *zap.Logger
}

// Guard is the Active → Liquidated state machine. There is no way back to
// Active.
type Guard struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	state  State
	report Report
	err    error
}

func New(opts Options) *Guard {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{opts: opts, log: log}
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Report returns the diagnostic taken at liquidation.
func (g *Guard) Report() (Report, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.report, g.state == Liquidated
}

// Breached reports whether a margin ratio trips a guard at threshold. The
// boundary is inclusive. An undefined ratio trips only when there is
// maintenance margin to cover, which means the margin balance is gone.
func Breached(mr risk.Metric, maintMargin, threshold float64) bool {
	if !mr.Valid {
		return maintMargin > 0
	}
	return mr.Value < 0 || mr.Value >= threshold
}

// Check evaluates r.MarginRatio. On the first breach it records r, logs it,
// and requests termination; in backtest mode without KeepRunning it also
// returns a *LiquidationError. Once liquidated, later calls return the same
// error without terminating again.
func (g *Guard) Check(r Report) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Liquidated {
		return g.err
	}
	r.Threshold = g.opts.Threshold
	if !Breached(r.MarginRatio, r.MaintMargin, g.opts.Threshold) {
		return nil
	}

	if r.Reason == "" {
		r.Reason = "margin ratio breached"
		if !r.MarginRatio.Valid {
			r.Reason = "margin balance exhausted"
		}
	}
	g.state = Liquidated
	g.report = r
	metrics.Liquidations.WithLabelValues(g.opts.Mode.String()).Inc()

	g.log.Error("liquidation detected",
		zap.String("mode", g.opts.Mode.String()),
		zap.String("symbol", r.Symbol),
		zap.Stringer("margin_ratio", r.MarginRatio),
		zap.Float64("threshold", r.Threshold),
		zap.Float64("balance", r.Balance),
		zap.Float64("leverage", r.Leverage),
		zap.Float64("margin_balance", r.MarginBalance),
		zap.Float64("maint_margin", r.MaintMargin),
		zap.Float64("total_value", r.TotalValue),
		zap.Stringer("max_margin_ratio", r.Scalars.MaxMarginRatio),
		zap.String("report", r.String()),
	)

	if g.opts.Mode == Backtest && g.opts.KeepRunning {
		g.log.Warn("keeping backtest running after liquidation")
		return nil
	}
	if g.opts.Terminate != nil {
		g.opts.Terminate(r)
	}
	if g.opts.Mode == Backtest {
		g.err = &LiquidationError{Report: r}
	}
	return g.err
}
