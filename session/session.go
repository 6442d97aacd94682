// Package session drives the risk engine for a set of routes. It owns the
// shared registry and the liquidation guard for the lifetime of one
// backtest or live session.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/marginguard/exchange"
	"github.com/rustyeddy/marginguard/guard"
	"github.com/rustyeddy/marginguard/internal/id"
	"github.com/rustyeddy/marginguard/journal"
	"github.com/rustyeddy/marginguard/metrics"
	"github.com/rustyeddy/marginguard/registry"
	"github.com/rustyeddy/marginguard/risk"
	"github.com/rustyeddy/marginguard/rules"
	"github.com/rustyeddy/marginguard/tier"
)

// nan is the "no value" of a prometheus gauge. Undefined metrics stay
// risk.Metric everywhere else.
var nan = math.NaN()

// ErrTerminated is returned by updates after the session was asked to end.
var ErrTerminated = errors.New("session terminated")

// Rules is the rule source a session loads its tables from.
type Rules interface {
	Table(ctx context.Context, kind exchange.Kind, symbol string) (*rules.Table, error)
	TradingRules(ctx context.Context, kind exchange.Kind, symbol string) (rules.TradingRules, error)
}

type RouteConfig struct {
	Symbol   string
	Leverage float64 // zero uses Config.Policy.Leverage
}

type Config struct {
	ID       string // generated when empty
	Exchange exchange.Kind
	// TradeWithBybitRules resolves tiers and trading rules with Bybit data
	// whatever the venue.
	TradeWithBybitRules bool

	Mode        guard.Mode
	KeepRunning bool

	Balance           float64
	UseInitialBalance bool

	Policy risk.Policy
	Routes []RouteConfig
}

func (c Config) ruleKind() exchange.Kind {
	if c.TradeWithBybitRules {
		return exchange.Bybit
	}
	return c.Exchange
}

type Option func(*Session)

func WithJournal(j journal.Journal) Option {
	return func(s *Session) { s.journal = j }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTerminator is called once when the guard asks for the session to
// end, after the session marked itself terminated.
func WithTerminator(fn guard.Terminator) Option {
	return func(s *Session) { s.onTerminate = fn }
}

// Session runs route updates sequentially. Update, Start and Close must be
// called from one goroutine; Watchlist and Registry may be read from others.
type Session struct {
	cfg     Config
	id      string
	rules   Rules
	reg     *registry.Registry
	guard   *guard.Guard
	journal journal.Journal
	log     *zap.Logger

	onTerminate guard.Terminator
	terminated  atomic.Bool

	routes  map[string]*Route
	symbols []string

	account    risk.Account
	start, end time.Time
	started    bool
}

func New(cfg Config, src Rules, opts ...Option) (*Session, error) {
	if src == nil {
		return nil, fmt.Errorf("session needs a rule source")
	}
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("session needs at least one route")
	}
	if cfg.Policy.MarginRatioThreshold <= 0 {
		return nil, fmt.Errorf("margin ratio threshold must be positive")
	}

	s := &Session{
		cfg:    cfg,
		id:     cfg.ID,
		rules:  src,
		reg:    registry.New(),
		log:    zap.NewNop(),
		routes: make(map[string]*Route),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = id.New()
	}
	s.log = s.log.With(zap.String("session", s.id))

	for _, rc := range cfg.Routes {
		sym := exchange.Normalize(rc.Symbol)
		if _, dup := s.routes[sym]; dup {
			return nil, fmt.Errorf("duplicate route %s", sym)
		}
		lev := rc.Leverage
		if lev == 0 {
			lev = cfg.Policy.Leverage
		}
		if lev <= 0 {
			return nil, fmt.Errorf("route %s: leverage must be positive", sym)
		}
		s.routes[sym] = &Route{Symbol: sym, Leverage: lev, policy: cfg.Policy, kind: cfg.ruleKind(), log: s.log}
		s.symbols = append(s.symbols, sym)
	}

	s.guard = guard.New(guard.Options{
		Mode:        cfg.Mode,
		Threshold:   cfg.Policy.MarginRatioThreshold,
		KeepRunning: cfg.KeepRunning,
		Logger:      s.log,
		Terminate:   s.terminate,
	})
	return s, nil
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) Registry() *registry.Registry { return s.reg }
func (s *Session) Guard() *guard.Guard          { return s.guard }
func (s *Session) Symbols() []string            { return append([]string(nil), s.symbols...) }
func (s *Session) Terminated() bool             { return s.terminated.Load() }

// Route returns the route for symbol in any accepted spelling.
func (s *Session) Route(symbol string) (*Route, bool) {
	r, ok := s.routes[exchange.Normalize(symbol)]
	return r, ok
}

func (s *Session) terminate(r guard.Report) {
	if s.terminated.Swap(true) {
		return
	}
	s.log.Warn("session termination requested", zap.String("reason", r.Reason))
	if s.onTerminate != nil {
		s.onTerminate(r)
	}
}

// Start resets the registry and loads the rule tables of every route. A
// route without rule data fails the session. A malformed table is logged
// and replaced by conservative values.
func (s *Session) Start(ctx context.Context, at time.Time) error {
	s.reg.Reset()
	s.account = risk.Account{
		Balance:           s.cfg.Balance,
		InitialBalance:    s.cfg.Balance,
		UseInitialBalance: s.cfg.UseInitialBalance,
	}
	s.start, s.end = at, at

	opts := tier.Options{FixedMarginRatio: s.cfg.Policy.FixedMarginRatio}
	for _, sym := range s.symbols {
		r := s.routes[sym]

		tbl, err := s.rules.Table(ctx, r.kind, sym)
		if err != nil {
			if !errors.Is(err, rules.ErrRuleParse) || tbl == nil {
				return fmt.Errorf("route %s: %w", sym, err)
			}
			s.log.Warn("using conservative risk table", zap.String("symbol", sym), zap.Error(err))
		}
		src, err := tier.New(tbl, opts)
		if err != nil {
			return fmt.Errorf("route %s: %w", sym, err)
		}
		if r.resolver == nil {
			r.resolver = tier.NewResolver(src)
		} else {
			r.resolver.Reset(src)
		}

		r.trading, err = s.rules.TradingRules(ctx, r.kind, sym)
		if err != nil {
			if !errors.Is(err, rules.ErrRuleParse) {
				return fmt.Errorf("route %s trading rules: %w", sym, err)
			}
			s.log.Warn("using default trading rules", zap.String("symbol", sym), zap.Error(err))
		}

		r.violations = nil
		r.CheckLeverage(0, risk.StageSessionStart)
	}

	s.started = true
	s.log.Info("session started",
		zap.String("exchange", s.cfg.Exchange.String()),
		zap.String("rules", s.cfg.ruleKind().String()),
		zap.String("mode", s.cfg.Mode.String()),
		zap.Strings("routes", s.symbols),
		zap.Float64("balance", s.cfg.Balance),
	)
	return nil
}

// Cycle applies updates in order, stopping at the first error.
func (s *Session) Cycle(ctx context.Context, updates []Update) ([]Result, error) {
	out := make([]Result, 0, len(updates))
	for _, u := range updates {
		res, err := s.Update(ctx, u)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Update runs one route's risk update: it stores the route snapshot,
// aggregates across routes, computes the margin ratio and liquidation
// price, records the running extremes, and checks the guard.
//
// A *guard.LiquidationError is returned in backtest mode when the guard
// trips, unless the session keeps running after liquidation.
func (s *Session) Update(ctx context.Context, u Update) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if !s.started {
		return Result{}, fmt.Errorf("session not started")
	}
	if s.Terminated() {
		return Result{}, ErrTerminated
	}
	r, ok := s.Route(u.Symbol)
	if !ok {
		return Result{}, fmt.Errorf("unknown route %s", u.Symbol)
	}

	began := time.Now()
	if u.Balance != nil {
		s.account.Balance = *u.Balance
	}
	if u.Time.After(s.end) {
		s.end = u.Time
	}

	p := r.position(u)
	snap, t, fm := r.snapshot(u, p)
	totals := s.reg.Aggregate(snap, s.symbols)

	capital := s.account.Capital()
	mb := risk.MarginBalance(capital, totals.UnrealizedPnL)
	res := Result{
		Symbol:            r.Symbol,
		Time:              u.Time,
		Position:          p,
		Tier:              t,
		MaintenanceMargin: snap.MaintenanceMargin,
		MarginBalance:     mb,
		MarginRatio:       risk.MarginRatio(totals.MaintenanceMargin, mb),
		Totals:            totals,
		Ftx:               fm,
	}
	r.liquidation(&res, capital, mb)
	res.LPRate = risk.LPRate(res.LiquidationPrice, p.MarkPrice, p.Side())

	snap.LiquidationPrice = res.LiquidationPrice
	snap.LPRate = res.LPRate
	snap = s.reg.Put(snap)

	avail := u.AvailableMargin
	if avail == 0 {
		avail = mb - totals.MaintenanceMargin
	}
	prev := s.reg.Scalars().MarginRatio
	if s.reg.Record(registry.Account{
		At:              u.Time,
		TotalValue:      totals.Notional,
		UnrealizedPnL:   totals.UnrealizedPnL,
		MarginBalance:   mb,
		MaintMargin:     totals.MaintenanceMargin,
		MarginRatio:     res.MarginRatio,
		AvailableMargin: avail,
		AlertRatio:      s.cfg.Policy.AlertRatio(),
	}) {
		s.log.Debug("max margin ratio",
			zap.String("symbol", r.Symbol),
			zap.Stringer("from", prev),
			zap.Stringer("to", res.MarginRatio),
		)
	}
	if s.reg.RecordLPRatio(res.LPRate, u.Time) {
		s.log.Debug("max lp ratio",
			zap.String("symbol", r.Symbol),
			zap.Stringer("lp_rate", res.LPRate),
			zap.Float64("price", p.MarkPrice),
			zap.Stringer("liquidation_price", res.LiquidationPrice),
		)
	}
	if len(totals.Missing) > 0 {
		s.log.Debug("sibling routes not ready", zap.Strings("missing", totals.Missing))
	}

	s.observe(res, snap)
	s.journalCycle(res, totals)

	err := s.guard.Check(guard.Report{
		At:              u.Time,
		Symbol:          r.Symbol,
		Leverage:        r.Leverage,
		Balance:         capital,
		AvailableMargin: avail,
		MarginBalance:   mb,
		MaintMargin:     totals.MaintenanceMargin,
		TotalValue:      totals.Notional,
		UnrealizedPnL:   totals.UnrealizedPnL,
		MarginRatio:     res.MarginRatio,
		PrevMarginRatio: prev,
		Scalars:         s.reg.Scalars(),
		Routes:          s.reg.Snapshots(),
	})
	metrics.CycleDuration.WithLabelValues(r.Symbol).Observe(float64(time.Since(began).Microseconds()) / 1000)
	return res, err
}

func (s *Session) observe(res Result, snap registry.Snapshot) {
	metrics.PositionNotional.WithLabelValues(snap.Symbol).Set(snap.PosValue)
	metrics.LiquidationPriceRatio.WithLabelValues(snap.Symbol).Set(res.LPRate.Or(nan))
	metrics.MarginRatio.Set(res.MarginRatio.Or(nan))
	metrics.MaxMarginRatio.Set(s.reg.Scalars().MaxMarginRatio.Or(0))
	metrics.MarginBalance.Set(res.MarginBalance)
	metrics.MaintenanceMargin.Set(res.Totals.MaintenanceMargin)
	metrics.TotalNotional.Set(res.Totals.Notional)
	metrics.UnrealizedPnL.Set(res.Totals.UnrealizedPnL)
}

func (s *Session) journalCycle(res Result, totals registry.Totals) {
	if s.journal == nil {
		return
	}
	err := s.journal.RecordCycle(journal.CycleRecord{
		SessionID:         s.id,
		Time:              res.Time,
		Symbol:            res.Symbol,
		Qty:               res.Position.Qty,
		EntryPrice:        res.Position.EntryPrice,
		MarkPrice:         res.Position.MarkPrice,
		PosValue:          res.Position.Notional(),
		PnL:               res.Position.PnL,
		MaintenanceMargin: res.MaintenanceMargin,
		LiquidationPrice:  res.LiquidationPrice,
		LPRate:            res.LPRate,
		TotalValue:        totals.Notional,
		MarginBalance:     res.MarginBalance,
		MaintMargin:       totals.MaintenanceMargin,
		MarginRatio:       res.MarginRatio,
	})
	if err != nil {
		s.log.Warn("journal cycle", zap.String("symbol", res.Symbol), zap.Error(err))
	}
}

// Close runs the end of session leverage check, writes the summary to the
// journal, and returns it.
func (s *Session) Close(_ context.Context) (Report, error) {
	if !s.started {
		return Report{}, fmt.Errorf("session not started")
	}
	s.started = false

	rep := Report{
		SessionID:    s.id,
		Exchange:     s.cfg.Exchange.String(),
		Mode:         s.cfg.Mode.String(),
		Start:        s.start,
		End:          s.end,
		StartBalance: s.account.InitialBalance,
		EndBalance:   s.account.Balance,
		Scalars:      s.reg.Scalars(),
	}
	for _, sym := range s.symbols {
		r := s.routes[sym]
		snap, _ := s.reg.Lookup(sym)
		r.CheckLeverage(snap.MaxPosValue, risk.StageSessionEnd)
		rep.Routes = append(rep.Routes, RouteSummary{
			Symbol:      sym,
			Leverage:    r.Leverage,
			MaxPosValue: snap.MaxPosValue,
			Violations:  r.Violations(),
		})
	}
	if gr, liquidated := s.guard.Report(); liquidated {
		rep.Liquidated = true
		rep.Reason = gr.Reason
	}

	s.log.Info("session closed",
		zap.Stringer("max_margin_ratio", rep.Scalars.MaxMarginRatio),
		zap.Stringer("min_margin", rep.Scalars.MinMargin),
		zap.Stringer("max_lp_ratio", rep.Scalars.MaxLPRatio),
		zap.Float64("max_total_value", rep.Scalars.MaxTotalValue),
		zap.Bool("liquidated", rep.Liquidated),
	)

	if s.journal != nil {
		if err := s.journal.RecordSession(rep.Record(strings.Join(s.symbols, ","))); err != nil {
			return rep, fmt.Errorf("journal session: %w", err)
		}
	}
	return rep, nil
}
