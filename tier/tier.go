// Package tier normalizes the venue specific tier tables into one canonical
// tier record used by the margin math.
package tier

import (
	"fmt"
	"math"
	"sort"

	"github.com/rustyeddy/marginguard/exchange"
	"github.com/rustyeddy/marginguard/metrics"
	"github.com/rustyeddy/marginguard/rules"
)

// Fallback maintenance ratios used past the last known tier.
const (
	BinanceFallbackRatio = 0.75
	BybitFallbackRatio   = 0.10
)

// Tier is the canonical risk tier.
type Tier struct {
	Bracket          int
	MaxLeverage      float64
	NotionalFloor    float64
	NotionalCap      float64
	MaintMarginRatio float64
	MaintAmount      float64

	// Fallback is set when the notional exceeded every known tier.
	Fallback bool

	// lower is the previous tier's cap, the bottom of the range this tier
	// was selected for.
	lower float64
}

// Contains reports whether notional selects this tier.
func (t Tier) Contains(notional float64) bool {
	if t.Fallback {
		return notional >= t.lower
	}
	return notional >= t.lower && notional < t.NotionalCap
}

// Source resolves a position notional to a tier. One implementation exists
// per exchange.Kind; pick it once with New.
type Source interface {
	Exchange() exchange.Kind
	Resolve(notional float64) Tier
}

// Options adjust resolution.
type Options struct {
	// FixedMarginRatio, when set, replaces the ratio of every resolved tier,
	// the fallback past the last tier included.
	// The maintenance amount still applies.
	FixedMarginRatio *float64
}

// New returns the Source for t. Bybit tables are used for any venue when
// t.Exchange is Bybit, which is how the "trade with Bybit rules" mode works.
func New(t *rules.Table, opts Options) (Source, error) {
	if t == nil {
		return nil, fmt.Errorf("nil rule table")
	}
	switch t.Exchange {
	case exchange.Binance:
		return newBinance(t.Brackets, opts), nil
	case exchange.Bybit:
		return newBybit(t.RiskLimits, opts), nil
	case exchange.Ftx:
		if t.Ftx == nil {
			return nil, fmt.Errorf("ftx table for %s has no parameters", t.Symbol)
		}
		return &Ftx{params: *t.Ftx}, nil
	}
	return nil, fmt.Errorf("unsupported exchange %s", t.Exchange)
}

// discrete resolves against an ordered list of tiers.
type discrete struct {
	kind     exchange.Kind
	tiers    []Tier
	fallback float64
	fixed    *float64
}

func (d *discrete) Exchange() exchange.Kind { return d.kind }

func (d *discrete) Resolve(notional float64) Tier {
	notional = math.Abs(notional)
	for _, t := range d.tiers {
		if notional < t.NotionalCap {
			if d.fixed != nil {
				t.MaintMarginRatio = *d.fixed
			}
			return t
		}
	}

	metrics.TierFallbacks.WithLabelValues(d.kind.String()).Inc()
	out := Tier{MaintMarginRatio: d.fallback, NotionalCap: math.Inf(1), Fallback: true}
	if n := len(d.tiers); n > 0 {
		last := d.tiers[n-1]
		out.Bracket = last.Bracket + 1
		out.NotionalFloor = last.NotionalCap
		out.lower = last.NotionalCap
		out.MaintMarginRatio = math.Max(d.fallback, last.MaintMarginRatio)
	}
	if d.fixed != nil {
		out.MaintMarginRatio = *d.fixed
	}
	return out
}

func sortByCap(tiers []Tier) {
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].NotionalCap < tiers[j].NotionalCap })
	for i := range tiers {
		if i > 0 {
			tiers[i].lower = tiers[i-1].NotionalCap
		}
	}
}

func newBinance(rows []rules.BinanceBracket, opts Options) *discrete {
	tiers := make([]Tier, 0, len(rows))
	for _, b := range rows {
		tiers = append(tiers, Tier{
			Bracket:          b.Bracket,
			MaxLeverage:      b.InitialLeverage,
			NotionalFloor:    b.NotionalFloor,
			NotionalCap:      b.NotionalCap,
			MaintMarginRatio: b.MaintMarginRatio,
			MaintAmount:      b.Cum,
		})
	}
	sortByCap(tiers)
	return &discrete{kind: exchange.Binance, tiers: tiers, fallback: BinanceFallbackRatio, fixed: opts.FixedMarginRatio}
}

// newBybit builds tiers from risk limits. A tier's floor is its limit minus
// the limit of the lowest risk tier, not the previous tier's cap.
func newBybit(rows []rules.BybitRiskLimit, opts Options) *discrete {
	var base float64
	found := false
	for _, l := range rows {
		if l.IsLowestRisk == 1 {
			base, found = l.Limit, true
			break
		}
	}

	tiers := make([]Tier, 0, len(rows))
	for _, l := range rows {
		tiers = append(tiers, Tier{
			Bracket:          l.ID,
			MaxLeverage:      l.MaxLeverage,
			NotionalCap:      l.Limit,
			MaintMarginRatio: l.MaintainMargin,
		})
	}
	sortByCap(tiers)
	if !found && len(tiers) > 0 {
		base = tiers[0].NotionalCap
	}
	for i := range tiers {
		tiers[i].NotionalFloor = tiers[i].NotionalCap - base
	}
	return &discrete{kind: exchange.Bybit, tiers: tiers, fallback: BybitFallbackRatio, fixed: opts.FixedMarginRatio}
}

// Ftx has no discrete tiers; it hands the continuous parameters to the IMF
// and MMF formulas.
type Ftx struct {
	params rules.FtxParams
}

// FtxMaxLeverage is the account leverage ceiling FTX applied to derivatives.
const FtxMaxLeverage = 20

func (f *Ftx) Exchange() exchange.Kind { return exchange.Ftx }

// Resolve returns a tier that only carries the leverage ceiling.
func (f *Ftx) Resolve(float64) Tier {
	return Tier{MaxLeverage: FtxMaxLeverage, NotionalCap: math.Inf(1)}
}

func (f *Ftx) Params() rules.FtxParams { return f.params }

// Tiers lists the tiers of a discrete source in cap order. It returns nil
// for continuous sources.
func Tiers(src Source) []Tier {
	if d, ok := src.(*discrete); ok {
		return append([]Tier(nil), d.tiers...)
	}
	return nil
}
