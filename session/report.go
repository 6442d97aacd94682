package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/marginguard/journal"
	"github.com/rustyeddy/marginguard/registry"
	"github.com/rustyeddy/marginguard/risk"
)

type RouteSummary struct {
	Symbol      string
	Leverage    float64
	MaxPosValue float64
	Violations  []risk.Violation
}

// Report summarizes a closed session.
type Report struct {
	SessionID    string
	Exchange     string
	Mode         string
	Start, End   time.Time
	StartBalance float64
	EndBalance   float64

	Scalars registry.Scalars
	Routes  []RouteSummary

	Liquidated bool
	Reason     string
}

// Record converts the report to a journal row.
func (r Report) Record(routes string) journal.SessionRecord {
	return journal.SessionRecord{
		SessionID:        r.SessionID,
		Exchange:         r.Exchange,
		Mode:             r.Mode,
		Routes:           routes,
		Start:            r.Start,
		End:              r.End,
		StartBalance:     r.StartBalance,
		EndBalance:       r.EndBalance,
		MaxMarginRatio:   r.Scalars.MaxMarginRatio,
		MaxMarginRatioTS: r.Scalars.MaxMarginRatioTS,
		MinMargin:        r.Scalars.MinMargin,
		MaxLPRatio:       r.Scalars.MaxLPRatio,
		MaxLPRatioTS:     r.Scalars.MaxLPRatioTS,
		MaxTotalValue:    r.Scalars.MaxTotalValue,
		Liquidated:       r.Liquidated,
		Reason:           r.Reason,
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.UTC().Format(time.RFC3339)
}

func (r Report) String() string {
	var b strings.Builder
	row := func(k, v string) { fmt.Fprintf(&b, "%-24s| %s\n", k, v) }

	row("Session", r.SessionID)
	row("Exchange", r.Exchange+" ("+r.Mode+")")
	row("Period", stamp(r.Start)+" - "+stamp(r.End))
	row("Balance", fmt.Sprintf("%.2f -> %.2f", r.StartBalance, r.EndBalance))
	row("Max. Margin Ratio", fmt.Sprintf("%s%% at %s", r.Scalars.MaxMarginRatio, stamp(r.Scalars.MaxMarginRatioTS)))
	row("Minimum Margin", r.Scalars.MinMargin.String())
	row("Shared Max. Total Value", fmt.Sprintf("%.2f", r.Scalars.MaxTotalValue))
	row("Max. LP Ratio", fmt.Sprintf("%s at %s", r.Scalars.MaxLPRatio, stamp(r.Scalars.MaxLPRatioTS)))
	for _, rs := range r.Routes {
		row(rs.Symbol+" Max. Value", fmt.Sprintf("%.2f (leverage %gx)", rs.MaxPosValue, rs.Leverage))
		for _, v := range rs.Violations {
			row(rs.Symbol+" "+v.Code, v.Msg)
		}
	}
	if r.Liquidated {
		row("Liquidated", r.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}
