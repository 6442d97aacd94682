// journal/csv.go
package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rustyeddy/marginguard/risk"
)

var (
	cycleHeader = []string{"session_id", "time", "symbol", "qty", "entry_price", "mark_price", "pos_value", "pnl",
		"maintenance_margin", "liquidation_price", "lp_rate", "total_value", "margin_balance", "maint_margin", "margin_ratio"}
	sessionHeader = []string{"session_id", "exchange", "mode", "routes", "start_time", "end_time", "start_balance", "end_balance",
		"max_margin_ratio", "max_margin_ratio_time", "min_margin", "max_lp_ratio", "max_lp_ratio_time",
		"max_total_value", "liquidated", "reason"}
)

type CSVJournal struct {
	cycles   *csv.Writer
	sessions *csv.Writer
	cf, sf   *os.File
}

func NewCSV(cyclesPath, sessionsPath string) (*CSVJournal, error) {
	cf, err := os.Create(cyclesPath)
	if err != nil {
		return nil, err
	}
	sf, err := os.Create(sessionsPath)
	if err != nil {
		cf.Close()
		return nil, err
	}

	cw := csv.NewWriter(cf)
	sw := csv.NewWriter(sf)

	if err := cw.Write(cycleHeader); err != nil {
		return nil, err
	}
	if err := sw.Write(sessionHeader); err != nil {
		return nil, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	sw.Flush()
	if err := sw.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{cw, sw, cf, sf}, nil
}

func (j *CSVJournal) RecordCycle(c CycleRecord) error {
	err := j.cycles.Write([]string{
		c.SessionID,
		ts(c.Time),
		c.Symbol,
		f(c.Qty),
		f(c.EntryPrice),
		f(c.MarkPrice),
		f(c.PosValue),
		f(c.PnL),
		f(c.MaintenanceMargin),
		m(c.LiquidationPrice),
		m(c.LPRate),
		f(c.TotalValue),
		f(c.MarginBalance),
		f(c.MaintMargin),
		m(c.MarginRatio),
	})
	if err != nil {
		return err
	}
	j.cycles.Flush()
	return j.cycles.Error()
}

func (j *CSVJournal) RecordSession(s SessionRecord) error {
	err := j.sessions.Write([]string{
		s.SessionID,
		s.Exchange,
		s.Mode,
		s.Routes,
		ts(s.Start),
		ts(s.End),
		f(s.StartBalance),
		f(s.EndBalance),
		m(s.MaxMarginRatio),
		ts(s.MaxMarginRatioTS),
		m(s.MinMargin),
		m(s.MaxLPRatio),
		ts(s.MaxLPRatioTS),
		f(s.MaxTotalValue),
		strconv.FormatBool(s.Liquidated),
		s.Reason,
	})
	if err != nil {
		return err
	}
	j.sessions.Flush()
	return j.sessions.Error()
}

func (j *CSVJournal) Close() error {
	j.cycles.Flush()
	if err := j.cycles.Error(); err != nil {
		return err
	}
	j.sessions.Flush()
	if err := j.sessions.Error(); err != nil {
		return err
	}

	if err := j.cf.Close(); err != nil {
		return err
	}
	if err := j.sf.Close(); err != nil {
		return err
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

// m leaves undefined metrics empty.
func m(x risk.Metric) string {
	if !x.Valid {
		return ""
	}
	return f(x.Value)
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
