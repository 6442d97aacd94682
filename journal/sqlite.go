package journal

import (
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const insertCycle = `
	INSERT INTO cycles
	(session_id, time, symbol, qty, entry_price, mark_price, pos_value, pnl, maintenance_margin,
	 liquidation_price, lp_rate, total_value, margin_balance, maint_margin, margin_ratio)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertSession = `
	INSERT INTO sessions
	(session_id, exchange, mode, routes, start_time, end_time, start_balance, end_balance,
	 max_margin_ratio, max_margin_ratio_time, min_margin, max_lp_ratio, max_lp_ratio_time,
	 max_total_value, liquidated, reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// sqlJournal holds the statements shared by the SQL journals. Queries are
// written with ? placeholders and rebound for drivers that need $n.
type sqlJournal struct {
	db     *sql.DB
	dollar bool
}

func (j *sqlJournal) q(query string) string {
	if !j.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (j *sqlJournal) RecordCycle(c CycleRecord) error {
	_, err := j.db.Exec(j.q(insertCycle),
		c.SessionID, c.Time.UTC(), c.Symbol, c.Qty, c.EntryPrice, c.MarkPrice, c.PosValue, c.PnL,
		c.MaintenanceMargin, nullFloat(c.LiquidationPrice), nullFloat(c.LPRate),
		c.TotalValue, c.MarginBalance, c.MaintMargin, nullFloat(c.MarginRatio),
	)
	return err
}

func (j *sqlJournal) RecordSession(s SessionRecord) error {
	_, err := j.db.Exec(j.q(insertSession),
		s.SessionID, s.Exchange, s.Mode, s.Routes, s.Start.UTC(), s.End.UTC(),
		s.StartBalance, s.EndBalance,
		nullFloat(s.MaxMarginRatio), nullTime(s.MaxMarginRatioTS.UTC()), nullFloat(s.MinMargin),
		nullFloat(s.MaxLPRatio), nullTime(s.MaxLPRatioTS.UTC()),
		s.MaxTotalValue, s.Liquidated, s.Reason,
	)
	return err
}

func (j *sqlJournal) Close() error {
	return j.db.Close()
}

type SQLite struct {
	sqlJournal
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{sqlJournal{db: db}}, nil
}
