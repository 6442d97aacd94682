package journal

import (
	"database/sql"
	"errors"
	"fmt"
)

const sessionColumns = `session_id, exchange, mode, routes, start_time, end_time, start_balance, end_balance,
	max_margin_ratio, max_margin_ratio_time, min_margin, max_lp_ratio, max_lp_ratio_time,
	max_total_value, liquidated, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (SessionRecord, error) {
	var (
		rec                  SessionRecord
		maxMR, minM, maxLP   sql.NullFloat64
		maxMRTime, maxLPTime sql.NullTime
	)
	err := row.Scan(
		&rec.SessionID, &rec.Exchange, &rec.Mode, &rec.Routes, &rec.Start, &rec.End,
		&rec.StartBalance, &rec.EndBalance,
		&maxMR, &maxMRTime, &minM, &maxLP, &maxLPTime,
		&rec.MaxTotalValue, &rec.Liquidated, &rec.Reason,
	)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.MaxMarginRatio = metricOf(maxMR)
	rec.MinMargin = metricOf(minM)
	rec.MaxLPRatio = metricOf(maxLP)
	rec.MaxMarginRatioTS = maxMRTime.Time
	rec.MaxLPRatioTS = maxLPTime.Time
	return rec, nil
}

// GetSession returns the summary of one session.
func (j *sqlJournal) GetSession(sessionID string) (SessionRecord, error) {
	row := j.db.QueryRow(j.q(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`), sessionID)
	rec, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, fmt.Errorf("session %q not found", sessionID)
		}
		return SessionRecord{}, err
	}
	return rec, nil
}

// ListSessions returns every session, newest first.
func (j *sqlJournal) ListSessions() ([]SessionRecord, error) {
	rows, err := j.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY start_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCycles returns the route updates of a session in time order.
func (j *sqlJournal) ListCycles(sessionID string) ([]CycleRecord, error) {
	rows, err := j.db.Query(j.q(`
		SELECT session_id, time, symbol, qty, entry_price, mark_price, pos_value, pnl, maintenance_margin,
		       liquidation_price, lp_rate, total_value, margin_balance, maint_margin, margin_ratio
		FROM cycles
		WHERE session_id = ?
		ORDER BY time ASC, symbol ASC`), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			rec         CycleRecord
			liq, lp, mr sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.SessionID, &rec.Time, &rec.Symbol, &rec.Qty, &rec.EntryPrice, &rec.MarkPrice,
			&rec.PosValue, &rec.PnL, &rec.MaintenanceMargin,
			&liq, &lp, &rec.TotalValue, &rec.MarginBalance, &rec.MaintMargin, &mr,
		); err != nil {
			return nil, err
		}
		rec.LiquidationPrice = metricOf(liq)
		rec.LPRate = metricOf(lp)
		rec.MarginRatio = metricOf(mr)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
