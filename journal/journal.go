// journal/journal.go
package journal

import (
	"database/sql"
	"time"

	"github.com/rustyeddy/marginguard/risk"
)

// CycleRecord is one route update.
type CycleRecord struct {
	SessionID string
	Time      time.Time
	Symbol    string

	Qty               float64
	EntryPrice        float64
	MarkPrice         float64
	PosValue          float64
	PnL               float64
	MaintenanceMargin float64
	LiquidationPrice  risk.Metric
	LPRate            risk.Metric

	// Account values after the update
	TotalValue    float64
	MarginBalance float64
	MaintMargin   float64
	MarginRatio   risk.Metric
}

// SessionRecord is the summary written when a session closes.
type SessionRecord struct {
	SessionID string
	Exchange  string
	Mode      string
	Routes    string // comma separated symbols
	Start     time.Time
	End       time.Time

	StartBalance float64
	EndBalance   float64

	MaxMarginRatio   risk.Metric
	MaxMarginRatioTS time.Time
	MinMargin        risk.Metric
	MaxLPRatio       risk.Metric
	MaxLPRatioTS     time.Time
	MaxTotalValue    float64

	Liquidated bool
	Reason     string
}

type Journal interface {
	RecordCycle(CycleRecord) error
	RecordSession(SessionRecord) error
	Close() error
}

func nullFloat(m risk.Metric) sql.NullFloat64 {
	return sql.NullFloat64{Float64: m.Value, Valid: m.Valid}
}

func metricOf(n sql.NullFloat64) risk.Metric {
	if !n.Valid {
		return risk.Undefined
	}
	return risk.Defined(n.Float64)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
