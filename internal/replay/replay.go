// Package replay drives a session from recorded position ticks.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/marginguard/session"
)

// Feed reads position tick rows:
//
//	time,symbol,qty,entry_price,mark_price[,balance[,available_margin]]
//
// where time is RFC3339 or RFC3339Nano and qty is signed. A header row
// ("time,...") and blank rows are skipped. An empty balance keeps the
// previous one; 0 is a wiped wallet.
type Feed struct {
	c    io.Closer
	r    *csv.Reader
	from time.Time
	to   time.Time
	line int

	peeked *session.Update
}

// Open opens a tick file. Rows outside [from, to) are skipped; a zero bound
// is open.
func Open(path string, from, to time.Time) (*Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	feed := NewFeed(f, from, to)
	feed.c = f
	return feed, nil
}

func NewFeed(r io.Reader, from, to time.Time) *Feed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	return &Feed{r: cr, from: from, to: to}
}

func (f *Feed) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

// Peek returns the next update without consuming it.
func (f *Feed) Peek() (session.Update, bool, error) {
	if f.peeked != nil {
		return *f.peeked, true, nil
	}
	u, ok, err := f.next()
	if err != nil || !ok {
		return u, ok, err
	}
	f.peeked = &u
	return u, true, nil
}

// Next returns the next update. ok is false at the end of the feed.
func (f *Feed) Next() (session.Update, bool, error) {
	if u := f.peeked; u != nil {
		f.peeked = nil
		return *u, true, nil
	}
	return f.next()
}

func (f *Feed) next() (session.Update, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return session.Update{}, false, nil
		}
		if err != nil {
			return session.Update{}, false, err
		}
		f.line++
		if blank(row) {
			continue
		}
		if f.line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}

		u, err := parseRow(row)
		if err != nil {
			return session.Update{}, false, fmt.Errorf("row %d: %w", f.line, err)
		}
		if !inRange(u.Time, f.from, f.to) {
			continue
		}
		return u, true, nil
	}
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string) (session.Update, error) {
	if len(row) < 5 {
		return session.Update{}, fmt.Errorf("need at least 5 cols time,symbol,qty,entry_price,mark_price: %v", row)
	}

	ts := strings.TrimSpace(row[0])
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return session.Update{}, fmt.Errorf("bad time %q: %w", ts, err)
	}
	u := session.Update{Time: t, Symbol: strings.TrimSpace(row[1])}
	if u.Symbol == "" {
		return session.Update{}, fmt.Errorf("symbol is empty")
	}

	var balance float64
	fields := []struct {
		name string
		dst  *float64
	}{
		{"qty", &u.Qty},
		{"entry_price", &u.EntryPrice},
		{"mark_price", &u.MarkPrice},
		{"balance", &balance},
		{"available_margin", &u.AvailableMargin},
	}
	for i, fld := range fields {
		col := i + 2
		if col >= len(row) {
			break
		}
		s := strings.TrimSpace(row[col])
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return session.Update{}, fmt.Errorf("bad %s %q: %w", fld.name, s, err)
		}
		*fld.dst = v
		if fld.dst == &balance {
			u.Balance = &balance
		}
	}
	if u.MarkPrice <= 0 {
		return session.Update{}, fmt.Errorf("mark_price must be positive")
	}
	return u, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// Stats summarizes a replay.
type Stats struct {
	Cycles  int
	Updates int
	First   time.Time
	Last    time.Time
}

// Run feeds every update to s. Consecutive rows with the same time form one
// cycle. Run stops at the first error, which includes a liquidation in
// backtest mode, and returns without error when the session asks to
// terminate.
func Run(ctx context.Context, feed *Feed, s *session.Session, log *zap.Logger) (Stats, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		st    Stats
		batch []session.Update
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := s.Cycle(ctx, batch)
		st.Updates += len(res)
		st.Cycles++
		batch = batch[:0]
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		u, ok, err := feed.Next()
		if err != nil {
			return st, err
		}
		if !ok {
			break
		}
		if st.First.IsZero() {
			st.First = u.Time
		}
		if len(batch) > 0 && !u.Time.Equal(batch[0].Time) {
			if err := flush(); err != nil {
				return st, stopped(err, log)
			}
		}
		batch = append(batch, u)
		st.Last = u.Time
	}
	if err := flush(); err != nil {
		return st, stopped(err, log)
	}
	log.Info("replay finished",
		zap.Int("cycles", st.Cycles),
		zap.Int("updates", st.Updates),
		zap.Time("first", st.First),
		zap.Time("last", st.Last),
	)
	return st, nil
}

func stopped(err error, log *zap.Logger) error {
	if errors.Is(err, session.ErrTerminated) {
		log.Warn("replay stopped: session terminated")
		return nil
	}
	return err
}
