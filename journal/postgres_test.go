package journal

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sessions`).WillReturnResult(sqlmock.NewResult(0, 0))
	j, err := NewPostgresDB(db)
	require.NoError(t, err)
	return j, mock
}

func TestPostgresSchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))
	_, err = NewPostgresDB(db)
	assert.ErrorContains(t, err, "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPlaceholders(t *testing.T) {
	j := &sqlJournal{dollar: true}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", j.q("SELECT a FROM t WHERE x = ? AND y = ?"))
	assert.Equal(t, "x = ?", (&sqlJournal{}).q("x = ?"))
}

func TestPostgresRecordCycle(t *testing.T) {
	j, mock := newTestPostgres(t)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := testCycle(at, "BTC-USDT")

	mock.ExpectExec(regexp.QuoteMeta(`VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`)).
		WithArgs("01HSESSION", at, "BTC-USDT", 0.5, 60000.0, 61000.0, 30500.0, 500.0, 122.0,
			sql.NullFloat64{Float64: 41234.5, Valid: true}, sql.NullFloat64{Float64: 0.676, Valid: true},
			30500.0, 10500.0, 122.0, sql.NullFloat64{Float64: 1.16, Valid: true}).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, j.RecordCycle(rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordSession(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(mock sqlmock.Sqlmock)
		wantErr   bool
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO sessions`).
					WithArgs("01HSESSION", "binance", "backtest", "BTC-USDT,ETH-USDT",
						sqlmock.AnyArg(), sqlmock.AnyArg(), 10000.0, 10420.5,
						sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
						61000.0, false, "").
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
		},
		{
			name: "duplicate session",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO sessions`).
					WillReturnError(errors.New(`duplicate key value violates unique constraint "sessions_pkey"`))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, mock := newTestPostgres(t)
			tt.mockSetup(mock)

			err := j.RecordSession(testSession())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresGetSession(t *testing.T) {
	j, mock := newTestPostgres(t)

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"session_id", "exchange", "mode", "routes", "start_time", "end_time",
		"start_balance", "end_balance", "max_margin_ratio", "max_margin_ratio_time", "min_margin",
		"max_lp_ratio", "max_lp_ratio_time", "max_total_value", "liquidated", "reason"}).
		AddRow("01HSESSION", "bybit", "live", "BTC-USDT", start, start.Add(time.Hour),
			10000.0, 9000.0, 97.5, start.Add(30*time.Minute), 100.0,
			nil, nil, 50000.0, true, "margin ratio breached")

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sessions WHERE session_id = $1`)).
		WithArgs("01HSESSION").
		WillReturnRows(rows)

	got, err := j.GetSession("01HSESSION")
	require.NoError(t, err)
	assert.Equal(t, "bybit", got.Exchange)
	assert.True(t, got.Liquidated)
	assert.True(t, got.MaxMarginRatio.Valid)
	assert.Equal(t, 97.5, got.MaxMarginRatio.Value)
	assert.False(t, got.MaxLPRatio.Valid)
	assert.True(t, got.MaxLPRatioTS.IsZero())

	mock.ExpectQuery(`FROM sessions`).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = j.GetSession("missing")
	assert.ErrorContains(t, err, "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
