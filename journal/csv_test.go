package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/marginguard/risk"
)

func newTestCSV(t *testing.T) (*CSVJournal, string, string) {
	t.Helper()

	dir := t.TempDir()
	cyclesPath := filepath.Join(dir, "cycles.csv")
	sessionsPath := filepath.Join(dir, "sessions.csv")

	j, err := NewCSV(cyclesPath, sessionsPath)
	require.NoError(t, err)
	return j, cyclesPath, sessionsPath
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	j, cyclesPath, sessionsPath := newTestCSV(t)
	assert.NoError(t, j.Close())

	cycles := readRows(t, cyclesPath)
	require.Len(t, cycles, 1)
	assert.Equal(t, cycleHeader, cycles[0])
	assert.Equal(t, "margin_ratio", cycles[0][len(cycles[0])-1])

	sessions := readRows(t, sessionsPath)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionHeader, sessions[0])
}

func TestCSVJournalRecordCycle(t *testing.T) {
	t.Parallel()

	j, cyclesPath, _ := newTestCSV(t)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := testCycle(at, "BTC-USDT")
	rec.LiquidationPrice = risk.Undefined
	require.NoError(t, j.RecordCycle(rec))
	require.NoError(t, j.Close())

	rows := readRows(t, cyclesPath)
	require.Len(t, rows, 2)

	want := []string{
		"01HSESSION",
		at.Format(time.RFC3339),
		"BTC-USDT",
		"0.500000",
		"60000.000000",
		"61000.000000",
		"30500.000000",
		"500.000000",
		"122.000000",
		"",
		"0.676000",
		"30500.000000",
		"10500.000000",
		"122.000000",
		"1.160000",
	}
	assert.Equal(t, want, rows[1])
}

func TestCSVJournalRecordSession(t *testing.T) {
	t.Parallel()

	j, _, sessionsPath := newTestCSV(t)

	rec := testSession()
	rec.Liquidated = true
	rec.Reason = "margin ratio breached"
	require.NoError(t, j.RecordSession(rec))
	require.NoError(t, j.Close())

	rows := readRows(t, sessionsPath)
	require.Len(t, rows, 2)
	row := rows[1]
	assert.Equal(t, "01HSESSION", row[0])
	assert.Equal(t, "BTC-USDT,ETH-USDT", row[3])
	assert.Equal(t, "2024-01-02T00:00:00Z", row[4])
	assert.Equal(t, "12.500000", row[8])
	assert.Equal(t, "2024-01-02T05:00:00Z", row[9])
	assert.Equal(t, "", row[11], "undefined max lp ratio")
	assert.Equal(t, "", row[12])
	assert.Equal(t, "true", row[14])
	assert.Equal(t, "margin ratio breached", row[15])
}
