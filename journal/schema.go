// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	exchange TEXT NOT NULL,
	mode TEXT NOT NULL,
	routes TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	start_balance REAL NOT NULL,
	end_balance REAL NOT NULL,
	max_margin_ratio REAL,
	max_margin_ratio_time DATETIME,
	min_margin REAL,
	max_lp_ratio REAL,
	max_lp_ratio_time DATETIME,
	max_total_value REAL NOT NULL,
	liquidated INTEGER NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
	session_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	qty REAL NOT NULL,
	entry_price REAL NOT NULL,
	mark_price REAL NOT NULL,
	pos_value REAL NOT NULL,
	pnl REAL NOT NULL,
	maintenance_margin REAL NOT NULL,
	liquidation_price REAL,
	lp_rate REAL,
	total_value REAL NOT NULL,
	margin_balance REAL NOT NULL,
	maint_margin REAL NOT NULL,
	margin_ratio REAL
);

CREATE INDEX IF NOT EXISTS idx_cycles_session_time ON cycles(session_id, time);
`

// PostgresSchema is Schema with Postgres column types.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	exchange TEXT NOT NULL,
	mode TEXT NOT NULL,
	routes TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	start_balance DOUBLE PRECISION NOT NULL,
	end_balance DOUBLE PRECISION NOT NULL,
	max_margin_ratio DOUBLE PRECISION,
	max_margin_ratio_time TIMESTAMPTZ,
	min_margin DOUBLE PRECISION,
	max_lp_ratio DOUBLE PRECISION,
	max_lp_ratio_time TIMESTAMPTZ,
	max_total_value DOUBLE PRECISION NOT NULL,
	liquidated BOOLEAN NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
	session_id TEXT NOT NULL,
	time TIMESTAMPTZ NOT NULL,
	symbol TEXT NOT NULL,
	qty DOUBLE PRECISION NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	mark_price DOUBLE PRECISION NOT NULL,
	pos_value DOUBLE PRECISION NOT NULL,
	pnl DOUBLE PRECISION NOT NULL,
	maintenance_margin DOUBLE PRECISION NOT NULL,
	liquidation_price DOUBLE PRECISION,
	lp_rate DOUBLE PRECISION,
	total_value DOUBLE PRECISION NOT NULL,
	margin_balance DOUBLE PRECISION NOT NULL,
	maint_margin DOUBLE PRECISION NOT NULL,
	margin_ratio DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_cycles_session_time ON cycles(session_id, time);
`
