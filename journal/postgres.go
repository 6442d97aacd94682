package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Postgres journals to a shared database so sessions from several hosts
// can be compared.
type Postgres struct {
	sqlJournal
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	j, err := NewPostgresDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// NewPostgresDB creates the schema on an open handle.
func NewPostgresDB(db *sql.DB) (*Postgres, error) {
	if _, err := db.Exec(PostgresSchema); err != nil {
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}
	return &Postgres{sqlJournal{db: db, dollar: true}}, nil
}
