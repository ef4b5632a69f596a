// Package archive persists every error occurrence to a DuckDB database
// for offline analytics. The seen registry only keeps aggregate counts;
// the archive keeps the raw per-occurrence rows.
package archive

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/vigilops/vigil/internal/archive/migrate"
)

// Store manages the DuckDB database connection and provides query methods.
type Store struct {
	db            *sql.DB
	dbPath        string
	retentionDays int
	QueryTimeout  time.Duration
}

// Config holds tunable parameters for the archive store.
type Config struct {
	RetentionDays int
	QueryTimeout  time.Duration
}

// NewStore opens or creates a DuckDB database and applies pending
// migrations. If dbPath is empty, an in-memory database is used.
func NewStore(dbPath string, conf ...Config) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: 30 * time.Second,
	}
	if len(conf) > 0 {
		if conf[0].RetentionDays > 0 {
			s.retentionDays = conf[0].RetentionDays
		}
		if conf[0].QueryTimeout > 0 {
			s.QueryTimeout = conf[0].QueryTimeout
		}
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct query access.
func (s *Store) DB() *sql.DB {
	return s.db
}
