package db

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	dbInstance *sql.DB
	dbOnce     sync.Once
	dbErr      error

	jsonMu     sync.Mutex
	jsonLoaded = map[*sql.DB]bool{}
)

// GetDB returns the process-wide in-memory DuckDB instance.
func GetDB() (*sql.DB, error) {
	dbOnce.Do(func() {
		dbInstance, dbErr = Open()
	})
	return dbInstance, dbErr
}

// Open creates a fresh in-memory DuckDB instance. Tests use it to avoid
// sharing state with GetDB.
func Open() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to DuckDB: %w", err)
	}

	return db, nil
}

// EnsureJSON loads the JSON extension needed by read_json. CSV reads do not
// need it, so it is only loaded on demand.
func EnsureJSON(db *sql.DB) error {
	jsonMu.Lock()
	defer jsonMu.Unlock()

	if jsonLoaded[db] {
		return nil
	}

	if _, err := db.Exec("LOAD json"); err != nil {
		if _, err := db.Exec("INSTALL json"); err != nil {
			return fmt.Errorf("failed to install JSON extension: %w", err)
		}
		if _, err := db.Exec("LOAD json"); err != nil {
			return fmt.Errorf("failed to load JSON extension: %w", err)
		}
	}

	jsonLoaded[db] = true
	return nil
}

// QuoteLiteral renders s as a single-quoted SQL string literal. Table
// functions such as read_csv_auto do not accept bind parameters for paths.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
