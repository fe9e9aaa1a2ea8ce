package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for Postgres (pgx) or SQLite (go-sqlite3).
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	return Open("pgx", connString)
}

// NewSQLite opens (creating if needed) a SQLite database file.
func NewSQLite(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	return Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
}

// Open connects with the given database/sql driver name and pings it.
func Open(driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		// One writer; also keeps ":memory:" databases on a single connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}
	return &DB{Client: db, Driver: driver}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind turns $n placeholders into ? for SQLite. Queries in this package
// always number placeholders in order of appearance.
func (d *DB) rebind(query string) string {
	if d.Driver != "sqlite3" {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}
