package store

import (
	"context"
	"fmt"
)

// The DDL sticks to types both Postgres and SQLite understand. Timestamps are
// stored as UTC wall clock.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		uid           TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS teachers (
		uid        TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		phone      TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		subject    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		uid        TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		phone      TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		roll_no    TEXT NOT NULL UNIQUE,
		semester   INTEGER NOT NULL,
		section    TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id              TEXT PRIMARY KEY,
		teacher_id      TEXT NOT NULL,
		teacher_name    TEXT NOT NULL DEFAULT '',
		department      TEXT NOT NULL DEFAULT '',
		period          TEXT NOT NULL,
		topic           TEXT NOT NULL,
		semester        INTEGER NOT NULL,
		section         TEXT NOT NULL,
		geofence_radius DOUBLE PRECISION NOT NULL,
		center_lat      DOUBLE PRECISION,
		center_lng      DOUBLE PRECISION,
		timer_minutes   INTEGER NOT NULL,
		qr_url          TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_teacher ON sessions(teacher_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_class ON sessions(semester, section, created_at)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		roll_no    TEXT NOT NULL,
		student_id TEXT NOT NULL,
		name       TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'present',
		marked_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, roll_no)
	)`,
}

// Migrate creates missing tables and indexes.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
