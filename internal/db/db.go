// Package db opens the SQLite database behind the sqlite store backend and
// applies its embedded schema migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	dirPermissions    = 0o750
	connectionTimeout = 5 * time.Second
)

// Config holds the connection settings.
type Config struct {
	Path string
	// BusyTimeout is how long, in seconds, a locked database is retried.
	BusyTimeout int
}

// DB is an open SQLite database.
type DB struct {
	Conn *sql.DB
	path string
}

// Open creates the parent directory if needed, opens the database in WAL mode
// with foreign keys on, and verifies the connection.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	conn.SetMaxOpenConns(1) // single writer

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	return &DB{Conn: conn, path: cfg.Path}, nil
}

// dsn builds a modernc.org/sqlite connection string. Pragmas given as
// _pragma parameters are applied to every new connection.
func dsn(cfg Config) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout*1000))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// HealthCheck runs a trivial query.
func (d *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := d.Conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}

// Close closes the connection.
func (d *DB) Close() error {
	if err := d.Conn.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
