package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one embedded schema file, named {version}_{name}.sql.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	Name      string
	AppliedAt time.Time
}

// Migrate applies pending migrations in version order, each in its own
// transaction, and returns the versions it applied.
func (d *DB) Migrate(ctx context.Context) ([]string, error) {
	if _, err := d.Conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	done, err := d.Applied(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(done))
	for _, r := range done {
		have[r.Version] = true
	}

	var applied []string
	for _, m := range migrations {
		if have[m.Version] {
			continue
		}
		if err := d.apply(ctx, m); err != nil {
			return applied, fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
		applied = append(applied, m.Version+"_"+m.Name)
	}
	return applied, nil
}

// Applied lists the recorded migrations, oldest first.
func (d *DB) Applied(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := d.Conn.QueryContext(ctx,
		"SELECT version, name, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var r MigrationRecord
		var at string
		if err := rows.Scan(&r.Version, &r.Name, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) apply(ctx context.Context, m Migration) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads the embedded .sql files sorted by version.
func loadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		file := e.Name()
		if e.IsDir() || !strings.HasSuffix(file, ".sql") {
			continue
		}
		version, name, ok := strings.Cut(strings.TrimSuffix(file, ".sql"), "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("migration %s: want {version}_{name}.sql", file)
		}
		body, err := fs.ReadFile(migrationFS, "migrations/"+file)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", file, err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}
