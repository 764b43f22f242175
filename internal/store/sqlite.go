package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// querier is satisfied by both *sql.DB and *sql.Tx so loaders can run
// inside or outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStore persists the collections in SQLite. The connection is owned
// by the caller (see internal/db) unless the store was created by Open.
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	newID  func() string
	ping   func(context.Context) error
	closer func() error
}

// NewSQLiteStore creates a SQLiteStore backed by the given database
// connection. The schema must already be migrated.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
		ping:  db.PingContext,
	}
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close closes the database if the store owns it.
func (s *SQLiteStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// IsEmpty reports whether no applications, devices or files are stored.
func (s *SQLiteStore) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM applications)
		     + (SELECT COUNT(*) FROM devices)
		     + (SELECT COUNT(*) FROM files)`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count rows: %w", err)
	}
	return n == 0, nil
}

// Import inserts every record of snap in a single transaction. Collection
// order is preserved; files are inserted oldest first so that listing them
// newest-first reproduces the snapshot order.
func (s *SQLiteStore) Import(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback() //nolint: errcheck

	for _, a := range snap.Applications {
		if !a.Status.Valid() {
			return fmt.Errorf("import application %s: %w: %q", a.UUID, ErrInvalidStatus, a.Status)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO applications (uuid, name, status) VALUES (?, ?, ?)`,
			a.UUID, a.Name, string(a.Status),
		); err != nil {
			return fmt.Errorf("insert application %s: %w", a.UUID, err)
		}
		for _, v := range a.Versions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO application_versions (application_uuid, version, created_at) VALUES (?, ?, ?)`,
				a.UUID, v.Version, formatTime(v.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert version %s/%s: %w", a.UUID, v.Version, err)
			}
		}
	}

	for _, d := range snap.Devices {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO devices (uuid, owner_name, serial_number) VALUES (?, ?, ?)`,
			d.UUID, d.OwnerName, d.SerialNumber,
		); err != nil {
			return fmt.Errorf("insert device %s: %w", d.UUID, err)
		}
		for _, in := range d.Installations {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO installations (device_uuid, application_uuid, version, installed_at) VALUES (?, ?, ?, ?)`,
				d.UUID, in.ApplicationUUID, in.Version, formatTimePtr(in.InstalledAt),
			); err != nil {
				return fmt.Errorf("insert installation %s/%s: %w", d.UUID, in.ApplicationUUID, err)
			}
		}
	}

	for i := len(snap.Files) - 1; i >= 0; i-- {
		f := snap.Files[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO files (uuid, device_uuid, name, size, uploaded_at) VALUES (?, ?, ?, ?, ?)`,
			f.UUID, f.DeviceUUID, f.Name, f.Size, formatTime(f.UploadDate),
		); err != nil {
			return fmt.Errorf("insert file %s: %w", f.UUID, err)
		}
	}

	return tx.Commit()
}

// exists reports whether a row with the given uuid is present in table.
// table is always a constant from this package.
func exists(ctx context.Context, q querier, table, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+" WHERE uuid = ?", id,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("check %s %s: %w", table, id, err)
	}
	return n > 0, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
