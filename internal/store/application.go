package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SkoposLabs/csm/internal/models"
)

// Applications returns all applications with their versions, in insertion order.
func (s *SQLiteStore) Applications(ctx context.Context) ([]models.Application, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, name, status FROM applications ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	apps := []models.Application{}
	index := make(map[string]int)
	for rows.Next() {
		var a models.Application
		var status string
		if err := rows.Scan(&a.UUID, &a.Name, &status); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		a.Status = models.StatusType(status)
		index[a.UUID] = len(apps)
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vrows, err := s.db.QueryContext(ctx,
		`SELECT application_uuid, version, created_at FROM application_versions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var appID, createdAt string
		var v models.ApplicationVersion
		if err := vrows.Scan(&appID, &v.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if v.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if i, ok := index[appID]; ok {
			apps[i].Versions = append(apps[i].Versions, v)
		}
	}
	return apps, vrows.Err()
}

// Application returns a single application by UUID.
func (s *SQLiteStore) Application(ctx context.Context, id string) (*models.Application, error) {
	return loadApplication(ctx, s.db, id)
}

// SetApplicationStatus replaces the status of one application.
func (s *SQLiteStore) SetApplicationStatus(ctx context.Context, id string, status models.StatusType) (*models.Application, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback() //nolint: errcheck

	ok, err := exists(ctx, tx, "applications", id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE applications SET status = ? WHERE uuid = ?`, string(status), id,
	); err != nil {
		return nil, fmt.Errorf("update application status: %w", err)
	}

	app, err := loadApplication(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return app, nil
}

func loadApplication(ctx context.Context, q querier, id string) (*models.Application, error) {
	a := &models.Application{}
	var status string
	err := q.QueryRowContext(ctx,
		`SELECT uuid, name, status FROM applications WHERE uuid = ?`, id,
	).Scan(&a.UUID, &a.Name, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	a.Status = models.StatusType(status)

	rows, err := q.QueryContext(ctx,
		`SELECT version, created_at FROM application_versions WHERE application_uuid = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v models.ApplicationVersion
		var createdAt string
		if err := rows.Scan(&v.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if v.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		a.Versions = append(a.Versions, v)
	}
	return a, rows.Err()
}
