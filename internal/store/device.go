package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SkoposLabs/csm/internal/models"
)

// Devices returns all devices with their installations, in insertion order.
func (s *SQLiteStore) Devices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uuid, owner_name, serial_number FROM devices ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	index := make(map[string]int)
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.UUID, &d.OwnerName, &d.SerialNumber); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		index[d.UUID] = len(devices)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	irows, err := s.db.QueryContext(ctx, `
		SELECT device_uuid, application_uuid, version, installed_at
		FROM installations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	defer irows.Close()

	for irows.Next() {
		var deviceID string
		in, err := scanInstallation(irows, &deviceID)
		if err != nil {
			return nil, err
		}
		if i, ok := index[deviceID]; ok {
			devices[i].Installations = append(devices[i].Installations, in)
		}
	}
	return devices, irows.Err()
}

// Device returns a single device by UUID.
func (s *SQLiteStore) Device(ctx context.Context, id string) (*models.Device, error) {
	return loadDevice(ctx, s.db, id)
}

// SetDeviceOwner replaces the owner name of one device.
func (s *SQLiteStore) SetDeviceOwner(ctx context.Context, id, ownerName string) (*models.Device, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin owner update: %w", err)
	}
	defer tx.Rollback() //nolint: errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE devices SET owner_name = ? WHERE uuid = ?`, ownerName, id)
	if err != nil {
		return nil, fmt.Errorf("update device owner: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}

	d, err := loadDevice(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit owner update: %w", err)
	}
	return d, nil
}

func loadDevice(ctx context.Context, q querier, id string) (*models.Device, error) {
	d := &models.Device{}
	err := q.QueryRowContext(ctx,
		`SELECT uuid, owner_name, serial_number FROM devices WHERE uuid = ?`, id,
	).Scan(&d.UUID, &d.OwnerName, &d.SerialNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT device_uuid, application_uuid, version, installed_at
		FROM installations WHERE device_uuid = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var deviceID string
		in, err := scanInstallation(rows, &deviceID)
		if err != nil {
			return nil, err
		}
		d.Installations = append(d.Installations, in)
	}
	return d, rows.Err()
}

func scanInstallation(rows *sql.Rows, deviceID *string) (models.Installation, error) {
	var in models.Installation
	var installedAt sql.NullString
	if err := rows.Scan(deviceID, &in.ApplicationUUID, &in.Version, &installedAt); err != nil {
		return in, fmt.Errorf("scan installation: %w", err)
	}
	if installedAt.Valid && installedAt.String != "" {
		t, err := parseTime(installedAt.String)
		if err != nil {
			return in, err
		}
		in.InstalledAt = &t
	}
	return in, nil
}
