package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SkoposLabs/csm/internal/models"
)

const fileColumns = `uuid, device_uuid, name, size, uploaded_at`

// Files returns all uploaded files, most recent first.
func (s *SQLiteStore) Files(ctx context.Context) ([]models.File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := []models.File{}
	for rows.Next() {
		var f models.File
		var uploadedAt string
		if err := rows.Scan(&f.UUID, &f.DeviceUUID, &f.Name, &f.Size, &uploadedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		if f.UploadDate, err = parseTime(uploadedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// File returns a single file by UUID.
func (s *SQLiteStore) File(ctx context.Context, id string) (*models.File, error) {
	return loadFile(ctx, s.db, id)
}

// AddFile records a new upload for an existing device.
func (s *SQLiteStore) AddFile(ctx context.Context, upload models.FileUpload) (*models.File, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add file: %w", err)
	}
	defer tx.Rollback() //nolint: errcheck

	ok, err := exists(ctx, tx, "devices", upload.DeviceUUID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, upload.DeviceUUID)
	}

	f := &models.File{
		UUID:       s.newID(),
		UploadDate: s.now(),
		DeviceUUID: upload.DeviceUUID,
		Name:       upload.Name,
		Size:       upload.Size,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?)`,
		f.UUID, f.DeviceUUID, f.Name, f.Size, formatTime(f.UploadDate),
	); err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add file: %w", err)
	}
	return f, nil
}

// RemoveFile deletes a file record.
func (s *SQLiteStore) RemoveFile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE uuid = ?`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: file %s", ErrNotFound, id)
	}
	return nil
}

func loadFile(ctx context.Context, q querier, id string) (*models.File, error) {
	f := &models.File{}
	var uploadedAt string
	err := q.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE uuid = ?`, id,
	).Scan(&f.UUID, &f.DeviceUUID, &f.Name, &f.Size, &uploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if f.UploadDate, err = parseTime(uploadedAt); err != nil {
		return nil, err
	}
	return f, nil
}
