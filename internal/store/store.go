// Package store holds the backing collections for applications, devices and
// uploaded report files.
//
// Three DataStore implementations exist and are picked at construction time:
//
//   - MemoryStore: owned in-memory collections, seeded from a Snapshot
//   - SQLiteStore: persistent collections on SQLite
//   - RemoteStore: an HTTP client for a remote /api/v1 API
//
// All implementations return ErrNotFound and ErrInvalidStatus (wrapped) so
// callers can use errors.Is regardless of the backend.
package store

import (
	"context"
	"errors"

	"github.com/SkoposLabs/csm/internal/models"
)

// Domain errors returned by every DataStore implementation.
var (
	// ErrNotFound is returned when a referenced application, device or file
	// does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidStatus is returned when a status tag is outside the fixed set.
	ErrInvalidStatus = errors.New("store: invalid status")
)

// DataStore is the capability interface the service layer depends on.
// Implementations must be safe for concurrent use.
type DataStore interface {
	// Applications returns all applications in collection order.
	Applications(ctx context.Context) ([]models.Application, error)
	// Application returns one application or ErrNotFound.
	Application(ctx context.Context, uuid string) (*models.Application, error)

	// Devices returns all devices (with installations) in collection order.
	Devices(ctx context.Context) ([]models.Device, error)
	// Device returns one device or ErrNotFound.
	Device(ctx context.Context, uuid string) (*models.Device, error)

	// Files returns all files, most recent first.
	Files(ctx context.Context) ([]models.File, error)
	// File returns one file or ErrNotFound.
	File(ctx context.Context, uuid string) (*models.File, error)

	// SetApplicationStatus replaces an application's status. It checks the
	// application exists before validating the tag.
	SetApplicationStatus(ctx context.Context, uuid string, status models.StatusType) (*models.Application, error)

	// SetDeviceOwner replaces a device's owner name. Empty names are allowed.
	SetDeviceOwner(ctx context.Context, uuid, ownerName string) (*models.Device, error)

	// AddFile creates a file record with a new UUID and the current time and
	// prepends it to the collection.
	AddFile(ctx context.Context, upload models.FileUpload) (*models.File, error)

	// RemoveFile deletes a file record. Device and application data are
	// never touched.
	RemoveFile(ctx context.Context, uuid string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Snapshot is a full copy of the collections, used for seeding and import.
// Files are ordered most recent first.
type Snapshot struct {
	Applications []models.Application `json:"applications"`
	Devices      []models.Device      `json:"devices"`
	Files        []models.File        `json:"files"`
}

func cloneApplication(a models.Application) models.Application {
	if a.Versions != nil {
		a.Versions = append([]models.ApplicationVersion(nil), a.Versions...)
	}
	return a
}

func cloneDevice(d models.Device) models.Device {
	if d.Installations != nil {
		d.Installations = append([]models.Installation(nil), d.Installations...)
	}
	return d
}
