package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SkoposLabs/csm/internal/models"
)

// MemoryStore keeps the collections in process memory. It is the explicit
// owner of its data: every read returns copies and every write goes through
// its methods.
type MemoryStore struct {
	mu      sync.RWMutex
	apps    []models.Application
	devices []models.Device
	files   []models.File

	now   func() time.Time
	newID func() string
}

// NewMemoryStore creates a MemoryStore holding a deep copy of snap.
func NewMemoryStore(snap Snapshot) *MemoryStore {
	s := &MemoryStore{
		apps:    make([]models.Application, 0, len(snap.Applications)),
		devices: make([]models.Device, 0, len(snap.Devices)),
		files:   append([]models.File(nil), snap.Files...),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, a := range snap.Applications {
		s.apps = append(s.apps, cloneApplication(a))
	}
	for _, d := range snap.Devices {
		s.devices = append(s.devices, cloneDevice(d))
	}
	return s
}

// Applications returns all applications in collection order.
func (s *MemoryStore) Applications(_ context.Context) ([]models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Application, len(s.apps))
	for i, a := range s.apps {
		out[i] = cloneApplication(a)
	}
	return out, nil
}

// Application returns one application by UUID.
func (s *MemoryStore) Application(_ context.Context, id string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.appIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	a := cloneApplication(s.apps[i])
	return &a, nil
}

// Devices returns all devices in collection order.
func (s *MemoryStore) Devices(_ context.Context) ([]models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Device, len(s.devices))
	for i, d := range s.devices {
		out[i] = cloneDevice(d)
	}
	return out, nil
}

// Device returns one device by UUID.
func (s *MemoryStore) Device(_ context.Context, id string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.deviceIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	d := cloneDevice(s.devices[i])
	return &d, nil
}

// Files returns all files, most recent first.
func (s *MemoryStore) Files(_ context.Context) ([]models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.File{}, s.files...), nil
}

// File returns one file by UUID.
func (s *MemoryStore) File(_ context.Context, id string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.fileIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, id)
	}
	f := s.files[i]
	return &f, nil
}

// SetApplicationStatus replaces the status of one application.
func (s *MemoryStore) SetApplicationStatus(_ context.Context, id string, status models.StatusType) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.appIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.apps[i].Status = status
	a := cloneApplication(s.apps[i])
	return &a, nil
}

// SetDeviceOwner replaces the owner name of one device.
func (s *MemoryStore) SetDeviceOwner(_ context.Context, id, ownerName string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.deviceIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}

	s.devices[i].OwnerName = ownerName
	d := cloneDevice(s.devices[i])
	return &d, nil
}

// AddFile prepends a new file record for an existing device.
func (s *MemoryStore) AddFile(_ context.Context, upload models.FileUpload) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deviceIndex(upload.DeviceUUID) < 0 {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, upload.DeviceUUID)
	}

	f := models.File{
		UUID:       s.newID(),
		UploadDate: s.now(),
		DeviceUUID: upload.DeviceUUID,
		Name:       upload.Name,
		Size:       upload.Size,
	}
	s.files = append([]models.File{f}, s.files...)
	return &f, nil
}

// RemoveFile deletes one file record.
func (s *MemoryStore) RemoveFile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.fileIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: file %s", ErrNotFound, id)
	}
	s.files = append(s.files[:i:i], s.files[i+1:]...)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) appIndex(id string) int {
	for i := range s.apps {
		if s.apps[i].UUID == id {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) deviceIndex(id string) int {
	for i := range s.devices {
		if s.devices[i].UUID == id {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) fileIndex(id string) int {
	for i := range s.files {
		if s.files[i].UUID == id {
			return i
		}
	}
	return -1
}
