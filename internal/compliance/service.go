package compliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SkoposLabs/csm/internal/events"
	"github.com/SkoposLabs/csm/internal/logging"
	"github.com/SkoposLabs/csm/internal/metrics"
	"github.com/SkoposLabs/csm/internal/models"
	"github.com/SkoposLabs/csm/internal/store"
)

// Service serves derived views from a cached snapshot of a DataStore and
// applies mutations to it.
//
// At most one mutation per entity id is in flight at a time. Every
// successful mutation invalidates the cached snapshot, publishes an event and
// records metrics. Publishing is best effort: failures are logged and the
// store result is returned regardless.
//
// Slices returned by view methods are shared with the cache and must not be
// modified.
type Service struct {
	store   store.DataStore
	events  events.Publisher
	metrics metrics.Recorder
	log     *logging.Logger
	now     func() time.Time

	locks keyedMutex

	mu   sync.Mutex
	snap *store.Snapshot
	gen  uint64 // bumped on every invalidation
}

// Options configures optional Service collaborators. Nil fields fall back
// to no-op implementations.
type Options struct {
	Events  events.Publisher
	Metrics metrics.Recorder
	Logger  *logging.Logger
}

// NewService creates a Service over ds.
func NewService(ds store.DataStore, opts Options) *Service {
	s := &Service{
		store:   ds,
		events:  opts.Events,
		metrics: opts.Metrics,
		log:     opts.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	s.log = s.log.With("component", "compliance")
	return s
}

// Store returns the underlying DataStore.
func (s *Service) Store() store.DataStore { return s.store }

// ── Cache ───────────────────────────────────────────────────────────────

// Invalidate drops the cached snapshot; the next view reloads from the store.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.snap = nil
	s.gen++
	s.mu.Unlock()
}

// Refresh invalidates the cache, reloads it and records a stats point.
func (s *Service) Refresh(ctx context.Context) (models.Stats, error) {
	s.Invalidate()
	snap, err := s.snapshot(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	stats := ComputeStats(snap.Applications, snap.Devices, snap.Files)
	s.metrics.RecordStats(stats)
	return stats, nil
}

// snapshot returns the cached collections, loading them if needed. A load
// that raced with an invalidation is returned but not cached.
func (s *Service) snapshot(ctx context.Context) (store.Snapshot, error) {
	s.mu.Lock()
	if s.snap != nil {
		snap := *s.snap
		s.mu.Unlock()
		return snap, nil
	}
	gen := s.gen
	s.mu.Unlock()

	apps, err := s.store.Applications(ctx)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load applications: %w", err)
	}
	devices, err := s.store.Devices(ctx)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load devices: %w", err)
	}
	files, err := s.store.Files(ctx)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load files: %w", err)
	}
	snap := store.Snapshot{Applications: apps, Devices: devices, Files: files}

	s.mu.Lock()
	if s.gen == gen {
		s.snap = &snap
	}
	s.mu.Unlock()
	return snap, nil
}

// ── Views ───────────────────────────────────────────────────────────────

// Applications returns the filtered, sorted application list.
func (s *Service) Applications(ctx context.Context, f models.ApplicationFilter) ([]models.Application, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ListApplications(snap.Applications, f), nil
}

// Application returns one application.
func (s *Service) Application(ctx context.Context, id string) (*models.Application, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Applications {
		if snap.Applications[i].UUID == id {
			a := snap.Applications[i]
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%w: application %s", store.ErrNotFound, id)
}

// ApplicationDevices returns the devices that have application id installed.
func (s *Service) ApplicationDevices(ctx context.Context, id string) ([]models.Device, error) {
	if _, err := s.Application(ctx, id); err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ApplicationDevices(id, snap.Devices), nil
}

// Devices returns all devices.
func (s *Service) Devices(ctx context.Context) ([]models.Device, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Devices, nil
}

// Device returns one device.
func (s *Service) Device(ctx context.Context, id string) (*models.Device, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Devices {
		if snap.Devices[i].UUID == id {
			d := snap.Devices[i]
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: device %s", store.ErrNotFound, id)
}

// Files returns all files, most recent first.
func (s *Service) Files(ctx context.Context) ([]models.File, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Files, nil
}

// FileReports returns a file and the report rows of its device.
func (s *Service) FileReports(ctx context.Context, id string) (*models.File, []models.InstallationReport, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	for i := range snap.Files {
		if snap.Files[i].UUID == id {
			f := snap.Files[i]
			return &f, FileReports(f, snap.Applications, snap.Devices), nil
		}
	}
	return nil, nil, fmt.Errorf("%w: file %s", store.ErrNotFound, id)
}

// Unidentified returns every unidentified installation row.
func (s *Service) Unidentified(ctx context.Context) ([]models.UnidentifiedRow, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return UnidentifiedInstallations(snap.Applications, snap.Devices), nil
}

// Reports returns every installation as a flat report row.
func (s *Service) Reports(ctx context.Context) ([]models.InstallationReport, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return InstallationReports(snap.Applications, snap.Devices), nil
}

// Stats returns the aggregate counts.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	return ComputeStats(snap.Applications, snap.Devices, snap.Files), nil
}

// ── Mutations ───────────────────────────────────────────────────────────

// SetApplicationStatus changes an application's status. Setting the status
// an application already has succeeds without publishing an event.
func (s *Service) SetApplicationStatus(ctx context.Context, id string, status models.StatusType) (*models.Application, error) {
	unlock := s.locks.Lock("application:" + id)
	defer unlock()

	prev, err := s.store.Application(ctx, id)
	if err != nil {
		return nil, err
	}
	app, err := s.store.SetApplicationStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.Invalidate()

	if prev.Status != app.Status {
		s.log.Info("application status changed", "application", id, "from", prev.Status, "to", app.Status)
		s.publish(ctx, events.ApplicationStatusChanged, id, events.StatusChange{
			Name: app.Name,
			From: string(prev.Status),
			To:   string(app.Status),
		})
		s.metrics.RecordStatusChange(*app, prev.Status)
	}
	return app, nil
}

// SetDeviceOwner changes a device's owner name.
func (s *Service) SetDeviceOwner(ctx context.Context, id, ownerName string) (*models.Device, error) {
	unlock := s.locks.Lock("device:" + id)
	defer unlock()

	d, err := s.store.SetDeviceOwner(ctx, id, ownerName)
	if err != nil {
		return nil, err
	}
	s.Invalidate()

	s.log.Info("device owner changed", "device", id)
	s.publish(ctx, events.DeviceOwnerChanged, id, map[string]string{"ownerName": d.OwnerName})
	return d, nil
}

// AddFile records a report upload. Uploads for the same device are
// serialised.
func (s *Service) AddFile(ctx context.Context, upload models.FileUpload) (*models.File, error) {
	unlock := s.locks.Lock("device:" + upload.DeviceUUID)
	defer unlock()

	f, err := s.store.AddFile(ctx, upload)
	if err != nil {
		return nil, err
	}
	s.Invalidate()

	s.log.Info("report file added", "file", f.UUID, "device", f.DeviceUUID, "size", f.Size)
	s.publish(ctx, events.FileAdded, f.UUID, f)
	s.metrics.RecordUpload(*f)
	return f, nil
}

// RemoveFile deletes a report file record.
func (s *Service) RemoveFile(ctx context.Context, id string) error {
	unlock := s.locks.Lock("file:" + id)
	defer unlock()

	if err := s.store.RemoveFile(ctx, id); err != nil {
		return err
	}
	s.Invalidate()

	s.log.Info("report file removed", "file", id)
	s.publish(ctx, events.FileRemoved, id, nil)
	return nil
}

func (s *Service) publish(ctx context.Context, typ events.Type, id string, data any) {
	ev := events.Event{Type: typ, EntityID: id, Timestamp: s.now(), Data: data}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("event publish failed", "type", typ, "entity", id, "error", err)
	}
}
