package compliance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SkoposLabs/csm/internal/events"
	"github.com/SkoposLabs/csm/internal/models"
	"github.com/SkoposLabs/csm/internal/store"
)

// fakeMetrics counts recorded measurements.
type fakeMetrics struct {
	mu            sync.Mutex
	stats         int
	statusChanges []models.StatusType
	uploads       int
}

func (m *fakeMetrics) RecordStats(models.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats++
}

func (m *fakeMetrics) RecordStatusChange(app models.Application, from models.StatusType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusChanges = append(m.statusChanges, from, app.Status)
}

func (m *fakeMetrics) RecordUpload(models.File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
}

func (m *fakeMetrics) HealthCheck(context.Context) error { return nil }
func (m *fakeMetrics) Close() error                      { return nil }

// countingStore counts collection loads to observe caching.
type countingStore struct {
	store.DataStore
	loads atomic.Int32
}

func (c *countingStore) Applications(ctx context.Context) ([]models.Application, error) {
	c.loads.Add(1)
	return c.DataStore.Applications(ctx)
}

func setupService(t *testing.T) (*Service, *countingStore, *events.Recorder, *fakeMetrics) {
	t.Helper()
	cs := &countingStore{DataStore: store.NewMemoryStore(store.SampleSnapshot())}
	rec := &events.Recorder{}
	fm := &fakeMetrics{}
	svc := NewService(cs, Options{Events: rec, Metrics: fm})
	return svc, cs, rec, fm
}

func TestService_SetApplicationStatus(t *testing.T) {
	svc, _, rec, fm := setupService(t)
	ctx := context.Background()

	before, err := svc.Application(ctx, "app-4")
	if err != nil {
		t.Fatalf("Application() error = %v", err)
	}
	if before.Status != models.StatusUnidentified {
		t.Fatalf("app-4 status = %q, want unidentified", before.Status)
	}

	app, err := svc.SetApplicationStatus(ctx, "app-4", models.StatusWhitelisted)
	if err != nil {
		t.Fatalf("SetApplicationStatus() error = %v", err)
	}
	if app.UUID != "app-4" || app.Status != models.StatusWhitelisted || len(app.Versions) != len(before.Versions) {
		t.Errorf("updated app = %+v", app)
	}

	// The cached view reflects the change.
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.UnidentifiedCount != 1 || stats.WhitelistedCount != 6 {
		t.Errorf("stats after change = %d unidentified / %d whitelisted, want 1/6", stats.UnidentifiedCount, stats.WhitelistedCount)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Type != events.ApplicationStatusChanged || evs[0].EntityID != "app-4" {
		t.Fatalf("events = %+v", evs)
	}
	change, ok := evs[0].Data.(events.StatusChange)
	if !ok || change.From != "unidentified" || change.To != "whitelisted" {
		t.Errorf("event data = %+v", evs[0].Data)
	}
	if len(fm.statusChanges) != 2 || fm.statusChanges[0] != models.StatusUnidentified {
		t.Errorf("metrics status changes = %v", fm.statusChanges)
	}
}

func TestService_SetApplicationStatus_Idempotent(t *testing.T) {
	svc, _, rec, _ := setupService(t)
	ctx := context.Background()

	first, err := svc.SetApplicationStatus(ctx, "app-8", models.StatusBlocked)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.SetApplicationStatus(ctx, "app-8", models.StatusBlocked)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != second.Status || first.Name != second.Name || len(first.Versions) != len(second.Versions) {
		t.Errorf("second apply changed state: %+v vs %+v", first, second)
	}
	if n := len(rec.Events()); n != 1 {
		t.Errorf("published %d events, want 1 (no-op change is silent)", n)
	}
}

func TestService_SetApplicationStatus_Errors(t *testing.T) {
	svc, _, rec, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.SetApplicationStatus(ctx, "does-not-exist", models.StatusFlagged); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing app error = %v, want ErrNotFound", err)
	}
	if _, err := svc.SetApplicationStatus(ctx, "does-not-exist", "bogus"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing app with bad status error = %v, want ErrNotFound first", err)
	}
	if _, err := svc.SetApplicationStatus(ctx, "app-1", "bogus"); !errors.Is(err, store.ErrInvalidStatus) {
		t.Errorf("bad status error = %v, want ErrInvalidStatus", err)
	}
	if n := len(rec.Events()); n != 0 {
		t.Errorf("failed mutations published %d events", n)
	}
}

func TestService_CacheInvalidation(t *testing.T) {
	svc, cs, _, _ := setupService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Applications(ctx, models.ApplicationFilter{}); err != nil {
			t.Fatal(err)
		}
	}
	if got := cs.loads.Load(); got != 1 {
		t.Errorf("loads after repeated reads = %d, want 1", got)
	}

	if _, err := svc.SetDeviceOwner(ctx, "device-1", "Alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Applications(ctx, models.ApplicationFilter{}); err != nil {
		t.Fatal(err)
	}
	if got := cs.loads.Load(); got != 2 {
		t.Errorf("loads after mutation = %d, want 2", got)
	}

	// Changes made behind the service's back show up after Refresh.
	if _, err := cs.DataStore.SetApplicationStatus(ctx, "app-9", models.StatusWhitelisted); err != nil {
		t.Fatal(err)
	}
	stale, _ := svc.Application(ctx, "app-9")
	if stale.Status != models.StatusPending {
		t.Errorf("cached status = %q, want stale pending", stale.Status)
	}
	stats, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.WhitelistedCount != 6 {
		t.Errorf("refreshed whitelisted = %d, want 6", stats.WhitelistedCount)
	}
	fresh, _ := svc.Application(ctx, "app-9")
	if fresh.Status != models.StatusWhitelisted {
		t.Errorf("refreshed status = %q, want whitelisted", fresh.Status)
	}
}

func TestService_RefreshRecordsStats(t *testing.T) {
	svc, _, _, fm := setupService(t)
	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fm.stats != 1 {
		t.Errorf("RecordStats calls = %d, want 1", fm.stats)
	}
}

func TestService_Files(t *testing.T) {
	svc, _, rec, fm := setupService(t)
	ctx := context.Background()

	f, err := svc.AddFile(ctx, models.FileUpload{DeviceUUID: "device-3", Name: "new.json", Size: 512})
	if err != nil {
		t.Fatalf("AddFile() error = %v", err)
	}

	files, err := svc.Files(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 5 || files[0].UUID != f.UUID {
		t.Fatalf("new file not prepended: %+v", files)
	}

	stats, _ := svc.Stats(ctx)
	if stats.MostRecentFile == nil || stats.MostRecentFile.UUID != f.UUID {
		t.Errorf("MostRecentFile = %+v, want the new upload", stats.MostRecentFile)
	}

	got, reports, err := svc.FileReports(ctx, f.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeviceUUID != "device-3" || len(reports) != 3 {
		t.Errorf("FileReports = %+v with %d rows", got, len(reports))
	}

	if err := svc.RemoveFile(ctx, f.UUID); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}
	if err := svc.RemoveFile(ctx, f.UUID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second RemoveFile() error = %v, want ErrNotFound", err)
	}
	files, _ = svc.Files(ctx)
	if len(files) != 4 {
		t.Errorf("len(files) = %d after removal, want 4", len(files))
	}

	var types []events.Type
	for _, ev := range rec.Events() {
		types = append(types, ev.Type)
	}
	if len(types) != 2 || types[0] != events.FileAdded || types[1] != events.FileRemoved {
		t.Errorf("event types = %v", types)
	}
	if fm.uploads != 1 {
		t.Errorf("RecordUpload calls = %d, want 1", fm.uploads)
	}
}

func TestService_AddFileUnknownDevice(t *testing.T) {
	svc, _, _, _ := setupService(t)
	_, err := svc.AddFile(context.Background(), models.FileUpload{DeviceUUID: "device-404"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AddFile() error = %v, want ErrNotFound", err)
	}
}

func TestService_ViewsNotFound(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.Device(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Device() error = %v", err)
	}
	if _, err := svc.ApplicationDevices(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ApplicationDevices() error = %v", err)
	}
	if _, _, err := svc.FileReports(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FileReports() error = %v", err)
	}
}

func TestService_PublishFailureIsNotReturned(t *testing.T) {
	ms := store.NewMemoryStore(store.SampleSnapshot())
	svc := NewService(ms, Options{Events: &events.Recorder{Err: events.ErrNotConnected}})

	d, err := svc.SetDeviceOwner(context.Background(), "device-2", "")
	if err != nil {
		t.Fatalf("SetDeviceOwner() error = %v, want nil despite publish failure", err)
	}
	if d.OwnerName != "" {
		t.Errorf("OwnerName = %q, want empty", d.OwnerName)
	}
}

// blockingStore holds SetDeviceOwner until released, tracking concurrency.
type blockingStore struct {
	store.DataStore
	release  chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (b *blockingStore) SetDeviceOwner(ctx context.Context, id, owner string) (*models.Device, error) {
	n := b.inFlight.Add(1)
	for {
		m := b.maxSeen.Load()
		if n <= m || b.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	<-b.release
	b.inFlight.Add(-1)
	return b.DataStore.SetDeviceOwner(ctx, id, owner)
}

func TestService_OneMutationPerEntity(t *testing.T) {
	bs := &blockingStore{
		DataStore: store.NewMemoryStore(store.SampleSnapshot()),
		release:   make(chan struct{}),
	}
	svc := NewService(bs, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.SetDeviceOwner(context.Background(), "device-1", "X")
		}()
	}

	// Give the goroutines time to pile up on the key lock.
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 3; i++ {
		bs.release <- struct{}{}
	}
	wg.Wait()

	if got := bs.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent mutations on one device = %d, want 1", got)
	}
	if n := svc.locks.size(); n != 0 {
		t.Errorf("keyed locks left behind: %d", n)
	}
}

func TestService_DifferentEntitiesRunConcurrently(t *testing.T) {
	bs := &blockingStore{
		DataStore: store.NewMemoryStore(store.SampleSnapshot()),
		release:   make(chan struct{}),
	}
	svc := NewService(bs, Options{})

	var wg sync.WaitGroup
	for _, id := range []string{"device-1", "device-2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = svc.SetDeviceOwner(context.Background(), id, "Y")
		}(id)
	}

	deadline := time.Now().Add(2 * time.Second)
	for bs.inFlight.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := bs.inFlight.Load(); got != 2 {
		t.Errorf("in-flight mutations on different devices = %d, want 2", got)
	}
	bs.release <- struct{}{}
	bs.release <- struct{}{}
	wg.Wait()
}
