package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/SkoposLabs/csm/internal/config"
	"github.com/SkoposLabs/csm/internal/models"
)

var testTime = time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)

func lineProtocol(t *testing.T, p *write.Point) string {
	t.Helper()
	return write.PointToLineProtocol(p, time.Nanosecond)
}

func TestStatsPoint(t *testing.T) {
	stats := models.Stats{
		TotalApplications: 10,
		TotalDevices:      3,
		TotalFiles:        4,
		StatusCounts: map[models.StatusType]int{
			models.StatusWhitelisted:  5,
			models.StatusUnidentified: 2,
			models.StatusFlagged:      1,
			models.StatusPending:      1,
			models.StatusBlocked:      1,
		},
	}

	line := lineProtocol(t, statsPoint(stats, testTime))

	for _, want := range []string{
		"compliance_stats ",
		"total_applications=10i",
		"total_devices=3i",
		"total_files=4i",
		"unidentified=2i",
		"whitelisted=5i",
		"blocked=1i",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestStatsPoint_MissingCountsAreZero(t *testing.T) {
	line := lineProtocol(t, statsPoint(models.Stats{}, testTime))
	if !strings.Contains(line, "pending=0i") {
		t.Errorf("line %q should carry pending=0i", line)
	}
}

func TestStatusChangePoint(t *testing.T) {
	app := models.Application{UUID: "app-4", Name: "Unknown Crypto Miner", Status: models.StatusWhitelisted}
	line := lineProtocol(t, statusChangePoint(app, models.StatusUnidentified, testTime))

	for _, want := range []string{
		"status_change,",
		"application_uuid=app-4",
		"from=unidentified",
		"to=whitelisted",
		"count=1i",
		`name="Unknown Crypto Miner"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestUploadPoint(t *testing.T) {
	f := models.File{UUID: "f-1", DeviceUUID: "device-2", Size: 2048}
	line := lineProtocol(t, uploadPoint(f, testTime))

	for _, want := range []string{"report_upload,device_uuid=device-2", "size_bytes=2048i"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: srv.URL, Org: "o", Bucket: "b"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// fakeInflux answers pings and captures write bodies.
type fakeInflux struct {
	mu     sync.Mutex
	writes []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/ping":
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func TestInfluxClient_WritesPoints(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := Connect(config.InfluxDBConfig{
		Enabled: true, URL: srv.URL, Token: "t", Org: "skopos", Bucket: "csm", BatchSize: 10, FlushInterval: 60,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	c.RecordUpload(models.File{UUID: "f-9", DeviceUUID: "device-1", Size: 10})
	c.RecordStatusChange(models.Application{UUID: "app-5", Status: models.StatusBlocked}, models.StatusUnidentified)
	c.Flush()

	got := fake.body()
	if !strings.Contains(got, "report_upload,device_uuid=device-1") {
		t.Errorf("writes %q missing report_upload point", got)
	}
	if !strings.Contains(got, "to=blocked") {
		t.Errorf("writes %q missing status_change point", got)
	}
}

func TestInfluxClient_ClosedIsSilent(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := Connect(config.InfluxDBConfig{Enabled: true, URL: srv.URL, Org: "o", Bucket: "b"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c.Close()

	c.RecordStats(models.Stats{})
	c.Flush()
	if !errors.Is(c.HealthCheck(context.Background()), ErrNotConnected) {
		t.Error("HealthCheck() after Close should return ErrNotConnected")
	}
}
