// Package metrics writes compliance time series to InfluxDB.
//
// Three measurements are recorded:
//
//	compliance_stats   fleet totals and per-status counts, one point per stats refresh
//	status_change      one point per application status change
//	report_upload      one point per uploaded report file
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/SkoposLabs/csm/internal/models"
)

// Sentinel errors. Use errors.Is to check them.
var (
	ErrNotConnected     = errors.New("metrics: influxdb not connected")
	ErrConnectionFailed = errors.New("metrics: influxdb connection failed")
	ErrDisabled         = errors.New("metrics: influxdb disabled in configuration")
)

// Recorder accepts compliance measurements. Writes never block the caller.
type Recorder interface {
	RecordStats(stats models.Stats)
	RecordStatusChange(app models.Application, from models.StatusType)
	RecordUpload(file models.File)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Noop drops every measurement.
type Noop struct{}

func (Noop) RecordStats(models.Stats)                                 {}
func (Noop) RecordStatusChange(models.Application, models.StatusType) {}
func (Noop) RecordUpload(models.File)                                 {}
func (Noop) HealthCheck(context.Context) error                        { return ErrDisabled }
func (Noop) Close() error                                             { return nil }

// Offline stands in for an InfluxDB client that failed to connect at
// startup. It drops measurements and HealthCheck reports Err.
type Offline struct{ Err error }

func (Offline) RecordStats(models.Stats)                                 {}
func (Offline) RecordStatusChange(models.Application, models.StatusType) {}
func (Offline) RecordUpload(models.File)                                 {}
func (o Offline) HealthCheck(context.Context) error                      { return o.Err }
func (Offline) Close() error                                             { return nil }

// statsPoint builds the compliance_stats point.
func statsPoint(s models.Stats, ts time.Time) *write.Point {
	fields := map[string]interface{}{
		"total_applications": s.TotalApplications,
		"total_devices":      s.TotalDevices,
		"total_files":        s.TotalFiles,
	}
	for _, st := range models.StatusTypes() {
		fields[string(st)] = s.StatusCounts[st]
	}
	return write.NewPoint("compliance_stats", map[string]string{}, fields, ts)
}

// statusChangePoint builds the status_change point.
func statusChangePoint(app models.Application, from models.StatusType, ts time.Time) *write.Point {
	return write.NewPoint(
		"status_change",
		map[string]string{
			"application_uuid": app.UUID,
			"from":             string(from),
			"to":               string(app.Status),
		},
		map[string]interface{}{
			"count": 1,
			"name":  app.Name,
		},
		ts,
	)
}

// uploadPoint builds the report_upload point.
func uploadPoint(f models.File, ts time.Time) *write.Point {
	return write.NewPoint(
		"report_upload",
		map[string]string{
			"device_uuid": f.DeviceUUID,
		},
		map[string]interface{}{
			"count":      1,
			"size_bytes": f.Size,
		},
		ts,
	)
}
