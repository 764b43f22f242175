package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/SkoposLabs/csm/internal/config"
	"github.com/SkoposLabs/csm/internal/models"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
)

// InfluxClient records measurements through the non-blocking InfluxDB write
// API. Points are batched and flushed in the background.
type InfluxClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	now      func() time.Time

	connected bool
	mu        sync.RWMutex
	onError   func(err error)
}

// Connect pings the server and prepares the write API.
func Connect(cfg config.InfluxDBConfig) (*InfluxClient, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &InfluxClient{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		now:       time.Now,
		connected: true,
	}
	go c.handleWriteErrors(c.writeAPI.Errors())
	return c, nil
}

func (c *InfluxClient) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError sets a callback for asynchronous write failures.
func (c *InfluxClient) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// RecordStats writes a compliance_stats point.
func (c *InfluxClient) RecordStats(s models.Stats) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statsPoint(s, c.now()))
}

// RecordStatusChange writes a status_change point.
func (c *InfluxClient) RecordStatusChange(app models.Application, from models.StatusType) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statusChangePoint(app, from, c.now()))
}

// RecordUpload writes a report_upload point.
func (c *InfluxClient) RecordUpload(f models.File) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(uploadPoint(f, c.now()))
}

// Flush blocks until buffered points are sent. No-op after Close.
func (c *InfluxClient) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// HealthCheck pings the server.
func (c *InfluxClient) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *InfluxClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close flushes pending points and closes the client.
func (c *InfluxClient) Close() error {
	if c.client == nil {
		return nil
	}
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
