// csm serves the compliance dashboard and /api/v1 for a fleet of managed
// devices and the software installed on them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SkoposLabs/csm/internal/compliance"
	"github.com/SkoposLabs/csm/internal/config"
	"github.com/SkoposLabs/csm/internal/events"
	"github.com/SkoposLabs/csm/internal/logging"
	"github.com/SkoposLabs/csm/internal/metrics"
	"github.com/SkoposLabs/csm/internal/server"
	"github.com/SkoposLabs/csm/internal/store"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
)

type flags struct {
	configPath string
	addr       string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", os.Getenv("CSM_CONFIG"), "path to YAML config file (defaults only when empty)")
	flag.StringVar(&f.addr, "addr", "", "HTTP listen address, overrides server.host/server.port")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the application and blocks until ctx is cancelled or the HTTP
// server fails.
func run(ctx context.Context, f flags) error {
	log := logging.Default()
	log.Info("starting csm", "version", version, "commit", commit)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", f.configPath,
		"backend", cfg.Store.Backend,
		"level", cfg.Logging.Level,
	)

	ds, err := store.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		log.Info("closing store")
		if closeErr := ds.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()

	publisher := connectEvents(cfg.MQTT, log)
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	recorder := connectMetrics(cfg.InfluxDB, log)
	defer func() {
		if closeErr := recorder.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}()

	svc := compliance.NewService(ds, compliance.Options{
		Events:  publisher,
		Metrics: recorder,
		Logger:  log,
	})

	srv, err := server.New(server.Options{
		Config:  cfg,
		Service: svc,
		Events:  publisher,
		Metrics: recorder,
		Logger:  log,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if f.addr != "" {
		srv.SetAddr(f.addr)
	}

	srv.StartBackgroundJobs()

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	start := time.Now()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown complete", "took", time.Since(start).String())
	return nil
}

// connectEvents returns the MQTT publisher, Noop when MQTT is disabled, or
// Offline when the broker could not be reached.
func connectEvents(cfg config.MQTTConfig, log *logging.Logger) events.Publisher {
	p, err := events.Connect(cfg)
	switch {
	case errors.Is(err, events.ErrDisabled):
		log.Info("MQTT disabled")
		return events.Noop{}
	case err != nil:
		log.Warn("MQTT unavailable, events will not be published", "error", err)
		return events.Offline{Err: err}
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return p
}

// connectMetrics is connectEvents for InfluxDB.
func connectMetrics(cfg config.InfluxDBConfig, log *logging.Logger) metrics.Recorder {
	c, err := metrics.Connect(cfg)
	switch {
	case errors.Is(err, metrics.ErrDisabled):
		log.Info("InfluxDB disabled")
		return metrics.Noop{}
	case err != nil:
		log.Warn("InfluxDB unavailable, metrics will not be recorded", "error", err)
		return metrics.Offline{Err: err}
	}
	c.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return c
}
