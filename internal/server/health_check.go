package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SkoposLabs/csm/internal/events"
	"github.com/SkoposLabs/csm/internal/metrics"
)

const healthCheckTimeout = 10 * time.Second

// Component names tracked by the health poller.
const (
	componentStore  = "store"
	componentMQTT   = "mqtt"
	componentInflux = "influxdb"
)

// healthPoller runs in a goroutine. Each tick it checks every component and
// refreshes the service cache, which also records a stats point.
func (s *Server) healthPoller() {
	s.tick()

	ticker := time.NewTicker(s.cfg.HealthInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopHealth:
			s.log.Info("health poller stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Server) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	s.checkComponents(ctx)

	if _, err := s.svc.Refresh(ctx); err != nil {
		s.log.Warn("cache refresh failed", "error", err)
	}
}

// checkComponents tests every component in parallel and returns the fresh
// statuses, sorted by name.
func (s *Server) checkComponents(ctx context.Context) []ComponentStatus {
	checks := map[string]func(context.Context) error{
		componentStore:  s.svc.Store().Ping,
		componentMQTT:   s.events.HealthCheck,
		componentInflux: s.metrics.HealthCheck,
	}

	var wg sync.WaitGroup
	for name, check := range checks {
		name, check := name, check
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.checkComponent(ctx, name, check)
		}()
	}
	wg.Wait()

	return s.status.All()
}

// checkComponent runs one check and updates the status tracker. Transitions
// are written to the activity log; steady states are not.
func (s *Server) checkComponent(ctx context.Context, name string, check func(context.Context) error) {
	start := time.Now()
	err := check(ctx)
	latency := time.Since(start)

	prev := s.status.Get(name)
	next := &ComponentStatus{
		Name:      name,
		Status:    statusOK,
		CheckedAt: time.Now().UTC(),
		Latency:   latency,
	}

	switch {
	case errors.Is(err, events.ErrDisabled), errors.Is(err, metrics.ErrDisabled):
		next.Status = statusDisabled
	case err != nil:
		next.Status = statusError
		next.Error = err.Error()
		next.ConsecFails = 1
		if prev != nil {
			next.ConsecFails = prev.ConsecFails + 1
		}
	}
	s.status.Set(next)

	if prev != nil && prev.Status == next.Status {
		return
	}
	switch next.Status {
	case statusOK:
		s.activity.Logf(name, "success", "Connected (%s)", latency.Round(time.Millisecond))
		s.log.Info("component healthy", "component", name, "latency", latency)
	case statusError:
		s.activity.Logf(name, "error", "Check failed: %s", err)
		s.log.Warn("component unhealthy", "component", name, "error", err)
	case statusDisabled:
		s.activity.Logf(name, "info", "Disabled in configuration")
	}
}
