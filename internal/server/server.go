// Package server is the presentation layer: server-rendered HTML pages with
// htmx fragments and the /api/v1 JSON API, both backed by compliance.Service.
package server

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SkoposLabs/csm/internal/compliance"
	"github.com/SkoposLabs/csm/internal/config"
	"github.com/SkoposLabs/csm/internal/events"
	"github.com/SkoposLabs/csm/internal/logging"
	"github.com/SkoposLabs/csm/internal/metrics"
	"github.com/SkoposLabs/csm/web"
)

// Options holds the Server's dependencies. Config and Service are required.
type Options struct {
	Config  *config.Config
	Service *compliance.Service
	Events  events.Publisher
	Metrics metrics.Recorder
	Logger  *logging.Logger
	Version string
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	cfg      *config.Config
	svc      *compliance.Service
	events   events.Publisher
	metrics  metrics.Recorder
	log      *logging.Logger
	version  string
	started  time.Time
	render   *renderer
	router   chi.Router
	http     *http.Server
	status   *statusTracker
	activity *activityLog

	stopHealth chan struct{} // signals the health poller to stop
	stopOnce   sync.Once
}

// New creates a Server. It sets up routes and middleware but does not start
// listening.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Service == nil {
		return nil, fmt.Errorf("server: config and service are required")
	}

	rn, err := newRenderer()
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}

	s := &Server{
		cfg:        opts.Config,
		svc:        opts.Service,
		events:     opts.Events,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		version:    opts.Version,
		started:    time.Now().UTC(),
		render:     rn,
		router:     chi.NewRouter(),
		status:     newStatusTracker(),
		activity:   newActivityLog(opts.Config.Dashboard.ActivityCapacity),
		stopHealth: make(chan struct{}),
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
	s.log = s.log.With("component", "server")

	for _, name := range []string{componentStore, componentMQTT, componentInflux} {
		s.status.Set(&ComponentStatus{Name: name, Status: statusUnchecked})
	}

	if err := s.routes(); err != nil {
		return nil, err
	}

	s.http = &http.Server{
		Addr:         opts.Config.Addr(),
		Handler:      s.router,
		ReadTimeout:  opts.Config.ReadTimeout(),
		WriteTimeout: opts.Config.WriteTimeout(),
		IdleTimeout:  opts.Config.IdleTimeout(),
	}
	return s, nil
}

// Handler returns the root HTTP handler (router plus middleware).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// SetAddr overrides the listen address. Call before Start.
func (s *Server) SetAddr(addr string) {
	s.http.Addr = addr
}

// Start begins listening. It blocks until the server is shut down and
// returns http.ErrServerClosed after a graceful Shutdown.
func (s *Server) Start() error {
	s.log.Info("server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// StartBackgroundJobs launches the health poller. Call this before Start().
func (s *Server) StartBackgroundJobs() {
	go s.healthPoller()
	s.activity.Logf("system", "info", "csm %s started, health checks every %s", s.version, s.cfg.HealthInterval())
}

// Shutdown gracefully shuts down the HTTP server and background jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopHealth) })
	return s.http.Shutdown(ctx)
}

// staticFiles registers the handler for serving embedded static assets.
func (s *Server) staticFiles() error {
	// Sub into the "static" directory so URLs map as /static/style.css.
	sub, err := fs.Sub(web.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("static fs: %w", err)
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
	return nil
}
