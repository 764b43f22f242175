package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// routes registers all HTTP handlers and middleware on the router.
func (s *Server) routes() error {
	r := s.router

	// Outermost first.
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.recovery)

	r.NotFound(s.handleNotFound)

	// Dashboard
	r.Get("/", s.handleDashboard)
	r.Get("/unidentified/rows", s.handleUnidentifiedRows)
	r.Get("/health", s.handleHealth)

	// Applications
	r.Route("/applications", func(r chi.Router) {
		r.Get("/", s.handleApplicationList)
		r.Get("/rows", s.handleApplicationRows)
		r.Get("/{id}", s.handleApplicationDetail)
		r.Post("/{id}/status", s.handleApplicationStatus)
	})

	// Devices
	r.Get("/devices", s.handleDeviceList)
	r.Post("/devices/{id}/owner", s.handleDeviceOwner)

	// Uploads
	r.Route("/uploads", func(r chi.Router) {
		r.Get("/", s.handleUploadList)
		r.Post("/", s.handleUploadCreate)
		r.Get("/{id}", s.handleUploadDetail)
		r.Post("/{id}/delete", s.handleUploadDelete)
	})

	// Activity (live feed)
	r.Get("/activity", s.handleActivity)
	r.Get("/activity/events", s.handleActivityEvents)

	// JSON API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.apiAuth)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			jsonError(w, http.StatusNotFound, codeNotFound, "no such endpoint")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			jsonError(w, http.StatusMethodNotAllowed, codeBadRequest, "method not allowed")
		})

		r.Get("/statuses", s.apiStatuses)
		r.Get("/stats", s.apiStats)
		r.Get("/report", s.apiReport)
		r.Get("/unidentified", s.apiUnidentified)
		r.Post("/refresh", s.apiRefresh)

		r.Route("/applications", func(r chi.Router) {
			r.Get("/", s.apiListApplications)
			r.Get("/{id}", s.apiGetApplication)
			r.Get("/{id}/devices", s.apiApplicationDevices)
			r.Post("/{id}/status", s.apiSetApplicationStatus)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.apiListDevices)
			r.Get("/{id}", s.apiGetDevice)
			r.Patch("/{id}", s.apiSetDeviceOwner)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", s.apiListFiles)
			r.Post("/", s.apiAddFile)
			r.Get("/{id}", s.apiGetFile)
			r.Delete("/{id}", s.apiRemoveFile)
		})
	})

	return s.staticFiles()
}
