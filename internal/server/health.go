package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// healthResponse is the JSON shape returned by the health endpoint.
type healthResponse struct {
	Status     string                     `json:"status"` // "ok", "degraded", "unavailable"
	Version    string                     `json:"version"`
	Backend    string                     `json:"backend"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentStatus `json:"components"`
}

// handleHealth checks every component now. A failing store makes the
// service unavailable (503); failing optional sinks only degrade it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:     "ok",
		Version:    s.version,
		Backend:    s.cfg.Store.Backend,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Components: make(map[string]ComponentStatus),
	}

	code := http.StatusOK
	for _, c := range s.checkComponents(ctx) {
		resp.Components[c.Name] = c
		if c.Status != statusError {
			continue
		}
		if c.Name == componentStore {
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
		} else if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
