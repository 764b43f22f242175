package server

import (
	"net/http"
	"net/url"
	"strings"
)

// handleNotFound renders a styled 404 page for unmatched routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render.renderStatus(w, http.StatusNotFound, "not_found.html", struct {
		Nav     string
		Message string
	}{Message: "The page you requested does not exist."})
}

// pageError presents a service error on an HTML route: a 404 page for
// missing entities, a plain 400 for bad input and a logged 500 otherwise.
func (s *Server) pageError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := httpStatus(err)
	switch status {
	case http.StatusNotFound:
		if isHTMX(r) {
			http.Error(w, err.Error(), status)
			return
		}
		s.render.renderStatus(w, status, "not_found.html", struct {
			Nav     string
			Message string
		}{Message: err.Error()})
	case http.StatusBadRequest:
		http.Error(w, err.Error(), status)
	default:
		s.log.Error("page error", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", status)
	}
}

// returnTo reads the return_to form value, accepting only local paths.
// Browsers treat a backslash like a slash, so any value containing one is
// rejected.
func returnTo(r *http.Request, fallback string) string {
	back := r.FormValue("return_to")
	if !strings.HasPrefix(back, "/") || strings.HasPrefix(back, "//") || strings.Contains(back, `\`) {
		return fallback
	}
	u, err := url.Parse(back)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return back
}
