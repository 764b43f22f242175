package server

import (
	"net/http"
	"strconv"
)

const activityPageSize = 100

// ── Template data ───────────────────────────────────────────────────────

type activityData struct {
	Nav        string
	Components []ComponentStatus
	Events     []ActivityEvent
	Seq        int64
}

// handleActivity renders the full activity page.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	s.render.render(w, "activity.html", activityData{
		Nav:        "activity",
		Components: s.status.All(),
		Events:     s.activity.Recent(activityPageSize),
		Seq:        s.activity.Seq(),
	})
}

// handleActivityEvents returns just the activity rows as an HTML fragment,
// for htmx polling. It returns 204 No Content if nothing has changed (htmx
// will skip swapping).
func (s *Server) handleActivityEvents(w http.ResponseWriter, r *http.Request) {
	// htmx sends the last known seq as a query param.
	lastSeq := r.URL.Query().Get("seq")
	currentSeq := s.activity.Seq()

	if lastSeq == strconv.FormatInt(currentSeq, 10) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.render.renderBlock(w, "activity.html", "event-rows", struct {
		Events []ActivityEvent
		Seq    int64
	}{
		Events: s.activity.Recent(activityPageSize),
		Seq:    currentSeq,
	})
}
