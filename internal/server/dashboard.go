package server

import (
	"context"
	"net/http"

	"github.com/SkoposLabs/csm/internal/compliance"
	"github.com/SkoposLabs/csm/internal/models"
)

const (
	recentUploads  = 5
	recentActivity = 10
)

// dashboardData is the template data for the dashboard page.
type dashboardData struct {
	Nav          string
	Stats        models.Stats
	Unidentified unidentifiedPage
	Uploads      []fileRow
	Activity     []ActivityEvent
}

// unidentifiedPage is one page of the unidentified installations table.
type unidentifiedPage struct {
	Rows  []models.UnidentifiedRow
	Page  int
	Pages int
	Total int
}

// fileRow joins a file to the device it reports on. Device is nil when the
// device no longer exists.
type fileRow struct {
	File   models.File
	Device *models.Device
}

// handleDashboard renders the main dashboard overview page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.svc.Stats(ctx)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	unidentified, err := s.unidentifiedPage(ctx, 1)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	uploads, err := s.fileRows(ctx)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	if len(uploads) > recentUploads {
		uploads = uploads[:recentUploads]
	}

	s.render.render(w, "dashboard.html", dashboardData{
		Nav:          "dashboard",
		Stats:        stats,
		Unidentified: unidentified,
		Uploads:      uploads,
		Activity:     s.activity.Recent(recentActivity),
	})
}

// handleUnidentifiedRows renders one page of the unidentified table for htmx.
// GET /unidentified/rows?page=
func (s *Server) handleUnidentifiedRows(w http.ResponseWriter, r *http.Request) {
	page, err := s.unidentifiedPage(r.Context(), queryInt(r.URL.Query(), "page", 1))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render.renderBlock(w, "dashboard.html", "unidentified-table", page)
}

// unidentifiedPage loads the unidentified join and cuts out one page. The
// page is clamped so that resolving the last row on the last page moves
// back one page instead of showing an empty table.
func (s *Server) unidentifiedPage(ctx context.Context, page int) (unidentifiedPage, error) {
	rows, err := s.svc.Unidentified(ctx)
	if err != nil {
		return unidentifiedPage{}, err
	}
	size := s.cfg.Dashboard.UnidentifiedPageSize
	pages := compliance.PageCount(len(rows), size)
	page = compliance.ClampPage(page, pages)

	return unidentifiedPage{
		Rows:  compliance.Paginate(rows, size, page),
		Page:  page,
		Pages: pages,
		Total: len(rows),
	}, nil
}

// fileRows joins every file (most recent first) to its device.
func (s *Server) fileRows(ctx context.Context) ([]fileRow, error) {
	files, err := s.svc.Files(ctx)
	if err != nil {
		return nil, err
	}
	devices, err := s.svc.Devices(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Device, len(devices))
	for i := range devices {
		byID[devices[i].UUID] = &devices[i]
	}
	rows := make([]fileRow, len(files))
	for i, f := range files {
		rows[i] = fileRow{File: f, Device: byID[f.DeviceUUID]}
	}
	return rows, nil
}
