package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SkoposLabs/csm/internal/models"
	"github.com/SkoposLabs/csm/internal/store"
)

// ── Template data ───────────────────────────────────────────────────────

type deviceListData struct {
	Nav     string
	Devices []deviceRow
}

// deviceRow is a device plus counts derived from its installations.
type deviceRow struct {
	Device       models.Device
	Apps         int
	Unidentified int
	Flagged      int
	Blocked      int
	LastUpload   *time.Time
}

// ── Handlers ────────────────────────────────────────────────────────────

func (s *Server) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deviceRows(r.Context())
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render.render(w, "devices.html", deviceListData{
		Nav:     "devices",
		Devices: rows,
	})
}

// handleDeviceOwner updates a device's owner name from a form post. An empty
// name clears the owner.
// POST /devices/{id}/owner
func (s *Server) handleDeviceOwner(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")

	if _, err := s.setDeviceOwner(r.Context(), id, r.FormValue("owner_name")); err != nil {
		s.pageError(w, r, err)
		return
	}

	if !isHTMX(r) {
		http.Redirect(w, r, returnTo(r, "/devices"), http.StatusSeeOther)
		return
	}

	rows, err := s.deviceRows(r.Context())
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	for _, row := range rows {
		if row.Device.UUID == id {
			triggerChanged(w)
			s.render.renderBlock(w, "devices.html", "device-row", row)
			return
		}
	}
	s.pageError(w, r, fmt.Errorf("%w: device %s", store.ErrNotFound, id))
}

// deviceRows builds one row per device in collection order.
func (s *Server) deviceRows(ctx context.Context) ([]deviceRow, error) {
	devices, err := s.svc.Devices(ctx)
	if err != nil {
		return nil, err
	}
	apps, err := s.svc.Applications(ctx, models.ApplicationFilter{})
	if err != nil {
		return nil, err
	}
	files, err := s.svc.Files(ctx)
	if err != nil {
		return nil, err
	}

	status := make(map[string]models.StatusType, len(apps))
	for _, a := range apps {
		status[a.UUID] = a.Status
	}
	// Files are most recent first, so the first hit per device wins.
	lastUpload := make(map[string]*time.Time)
	for i := range files {
		if _, ok := lastUpload[files[i].DeviceUUID]; !ok {
			lastUpload[files[i].DeviceUUID] = &files[i].UploadDate
		}
	}

	rows := make([]deviceRow, len(devices))
	for i, d := range devices {
		row := deviceRow{Device: d, Apps: len(d.Installations), LastUpload: lastUpload[d.UUID]}
		for _, in := range d.Installations {
			switch status[in.ApplicationUUID] {
			case models.StatusUnidentified:
				row.Unidentified++
			case models.StatusFlagged:
				row.Flagged++
			case models.StatusBlocked:
				row.Blocked++
			}
		}
		rows[i] = row
	}
	return rows, nil
}
