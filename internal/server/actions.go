package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/SkoposLabs/csm/internal/models"
	"github.com/SkoposLabs/csm/internal/store"
)

// Mutations shared by the HTML handlers and the JSON API. Each one records
// an activity entry on success or failure.

func (s *Server) setApplicationStatus(ctx context.Context, id string, status models.StatusType) (*models.Application, error) {
	app, err := s.svc.SetApplicationStatus(ctx, id, status)
	if err != nil {
		s.activity.Logf("applications", "error", "Status change for %s failed: %s", id, err)
		return nil, err
	}
	s.activity.Logf("applications", "success", "%s set to %s", app.Name, app.Status.Info().DisplayName)
	return app, nil
}

func (s *Server) setDeviceOwner(ctx context.Context, id, owner string) (*models.Device, error) {
	d, err := s.svc.SetDeviceOwner(ctx, id, owner)
	if err != nil {
		s.activity.Logf("devices", "error", "Owner change for %s failed: %s", id, err)
		return nil, err
	}
	if owner == "" {
		s.activity.Logf("devices", "warning", "Owner cleared on %s", d.SerialNumber)
	} else {
		s.activity.Logf("devices", "success", "%s assigned to %s", d.SerialNumber, owner)
	}
	return d, nil
}

func (s *Server) addFile(ctx context.Context, upload models.FileUpload) (*models.File, error) {
	f, err := s.svc.AddFile(ctx, upload)
	if err != nil {
		s.activity.Logf("uploads", "error", "Upload for device %s failed: %s", upload.DeviceUUID, err)
		return nil, err
	}
	s.activity.Logf("uploads", "success", "Report %s uploaded for device %s", displayName(f), f.DeviceUUID)
	return f, nil
}

func (s *Server) removeFile(ctx context.Context, id string) error {
	if err := s.svc.RemoveFile(ctx, id); err != nil {
		s.activity.Logf("uploads", "error", "Delete of report %s failed: %s", id, err)
		return err
	}
	s.activity.Logf("uploads", "info", "Report %s deleted", id)
	return nil
}

// httpStatus maps a service error onto an HTTP status and API error code.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, store.ErrInvalidStatus):
		return http.StatusBadRequest, codeInvalidStatus
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func displayName(f *models.File) string {
	if f.Name != "" {
		return f.Name
	}
	return f.UUID
}
