package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/SkoposLabs/csm/internal/models"
)

// ── Template data ───────────────────────────────────────────────────────

type uploadListData struct {
	Nav      string
	Files    []fileRow
	Devices  []models.Device
	MaxBytes int64
	Error    string
}

type uploadDetailData struct {
	Nav     string
	File    *models.File
	Device  *models.Device
	Reports []models.InstallationReport
}

// ── Handlers ────────────────────────────────────────────────────────────

func (s *Server) handleUploadList(w http.ResponseWriter, r *http.Request) {
	s.renderUploads(w, r, http.StatusOK, "")
}

// handleUploadCreate records a report upload. The report body is read to
// measure its size; only the metadata is stored.
// POST /uploads (multipart: file, device_uuid)
func (s *Server) handleUploadCreate(w http.ResponseWriter, r *http.Request) {
	upload, err := s.readUpload(w, r)
	if err == nil && upload.DeviceUUID == "" {
		err = errors.New("choose the device this report belongs to")
	}
	if err != nil {
		if isHTMX(r) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.renderUploads(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.addFile(r.Context(), upload); err != nil {
		s.pageError(w, r, err)
		return
	}
	s.afterUploadChange(w, r)
}

func (s *Server) handleUploadDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f, reports, err := s.svc.FileReports(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	// A file whose device is gone still renders, without device details.
	device, err := s.svc.Device(ctx, f.DeviceUUID)
	if err != nil {
		device = nil
	}

	s.render.render(w, "file.html", uploadDetailData{
		Nav:     "uploads",
		File:    f,
		Device:  device,
		Reports: reports,
	})
}

// POST /uploads/{id}/delete
func (s *Server) handleUploadDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.removeFile(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.pageError(w, r, err)
		return
	}
	s.afterUploadChange(w, r)
}

// afterUploadChange answers a successful upload mutation: htmx gets the
// refreshed table and a compliance-changed trigger, forms a redirect.
func (s *Server) afterUploadChange(w http.ResponseWriter, r *http.Request) {
	if !isHTMX(r) {
		http.Redirect(w, r, "/uploads", http.StatusSeeOther)
		return
	}
	rows, err := s.fileRows(r.Context())
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	triggerChanged(w)
	s.render.renderBlock(w, "uploads.html", "upload-table", rows)
}

func (s *Server) renderUploads(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	ctx := r.Context()
	rows, err := s.fileRows(ctx)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	devices, err := s.svc.Devices(ctx)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render.renderStatus(w, status, "uploads.html", uploadListData{
		Nav:      "uploads",
		Files:    rows,
		Devices:  devices,
		MaxBytes: s.cfg.Uploads.MaxBytes,
		Error:    errMsg,
	})
}

// readUpload parses a multipart report upload (fields "file" and
// "device_uuid") capped at uploads.max_bytes.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (models.FileUpload, error) {
	limit := s.cfg.Uploads.MaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return models.FileUpload{}, fmt.Errorf("report is larger than %s", humanize.IBytes(uint64(limit)))
		}
		return models.FileUpload{}, fmt.Errorf("parse upload: %w", err)
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return models.FileUpload{}, fmt.Errorf("missing report file: %w", err)
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		return models.FileUpload{}, fmt.Errorf("read report: %w", err)
	}

	return models.FileUpload{
		DeviceUUID: strings.TrimSpace(r.FormValue("device_uuid")),
		Name:       filepath.Base(header.Filename),
		Size:       size,
	}, nil
}
