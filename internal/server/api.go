package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/SkoposLabs/csm/internal/compliance"
	"github.com/SkoposLabs/csm/internal/models"
	"github.com/SkoposLabs/csm/internal/store"
)

// ── JSON helpers ────────────────────────────────────────────────────────

// API error codes, shared with store.RemoteStore.
const (
	codeNotFound      = store.CodeNotFound
	codeInvalidStatus = store.CodeInvalidStatus
	codeBadRequest    = store.CodeBadRequest
	codeInternal      = store.CodeInternal
	codeUnauthorized  = store.CodeUnauthorized
)

// apiResponse is the standard envelope for all API responses.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func jsonOK(w http.ResponseWriter, data any) {
	jsonStatus(w, http.StatusOK, data)
}

func jsonStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{OK: true, Data: data})
}

func jsonError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{OK: false, Error: msg, Code: code})
}

// apiFail writes err as an envelope. Internal errors are logged and hidden
// behind a generic message.
func (s *Server) apiFail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := httpStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("api error", "op", op, "path", r.URL.Path, "error", err)
		jsonError(w, status, code, op+" failed")
		return
	}
	jsonError(w, status, code, err.Error())
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}

// ── Applications ────────────────────────────────────────────────────────

// GET /api/v1/applications?q=&status=&sort=&page=&page_size=
//
// Without a sort parameter applications come back in collection order, which
// the remote store backend relies on.
func (s *Server) apiListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.ApplicationFilter{
		Search: q.Get("q"),
		Status: models.StatusType(q.Get("status")),
		Sort:   models.SortNone,
	}
	if q.Has("sort") {
		f.Sort = compliance.ParseSortKey(q.Get("sort"))
	}
	if f.Status != "" && !f.Status.Valid() {
		jsonError(w, http.StatusBadRequest, codeInvalidStatus, "unknown status "+strconv.Quote(string(f.Status)))
		return
	}

	apps, err := s.svc.Applications(r.Context(), f)
	if err != nil {
		s.apiFail(w, r, "list applications", err)
		return
	}
	jsonOK(w, paginated(w, q, apps, s.cfg.Dashboard.ApplicationsPageSize))
}

// GET /api/v1/applications/{id}
func (s *Server) apiGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.svc.Application(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.apiFail(w, r, "get application", err)
		return
	}
	jsonOK(w, app)
}

// GET /api/v1/applications/{id}/devices
func (s *Server) apiApplicationDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.svc.ApplicationDevices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.apiFail(w, r, "list application devices", err)
		return
	}
	jsonOK(w, devices)
}

// POST /api/v1/applications/{id}/status {"status": "..."}
func (s *Server) apiSetApplicationStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.StatusType `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	app, err := s.setApplicationStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		s.apiFail(w, r, "set application status", err)
		return
	}
	jsonOK(w, app)
}

// ── Devices ─────────────────────────────────────────────────────────────

// GET /api/v1/devices
func (s *Server) apiListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.svc.Devices(r.Context())
	if err != nil {
		s.apiFail(w, r, "list devices", err)
		return
	}
	jsonOK(w, devices)
}

// GET /api/v1/devices/{id}
func (s *Server) apiGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Device(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.apiFail(w, r, "get device", err)
		return
	}
	jsonOK(w, d)
}

// PATCH /api/v1/devices/{id} {"ownerName": "..."}
func (s *Server) apiSetDeviceOwner(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OwnerName *string `json:"ownerName"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if body.OwnerName == nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "ownerName is required")
		return
	}

	d, err := s.setDeviceOwner(r.Context(), chi.URLParam(r, "id"), *body.OwnerName)
	if err != nil {
		s.apiFail(w, r, "set device owner", err)
		return
	}
	jsonOK(w, d)
}

// ── Files ───────────────────────────────────────────────────────────────

// GET /api/v1/files
func (s *Server) apiListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.svc.Files(r.Context())
	if err != nil {
		s.apiFail(w, r, "list files", err)
		return
	}
	jsonOK(w, files)
}

// GET /api/v1/files/{id}
func (s *Server) apiGetFile(w http.ResponseWriter, r *http.Request) {
	f, reports, err := s.svc.FileReports(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.apiFail(w, r, "get file", err)
		return
	}
	jsonOK(w, map[string]any{
		"file":    f,
		"reports": reports,
	})
}

// POST /api/v1/files accepts either a multipart upload (file + device_uuid)
// or a JSON body {"deviceUuid", "name", "size"}.
func (s *Server) apiAddFile(w http.ResponseWriter, r *http.Request) {
	var upload models.FileUpload

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		u, err := s.readUpload(w, r)
		if err != nil {
			jsonError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		upload = u
	} else if err := decodeJSON(r, &upload); err != nil {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if upload.DeviceUUID == "" {
		jsonError(w, http.StatusBadRequest, codeBadRequest, "deviceUuid is required")
		return
	}

	f, err := s.addFile(r.Context(), upload)
	if err != nil {
		s.apiFail(w, r, "add file", err)
		return
	}
	jsonStatus(w, http.StatusCreated, f)
}

// DELETE /api/v1/files/{id}
func (s *Server) apiRemoveFile(w http.ResponseWriter, r *http.Request) {
	if err := s.removeFile(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.apiFail(w, r, "remove file", err)
		return
	}
	jsonOK(w, nil)
}

// ── Views ───────────────────────────────────────────────────────────────

// GET /api/v1/statuses
func (s *Server) apiStatuses(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, models.Statuses())
}

// GET /api/v1/unidentified?page=&page_size=
func (s *Server) apiUnidentified(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.Unidentified(r.Context())
	if err != nil {
		s.apiFail(w, r, "list unidentified", err)
		return
	}
	jsonOK(w, paginated(w, r.URL.Query(), rows, s.cfg.Dashboard.UnidentifiedPageSize))
}

// GET /api/v1/report
func (s *Server) apiReport(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.Reports(r.Context())
	if err != nil {
		s.apiFail(w, r, "build report", err)
		return
	}
	jsonOK(w, rows)
}

// GET /api/v1/stats
func (s *Server) apiStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.apiFail(w, r, "compute stats", err)
		return
	}
	jsonOK(w, stats)
}

// POST /api/v1/refresh
func (s *Server) apiRefresh(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Refresh(r.Context())
	if err != nil {
		s.apiFail(w, r, "refresh", err)
		return
	}
	s.activity.Logf("system", "info", "Cache refreshed on request")
	jsonOK(w, stats)
}

// ── Helpers ─────────────────────────────────────────────────────────────

// paginated returns rows unchanged unless a page parameter is present, in
// which case it returns that page and reports the totals in X-Total-Count,
// X-Page and X-Total-Pages headers. The data shape stays a plain array.
func paginated[T any](w http.ResponseWriter, q url.Values, rows []T, defaultSize int) []T {
	if q.Get("page") == "" {
		return rows
	}
	size := queryInt(q, "page_size", defaultSize)
	pages := compliance.PageCount(len(rows), size)
	page := compliance.ClampPage(queryInt(q, "page", 1), pages)

	w.Header().Set("X-Total-Count", strconv.Itoa(len(rows)))
	w.Header().Set("X-Page", strconv.Itoa(page))
	w.Header().Set("X-Total-Pages", strconv.Itoa(pages))
	return compliance.Paginate(rows, size, page)
}

func queryInt(q url.Values, key string, fallback int) int {
	v := q.Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
