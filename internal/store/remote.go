package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SkoposLabs/csm/internal/models"
)

// Error codes carried in the API envelope. The server package uses the same
// strings when it maps sentinel errors onto responses.
const (
	CodeNotFound      = "not_found"
	CodeInvalidStatus = "invalid_status"
	CodeBadRequest    = "bad_request"
	CodeInternal      = "internal_error"
	CodeUnauthorized  = "unauthorized"
)

// RemoteConfig holds the settings for a RemoteStore.
type RemoteConfig struct {
	BaseURL string // e.g. "http://csm.internal:8080"
	Token   string // optional bearer token
	Timeout time.Duration
}

// RemoteStore implements DataStore against a remote /api/v1 API.
type RemoteStore struct {
	base   string
	token  string
	client *http.Client
}

// envelope mirrors the JSON shape every /api/v1 response uses.
type envelope struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewRemoteStore creates a RemoteStore. BaseURL must be an absolute http(s) URL.
func NewRemoteStore(cfg RemoteConfig) (*RemoteStore, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote base url %q: scheme must be http or https", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteStore{
		base:   strings.TrimRight(cfg.BaseURL, "/") + "/api/v1",
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Applications returns all applications from the remote API.
func (s *RemoteStore) Applications(ctx context.Context) ([]models.Application, error) {
	var apps []models.Application
	if err := s.do(ctx, http.MethodGet, "/applications", nil, &apps); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// Application returns one application.
func (s *RemoteStore) Application(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := s.do(ctx, http.MethodGet, "/applications/"+url.PathEscape(id), nil, &app); err != nil {
		return nil, fmt.Errorf("get application %s: %w", id, err)
	}
	return &app, nil
}

// Devices returns all devices.
func (s *RemoteStore) Devices(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	if err := s.do(ctx, http.MethodGet, "/devices", nil, &devices); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// Device returns one device.
func (s *RemoteStore) Device(ctx context.Context, id string) (*models.Device, error) {
	var d models.Device
	if err := s.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(id), nil, &d); err != nil {
		return nil, fmt.Errorf("get device %s: %w", id, err)
	}
	return &d, nil
}

// Files returns all files, most recent first.
func (s *RemoteStore) Files(ctx context.Context) ([]models.File, error) {
	var files []models.File
	if err := s.do(ctx, http.MethodGet, "/files", nil, &files); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// File returns one file record. The remote endpoint also returns report
// rows, which are ignored here.
func (s *RemoteStore) File(ctx context.Context, id string) (*models.File, error) {
	var out struct {
		File models.File `json:"file"`
	}
	if err := s.do(ctx, http.MethodGet, "/files/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("get file %s: %w", id, err)
	}
	return &out.File, nil
}

// SetApplicationStatus changes an application's status remotely.
func (s *RemoteStore) SetApplicationStatus(ctx context.Context, id string, status models.StatusType) (*models.Application, error) {
	var app models.Application
	body := map[string]string{"status": string(status)}
	if err := s.do(ctx, http.MethodPost, "/applications/"+url.PathEscape(id)+"/status", body, &app); err != nil {
		return nil, fmt.Errorf("set application status %s: %w", id, err)
	}
	return &app, nil
}

// SetDeviceOwner changes a device's owner remotely.
func (s *RemoteStore) SetDeviceOwner(ctx context.Context, id, ownerName string) (*models.Device, error) {
	var d models.Device
	body := map[string]string{"ownerName": ownerName}
	if err := s.do(ctx, http.MethodPatch, "/devices/"+url.PathEscape(id), body, &d); err != nil {
		return nil, fmt.Errorf("set device owner %s: %w", id, err)
	}
	return &d, nil
}

// AddFile records an upload remotely.
func (s *RemoteStore) AddFile(ctx context.Context, upload models.FileUpload) (*models.File, error) {
	var f models.File
	if err := s.do(ctx, http.MethodPost, "/files", upload, &f); err != nil {
		return nil, fmt.Errorf("add file: %w", err)
	}
	return &f, nil
}

// RemoveFile deletes a file record remotely.
func (s *RemoteStore) RemoveFile(ctx context.Context, id string) error {
	if err := s.do(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("remove file %s: %w", id, err)
	}
	return nil
}

// Ping checks the remote API answers.
func (s *RemoteStore) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/statuses", nil, nil)
}

// Close releases idle connections.
func (s *RemoteStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// ── HTTP helpers ────────────────────────────────────────────────────────

// do sends one request and decodes the envelope's data into out (if non-nil).
// Envelope error codes are mapped back onto the package sentinels.
func (s *RemoteStore) do(ctx context.Context, method, path string, in, out any) error {
	var payload io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("remote API error (HTTP %d): %s", resp.StatusCode, truncate(string(body), 300))
	}
	if !env.OK || resp.StatusCode >= 300 {
		return remoteError(resp.StatusCode, env)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func remoteError(status int, env envelope) error {
	switch env.Code {
	case CodeNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, env.Error)
	case CodeInvalidStatus:
		return fmt.Errorf("%w: %s", ErrInvalidStatus, env.Error)
	}
	if status == http.StatusNotFound && env.Code == "" {
		return fmt.Errorf("%w: %s", ErrNotFound, env.Error)
	}
	return fmt.Errorf("remote API error (HTTP %d, %s): %s", status, env.Code, env.Error)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
