package server

import (
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SkoposLabs/csm/internal/compliance"
	"github.com/SkoposLabs/csm/internal/models"
)

// ── Template data ───────────────────────────────────────────────────────

type applicationListData struct {
	Nav   string
	Table applicationTable
}

// applicationTable is the filtered, paginated table that htmx swaps in.
type applicationTable struct {
	Apps   []models.Application
	Filter models.ApplicationFilter
	Query  template.URL // filter as a query string, for pager links
	Page   int
	Pages  int
	Total  int
}

type applicationDetailData struct {
	Nav      string
	App      *models.Application
	Installs []appInstall
}

// appInstall is one device that has the application installed.
type appInstall struct {
	Device      models.Device
	Version     string
	InstalledAt *time.Time
}

// ── Handlers ────────────────────────────────────────────────────────────

func (s *Server) handleApplicationList(w http.ResponseWriter, r *http.Request) {
	table, err := s.applicationTable(r)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render.render(w, "applications.html", applicationListData{
		Nav:   "applications",
		Table: table,
	})
}

// handleApplicationRows renders just the table for htmx partial updates.
func (s *Server) handleApplicationRows(w http.ResponseWriter, r *http.Request) {
	table, err := s.applicationTable(r)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	s.render.renderBlock(w, "applications.html", "application-table", table)
}

func (s *Server) handleApplicationDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	app, err := s.svc.Application(ctx, id)
	if err != nil {
		s.pageError(w, r, err)
		return
	}
	devices, err := s.svc.ApplicationDevices(ctx, id)
	if err != nil {
		s.pageError(w, r, err)
		return
	}

	installs := make([]appInstall, 0, len(devices))
	for _, d := range devices {
		in := appInstall{Device: d}
		for _, i := range d.Installations {
			if i.ApplicationUUID == id {
				in.Version = i.Version
				in.InstalledAt = i.InstalledAt
				break
			}
		}
		installs = append(installs, in)
	}

	s.render.render(w, "application.html", applicationDetailData{
		Nav:      "applications",
		App:      app,
		Installs: installs,
	})
}

// handleApplicationStatus changes an application's status from a form post.
// htmx callers get the re-rendered row plus a compliance-changed trigger;
// plain form posts are redirected back.
// POST /applications/{id}/status
func (s *Server) handleApplicationStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")

	app, err := s.setApplicationStatus(r.Context(), id, models.StatusType(r.FormValue("status")))
	if err != nil {
		s.pageError(w, r, err)
		return
	}

	if !isHTMX(r) {
		back := returnTo(r, "/applications/"+url.PathEscape(id))
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	triggerChanged(w)
	s.render.renderBlock(w, "applications.html", "application-row", app)
}

// applicationTable builds the table from the q, status, sort and page query
// parameters. An unknown status filter is ignored.
func (s *Server) applicationTable(r *http.Request) (applicationTable, error) {
	q := r.URL.Query()
	f := models.ApplicationFilter{
		Search: q.Get("q"),
		Status: models.StatusType(q.Get("status")),
		Sort:   compliance.ParseSortKey(q.Get("sort")),
	}
	if !f.Status.Valid() {
		f.Status = ""
	}

	apps, err := s.svc.Applications(r.Context(), f)
	if err != nil {
		return applicationTable{}, err
	}

	size := s.cfg.Dashboard.ApplicationsPageSize
	pages := compliance.PageCount(len(apps), size)
	page := compliance.ClampPage(queryInt(q, "page", 1), pages)

	return applicationTable{
		Apps:   compliance.Paginate(apps, size, page),
		Filter: f,
		Query:  filterQuery(f),
		Page:   page,
		Pages:  pages,
		Total:  len(apps),
	}, nil
}

// filterQuery encodes f for pager links.
func filterQuery(f models.ApplicationFilter) template.URL {
	v := url.Values{}
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	v.Set("sort", string(f.Sort))
	return template.URL(v.Encode())
}
