package server

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/SkoposLabs/csm/internal/models"
	"github.com/SkoposLabs/csm/web"
)

// renderer holds one compiled template set per page. Each set is the
// layout plus a single page file, so every page can define its own "title"
// and "content".
type renderer struct {
	pages map[string]*template.Template
}

// funcMap holds the template functions available in all templates.
var funcMap = template.FuncMap{
	"pages": func(n int) []int {
		s := make([]int, n)
		for i := range s {
			s[i] = i + 1
		}
		return s
	},
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
	"timeAgo": func(v any) string {
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return "never"
			}
			return humanize.Time(t)
		case *time.Time:
			if t == nil || t.IsZero() {
				return "never"
			}
			return humanize.Time(*t)
		}
		return "never"
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
	"bytes": func(n int64) string {
		if n <= 0 {
			return "-"
		}
		return humanize.IBytes(uint64(n))
	},
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"plural": func(n int, singular, plural string) string {
		if n == 1 {
			return singular
		}
		return plural
	},
	"statusInfo": func(s models.StatusType) models.Status { return s.Info() },
	"statuses":   models.Statuses,
	"statusCount": func(m map[models.StatusType]int, s models.StatusType) int {
		if m == nil {
			return 0
		}
		return m[s]
	},
	"shortID": func(id string) string {
		if len(id) <= 8 {
			return id
		}
		return id[:8]
	},
}

// newRenderer compiles layout.html once and clones it for every other
// template file.
func newRenderer() (*renderer, error) {
	layout, err := template.New("layout.html").Funcs(funcMap).ParseFS(web.TemplateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	files, err := fs.Glob(web.TemplateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	rn := &renderer{pages: make(map[string]*template.Template, len(files))}
	for _, file := range files {
		page := path.Base(file)
		if page == "layout.html" {
			continue
		}
		t, err := template.Must(layout.Clone()).ParseFS(web.TemplateFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", page, err)
		}
		rn.pages[page] = t
	}
	return rn, nil
}

// render writes page wrapped in the layout with status 200.
func (rn *renderer) render(w http.ResponseWriter, page string, data any) {
	rn.execute(w, http.StatusOK, page, "base", data)
}

// renderStatus is render with an explicit status code.
func (rn *renderer) renderStatus(w http.ResponseWriter, status int, page string, data any) {
	rn.execute(w, status, page, "base", data)
}

// renderBlock writes one named block of page without the layout, for htmx
// swaps.
func (rn *renderer) renderBlock(w http.ResponseWriter, page, block string, data any) {
	rn.execute(w, http.StatusOK, page, block, data)
}

// execute renders into a buffer first so a template error still yields a
// clean 500.
func (rn *renderer) execute(w http.ResponseWriter, status int, page, name string, data any) {
	t, ok := rn.pages[page]
	if !ok {
		http.Error(w, "unknown page "+page, http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
