package server

import (
	"embed"
	"html/template"
	"io"
	"time"

	"github.com/jgrn/notemd/internal/notes"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

type templateRenderer struct {
	tmpl *template.Template
}

func newTemplateRenderer() (*templateRenderer, error) {
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("2006-01-02 15:04:05")
		},
	}

	base, err := template.New("listing").Funcs(funcs).ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, err
	}
	return &templateRenderer{tmpl: base}, nil
}

func (r *templateRenderer) render(w io.Writer, name string, data any) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}

type listingViewData struct {
	Path        string
	Query       string
	SortBy      string
	Entries     []notes.Entry
	Breadcrumbs []breadcrumb
	SortLinks   map[string]string
	Descending  bool
}

type breadcrumb struct {
	Name string
	Path string
}
