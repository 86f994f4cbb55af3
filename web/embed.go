// Package web embeds the page templates and static assets and serves them.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed all:static
var staticFS embed.FS

//go:embed templates/*.html
var templateFS embed.FS

// Page names that have their own template file. Every other page is rendered
// with the generic "page" template.
var dedicatedPages = []string{"index", "login", "signup", "dashboard", "chat", "page"}

// Renderer renders named pages inside the shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"lower": strings.ToLower,
	}

	pages := make(map[string]*template.Template, len(dedicatedPages))
	for _, name := range dedicatedPages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			path.Join("templates", name+".html"),
		)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

// Render executes page with data. Pages without a dedicated template fall
// back to the generic page template.
func (r *Renderer) Render(w io.Writer, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		t = r.pages["page"]
	}
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	return nil
}

// StaticHandler serves the embedded css/, js/ and images/ trees.
func StaticHandler() http.Handler {
	subFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}

	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		info, err := fs.Stat(subFS, name)
		if err != nil || info.IsDir() {
			slog.Debug("web: static asset not found", "path", name)
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}
