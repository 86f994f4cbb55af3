// Package api provides the HTTP handlers for pages, accounts and health.
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/meddesk/internal/domain"
)

// Renderer renders a named page template.
type Renderer interface {
	Render(w io.Writer, page string, data any) error
}

// PageData is the model passed to every page template.
type PageData struct {
	Title   string
	Page    string
	Heading string
	Body    string
	Error   string
	User    *domain.Principal
	Form    map[string]string
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// render writes a page with status, falling back to a plain 500 when the
// template fails.
func render(w http.ResponseWriter, renderer Renderer, status int, page string, data PageData) {
	var buf bytes.Buffer
	if err := renderer.Render(&buf, page, data); err != nil {
		slog.Error("Failed to render page", "page", page, "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("Failed to write page", "page", page, "error", err)
	}
}
