package api

import (
	"net/http"

	"github.com/ashureev/meddesk/internal/identity"
	"github.com/go-chi/chi/v5"
)

type pageInfo struct {
	name    string
	title   string
	heading string
	body    string
}

// Public content pages.
var publicPages = []pageInfo{
	{"client", "Clients", "Our clients", "Hospitals, clinics and families who trust the Virtual Doctor."},
	{"health", "Health", "Health", "Everyday guidance on sleep, hydration, exercise and nutrition."},
	{"contact", "Contact", "Contact us", "Reach the care team by email or phone during business hours."},
	{"medicine", "Medicine", "Medicine", "Common over-the-counter medicines and how to use them safely."},
	{"news", "News", "News", "The latest updates from the Virtual Doctor team."},
}

// Pages that require a logged-in session.
var gatedPages = []pageInfo{
	{"aindex", "Admin", "Admin home", "Administrative overview of accounts and activity."},
	{"widget", "Widgets", "Widgets", "Summary widgets for appointments, prescriptions and messages."},
	{"typography", "Typography", "Typography", "Headings, paragraphs and text styles used across the site."},
	{"table", "Tables", "Tables", "Tabular views of patients, doctors and appointments."},
	{"form", "Forms", "Forms", "Input forms used across the dashboard."},
	{"element", "Elements", "Elements", "Badges, alerts and other interface elements."},
	{"chart", "Charts", "Charts", "Visit and prescription trends over time."},
	{"button", "Buttons", "Buttons", "Button styles used across the dashboard."},
	{"blank", "Blank", "Blank page", "An empty page to start from."},
	notFoundPage,
}

var notFoundPage = pageInfo{"404", "Not found", "404", "The page you are looking for does not exist."}

// PageHandler serves the content pages.
type PageHandler struct {
	renderer Renderer
}

// NewPageHandler creates a page handler.
func NewPageHandler(renderer Renderer) *PageHandler {
	return &PageHandler{renderer: renderer}
}

// RegisterRoutes registers public and session-gated pages.
func (h *PageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.page("index", "Home"))
	r.Get("/index", h.page("index", "Home"))
	r.Get("/chat", h.page("chat", "Virtual Doctor"))
	for _, p := range publicPages {
		r.Get("/"+p.name, h.content(p))
	}

	r.NotFound(h.notFound)

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireUser)
		r.Get("/dashboard", h.page("dashboard", "Dashboard"))
		for _, p := range gatedPages {
			r.Get("/"+p.name, h.content(p))
		}
	})
}

func (h *PageHandler) page(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, h.renderer, http.StatusOK, name, PageData{
			Title: title,
			Page:  name,
			User:  identity.PrincipalFromContext(r.Context()),
		})
	}
}

func (h *PageHandler) content(p pageInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, h.renderer, http.StatusOK, p.name, PageData{
			Title:   p.title,
			Page:    p.name,
			Heading: p.heading,
			Body:    p.body,
			User:    identity.PrincipalFromContext(r.Context()),
		})
	}
}

func (h *PageHandler) notFound(w http.ResponseWriter, r *http.Request) {
	p := notFoundPage
	render(w, h.renderer, http.StatusNotFound, p.name, PageData{
		Title:   p.title,
		Page:    p.name,
		Heading: p.heading,
		Body:    p.body,
		User:    identity.PrincipalFromContext(r.Context()),
	})
}
