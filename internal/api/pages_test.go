//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/meddesk/internal/domain"
	"github.com/ashureev/meddesk/internal/identity"
	"github.com/go-chi/chi/v5"
)

func newPageRouter(principal *domain.Principal) (http.Handler, *recordingRenderer) {
	renderer := &recordingRenderer{}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := identity.WithSession(req.Context(), "0123456789abcdef0123456789abcdef", principal)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewPageHandler(renderer).RegisterRoutes(r)
	return r, renderer
}

func TestPublicPages(t *testing.T) {
	router, renderer := newPageRouter(nil)

	for _, path := range []string{"/", "/index", "/chat", "/client", "/health", "/contact", "/medicine", "/news"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}
	if renderer.last.Page != "news" || renderer.last.Heading != "News" {
		t.Fatalf("unexpected page data %+v", renderer.last)
	}
}

func TestGatedPagesRequireLogin(t *testing.T) {
	router, _ := newPageRouter(nil)

	for _, path := range []string{"/dashboard", "/chart", "/blank"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/login" {
			t.Fatalf("%s: expected redirect to /login, got %d %q", path, rr.Code, rr.Header().Get("Location"))
		}
	}
}

func TestGatedPagesForLoggedInUser(t *testing.T) {
	principal := &domain.Principal{UserID: "u1", Email: "a@b.c", Role: domain.RoleAdmin}
	router, renderer := newPageRouter(principal)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if renderer.last.User == nil || renderer.last.User.Email != "a@b.c" {
		t.Fatalf("expected principal in page data, got %+v", renderer.last.User)
	}
}

func TestUnknownPathRendersNotFound(t *testing.T) {
	router, renderer := newPageRouter(nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/no-such-page", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if renderer.last.Page != "404" {
		t.Fatalf("expected 404 page, got %q", renderer.last.Page)
	}
}
