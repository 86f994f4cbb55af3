//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/meddesk/internal/domain"
	"github.com/ashureev/meddesk/internal/identity"
	"github.com/ashureev/meddesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// recordingRenderer writes "page|error" so tests can assert on both.
type recordingRenderer struct {
	last PageData
}

func (r *recordingRenderer) Render(w io.Writer, page string, data any) error {
	pd, _ := data.(PageData)
	r.last = pd
	_, err := fmt.Fprintf(w, "%s|%s", page, pd.Error)
	return err
}

func newAuthFixture(t *testing.T) (*AuthHandler, store.Repository, *recordingRenderer) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	renderer := &recordingRenderer{}
	manager := identity.NewManager(repo, nil, time.Hour, true)
	return NewAuthHandler(repo, manager, renderer, bcrypt.MinCost), repo, renderer
}

func seedUser(t *testing.T, repo store.Repository, email, password, role string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, repo.CreateUser(context.Background(), &domain.User{
		ID: "u-" + role, Role: role, Name: "Test", Email: email, PasswordHash: string(hash),
		Gender: "other", Phone: "555", DateOfBirth: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt: now, UpdatedAt: now,
	}))
}

func signupForm() url.Values {
	return url.Values{
		"role":     {"patient"},
		"name":     {"Ada"},
		"email":    {"Ada@Example.com"},
		"password": {"s3cret"},
		"gender":   {"female"},
		"phone":    {"555-0100"},
		"dob":      {"1990-04-02"},
	}
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postJSON(path string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func hasSessionCookie(rr *httptest.ResponseRecorder) bool {
	for _, c := range rr.Result().Cookies() {
		if c.Name == identity.CookieName && c.Value != "" {
			return true
		}
	}
	return false
}

func TestSignupCreatesAccountAndLogsIn(t *testing.T) {
	h, repo, _ := newAuthFixture(t)

	rr := httptest.NewRecorder()
	h.Signup(rr, postForm("/signup", signupForm()))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
	assert.True(t, hasSessionCookie(rr))

	user, err := repo.GetUserByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, domain.RolePatient, user.Role)
	assert.NotEqual(t, "s3cret", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret")))
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	h, repo, renderer := newAuthFixture(t)
	seedUser(t, repo, "ada@example.com", "pw", domain.RolePatient)

	rr := httptest.NewRecorder()
	h.Signup(rr, postForm("/signup", signupForm()))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "signup|Email already in use.", rr.Body.String())
	assert.NotContains(t, renderer.last.Form, "password")
	assert.Equal(t, "Ada", renderer.last.Form["name"])
}

func TestSignupValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(url.Values)
		wantErr string
	}{
		{name: "missing email", mutate: func(v url.Values) { v.Del("email") }, wantErr: "Email is required."},
		{name: "bad role", mutate: func(v url.Values) { v.Set("role", "nurse") }, wantErr: msgInvalidRole},
		{name: "bad dob", mutate: func(v url.Values) { v.Set("dob", "02/04/1990") }, wantErr: msgInvalidDOB},
		{name: "long password", mutate: func(v url.Values) { v.Set("password", strings.Repeat("x", 73)) }, wantErr: msgPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newAuthFixture(t)
			form := signupForm()
			tt.mutate(form)

			rr := httptest.NewRecorder()
			h.Signup(rr, postForm("/signup", form))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "signup|"+tt.wantErr, rr.Body.String())
		})
	}
}

func TestLoginForm(t *testing.T) {
	h, repo, _ := newAuthFixture(t)
	seedUser(t, repo, "doc@example.com", "pw", domain.RoleDoctor)

	tests := []struct {
		name       string
		email      string
		password   string
		wantStatus int
		wantBody   string
	}{
		{name: "unknown email", email: "who@example.com", password: "pw", wantStatus: http.StatusUnauthorized, wantBody: "login|" + msgNoUser},
		{name: "wrong password", email: "doc@example.com", password: "nope", wantStatus: http.StatusUnauthorized, wantBody: "login|" + msgWrongPassword},
		{name: "success", email: "DOC@example.com", password: "pw", wantStatus: http.StatusSeeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.Login(rr, postForm("/login", url.Values{"email": {tt.email}, "password": {tt.password}}))

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
				return
			}
			assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
			assert.True(t, hasSessionCookie(rr))
		})
	}
}

func TestLoginJSONChecksRole(t *testing.T) {
	h, repo, _ := newAuthFixture(t)
	seedUser(t, repo, "doc@example.com", "pw", domain.RoleDoctor)

	rr := httptest.NewRecorder()
	h.LoginJSON(rr, postJSON("/auth/login", map[string]string{
		"email": "doc@example.com", "password": "pw", "role": "patient",
	}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var resp loginResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, msgWrongRole, resp.Message)

	rr = httptest.NewRecorder()
	h.LoginJSON(rr, postJSON("/auth/login", map[string]string{
		"email": "doc@example.com", "password": "pw", "role": "doctor",
	}))
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.True(t, hasSessionCookie(rr))
}

func TestLogoutRedirectsToLogin(t *testing.T) {
	h, _, _ := newAuthFixture(t)

	rr := httptest.NewRecorder()
	h.Logout(rr, httptest.NewRequest(http.MethodGet, "/logout", nil))

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}
