// Package identity provides cookie-based session identity and the login
// session contract (lookup, establish, terminate).
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/meddesk/internal/domain"
)

const (
	// CookieName carries the opaque session ID.
	CookieName       = "meddesk_sid"
	cookieMaxAge     = 30 * 24 * time.Hour
	touchGranularity = time.Minute
)

type contextKey int

const (
	sessionIDKey contextKey = iota
	principalKey
)

var sessionIDPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// SessionStore is the persistence the manager needs for login sessions.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	UpsertSession(ctx context.Context, session *domain.Session) error
	TouchSession(ctx context.Context, sessionID string, lastSeen time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// ConversationResetter clears per-session chat state when a session ends.
type ConversationResetter interface {
	Reset(ctx context.Context, sessionID string) error
}

// Manager issues session cookies and resolves the logged-in principal.
type Manager struct {
	store    SessionStore
	resetter ConversationResetter
	ttl      time.Duration
	isDev    bool
	now      func() time.Time
}

// NewManager creates a session manager. resetter may be nil.
func NewManager(store SessionStore, resetter ConversationResetter, ttl time.Duration, isDev bool) *Manager {
	return &Manager{
		store:    store,
		resetter: resetter,
		ttl:      ttl,
		isDev:    isDev,
		now:      time.Now,
	}
}

// SessionIDFromContext extracts the session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// PrincipalFromContext returns the logged-in principal, or nil.
func PrincipalFromContext(ctx context.Context) *domain.Principal {
	if v, ok := ctx.Value(principalKey).(*domain.Principal); ok {
		return v
	}
	return nil
}

// WithSession returns ctx carrying sessionID and principal. Used by tests and
// by transports that resolve identity outside the middleware.
func WithSession(ctx context.Context, sessionID string, principal *domain.Principal) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	if principal != nil {
		ctx = context.WithValue(ctx, principalKey, principal)
	}
	return ctx
}

func generateSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func isValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Expires:  m.now().Add(cookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !m.isDev,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !m.isDev,
	})
}

func (m *Manager) getOrCreateSessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && isValidSessionID(c.Value) {
		m.setCookie(w, c.Value)
		return c.Value, nil
	}

	id, err := generateSessionID()
	if err != nil {
		return "", err
	}
	m.setCookie(w, id)
	return id, nil
}

// Lookup resolves the principal bound to sessionID, or nil when there is no
// live login session.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (*domain.Principal, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	now := m.now()
	if session.Expired(m.ttl, now) {
		if err := m.store.DeleteSession(ctx, sessionID); err != nil {
			slog.Warn("Failed to delete expired session", "session_id", sessionID, "error", err)
		}
		return nil, nil
	}

	if now.Sub(session.LastSeenAt) > touchGranularity {
		if err := m.store.TouchSession(ctx, sessionID, now); err != nil {
			slog.Warn("Failed to touch session", "session_id", sessionID, "error", err)
		}
	}
	return session.Principal(), nil
}

// Establish binds principal to a fresh session ID and sets the cookie. The
// previous session (if any) is terminated so its ID cannot be reused.
func (m *Manager) Establish(w http.ResponseWriter, r *http.Request, principal *domain.Principal) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", err
	}

	now := m.now()
	if err := m.store.UpsertSession(r.Context(), &domain.Session{
		SessionID:  id,
		UserID:     principal.UserID,
		Email:      principal.Email,
		Role:       principal.Role,
		CreatedAt:  now,
		LastSeenAt: now,
	}); err != nil {
		return "", fmt.Errorf("establish session: %w", err)
	}

	if old := SessionIDFromContext(r.Context()); old != "" && old != id {
		m.forget(r.Context(), old)
	}

	m.setCookie(w, id)
	slog.Info("Session established", "user_id", principal.UserID, "role", principal.Role)
	return id, nil
}

// Terminate ends the current session and expires the cookie.
func (m *Manager) Terminate(w http.ResponseWriter, r *http.Request) error {
	sessionID := SessionIDFromContext(r.Context())
	if sessionID == "" {
		m.clearCookie(w)
		return nil
	}

	if err := m.store.DeleteSession(r.Context(), sessionID); err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}
	m.resetConversation(r.Context(), sessionID)
	m.clearCookie(w)
	slog.Info("Session terminated", "session_id", sessionID)
	return nil
}

func (m *Manager) forget(ctx context.Context, sessionID string) {
	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		slog.Warn("Failed to delete replaced session", "session_id", sessionID, "error", err)
	}
	m.resetConversation(ctx, sessionID)
}

func (m *Manager) resetConversation(ctx context.Context, sessionID string) {
	if m.resetter == nil {
		return
	}
	if err := m.resetter.Reset(ctx, sessionID); err != nil {
		slog.Warn("Failed to reset conversation", "session_id", sessionID, "error", err)
	}
}

// Middleware assigns every request a session ID and resolves the logged-in
// principal, if any.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := m.getOrCreateSessionID(w, r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to establish session")
			return
		}

		principal, err := m.Lookup(r.Context(), sessionID)
		if err != nil {
			slog.Error("Session lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load session")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sessionID, principal)))
	})
}

// writeError mirrors api.Error; identity sits below api and cannot import it.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// RequireUser redirects to /login when the request has no logged-in principal.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IPFromRequest returns a normalized remote IP for rate limiting.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
