// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/meddesk/internal/domain"
)

var (
	// ErrEmailTaken is returned by CreateUser when the email is already registered.
	ErrEmailTaken = errors.New("email already in use")
	// ErrNotFound is returned by updates that match no row.
	ErrNotFound = errors.New("not found")
)

// Repository defines the interface for persisting accounts, login sessions
// and per-session chat state.
type Repository interface {
	// GetUser retrieves an account by ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// GetUserByEmail retrieves an account by email. Returns nil, nil when absent.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// CreateUser inserts a new account. Returns ErrEmailTaken on duplicate email.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetSession looks up a login session. Returns nil, nil when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// UpsertSession establishes or replaces a login session.
	UpsertSession(ctx context.Context, session *domain.Session) error

	// TouchSession updates last_seen_at for a login session.
	TouchSession(ctx context.Context, sessionID string, lastSeen time.Time) error

	// DeleteSession terminates a login session.
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupExpiredSessions removes login sessions idle longer than ttl.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// GetChatState retrieves chat state for a session. Returns nil, nil when absent.
	GetChatState(ctx context.Context, sessionID string) (*domain.ChatState, error)

	// UpsertChatState creates or updates chat state.
	UpsertChatState(ctx context.Context, state *domain.ChatState) error

	// DeleteChatState removes chat state for a session.
	DeleteChatState(ctx context.Context, sessionID string) error

	// CleanupExpiredChatStates removes chat states not updated within ttl.
	CleanupExpiredChatStates(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
