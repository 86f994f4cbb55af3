package domain

import (
	"time"
)

// Session is an established login session bound to a cookie session ID.
type Session struct {
	SessionID  string
	UserID     string
	Email      string
	Role       string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// Principal is the identity resolved from a session for the current request.
type Principal struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Principal returns the identity carried by the session.
func (s *Session) Principal() *Principal {
	return &Principal{UserID: s.UserID, Email: s.Email, Role: s.Role}
}

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.LastSeenAt) > ttl
}
