package domain

import (
	"time"
)

// ChatState is the persisted per-session conversation state: whether the
// session has been greeted and which tips are left in the current rotation.
type ChatState struct {
	SessionID     string
	Greeted       bool
	RemainingTips []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
