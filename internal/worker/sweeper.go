// Package worker runs background maintenance for login sessions and chat state.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/meddesk/internal/observability"
	"github.com/ashureev/meddesk/internal/shared"
)

// Store is the cleanup surface the sweeper needs.
type Store interface {
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)
	CleanupExpiredChatStates(ctx context.Context, ttl time.Duration) (int64, error)
}

// Sweeper deletes login sessions and chat states idle longer than ttl.
type Sweeper struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	retry    shared.RetryPolicy
}

// NewSweeper creates a sweeper.
func NewSweeper(store Store, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		retry:    shared.DefaultRetryPolicy,
	}
}

// Start runs the sweep loop in a goroutine until ctx is cancelled. The
// returned channel is closed when the loop exits.
func (s *Sweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", s.interval, "ttl", s.ttl)

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// Sweep runs one cleanup pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweep(ctx, "session", s.store.CleanupExpiredSessions)
	s.sweep(ctx, "chat_state", s.store.CleanupExpiredChatStates)
}

func (s *Sweeper) sweep(ctx context.Context, kind string, cleanup func(context.Context, time.Duration) (int64, error)) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, s.retry, "cleanup "+kind, func(ctx context.Context) error {
		n, err := cleanup(ctx, s.ttl)
		deleted = n
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Sweep interrupted", "kind", kind, "error", err)
			return
		}
		slog.Error("Sweep failed", "kind", kind, "error", err)
		return
	}
	if deleted > 0 {
		observability.SessionsSweptTotal.WithLabelValues(kind).Add(float64(deleted))
		slog.Info("Swept expired rows", "kind", kind, "count", deleted)
	}
}
