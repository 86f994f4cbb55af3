package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/meddesk/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	sessions   atomic.Int64
	chatStates atomic.Int64
	calls      atomic.Int64
	ttl        atomic.Int64
	err        error
}

func (f *fakeStore) CleanupExpiredSessions(_ context.Context, ttl time.Duration) (int64, error) {
	f.calls.Add(1)
	f.ttl.Store(int64(ttl))
	if f.err != nil {
		return 0, f.err
	}
	return f.sessions.Load(), nil
}

func (f *fakeStore) CleanupExpiredChatStates(_ context.Context, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.chatStates.Load(), nil
}

func TestSweepCountsDeletedRows(t *testing.T) {
	store := &fakeStore{}
	store.sessions.Store(2)
	store.chatStates.Store(3)

	beforeSessions := testutil.ToFloat64(observability.SessionsSweptTotal.WithLabelValues("session"))
	beforeStates := testutil.ToFloat64(observability.SessionsSweptTotal.WithLabelValues("chat_state"))

	NewSweeper(store, time.Hour, time.Minute).Sweep(context.Background())

	assert.Equal(t, beforeSessions+2, testutil.ToFloat64(observability.SessionsSweptTotal.WithLabelValues("session")))
	assert.Equal(t, beforeStates+3, testutil.ToFloat64(observability.SessionsSweptTotal.WithLabelValues("chat_state")))
	assert.Equal(t, int64(time.Hour), store.ttl.Load())
}

func TestSweepSurvivesErrors(t *testing.T) {
	store := &fakeStore{err: errors.New("boom")}
	NewSweeper(store, time.Hour, time.Minute).Sweep(context.Background())
	assert.Equal(t, int64(1), store.calls.Load(), "non-conflict errors are not retried")
}

func TestStartRunsUntilCancelled(t *testing.T) {
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())

	done := NewSweeper(store, time.Hour, 5*time.Millisecond).Start(ctx)
	assert.Eventually(t, func() bool { return store.calls.Load() >= 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
