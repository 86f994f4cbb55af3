package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/meddesk/internal/domain"
	"github.com/ashureev/meddesk/internal/observability"
	"github.com/ashureev/meddesk/internal/shared"
)

// StateStore persists chat state per session.
type StateStore interface {
	GetChatState(ctx context.Context, sessionID string) (*domain.ChatState, error)
	UpsertChatState(ctx context.Context, state *domain.ChatState) error
	DeleteChatState(ctx context.Context, sessionID string) error
}

// Service runs the engine against per-session state. Calls for the same
// session are serialized; different sessions proceed in parallel.
type Service struct {
	engine *Engine
	states StateStore
	rng    Rand
	retry  shared.RetryPolicy
	locks  *sessionLocks
}

// Option configures a Service.
type Option func(*Service)

// WithRand overrides the random source used for tip draws.
func WithRand(rng Rand) Option {
	return func(s *Service) { s.rng = rng }
}

// WithRetryPolicy overrides the retry policy for state writes.
func WithRetryPolicy(p shared.RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

// NewService creates a chat service.
func NewService(engine *Engine, states StateStore, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		states: states,
		rng:    globalRand{},
		retry:  shared.DefaultRetryPolicy,
		locks:  newSessionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Respond answers message within the conversation identified by sessionID.
func (s *Service) Respond(ctx context.Context, sessionID, message string) (Reply, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	stored, err := s.states.GetChatState(ctx, sessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("load chat state: %w", err)
	}

	state := s.engine.NewState()
	createdAt := time.Now()
	if stored != nil {
		state = State{Greeted: stored.Greeted, RemainingTips: stored.RemainingTips}
		createdAt = stored.CreatedAt
	}

	next, reply := s.engine.Respond(state, message, s.rng)

	err = shared.RetryOnConflict(ctx, s.retry, "upsert chat state", func(ctx context.Context) error {
		return s.states.UpsertChatState(ctx, &domain.ChatState{
			SessionID:     sessionID,
			Greeted:       next.Greeted,
			RemainingTips: next.RemainingTips,
			CreatedAt:     createdAt,
		})
	})
	if err != nil {
		return Reply{}, fmt.Errorf("save chat state: %w", err)
	}

	observability.ChatRepliesTotal.WithLabelValues(string(reply.Kind)).Inc()
	slog.Debug("Chat reply", "session_id", sessionID, "kind", reply.Kind, "keyword", reply.Keyword)
	return reply, nil
}

// Reset forgets the conversation for sessionID.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	return shared.RetryOnConflict(ctx, s.retry, "delete chat state", func(ctx context.Context) error {
		return s.states.DeleteChatState(ctx, sessionID)
	})
}

// sessionLocks hands out one mutex per session key and drops it once no
// caller holds or waits on it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) lock(key string) func() {
	l.mu.Lock()
	sl, ok := l.locks[key]
	if !ok {
		sl = &sessionLock{}
		l.locks[key] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
