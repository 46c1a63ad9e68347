package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tree-checkout/internal/checkout"
	"tree-checkout/internal/model"
	"tree-checkout/internal/store"
)

// Builder creates the orchestrator for a session id. Its cart must persist
// under Namespace(id) for sessions to survive a restart.
type Builder func(id string) (*checkout.Orchestrator, error)

// Namespace is the store namespace of a session's cart.
func Namespace(sessionID string) string {
	return "session:" + sessionID
}

type entry struct {
	orch     *checkout.Orchestrator
	lastSeen time.Time
}

// Sessions is the registry of live checkout sessions. A session evicted from
// memory is rebuilt on demand when its cart was persisted.
type Sessions struct {
	build  Builder
	kv     store.KV
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	byID map[string]*entry
}

// NewSessions creates a registry. kv may be nil, disabling restore.
func NewSessions(build Builder, kv store.KV, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		build:  build,
		kv:     kv,
		logger: logger,
		now:    time.Now,
		byID:   make(map[string]*entry),
	}
}

// Create starts a new session.
func (s *Sessions) Create(ctx context.Context) (string, *checkout.Orchestrator, error) {
	id := uuid.NewString()
	orch, err := s.build(id)
	if err != nil {
		return "", nil, model.NewInternalError(err)
	}

	s.mu.Lock()
	s.byID[id] = &entry{orch: orch, lastSeen: s.now()}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session created", slog.String("session_id", id))
	return id, orch, nil
}

// Get returns a live session, restoring it from the store when its cart was
// persisted.
func (s *Sessions) Get(ctx context.Context, id string) (*checkout.Orchestrator, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewValidationError("session_id", "malformed")
	}

	s.mu.Lock()
	if e, ok := s.byID[id]; ok {
		e.lastSeen = s.now()
		s.mu.Unlock()
		return e.orch, nil
	}
	s.mu.Unlock()

	orch, err := s.restore(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		// Lost a race with a concurrent restore.
		e.lastSeen = s.now()
		return e.orch, nil
	}
	s.byID[id] = &entry{orch: orch, lastSeen: s.now()}
	return orch, nil
}

func (s *Sessions) restore(ctx context.Context, id string) (*checkout.Orchestrator, error) {
	if s.kv == nil {
		return nil, model.NewNotFoundError("session")
	}
	cartID, _, err := store.NewCartStore(s.kv, Namespace(id)).Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "reading persisted session failed",
			slog.String("session_id", id), slog.String("error", err.Error()))
	}
	if cartID == "" {
		return nil, model.NewNotFoundError("session")
	}

	orch, err := s.build(id)
	if err != nil {
		return nil, model.NewInternalError(err)
	}
	if err := orch.Start(ctx); err != nil {
		// The session is still usable; the cart reports its own error.
		s.logger.WarnContext(ctx, "restoring session cart failed",
			slog.String("session_id", id), slog.String("error", err.Error()))
	}
	s.logger.InfoContext(ctx, "session restored",
		slog.String("session_id", id), slog.String("cart_id", cartID))
	return orch, nil
}

// Evict drops sessions idle for longer than idle. Persisted carts stay in
// the store and can be restored.
func (s *Sessions) Evict(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.byID {
		if e.lastSeen.Before(cutoff) {
			delete(s.byID, id)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
