package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

// Registry creates sessions on demand and expires idle ones.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	deps     Deps
	ttl      time.Duration
}

// NewRegistry returns an empty registry. A non-positive ttl selects DefaultTTL.
func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		sessions: make(map[string]*Session),
		deps:     deps,
		ttl:      ttl,
	}
}

// Get returns the live session with id. When id is empty, unknown or expired a
// new session is created and loaded from the store; created reports that case.
func (r *Registry) Get(ctx context.Context, id string) (s *Session, created bool, err error) {
	now := r.deps.now()

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		if now.Sub(s.LastSeen()) <= r.ttl {
			s.touch(now)
			r.mu.Unlock()
			return s, false, nil
		}
		delete(r.sessions, id)
		slog.Debug("Session expired", "session", id)
	}
	r.mu.Unlock()

	s = newSession(uuid.NewString(), &r.deps)
	if err := s.Refresh(ctx); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	slog.Info("Created session", "session", s.ID)
	return s, true, nil
}

// Sweep drops sessions idle for longer than the TTL and returns how many were removed.
func (r *Registry) Sweep() int {
	now := r.deps.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if now.Sub(s.LastSeen()) > r.ttl {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Info("Expired idle sessions", "count", n)
			}
		}
	}
}
