package game

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultJoinGraceWindow bounds how long a freshly created session waits
// for its second participant before self-terminating.
const DefaultJoinGraceWindow = 10 * time.Second

// Registry is the process-wide table of live sessions, one per match id.
// It replaces the bare module-level map of the kind that tends to grow in
// connection handlers: creation and eviction happen under one lock, and
// every created session gets a join-grace guard timer.
type Registry struct {
	grace time.Duration
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[int]*Session
	guards   map[int]*time.Timer
}

func NewRegistry(grace time.Duration, log *slog.Logger) *Registry {
	if grace <= 0 {
		grace = DefaultJoinGraceWindow
	}
	return &Registry{
		grace:    grace,
		log:      log,
		sessions: make(map[int]*Session),
		guards:   make(map[int]*time.Timer),
	}
}

// GetOrCreate returns the live session for the match, constructing it via
// build on first connection. Concurrent connection attempts for the same
// new match id race on this lock and only one construction wins.
func (r *Registry) GetOrCreate(matchID int, build func() *Session) (session *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[matchID]; ok {
		return s, false
	}

	s := build()
	r.sessions[matchID] = s
	r.guards[matchID] = time.AfterFunc(r.grace, func() {
		r.expire(matchID, s)
	})
	return s, true
}

// Get returns the live session for the match, if any.
func (r *Registry) Get(matchID int) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[matchID]
}

// CancelGuard stops the join-grace timer once both sides are connected.
func (r *Registry) CancelGuard(matchID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.guards[matchID]; ok {
		t.Stop()
		delete(r.guards, matchID)
	}
}

// Remove evicts a terminal session. Safe to call multiple times.
func (r *Registry) Remove(matchID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.guards[matchID]; ok {
		t.Stop()
		delete(r.guards, matchID)
	}
	delete(r.sessions, matchID)
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// expire fires when the grace window elapses. The session ignores the
// interrupt if it already started, so a stale timer is harmless.
func (r *Registry) expire(matchID int, s *Session) {
	if err := s.InterruptTimeout(context.Background()); err != nil {
		r.log.Error("join-grace interruption failed",
			slog.Int("match_id", matchID), slog.Any("error", err))
		return
	}
	if s.State().Terminal() {
		r.Remove(matchID)
	}
}
