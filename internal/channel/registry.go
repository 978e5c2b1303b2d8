package channel

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Registry owns the live sessions. A detached session is kept for a grace
// period so a reconnecting client can reclaim its buffered events; after the
// grace it is closed and forgotten.
type Registry struct {
	cfg    Config
	grace  time.Duration
	clock  clockwork.Clock
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	reapers  map[string]clockwork.Timer
}

func NewRegistry(cfg Config, grace time.Duration, clock clockwork.Clock, logger *slog.Logger) *Registry {
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		grace:    grace,
		clock:    clock,
		logger:   logger,
		sessions: make(map[string]*Session),
		reapers:  make(map[string]clockwork.Timer),
	}
}

// Resume returns the session for id if it is still alive, creating a fresh one
// (with a fresh ID) otherwise. The second result reports whether the session
// was resumed.
func (r *Registry) Resume(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		if t := r.reapers[id]; t != nil {
			t.Stop()
			delete(r.reapers, id)
		}
		return s, true
	}

	fresh := uuid.New().String()
	s := NewSession(fresh, r.cfg, r.clock, r.logger)
	r.sessions[fresh] = s
	r.logger.Info("channel.session.created", "session_id", fresh)
	return s, false
}

// Release marks the session detached and schedules its destruction after the
// grace period unless it is resumed first.
func (r *Registry) Release(s *Session) {
	s.Detach()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return
	}
	if t := r.reapers[s.ID]; t != nil {
		t.Stop()
	}
	id := s.ID
	r.reapers[id] = r.clock.AfterFunc(r.grace, func() { r.reap(id) })
}

func (r *Registry) reap(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && s.Attached() {
		// reclaimed between scheduling and firing
		delete(r.reapers, id)
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	delete(r.reapers, id)
	r.mu.Unlock()

	if ok {
		s.Close()
		r.logger.Info("channel.session.reaped", "session_id", id)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll tears down every session, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	for id, t := range r.reapers {
		t.Stop()
		delete(r.reapers, id)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
