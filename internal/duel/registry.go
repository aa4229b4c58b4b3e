package duel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry tracks live sessions and enforces the one-active-session rule: a
// player cannot be registered into a second session while a non-finished one
// still holds them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byPlayer map[uuid.UUID]uuid.UUID
	cfg      Config
	logger   zerolog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(cfg Config, logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		byPlayer: make(map[uuid.UUID]uuid.UUID),
		cfg:      cfg.withDefaults(),
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// Register adds a session and indexes its human participants. Fails if any
// participant is still bound to a non-finished session.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range s.Players() {
		if p.IsBot {
			continue
		}
		if existingID, ok := r.byPlayer[p.ID]; ok {
			if existing := r.sessions[existingID]; existing != nil && existing.Status() != StatusFinished {
				return ErrAlreadyInSession
			}
		}
	}

	r.sessions[s.ID] = s
	for _, p := range s.Players() {
		if !p.IsBot {
			r.byPlayer[p.ID] = s.ID
		}
	}

	metricSessionsCreated.Inc()
	metricActiveSessions.Inc()
	return nil
}

// Get returns a session by ID.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ByPlayer returns the session a player is currently bound to, if any.
func (r *Registry) ByPlayer(playerID uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// Evict removes a session, releases its players, and stops its loop.
func (r *Registry) Evict(id uuid.UUID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		for _, p := range s.Players() {
			if r.byPlayer[p.ID] == id {
				delete(r.byPlayer, p.ID)
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	s.Close()
	metricActiveSessions.Dec()
	r.logger.Debug().Str("session_id", id.String()).Msg("session evicted")
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep runs until the context is cancelled, periodically evicting finished
// sessions past their grace window and aborting sessions that stalled before
// play ever started.
func (r *Registry) Sweep(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.sweepOnce(now)
		}
	}
}

func (r *Registry) sweepOnce(now time.Time) {
	r.mu.RLock()
	candidates := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	for _, s := range candidates {
		switch s.Status() {
		case StatusFinished:
			if finished := s.FinishedAt(); !finished.IsZero() && now.Sub(finished) >= r.cfg.FinishedGrace {
				r.Evict(s.ID)
			}
		case StatusMatchmaking, StatusWaiting:
			if now.Sub(s.CreatedAt()) >= r.cfg.StaleTimeout {
				r.logger.Warn().Str("session_id", s.ID.String()).Msg("aborting stale session")
				s.Abort()
			}
		}
	}
}
