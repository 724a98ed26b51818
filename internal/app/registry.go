package app

import (
	"context"
	"sync"

	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session *Session
	Cancel  context.CancelFunc
}

// Sessions tracks every open connection so that shutdown can cancel them.
// Room membership lives in core.Registry, not here.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[core.ConnectionID]*sessionEntry
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[core.ConnectionID]*sessionEntry)}
}

func (r *Sessions) Bind(s *Session, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = &sessionEntry{Session: s, Cancel: cancel}
	log.Debug().Str("module", "app.sessions").Str("cid", string(s.ID)).Str("kind", string(s.Kind)).Msg("bound session")
}

func (r *Sessions) Get(cid core.ConnectionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[cid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Sessions) Unbind(cid core.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, cid)
	log.Debug().Str("module", "app.sessions").Str("cid", string(cid)).Msg("unbind session")
}

// Count returns open sessions of kind, or all sessions when kind is empty.
func (r *Sessions) Count(kind domain.RoomKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if kind == "" {
		return len(r.sessions)
	}
	n := 0
	for _, e := range r.sessions {
		if e.Session.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Sessions) Cancel(cid core.ConnectionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.sessions").Str("cid", string(cid)).Msg("canceled session")
	return true
}

// CancelAll cancels every open session and returns how many there were.
func (r *Sessions) CancelAll() int {
	r.mu.RLock()
	entries := make([]*sessionEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()
	for _, e := range entries {
		if e.Cancel != nil {
			e.Cancel()
		}
	}
	log.Info().Str("module", "app.sessions").Int("count", len(entries)).Msg("canceled all sessions")
	return len(entries)
}
