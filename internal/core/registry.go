package core

import (
	"sync"

	"github.com/dkeye/Tutor/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the arena of live rooms keyed by id.
// Each room carries its own locks; the arena itself is a sync.Map so that
// joins, leaves and broadcasts on unrelated rooms never share a mutex.
// A room is created on first join and dropped when its last member leaves.
type Registry struct {
	rooms sync.Map // domain.RoomID -> *roomImpl
}

func NewRegistry() *Registry {
	return &Registry{}
}

var _ Rooms = (*Registry)(nil)

func (g *Registry) load(id domain.RoomID) (*roomImpl, bool) {
	v, ok := g.rooms.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*roomImpl), true
}

// Join admits m into room id, creating the room lazily.
// Re-joining with the same connection id replaces the previous entry.
func (g *Registry) Join(id domain.RoomID, m Member, opts JoinOptions) (JoinResult, error) {
	m.Info.RoomID = id
	for {
		fresh := newRoom(id)
		v, loaded := g.rooms.LoadOrStore(id, fresh)
		r := v.(*roomImpl)

		r.mu.Lock()
		if r.closed {
			// Lost a race with the last leave; that room is gone, retry with a new one.
			r.mu.Unlock()
			continue
		}
		res, err := r.add(m, opts)
		if err == nil {
			res.Created = !loaded
		} else if len(r.byCID) == 0 {
			r.closed = true
			g.rooms.CompareAndDelete(id, r)
		}
		r.mu.Unlock()

		if err != nil {
			log.Info().Str("module", "core.registry").Str("room", string(id)).Str("cid", string(m.Info.ConnectionID)).Err(err).Msg("join rejected")
			return res, err
		}
		log.Info().Str("module", "core.registry").Str("room", string(id)).Str("cid", string(m.Info.ConnectionID)).Str("user", string(m.Info.UserID)).Int("size", res.Size).Msg("member added")
		return res, nil
	}
}

// Leave removes a connection; an emptied room is discarded.
func (g *Registry) Leave(id domain.RoomID, cid ConnectionID) (LeaveResult, bool) {
	r, ok := g.load(id)
	if !ok {
		return LeaveResult{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byCID[cid]
	if !ok {
		return LeaveResult{}, false
	}
	delete(r.byCID, cid)
	res := LeaveResult{Member: m, Remaining: len(r.byCID)}
	if res.Remaining == 0 {
		r.closed = true
		g.rooms.CompareAndDelete(id, r)
		res.Closed = true
	}
	log.Info().Str("module", "core.registry").Str("room", string(id)).Str("cid", string(cid)).Int("remaining", res.Remaining).Msg("member removed")
	return res, true
}

// Broadcast fans data out to every member except exclude.
func (g *Registry) Broadcast(id domain.RoomID, exclude ConnectionID, data Frame) PublishResult {
	r, ok := g.load(id)
	if !ok {
		return PublishResult{}
	}
	return r.broadcast(exclude, data)
}

func (g *Registry) Members(id domain.RoomID) []Member {
	r, ok := g.load(id)
	if !ok {
		return nil
	}
	return r.snapshot()
}

func (g *Registry) Size(id domain.RoomID) int {
	r, ok := g.load(id)
	if !ok {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCID)
}

func (g *Registry) List() []RoomInfo {
	out := make([]RoomInfo, 0)
	g.rooms.Range(func(_, v any) bool {
		r := v.(*roomImpl)
		r.mu.RLock()
		n := len(r.byCID)
		r.mu.RUnlock()
		if n > 0 {
			out = append(out, RoomInfo{ID: r.id, Kind: r.id.Kind(), MemberCount: n})
		}
		return true
	})
	return out
}
