package core

import (
	"sync"

	"github.com/dkeye/Tutor/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id domain.RoomID

	mu     sync.RWMutex
	byCID  map[ConnectionID]Member
	closed bool

	// fanout serialises broadcasts so every receiver observes the same order.
	fanout sync.Mutex
}

func newRoom(id domain.RoomID) *roomImpl {
	return &roomImpl{
		id:    id,
		byCID: make(map[ConnectionID]Member),
	}
}

func (r *roomImpl) users() map[domain.UserID]struct{} {
	out := make(map[domain.UserID]struct{}, len(r.byCID))
	for _, m := range r.byCID {
		out[m.Info.UserID] = struct{}{}
	}
	return out
}

// add must be called with r.mu held.
func (r *roomImpl) add(m Member, opts JoinOptions) (JoinResult, error) {
	cid := m.Info.ConnectionID
	uid := m.Info.UserID
	res := JoinResult{}

	if _, ok := r.byCID[cid]; ok {
		res.Replaced = true
		r.byCID[cid] = m
		res.Size = len(r.byCID)
		return res, nil
	}

	users := r.users()
	if _, present := users[uid]; !present && opts.Capacity > 0 && len(users) >= opts.Capacity {
		return res, ErrRoomFull
	}

	if opts.SinglePerUser {
		for other, om := range r.byCID {
			if om.Info.UserID == uid {
				res.Evicted = append(res.Evicted, om)
				delete(r.byCID, other)
			}
		}
	}
	r.byCID[cid] = m
	res.Size = len(r.byCID)
	return res, nil
}

func (r *roomImpl) snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.byCID))
	for _, m := range r.byCID {
		out = append(out, m)
	}
	return out
}

func (r *roomImpl) broadcast(from ConnectionID, data Frame) PublishResult {
	r.fanout.Lock()
	defer r.fanout.Unlock()

	// Iterate a snapshot so a concurrent leave never races the fan-out.
	members := r.snapshot()
	res := PublishResult{}
	for _, m := range members {
		if m.Info.ConnectionID == from {
			continue
		}
		if err := m.Conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
