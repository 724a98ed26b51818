package app

import (
	"sync"

	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/protocol"
)

// State is the protocol phase of one connection.
type State string

const (
	StateConnecting   State = "connecting"
	StateAwaitingJoin State = "awaiting-join"
	StateJoined       State = "joined"
	StateNegotiating  State = "negotiating"
	StateActive       State = "active"
	StateEnded        State = "ended"
	StateDisconnected State = "disconnected"
	StateClosed       State = "closed"
)

// Session is the explicit per-connection context every handler receives.
// Handlers for one session run sequentially; the lock covers reads from
// other goroutines (shutdown, kicks, REST listings).
type Session struct {
	ID   core.ConnectionID
	Kind domain.RoomKind
	Conn core.SignalConnection

	mu       sync.RWMutex
	identity *domain.Identity
	state    State
	room     domain.RoomID
	booking  domain.BookingID
	role     domain.Role
}

func NewSession(id core.ConnectionID, kind domain.RoomKind, conn core.SignalConnection) *Session {
	return &Session{ID: id, Kind: kind, Conn: conn, state: StateConnecting}
}

func (s *Session) Identity() *domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Authenticate attaches a verified identity. Swapping users on a joined
// connection is refused.
func (s *Session) Authenticate(id *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity != nil && s.room != "" && s.identity.UserID != id.UserID {
		return domain.ProtocolError("connection already bound to another user")
	}
	s.identity = id
	return nil
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Swap sets st and returns the previous state.
func (s *Session) Swap(st State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = st
	return prev
}

// Transition moves to next only from one of the listed states.
func (s *Session) Transition(next State, from ...State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range from {
		if s.state == f {
			s.state = next
			return true
		}
	}
	return false
}

// Room returns the room the session is registered in, if any.
func (s *Session) Room() domain.RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Session) Booking() domain.BookingID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.booking
}

// Role is the role the session joined with, which may differ from the identity hint.
func (s *Session) Role() domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *Session) Bind(room domain.RoomID, booking domain.BookingID, role domain.Role) {
	s.mu.Lock()
	s.room, s.booking, s.role = room, booking, role
	s.mu.Unlock()
}

func (s *Session) Unbind() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.room
	s.room, s.booking, s.role = "", "", ""
	return room
}

// Member builds the registry record for this session.
func (s *Session) Member() core.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := core.MemberInfo{ConnectionID: s.ID, Role: s.role}
	if s.identity != nil {
		info.UserID = s.identity.UserID
	}
	return core.NewMember(info, s.Conn)
}

// Send encodes and enqueues a frame for this connection only.
func (s *Session) Send(v any) error {
	b, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	return s.Conn.TrySend(b)
}

// SendError reports err to the client; the connection stays open.
func (s *Session) SendError(err error) error {
	return s.Send(protocol.NewError(err))
}
