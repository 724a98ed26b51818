// Package call relays the join/offer/answer/ICE/end handshake between the two
// authorized parties of a booking.
package call

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Tutor/internal/app"
	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/metrics"
	"github.com/dkeye/Tutor/internal/protocol"
	"github.com/rs/zerolog/log"
)

const DefaultCapacity = 2

const ReasonRoomFull = "room full"

type Options struct {
	// Capacity bounds distinct users per call room.
	Capacity int
	// StrictSignaling parses offers, answers and candidates before relaying them.
	StrictSignaling bool
	JoinLimit       int
	JoinInterval    time.Duration
	Policy          app.Policy
}

type Relay struct {
	rooms   core.Rooms
	auth    Authorizer
	opts    Options
	limiter *RateLimiter
}

func NewRelay(rooms core.Rooms, auth Authorizer, opts Options) *Relay {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Policy == nil {
		opts.Policy = app.SimplePolicy{}
	}
	r := &Relay{rooms: rooms, auth: auth, opts: opts}
	if opts.JoinLimit > 0 && opts.JoinInterval > 0 {
		r.limiter = NewRateLimiter(opts.JoinLimit, opts.JoinInterval)
	}
	return r
}

// Limiter exposes the join limiter so the server can sweep it; nil when disabled.
func (r *Relay) Limiter() *RateLimiter { return r.limiter }

// Open readies a new connection for join-room.
func (r *Relay) Open(s *app.Session) {
	s.Transition(app.StateAwaitingJoin, app.StateConnecting)
	metrics.ConnectionsActive.WithLabelValues(string(domain.RoomCall)).Inc()
}

// Handle dispatches one inbound frame of type typ.
func (r *Relay) Handle(ctx context.Context, s *app.Session, typ string, data []byte) error {
	switch typ {
	case protocol.TypeJoinRoom:
		var msg protocol.JoinRoom
		if err := protocol.Decode(data, &msg); err != nil {
			return err
		}
		return r.JoinRoom(ctx, s, msg)
	case protocol.TypeCallOffer, protocol.TypeCallAnswer, protocol.TypeICECandidate:
		var msg protocol.Signal
		if err := protocol.Decode(data, &msg); err != nil {
			return err
		}
		msg.Type = typ
		return r.Signal(s, &msg)
	case protocol.TypeEndCall:
		var msg protocol.Signal
		if err := protocol.Decode(data, &msg); err != nil {
			return err
		}
		return r.EndCall(s, msg.BookingID)
	}
	return domain.ProtocolError("unknown message type %q", typ)
}

// JoinRoom authorizes s against the booking and registers it in the booking's room.
// Repeating it on the same connection re-validates and re-registers.
func (r *Relay) JoinRoom(ctx context.Context, s *app.Session, msg protocol.JoinRoom) error {
	id := s.Identity()
	if id == nil {
		metrics.JoinAttempts.WithLabelValues("unauthenticated").Inc()
		return domain.ErrAuthenticationRequired
	}
	switch s.State() {
	case app.StateDisconnected, app.StateClosed:
		return domain.ProtocolError("connection closed")
	}
	if msg.BookingID == "" {
		return domain.ProtocolError("bookingId required")
	}
	role := msg.Role
	if role == "" {
		role = id.Role
	}
	if !role.Valid() {
		return domain.ProtocolError("unknown role %q", role)
	}
	if r.limiter != nil && !r.limiter.Allow(id.UserID) {
		metrics.JoinAttempts.WithLabelValues("rate_limited").Inc()
		return domain.ProtocolError("too many join attempts")
	}

	decision, err := r.auth.Authorize(ctx, id.UserID, msg.BookingID, role)
	if err != nil {
		metrics.JoinAttempts.WithLabelValues("error").Inc()
		var de *domain.Error
		if !errors.As(err, &de) {
			err = domain.PersistenceError("booking lookup failed", err)
		}
		return err
	}
	if !decision.Authorized {
		metrics.JoinAttempts.WithLabelValues("denied").Inc()
		log.Info().Str("module", "app.call").Str("cid", string(s.ID)).Str("user", string(id.UserID)).Str("booking", string(msg.BookingID)).Str("reason", decision.Reason).Msg("join denied")
		return domain.AuthorizationError(decision.Reason)
	}

	room := domain.CallRoomID(msg.BookingID)
	if prev := s.Room(); prev != "" && prev != room {
		r.leave(prev, s.ID)
		s.Unbind()
	}

	member := core.NewMember(core.MemberInfo{ConnectionID: s.ID, UserID: id.UserID, Role: role}, s.Conn)
	res, err := r.rooms.Join(room, member, core.JoinOptions{Capacity: r.opts.Capacity, SinglePerUser: true})
	if err != nil {
		metrics.JoinAttempts.WithLabelValues("full").Inc()
		if errors.Is(err, core.ErrRoomFull) {
			return domain.AuthorizationError(ReasonRoomFull)
		}
		return domain.ProtocolError("join failed")
	}
	metrics.JoinAttempts.WithLabelValues("ok").Inc()
	if res.Created {
		metrics.RoomsActive.WithLabelValues(string(domain.RoomCall)).Inc()
	}
	s.Bind(room, msg.BookingID, role)
	s.SetState(app.StateJoined)

	for _, old := range res.Evicted {
		supersede(old)
	}

	_ = s.Send(protocol.RoomJoined{
		Type:      protocol.TypeRoomJoined,
		RoomID:    room,
		BookingID: msg.BookingID,
		Role:      role,
		RoomSize:  res.Size,
	})
	if !res.Replaced {
		frame := protocol.MustEncode(protocol.UserJoined{
			Type:     protocol.TypeUserJoined,
			UserID:   id.UserID,
			Role:     role,
			RoomSize: res.Size,
		})
		app.ApplyBackpressure(r.opts.Policy, room, r.rooms.Broadcast(room, s.ID, frame))
	}
	log.Info().Str("module", "app.call").Str("cid", string(s.ID)).Str("user", string(id.UserID)).Str("room", string(room)).Int("size", res.Size).Msg("joined call room")
	return nil
}

// supersede tells a connection replaced by a reconnect of the same user and closes it.
func supersede(m core.Member) {
	_ = m.Conn.TrySend(protocol.MustEncode(protocol.Error{
		Type:    protocol.TypeError,
		Code:    domain.KindProtocol,
		Message: "superseded",
	}))
	m.Conn.Close()
	log.Info().Str("module", "app.call").Str("cid", string(m.Info.ConnectionID)).Str("user", string(m.Info.UserID)).Msg("superseded by reconnect")
}

func (r *Relay) requireJoined(s *app.Session, booking domain.BookingID, typ string) error {
	switch s.State() {
	case app.StateJoined, app.StateNegotiating, app.StateActive:
	case app.StateEnded:
		return domain.ProtocolError("call already ended")
	case app.StateDisconnected, app.StateClosed:
		return domain.ProtocolError("connection closed")
	default:
		return domain.ProtocolError("%s before join-room", typ)
	}
	if booking != s.Booking() {
		return domain.AuthorizationError("booking mismatch")
	}
	return nil
}

// Signal relays an offer, answer or candidate to the other members, payload untouched.
func (r *Relay) Signal(s *app.Session, msg *protocol.Signal) error {
	if err := r.requireJoined(s, msg.BookingID, msg.Type); err != nil {
		return err
	}
	if len(msg.Payload()) == 0 {
		return domain.ProtocolError("missing %s", protocol.PayloadField(msg.Type))
	}
	if r.opts.StrictSignaling {
		if err := protocol.ValidateSignal(msg); err != nil {
			return err
		}
	}

	room := s.Room()
	frame := protocol.RelayFrame(msg, s.Identity().UserID, s.Role())
	res := r.rooms.Broadcast(room, s.ID, frame)
	app.ApplyBackpressure(r.opts.Policy, room, res)
	metrics.SignalsRelayed.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case protocol.TypeCallOffer:
		s.Transition(app.StateNegotiating, app.StateJoined, app.StateActive)
	case protocol.TypeCallAnswer:
		s.Transition(app.StateActive, app.StateJoined, app.StateNegotiating)
	}
	log.Debug().Str("module", "app.call").Str("cid", string(s.ID)).Str("room", string(room)).Str("type", msg.Type).Int("sent_to", res.SendTo).Msg("signal relayed")
	return nil
}

// EndCall announces call-ended to the room. The sender's transport stays open.
func (r *Relay) EndCall(s *app.Session, booking domain.BookingID) error {
	if err := r.requireJoined(s, booking, protocol.TypeEndCall); err != nil {
		return err
	}
	room := s.Room()
	frame := protocol.MustEncode(protocol.CallEnded{
		Type:      protocol.TypeCallEnded,
		BookingID: booking,
		From:      s.Identity().UserID,
		Role:      s.Role(),
	})
	app.ApplyBackpressure(r.opts.Policy, room, r.rooms.Broadcast(room, s.ID, frame))
	s.SetState(app.StateEnded)
	log.Info().Str("module", "app.call").Str("cid", string(s.ID)).Str("room", string(room)).Msg("call ended")
	return nil
}

// Disconnect runs on transport close in any state.
func (r *Relay) Disconnect(s *app.Session) {
	if s.Swap(app.StateDisconnected) == app.StateDisconnected {
		return
	}
	metrics.ConnectionsActive.WithLabelValues(string(domain.RoomCall)).Dec()
	if room := s.Unbind(); room != "" {
		r.leave(room, s.ID)
	}
}

func (r *Relay) leave(room domain.RoomID, cid core.ConnectionID) {
	res, ok := r.rooms.Leave(room, cid)
	if !ok {
		return
	}
	if res.Closed {
		metrics.RoomsActive.WithLabelValues(string(domain.RoomCall)).Dec()
		return
	}
	frame := protocol.MustEncode(protocol.UserLeft{
		Type:   protocol.TypeUserLeft,
		UserID: res.Member.Info.UserID,
		Role:   res.Member.Info.Role,
	})
	app.ApplyBackpressure(r.opts.Policy, room, r.rooms.Broadcast(room, cid, frame))
}
