// Package chat persists and fans out conversation traffic between two users.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Tutor/internal/app"
	"github.com/dkeye/Tutor/internal/core"
	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/metrics"
	"github.com/dkeye/Tutor/internal/protocol"
	"github.com/dkeye/Tutor/internal/store"
)

const defaultStripes = 64

// Store is the persistence the conversation relay needs.
type Store interface {
	store.MessageStore
	store.ConversationStore
}

type Options struct {
	Policy app.Policy
	// Stripes is the number of per-conversation send locks.
	Stripes int
	Now     func() time.Time
}

type Service struct {
	rooms   core.Rooms
	store   Store
	policy  app.Policy
	now     func() time.Time
	stripes []sync.Mutex
}

func NewService(rooms core.Rooms, st Store, opts Options) *Service {
	if opts.Policy == nil {
		opts.Policy = app.SimplePolicy{}
	}
	if opts.Stripes <= 0 {
		opts.Stripes = defaultStripes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		rooms:   rooms,
		store:   st,
		policy:  opts.Policy,
		now:     opts.Now,
		stripes: make([]sync.Mutex, opts.Stripes),
	}
}

// stripe serialises persist+broadcast per conversation so fan-out order
// matches the order messages were recorded.
func (c *Service) stripe(conv domain.ConversationID) *sync.Mutex {
	return &c.stripes[xxhash.Sum64String(string(conv))%uint64(len(c.stripes))]
}

func (c *Service) broadcast(conv domain.ConversationID, exclude core.ConnectionID, v any) {
	room := conv.RoomID()
	res := c.rooms.Broadcast(room, exclude, protocol.MustEncode(v))
	app.ApplyBackpressure(c.policy, room, res)
}

func storeErr(op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	metrics.PersistenceFailures.WithLabelValues(op).Inc()
	log.Error().Str("module", "app.chat").Str("op", op).Err(err).Msg("store failure")
	return domain.PersistenceError(op+" failed", err)
}

func requireParticipant(conv domain.ConversationID, user domain.UserID) error {
	if !conv.Has(user) {
		return domain.AuthorizationError("not a participant of this conversation")
	}
	return nil
}

// authorize checks that user is named by conv and, once the conversation
// exists, that the stored summary lists them as a participant.
func (c *Service) authorize(ctx context.Context, conv domain.ConversationID, user domain.UserID) error {
	if err := requireParticipant(conv, user); err != nil {
		return err
	}
	sum, err := c.store.GetConversation(ctx, conv)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("get_conversation", err)
	}
	if sum.Participants.A != user && sum.Participants.B != user {
		return domain.AuthorizationError("not a participant of this conversation")
	}
	return nil
}

func validText(text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ProtocolError("text must not be empty")
	}
	if len(text) > domain.MaxMessageLen {
		return domain.ProtocolError("text longer than %d bytes", domain.MaxMessageLen)
	}
	return nil
}

// Open registers a new chat transport.
func (c *Service) Open(s *app.Session) {
	s.SetState(app.StateConnecting)
	metrics.ConnectionsActive.WithLabelValues(string(domain.RoomChat)).Inc()
}

// Join admits s to conv and sends it the history oldest first.
func (c *Service) Join(ctx context.Context, s *app.Session, conv domain.ConversationID) error {
	id := s.Identity()
	if id == nil {
		return domain.ErrAuthenticationRequired
	}
	if s.State() == app.StateClosed {
		return domain.ProtocolError("connection closed")
	}
	if conv == "" {
		return domain.ProtocolError("conversationId required")
	}
	if err := c.authorize(ctx, conv, id.UserID); err != nil {
		return err
	}

	if prev := s.Room(); prev != "" && prev != conv.RoomID() {
		c.leave(prev, s.ID)
		s.Unbind()
	}

	// Registering, reading history and sending it under the stripe keeps a
	// concurrent Send either inside the history or after it, never between.
	mu := c.stripe(conv)
	mu.Lock()
	defer mu.Unlock()
	res, err := c.rooms.Join(conv.RoomID(), s.Member(), core.JoinOptions{})
	if err != nil {
		return domain.ProtocolError("join failed")
	}
	if res.Created {
		metrics.RoomsActive.WithLabelValues(string(domain.RoomChat)).Inc()
	}
	s.Bind(conv.RoomID(), "", id.Role)
	s.SetState(app.StateJoined)

	history, err := c.store.ListMessages(ctx, conv, id.UserID)
	if err != nil {
		return storeErr("list_messages", err)
	}
	_ = s.Send(protocol.Messages{Type: protocol.TypeMessages, ConversationID: conv, Messages: history})
	s.SetState(app.StateActive)
	log.Info().Str("module", "app.chat").Str("cid", string(s.ID)).Str("user", string(id.UserID)).Str("room", string(conv)).Int("history", len(history)).Msg("joined conversation")
	return nil
}

func (c *Service) conversationOf(s *app.Session) (domain.ConversationID, *domain.Identity, error) {
	id := s.Identity()
	if id == nil {
		return "", nil, domain.ErrAuthenticationRequired
	}
	switch s.State() {
	case app.StateJoined, app.StateActive:
	default:
		return "", nil, domain.ProtocolError("message before join")
	}
	return domain.ConversationID(s.Room()), id, nil
}

// Send persists a chat message and fans it out. Nothing is broadcast unless the
// store accepted it. The author gets message-sent carrying its clientId.
func (c *Service) Send(ctx context.Context, s *app.Session, in protocol.Message) (*domain.Message, error) {
	conv, id, err := c.conversationOf(s)
	if err != nil {
		return nil, err
	}
	if err := validText(in.Text); err != nil {
		return nil, err
	}
	msg := &domain.Message{
		ID:             domain.MessageID(ulid.Make().String()),
		ConversationID: conv,
		SenderID:       id.UserID,
		SenderName:     in.SenderName,
		Text:           in.Text,
		CreatedAt:      time.UnixMilli(c.now().UnixMilli()),
		Deleted:        domain.DeletedNone,
	}

	mu := c.stripe(conv)
	mu.Lock()
	if _, err := c.store.AppendMessage(ctx, msg); err != nil {
		mu.Unlock()
		return nil, storeErr("append_message", err)
	}
	c.broadcast(conv, s.ID, protocol.NewMessage{Type: protocol.TypeNewMessage, Message: *msg})
	mu.Unlock()

	metrics.MessagesPersisted.Inc()
	_ = s.Send(protocol.MessageSent{Type: protocol.TypeMessageSent, Message: *msg, ClientID: in.ClientID})
	log.Debug().Str("module", "app.chat").Str("cid", string(s.ID)).Str("room", string(conv)).Str("message", string(msg.ID)).Msg("message sent")
	return msg, nil
}

// lockMessage loads id and holds its conversation stripe until unlock is called.
// The message is re-read under the lock so checks see the latest state.
func (c *Service) lockMessage(ctx context.Context, id domain.MessageID) (*domain.Message, func(), error) {
	msg, err := c.store.GetMessage(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, domain.ProtocolError("unknown message")
	}
	if err != nil {
		return nil, nil, storeErr("get_message", err)
	}
	mu := c.stripe(msg.ConversationID)
	mu.Lock()
	if msg, err = c.store.GetMessage(ctx, id); err != nil {
		mu.Unlock()
		return nil, nil, storeErr("get_message", err)
	}
	return msg, mu.Unlock, nil
}

// Edit rewrites the text of a message; only its sender may do so.
func (c *Service) Edit(ctx context.Context, user domain.UserID, id domain.MessageID, text string) (*domain.Message, error) {
	if err := validText(text); err != nil {
		return nil, err
	}
	msg, unlock, err := c.lockMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if msg.SenderID != user {
		return nil, domain.AuthorizationError("only the sender can edit a message")
	}
	if msg.IsTombstone() {
		return nil, domain.ProtocolError("message was deleted")
	}
	msg.Text = text
	msg.Edited = true
	if err := c.store.UpdateMessage(ctx, msg); err != nil {
		return nil, storeErr("update_message", err)
	}
	c.broadcast(msg.ConversationID, "", protocol.MessageUpdated{Type: protocol.TypeMessageUpdated, Message: *msg})
	return msg, nil
}

// Delete hides a message for user (DeletedMine) or tombstones it for both
// participants (DeletedEveryone, sender only). Only the tombstone is broadcast.
func (c *Service) Delete(ctx context.Context, user domain.UserID, id domain.MessageID, mode domain.DeleteMode) (*domain.Message, error) {
	msg, unlock, err := c.lockMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := c.authorize(ctx, msg.ConversationID, user); err != nil {
		return nil, err
	}

	switch mode {
	case domain.DeletedMine:
		if err := c.store.HideMessage(ctx, id, user); err != nil {
			return nil, storeErr("hide_message", err)
		}
		return msg, nil
	case domain.DeletedEveryone:
		if msg.SenderID != user {
			return nil, domain.AuthorizationError("only the sender can delete for everyone")
		}
		msg.Tombstone()
		if err := c.store.UpdateMessage(ctx, msg); err != nil {
			return nil, storeErr("update_message", err)
		}
		c.broadcast(msg.ConversationID, "", protocol.MessageUpdated{Type: protocol.TypeMessageUpdated, Message: *msg})
		return msg, nil
	}
	return nil, domain.ProtocolError("unknown delete mode %q", mode)
}

// MarkRead zeroes user's unread count. Repeating it is harmless.
func (c *Service) MarkRead(ctx context.Context, user domain.UserID, conv domain.ConversationID) error {
	if err := c.authorize(ctx, conv, user); err != nil {
		return err
	}
	if err := c.store.ResetUnread(ctx, conv, user); err != nil {
		return storeErr("reset_unread", err)
	}
	return nil
}

// Initiate resolves the conversation between user and target, creating it if
// needed and un-hiding it for user.
func (c *Service) Initiate(ctx context.Context, user, target domain.UserID) (*domain.ConversationSummary, error) {
	if target == "" || target == user {
		return nil, domain.ProtocolError("invalid target user")
	}
	if _, err := domain.NewIdentity(string(target), ""); err != nil {
		return nil, domain.ProtocolError("invalid target user")
	}
	sum, err := c.store.EnsureConversation(ctx, user, target)
	if err != nil {
		return nil, storeErr("ensure_conversation", err)
	}
	if sum.IsHiddenFor(user) {
		if err := c.store.SetHidden(ctx, sum.ConversationID, user, false); err != nil {
			return nil, storeErr("set_hidden", err)
		}
		if sum, err = c.store.GetConversation(ctx, sum.ConversationID); err != nil {
			return nil, storeErr("get_conversation", err)
		}
	}
	return sum, nil
}

// Hide removes conv from user's listing until new traffic arrives.
// Messages are kept. Hiding a conversation that was never created is a no-op.
func (c *Service) Hide(ctx context.Context, user domain.UserID, conv domain.ConversationID) error {
	if err := c.authorize(ctx, conv, user); err != nil {
		return err
	}
	err := c.store.SetHidden(ctx, conv, user, true)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeErr("set_hidden", err)
	}
	return nil
}

// List returns user's visible conversations, most recent first.
func (c *Service) List(ctx context.Context, user domain.UserID) ([]domain.ConversationSummary, error) {
	out, err := c.store.ListConversations(ctx, user)
	if err != nil {
		return nil, storeErr("list_conversations", err)
	}
	return out, nil
}

// History returns conv as seen by user.
func (c *Service) History(ctx context.Context, user domain.UserID, conv domain.ConversationID) ([]domain.Message, error) {
	if err := c.authorize(ctx, conv, user); err != nil {
		return nil, err
	}
	out, err := c.store.ListMessages(ctx, conv, user)
	if err != nil {
		return nil, storeErr("list_messages", err)
	}
	return out, nil
}

// Disconnect runs on transport close.
func (c *Service) Disconnect(s *app.Session) {
	if s.Swap(app.StateClosed) == app.StateClosed {
		return
	}
	metrics.ConnectionsActive.WithLabelValues(string(domain.RoomChat)).Dec()
	if room := s.Unbind(); room != "" {
		c.leave(room, s.ID)
	}
}

func (c *Service) leave(room domain.RoomID, cid core.ConnectionID) {
	res, ok := c.rooms.Leave(room, cid)
	if ok && res.Closed {
		metrics.RoomsActive.WithLabelValues(string(domain.RoomChat)).Dec()
	}
}
