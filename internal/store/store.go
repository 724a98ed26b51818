package store

import (
	"context"
	"errors"

	"github.com/dkeye/Tutor/internal/domain"
)

var ErrNotFound = errors.New("not found")

// BookingStore is the read side the authorization oracle consults, plus a
// writer used by seeding and tests.
type BookingStore interface {
	GetBooking(ctx context.Context, id domain.BookingID) (*domain.Booking, error)
	PutBooking(ctx context.Context, b *domain.Booking) error
}

type MessageStore interface {
	// AppendMessage records msg and folds it into its conversation summary in one step:
	// lastMessage moves, the recipient's unread count grows and both hides are cleared.
	AppendMessage(ctx context.Context, msg *domain.Message) (*domain.ConversationSummary, error)
	GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	// UpdateMessage rewrites the mutable fields (text, edited, deleted).
	UpdateMessage(ctx context.Context, msg *domain.Message) error
	HideMessage(ctx context.Context, id domain.MessageID, user domain.UserID) error
	// ListMessages returns history oldest first, without messages viewer deleted for themselves.
	ListMessages(ctx context.Context, conv domain.ConversationID, viewer domain.UserID) ([]domain.Message, error)
}

type ConversationStore interface {
	EnsureConversation(ctx context.Context, a, b domain.UserID) (*domain.ConversationSummary, error)
	GetConversation(ctx context.Context, conv domain.ConversationID) (*domain.ConversationSummary, error)
	ResetUnread(ctx context.Context, conv domain.ConversationID, user domain.UserID) error
	SetHidden(ctx context.Context, conv domain.ConversationID, user domain.UserID, hidden bool) error
	// ListConversations returns summaries user participates in and has not hidden, most recent first.
	// LastMessage is the newest message user has not hidden.
	ListConversations(ctx context.Context, user domain.UserID) ([]domain.ConversationSummary, error)
}

// Store defines the persistent surface used by the relays.
// Both MemoryStore and SQLStore implement this interface.
type Store interface {
	BookingStore
	MessageStore
	ConversationStore

	Ping(ctx context.Context) error
	Close() error
}

// participants resolves both ends of msg's conversation from the sender.
func participants(msg *domain.Message) (domain.UserID, domain.UserID, error) {
	other, ok := msg.ConversationID.Peer(msg.SenderID)
	if !ok {
		return "", "", domain.AuthorizationError("sender is not a participant")
	}
	return msg.SenderID, other, nil
}
