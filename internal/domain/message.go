package domain

import (
	"time"
)

// TombstoneText replaces the text of a message deleted for everyone.
const TombstoneText = "This message was deleted"

const MaxMessageLen = 4000

type MessageID string

type DeleteMode string

const (
	DeletedNone     DeleteMode = "none"
	DeletedMine     DeleteMode = "mine"
	DeletedEveryone DeleteMode = "everyone"
)

// ParseDeleteMode accepts the wire spellings "me"/"mine" and "everyone".
func ParseDeleteMode(s string) (DeleteMode, bool) {
	switch s {
	case "me", "mine":
		return DeletedMine, true
	case "everyone":
		return DeletedEveryone, true
	}
	return "", false
}

// Message is append-only: ID and CreatedAt never change after creation.
type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversationId"`
	SenderID       UserID         `json:"senderId"`
	SenderName     string         `json:"senderName,omitempty"`
	Text           string         `json:"text"`
	CreatedAt      time.Time      `json:"createdAt"`
	Edited         bool           `json:"edited"`
	Deleted        DeleteMode     `json:"deleted"`
}

func (m *Message) IsTombstone() bool { return m.Deleted == DeletedEveryone }

// Tombstone blanks the text while keeping identity and position.
func (m *Message) Tombstone() {
	m.Text = TombstoneText
	m.Deleted = DeletedEveryone
}
