package domain

type Participants struct {
	A UserID `json:"a"`
	B UserID `json:"b"`
}

func (p Participants) Other(u UserID) UserID {
	if p.A == u {
		return p.B
	}
	return p.A
}

// ConversationSummary is created lazily and never deleted, only hidden per user.
type ConversationSummary struct {
	ConversationID ConversationID `json:"conversationId"`
	Participants   Participants   `json:"participants"`
	LastMessage    *Message       `json:"lastMessage,omitempty"`
	UnreadCount    map[UserID]int `json:"unreadCount"`
	HiddenFor      []UserID       `json:"hiddenFor"`
}

// NewConversationSummary builds an empty summary for the sorted pair.
func NewConversationSummary(a, b UserID) *ConversationSummary {
	if b < a {
		a, b = b, a
	}
	return &ConversationSummary{
		ConversationID: NewConversationID(a, b),
		Participants:   Participants{A: a, B: b},
		UnreadCount:    map[UserID]int{a: 0, b: 0},
		HiddenFor:      []UserID{},
	}
}

func (s *ConversationSummary) IsHiddenFor(u UserID) bool {
	for _, h := range s.HiddenFor {
		if h == u {
			return true
		}
	}
	return false
}

func (s *ConversationSummary) Unread(u UserID) int {
	return s.UnreadCount[u]
}
