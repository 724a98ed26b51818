package domain

import (
	"errors"
	"testing"
)

func TestNewConversationIDIsOrderIndependent(t *testing.T) {
	pairs := [][2]UserID{{"1", "2"}, {"alice", "bob"}, {"u-9", "u-10"}}
	for _, p := range pairs {
		if NewConversationID(p[0], p[1]) != NewConversationID(p[1], p[0]) {
			t.Errorf("ids differ for %v", p)
		}
	}
	if got := NewConversationID("2", "1"); got != "conv-1-2" {
		t.Errorf("expected conv-1-2, got %s", got)
	}
}

func TestConversationIDsDoNotCollide(t *testing.T) {
	pairs := [][2]UserID{
		{"a", "b-c"}, {"a-b", "c"},
		{"a", "b%2Dc"}, {"a%", "b"}, {"a", "%b"},
		{"x-", "y"}, {"x", "-y"},
	}
	seen := make(map[ConversationID][2]UserID)
	for _, p := range pairs {
		id := NewConversationID(p[0], p[1])
		if prev, dup := seen[id]; dup {
			t.Fatalf("%v and %v share %s", prev, p, id)
		}
		seen[id] = p
		a, b, ok := id.Participants()
		if !ok {
			t.Fatalf("%s does not decode", id)
		}
		if !(a == p[0] && b == p[1]) && !(a == p[1] && b == p[0]) {
			t.Errorf("%s decoded as %q,%q want %v", id, a, b, p)
		}
	}
}

func TestConversationPeer(t *testing.T) {
	tests := []struct {
		conv  ConversationID
		user  UserID
		other UserID
		ok    bool
	}{
		{"conv-1-2", "1", "2", true},
		{"conv-1-2", "2", "1", true},
		{"conv-1-2", "3", "", false},
		{"conv-1-2", "", "", false},
		{"conv-2-1", "1", "", false},
		{"conv-1-1", "1", "", false},
		{"booking:1", "1", "", false},
		{NewConversationID("a-b", "c-d"), "c-d", "a-b", true},
		{NewConversationID("a", "b-c"), "a-b", "", false},
		{NewConversationID("a-b", "c"), "a", "", false},
		{"conv-a-b-c", "a", "", false},
		{"conv-%41-b", "A", "", false},
	}
	for _, tt := range tests {
		other, ok := tt.conv.Peer(tt.user)
		if ok != tt.ok || other != tt.other {
			t.Errorf("%s.Peer(%s) = %q,%v want %q,%v", tt.conv, tt.user, other, ok, tt.other, tt.ok)
		}
	}
}

func TestRoomKind(t *testing.T) {
	if CallRoomID("B1").Kind() != RoomCall {
		t.Error("booking room should be a call room")
	}
	if NewConversationID("1", "2").RoomID().Kind() != RoomChat {
		t.Error("conversation room should be a chat room")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	err := AuthorizationError(ReasonRoleMismatch)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Error("authorization error should match ErrNotAuthorized")
	}
	if errors.Is(err, ErrProtocol) {
		t.Error("authorization error should not match ErrProtocol")
	}
	if KindOf(err) != KindAuthorization || ReasonOf(err) != ReasonRoleMismatch {
		t.Errorf("unexpected kind/reason %s/%s", KindOf(err), ReasonOf(err))
	}
	wrapped := PersistenceError("save message", errors.New("disk full"))
	if ReasonOf(wrapped) != "save message" {
		t.Errorf("reason should hide internals, got %q", ReasonOf(wrapped))
	}
	if KindOf(errors.New("boom")) != KindPersistence {
		t.Error("unknown errors map to persistence")
	}
}
