package domain

import (
	"strings"
)

type RoomID string

type RoomKind string

const (
	RoomCall RoomKind = "call"
	RoomChat RoomKind = "chat"
)

const (
	callRoomPrefix = "booking:"
	convPrefix     = "conv-"
	convSep        = "-"
)

type Room struct {
	ID   RoomID
	Kind RoomKind
}

// CallRoomID names the room shared by both parties of a booking.
func CallRoomID(id BookingID) RoomID {
	return RoomID(callRoomPrefix + string(id))
}

// Kind infers the room kind from its id.
func (id RoomID) Kind() RoomKind {
	if strings.HasPrefix(string(id), callRoomPrefix) {
		return RoomCall
	}
	return RoomChat
}

type ConversationID string

// User ids are escaped inside a conversation id so the only raw separator
// after the prefix is the one between the two participants.
var (
	idEscaper   = strings.NewReplacer("%", "%25", convSep, "%2D")
	idUnescaper = strings.NewReplacer("%2D", convSep, "%25", "%")
)

// NewConversationID is deterministic: both argument orders resolve the same id.
// Distinct pairs never share an id, whatever characters the user ids contain.
func NewConversationID(a, b UserID) ConversationID {
	if b < a {
		a, b = b, a
	}
	return ConversationID(convPrefix + idEscaper.Replace(string(a)) + convSep + idEscaper.Replace(string(b)))
}

// Participants decodes both user ids, smaller first. ok is false unless c is
// exactly the canonical id of two distinct users.
func (c ConversationID) Participants() (UserID, UserID, bool) {
	rest, found := strings.CutPrefix(string(c), convPrefix)
	if !found || strings.Count(rest, convSep) != 1 {
		return "", "", false
	}
	ea, eb, _ := strings.Cut(rest, convSep)
	a, b := UserID(idUnescaper.Replace(ea)), UserID(idUnescaper.Replace(eb))
	if a == "" || b == "" || a == b || NewConversationID(a, b) != c {
		return "", "", false
	}
	return a, b, true
}

// Peer returns the other participant named in the conversation id.
// ok is false when user is not one of the two participants.
func (c ConversationID) Peer(user UserID) (UserID, bool) {
	a, b, ok := c.Participants()
	switch {
	case !ok || user == "":
		return "", false
	case user == a:
		return b, true
	case user == b:
		return a, true
	}
	return "", false
}

// Has reports whether user is one of the two participants.
func (c ConversationID) Has(user UserID) bool {
	_, ok := c.Peer(user)
	return ok
}

func (c ConversationID) RoomID() RoomID { return RoomID(c) }
