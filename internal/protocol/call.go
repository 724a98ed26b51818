package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/dkeye/Tutor/internal/domain"
)

// Call-room frame types.
const (
	TypeJoinRoom     = "join-room"
	TypeRoomJoined   = "room-joined"
	TypeUserJoined   = "user-joined"
	TypeCallOffer    = "call-offer"
	TypeCallAnswer   = "call-answer"
	TypeICECandidate = "ice-candidate"
	TypeEndCall      = "end-call"
	TypeCallEnded    = "call-ended"
	TypeUserLeft     = "user-left"
)

type JoinRoom struct {
	Type      string           `json:"type"`
	BookingID domain.BookingID `json:"bookingId"`
	Role      domain.Role      `json:"role"`
}

type RoomJoined struct {
	Type      string           `json:"type"`
	RoomID    domain.RoomID    `json:"roomId"`
	BookingID domain.BookingID `json:"bookingId"`
	Role      domain.Role      `json:"role"`
	RoomSize  int              `json:"roomSize"`
}

type UserJoined struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Role     domain.Role   `json:"role"`
	RoomSize int           `json:"roomSize"`
}

type UserLeft struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"userId"`
	Role   domain.Role   `json:"role"`
}

type CallEnded struct {
	Type      string           `json:"type"`
	BookingID domain.BookingID `json:"bookingId,omitempty"`
	From      domain.UserID    `json:"from"`
	Role      domain.Role      `json:"role"`
}

// Signal is an inbound or relayed call-offer, call-answer, ice-candidate or end-call.
// Exactly one of Offer, Answer, Candidate is set for the first three types.
type Signal struct {
	Type      string           `json:"type"`
	BookingID domain.BookingID `json:"bookingId"`
	Offer     json.RawMessage  `json:"offer,omitempty"`
	Answer    json.RawMessage  `json:"answer,omitempty"`
	Candidate json.RawMessage  `json:"candidate,omitempty"`
	From      domain.UserID    `json:"from,omitempty"`
	Role      domain.Role      `json:"role,omitempty"`
}

// PayloadField names the field that carries the opaque payload for a signal type.
func PayloadField(typ string) string {
	switch typ {
	case TypeCallOffer:
		return "offer"
	case TypeCallAnswer:
		return "answer"
	case TypeICECandidate:
		return "candidate"
	}
	return ""
}

// Payload returns the opaque body carried by s.
func (s *Signal) Payload() json.RawMessage {
	switch s.Type {
	case TypeCallOffer:
		return s.Offer
	case TypeCallAnswer:
		return s.Answer
	case TypeICECandidate:
		return s.Candidate
	}
	return nil
}

type relayHeader struct {
	Type      string           `json:"type"`
	BookingID domain.BookingID `json:"bookingId"`
	From      domain.UserID    `json:"from"`
	Role      domain.Role      `json:"role"`
}

// RelayFrame builds the frame forwarded to peers. The payload bytes are
// spliced in exactly as the sender wrote them.
func RelayFrame(s *Signal, from domain.UserID, role domain.Role) []byte {
	head := MustEncode(relayHeader{Type: s.Type, BookingID: s.BookingID, From: from, Role: role})
	field := PayloadField(s.Type)
	payload := s.Payload()
	if field == "" || len(payload) == 0 {
		return head
	}
	var buf bytes.Buffer
	buf.Grow(len(head) + len(field) + len(payload) + 4)
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"`)
	buf.WriteString(field)
	buf.WriteString(`":`)
	buf.Write(payload)
	buf.WriteByte('}')
	return buf.Bytes()
}
