package core

import (
	"time"

	"github.com/dkeye/Tutor/internal/domain"
)

// MemberInfo is the typed per-connection record a room keeps.
// No transport fields, safe to hand to APIs.
type MemberInfo struct {
	ConnectionID ConnectionID  `json:"connectionId"`
	UserID       domain.UserID `json:"userId"`
	Role         domain.Role   `json:"role,omitempty"`
	RoomID       domain.RoomID `json:"roomId"`
	JoinedAt     time.Time     `json:"joinedAt"`
}

// Member binds MemberInfo and its transport endpoint.
// This is what a room stores and fans out to.
type Member struct {
	Info MemberInfo
	Conn SignalConnection
}

func NewMember(info MemberInfo, conn SignalConnection) Member {
	if info.JoinedAt.IsZero() {
		info.JoinedAt = time.Now()
	}
	return Member{Info: info, Conn: conn}
}
