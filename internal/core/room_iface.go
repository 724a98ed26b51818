package core

import (
	"errors"

	"github.com/dkeye/Tutor/internal/domain"
)

var ErrRoomFull = errors.New("room full")

// PublishResult reports delivery stats/backpressure to the relay.
type PublishResult struct {
	SendTo  int
	Dropped []Member
}

// JoinOptions tune admission for a single join.
type JoinOptions struct {
	// Capacity bounds distinct users in the room; zero means unbounded.
	Capacity int
	// SinglePerUser evicts older connections of the joining user.
	SinglePerUser bool
}

type JoinResult struct {
	Size     int
	Created  bool
	Replaced bool
	Evicted  []Member
}

type LeaveResult struct {
	Member    Member
	Remaining int
	Closed    bool
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Kind        domain.RoomKind `json:"kind"`
	MemberCount int             `json:"member_count"`
}

// Rooms is the narrow interface relays use; Registry implements it.
type Rooms interface {
	Join(id domain.RoomID, m Member, opts JoinOptions) (JoinResult, error)
	Leave(id domain.RoomID, cid ConnectionID) (LeaveResult, bool)
	Broadcast(id domain.RoomID, exclude ConnectionID, data Frame) PublishResult
	Members(id domain.RoomID) []Member
	Size(id domain.RoomID) int
	List() []RoomInfo
}
