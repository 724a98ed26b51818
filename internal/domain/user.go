// Package domain contains entities without transport logic, just meta-data
package domain

import (
	"errors"
)

const (
	MaxUserIDLen = 64
)

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
	ErrUnknownRole   = errors.New("unknown role")
)

type UserID string

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

// Identity is a verified {userId, role} assertion attached to a connection.
// It is produced outside of the relay and never re-validated here.
type Identity struct {
	UserID UserID `json:"userId"`
	Role   Role   `json:"role"`
}

// NewIdentity avoids raw literals in adapters and keeps validation in one place.
func NewIdentity(userID string, role Role) (*Identity, error) {
	if len(userID) == 0 {
		return nil, ErrUserIDEmpty
	}
	if len(userID) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if role != "" && !role.Valid() {
		return nil, ErrUnknownRole
	}
	return &Identity{UserID: UserID(userID), Role: role}, nil
}
