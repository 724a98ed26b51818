// Package protocol defines the wire format shared by the server relays and clients.
//
// Every frame is a JSON object carrying a "type" discriminator. Call rooms and
// chat rooms use disjoint sets of types apart from "error", "ping" and "pong".
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Tutor/internal/domain"
)

const (
	TypeError = "error"
	TypePing  = "ping"
	TypePong  = "pong"

	TypeAuthenticate  = "authenticate"
	TypeAuthenticated = "authenticated"
)

type Envelope struct {
	Type string `json:"type"`
}

type Authenticate struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type Authenticated struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"userId"`
	Role   domain.Role   `json:"role"`
}

type Error struct {
	Type      string           `json:"type"`
	Code      domain.ErrorKind `json:"code"`
	Message   string           `json:"message"`
	RequestID string           `json:"requestId,omitempty"`
	ClientID  string           `json:"clientId,omitempty"` // temporary id of a rejected chat send
}

// NewError converts any error into the client-facing error frame.
func NewError(err error) Error {
	return Error{
		Type:    TypeError,
		Code:    domain.KindOf(err),
		Message: domain.ReasonOf(err),
	}
}

// Encode marshals a frame; frames are plain structs so this only fails on programmer error.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MustEncode is Encode for frames built from trusted values.
func MustEncode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode unmarshals a frame body, reporting malformed input as a protocol error.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return domain.ProtocolError("malformed payload")
	}
	return nil
}
