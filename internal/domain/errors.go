package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindAuthenticationRequired ErrorKind = "authentication_required"
	KindAuthorization          ErrorKind = "authorization_error"
	KindProtocol               ErrorKind = "protocol_error"
	KindPersistence            ErrorKind = "persistence_error"
)

// Error is terminal for the operation, never for the connection.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so errors.Is(err, ErrAuthenticationRequired) works for any reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired, Reason: "authentication required"}
	ErrNotAuthorized          = &Error{Kind: KindAuthorization}
	ErrProtocol               = &Error{Kind: KindProtocol}
	ErrPersistence            = &Error{Kind: KindPersistence}
)

func AuthorizationError(reason string) error {
	return &Error{Kind: KindAuthorization, Reason: reason}
}

func ProtocolError(format string, args ...any) error {
	return &Error{Kind: KindProtocol, Reason: fmt.Sprintf(format, args...)}
}

func PersistenceError(reason string, err error) error {
	return &Error{Kind: KindPersistence, Reason: reason, Err: err}
}

// KindOf returns the taxonomy kind of err; unknown errors are reported as persistence failures.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindPersistence
}

// ReasonOf returns the client-facing reason, hiding wrapped internals.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return "internal error"
}
