package core

// Frame is a raw encoded protocol message.
type Frame []byte

type ConnectionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: a full buffer is reported as an error.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
