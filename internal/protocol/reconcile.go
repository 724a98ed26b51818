package protocol

import (
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dkeye/Tutor/internal/domain"
)

// Reconciliation contract for chat clients.
//
// A client renders its own send immediately with a temporary id from
// NewTemporaryID and remembers it as pending. The server never issues ids in
// that namespace. When a confirmed message arrives (message-sent to the author,
// new-message to everyone else) the client resolves it in this order:
//
//  1. a confirmed entry with the same id is replaced in place (redelivery);
//  2. the oldest pending entry with the same sender and text whose local
//     timestamp is within the window is replaced;
//  3. a pending entry whose temporary id equals the echoed clientId is replaced;
//  4. otherwise the message is appended.
//
// Timeline implements exactly that and is what pkg/client uses.

const TemporaryIDPrefix = "tmp-"

const DefaultReconcileWindow = 30 * time.Second

func NewTemporaryID() string {
	return TemporaryIDPrefix + ulid.Make().String()
}

func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TemporaryIDPrefix)
}

type Entry struct {
	Message domain.Message
	Pending bool
}

type Timeline struct {
	mu      sync.Mutex
	window  time.Duration
	entries []Entry
}

func NewTimeline(window time.Duration) *Timeline {
	if window <= 0 {
		window = DefaultReconcileWindow
	}
	return &Timeline{window: window}
}

// AddLocal records an optimistic echo and returns its temporary id.
func (t *Timeline) AddLocal(sender domain.UserID, text string, at time.Time) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := NewTemporaryID()
	t.entries = append(t.entries, Entry{
		Message: domain.Message{ID: domain.MessageID(id), SenderID: sender, Text: text, CreatedAt: at, Deleted: domain.DeletedNone},
		Pending: true,
	})
	return id
}

// Confirm folds a server-confirmed message into the timeline.
// It reports whether an existing entry was replaced rather than appended.
func (t *Timeline) Confirm(m domain.Message, clientID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if !t.entries[i].Pending && t.entries[i].Message.ID == m.ID {
			t.entries[i].Message = m
			return true
		}
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.Pending && e.Message.SenderID == m.SenderID && e.Message.Text == m.Text && t.within(e.Message.CreatedAt, m.CreatedAt) {
			t.entries[i] = Entry{Message: m}
			return true
		}
	}
	if clientID != "" {
		for i := range t.entries {
			if t.entries[i].Pending && string(t.entries[i].Message.ID) == clientID {
				t.entries[i] = Entry{Message: m}
				return true
			}
		}
	}
	t.entries = append(t.entries, Entry{Message: m})
	return false
}

func (t *Timeline) within(local, confirmed time.Time) bool {
	d := confirmed.Sub(local)
	if d < 0 {
		d = -d
	}
	return d <= t.window
}

// Reset replaces confirmed history, keeping unresolved pending echoes at the tail.
func (t *Timeline) Reset(history []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make([]Entry, 0, len(history)+len(t.entries))
	for _, m := range history {
		next = append(next, Entry{Message: m})
	}
	for _, e := range t.entries {
		if e.Pending {
			next = append(next, e)
		}
	}
	t.entries = next
}

// Update applies an edit or tombstone to a confirmed entry in place.
func (t *Timeline) Update(m domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if !t.entries[i].Pending && t.entries[i].Message.ID == m.ID {
			t.entries[i].Message = m
			return true
		}
	}
	return false
}

// Remove drops an entry by id; used for delete-for-me and failed sends.
func (t *Timeline) Remove(id domain.MessageID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].Message.ID == id {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Message
	}
	return out
}
