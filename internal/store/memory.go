package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Tutor/internal/domain"
)

type memConversation struct {
	summary   domain.ConversationSummary
	lastID    domain.MessageID
	messages  []domain.MessageID
	hidden    map[domain.UserID]bool
	createdAt time.Time
	updatedAt time.Time
}

// MemoryStore keeps everything in process. It backs the default "memory"
// driver and the relay tests.
type MemoryStore struct {
	mu            sync.RWMutex
	bookings      map[domain.BookingID]domain.Booking
	messages      map[domain.MessageID]domain.Message
	hiddenMsgs    map[domain.MessageID]map[domain.UserID]bool
	conversations map[domain.ConversationID]*memConversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:      make(map[domain.BookingID]domain.Booking),
		messages:      make(map[domain.MessageID]domain.Message),
		hiddenMsgs:    make(map[domain.MessageID]map[domain.UserID]bool),
		conversations: make(map[domain.ConversationID]*memConversation),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) GetBooking(_ context.Context, id domain.BookingID) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemoryStore) PutBooking(_ context.Context, b *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = *b
	return nil
}

// ensure must be called with s.mu held.
func (s *MemoryStore) ensure(a, b domain.UserID) *memConversation {
	id := domain.NewConversationID(a, b)
	if c, ok := s.conversations[id]; ok {
		return c
	}
	now := time.Now()
	c := &memConversation{
		summary:   *domain.NewConversationSummary(a, b),
		hidden:    make(map[domain.UserID]bool),
		createdAt: now,
		updatedAt: now,
	}
	s.conversations[id] = c
	return c
}

// view must be called with s.mu held (read or write).
func (s *MemoryStore) view(c *memConversation) *domain.ConversationSummary {
	out := c.summary
	out.UnreadCount = make(map[domain.UserID]int, len(c.summary.UnreadCount))
	for u, n := range c.summary.UnreadCount {
		out.UnreadCount[u] = n
	}
	out.HiddenFor = []domain.UserID{}
	for _, u := range []domain.UserID{c.summary.Participants.A, c.summary.Participants.B} {
		if c.hidden[u] {
			out.HiddenFor = append(out.HiddenFor, u)
		}
	}
	out.LastMessage = nil
	if c.lastID != "" {
		if m, ok := s.messages[c.lastID]; ok {
			out.LastMessage = &m
		}
	}
	return &out
}

// lastVisible must be called with s.mu held.
func (s *MemoryStore) lastVisible(c *memConversation, viewer domain.UserID) *domain.Message {
	for i := len(c.messages) - 1; i >= 0; i-- {
		id := c.messages[i]
		if s.hiddenMsgs[id][viewer] {
			continue
		}
		if m, ok := s.messages[id]; ok {
			return &m
		}
	}
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *domain.Message) (*domain.ConversationSummary, error) {
	sender, other, err := participants(msg)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensure(sender, other)
	s.messages[msg.ID] = *msg
	c.messages = append(c.messages, msg.ID)
	c.lastID = msg.ID
	c.summary.UnreadCount[other]++
	clear(c.hidden)
	c.updatedAt = msg.CreatedAt
	return s.view(c), nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id domain.MessageID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) UpdateMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.messages[msg.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Text = msg.Text
	cur.Edited = msg.Edited
	cur.Deleted = msg.Deleted
	s.messages[msg.ID] = cur
	return nil
}

func (s *MemoryStore) HideMessage(_ context.Context, id domain.MessageID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return ErrNotFound
	}
	if s.hiddenMsgs[id] == nil {
		s.hiddenMsgs[id] = make(map[domain.UserID]bool)
	}
	s.hiddenMsgs[id][user] = true
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conv domain.ConversationID, viewer domain.UserID) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conv]
	if !ok {
		return []domain.Message{}, nil
	}
	out := make([]domain.Message, 0, len(c.messages))
	for _, id := range c.messages {
		if s.hiddenMsgs[id][viewer] {
			continue
		}
		out = append(out, s.messages[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) EnsureConversation(_ context.Context, a, b domain.UserID) (*domain.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.ensure(a, b)), nil
}

func (s *MemoryStore) GetConversation(_ context.Context, conv domain.ConversationID) (*domain.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conv]
	if !ok {
		return nil, ErrNotFound
	}
	return s.view(c), nil
}

func (s *MemoryStore) ResetUnread(_ context.Context, conv domain.ConversationID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conv]; ok {
		if _, member := c.summary.UnreadCount[user]; member {
			c.summary.UnreadCount[user] = 0
		}
	}
	return nil
}

func (s *MemoryStore) SetHidden(_ context.Context, conv domain.ConversationID, user domain.UserID, hidden bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conv]
	if !ok {
		return ErrNotFound
	}
	if hidden {
		c.hidden[user] = true
	} else {
		delete(c.hidden, user)
	}
	return nil
}

func (s *MemoryStore) ListConversations(_ context.Context, user domain.UserID) ([]domain.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type row struct {
		sum     *domain.ConversationSummary
		updated time.Time
	}
	rows := make([]row, 0)
	for _, c := range s.conversations {
		p := c.summary.Participants
		if p.A != user && p.B != user {
			continue
		}
		if c.hidden[user] {
			continue
		}
		sum := s.view(c)
		sum.LastMessage = s.lastVisible(c, user)
		rows = append(rows, row{sum: sum, updated: c.updatedAt})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].updated.Equal(rows[j].updated) {
			return rows[i].sum.ConversationID < rows[j].sum.ConversationID
		}
		return rows[i].updated.After(rows[j].updated)
	})
	out := make([]domain.ConversationSummary, len(rows))
	for i, r := range rows {
		out[i] = *r.sum
	}
	return out, nil
}
