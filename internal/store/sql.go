package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dkeye/Tutor/internal/domain"
	"github.com/dkeye/Tutor/internal/metrics"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLStore handles SQLite and PostgreSQL through database/sql.
// Queries use $N placeholders, which both drivers accept.
type SQLStore struct {
	db     *sql.DB
	driver string
}

var _ Store = (*SQLStore)(nil)

// Open returns the store selected by driver. For sqlite an empty dsn
// defaults to "./data/tutor.db".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(ctx, dsn)
	case DriverPostgres:
		return NewPostgresStore(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		path = "./data/tutor.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite free of SQLITE_BUSY under concurrent sends.
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, DriverSQLite)
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*SQLStore, error) {
	if databaseURL == "" {
		return nil, errors.New("postgres store requires a dsn")
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}
	return newSQLStore(ctx, db, DriverPostgres)
}

func newSQLStore(ctx context.Context, db *sql.DB, driver string) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLStore{db: db, driver: driver}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates tables if they don't exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLStore) Close() error                   { return s.db.Close() }

func (s *SQLStore) observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.StoreLatency.WithLabelValues(s.driver, op).Observe(time.Since(start).Seconds())
	}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Booking operations

func (s *SQLStore) GetBooking(ctx context.Context, id domain.BookingID) (*domain.Booking, error) {
	defer s.observe("get_booking")()
	var bid, student, tutor, status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, tutor_id, status FROM bookings WHERE id = $1
	`, string(id)).Scan(&bid, &student, &tutor, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &domain.Booking{
		ID:        domain.BookingID(bid),
		StudentID: domain.UserID(student),
		TutorID:   domain.UserID(tutor),
		Status:    domain.BookingStatus(status),
	}, nil
}

func (s *SQLStore) PutBooking(ctx context.Context, b *domain.Booking) error {
	defer s.observe("put_booking")()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, student_id, tutor_id, status) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET student_id = excluded.student_id, tutor_id = excluded.tutor_id, status = excluded.status
	`, string(b.ID), string(b.StudentID), string(b.TutorID), string(b.Status))
	return err
}

// Conversation operations

func ensureConversation(ctx context.Context, q querier, a, b domain.UserID, now time.Time) (domain.ConversationID, error) {
	if b < a {
		a, b = b, a
	}
	id := domain.NewConversationID(a, b)
	if _, err := q.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, string(id), string(a), string(b), now.UnixMilli(), now.UnixMilli()); err != nil {
		return "", err
	}
	for _, u := range []domain.UserID{a, b} {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, string(id), string(u)); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (s *SQLStore) EnsureConversation(ctx context.Context, a, b domain.UserID) (*domain.ConversationSummary, error) {
	defer s.observe("ensure_conversation")()
	id, err := ensureConversation(ctx, s.db, a, b, time.Now())
	if err != nil {
		return nil, err
	}
	return s.getConversation(ctx, s.db, id)
}

func (s *SQLStore) GetConversation(ctx context.Context, conv domain.ConversationID) (*domain.ConversationSummary, error) {
	defer s.observe("get_conversation")()
	return s.getConversation(ctx, s.db, conv)
}

func (s *SQLStore) getConversation(ctx context.Context, q querier, conv domain.ConversationID) (*domain.ConversationSummary, error) {
	var a, b string
	var lastID sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT participant_a, participant_b, last_message_id FROM conversations WHERE id = $1
	`, string(conv)).Scan(&a, &b, &lastID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sum := domain.NewConversationSummary(domain.UserID(a), domain.UserID(b))

	rows, err := q.QueryContext(ctx, `
		SELECT user_id, unread_count, hidden FROM conversation_members WHERE conversation_id = $1 ORDER BY user_id
	`, string(conv))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var user string
		var unread, hidden int
		if err := rows.Scan(&user, &unread, &hidden); err != nil {
			return nil, err
		}
		sum.UnreadCount[domain.UserID(user)] = unread
		if hidden != 0 {
			sum.HiddenFor = append(sum.HiddenFor, domain.UserID(user))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if lastID.Valid {
		m, err := s.getMessage(ctx, q, domain.MessageID(lastID.String))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		sum.LastMessage = m
	}
	return sum, nil
}

func (s *SQLStore) ResetUnread(ctx context.Context, conv domain.ConversationID, user domain.UserID) error {
	defer s.observe("reset_unread")()
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_members SET unread_count = 0 WHERE conversation_id = $1 AND user_id = $2
	`, string(conv), string(user))
	return err
}

func (s *SQLStore) SetHidden(ctx context.Context, conv domain.ConversationID, user domain.UserID, hidden bool) error {
	defer s.observe("set_hidden")()
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_members SET hidden = $1 WHERE conversation_id = $2 AND user_id = $3
	`, boolInt(hidden), string(conv), string(user))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListConversations(ctx context.Context, user domain.UserID) ([]domain.ConversationSummary, error) {
	defer s.observe("list_conversations")()
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = $1 AND m.hidden = 0
		ORDER BY c.updated_at DESC, c.id
	`, string(user))
	if err != nil {
		return nil, err
	}
	var ids []domain.ConversationID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, domain.ConversationID(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.ConversationSummary, 0, len(ids))
	for _, id := range ids {
		sum, err := s.getConversation(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if sum.LastMessage != nil {
			if sum.LastMessage, err = s.lastVisible(ctx, id, user); err != nil {
				return nil, err
			}
		}
		out = append(out, *sum)
	}
	return out, nil
}

// Message operations

func (s *SQLStore) AppendMessage(ctx context.Context, msg *domain.Message) (*domain.ConversationSummary, error) {
	defer s.observe("append_message")()
	sender, other, err := participants(msg)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	conv, err := ensureConversation(ctx, tx, sender, other, msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, text, created_at, edited, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, string(msg.ID), string(conv), string(msg.SenderID), msg.SenderName, msg.Text,
		msg.CreatedAt.UnixMilli(), boolInt(msg.Edited), string(msg.Deleted)); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = $1, updated_at = $2 WHERE id = $3
	`, string(msg.ID), msg.CreatedAt.UnixMilli(), string(conv)); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversation_members SET unread_count = unread_count + 1 WHERE conversation_id = $1 AND user_id = $2
	`, string(conv), string(other)); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversation_members SET hidden = 0 WHERE conversation_id = $1
	`, string(conv)); err != nil {
		return nil, err
	}
	sum, err := s.getConversation(ctx, tx, conv)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sum, nil
}

const messageColumns = `id, conversation_id, sender_id, sender_name, text, created_at, edited, deleted`

func scanMessage(sc interface{ Scan(...any) error }) (*domain.Message, error) {
	var (
		m                domain.Message
		id, conv, sender string
		created          int64
		edited           int
		deleted          string
	)
	if err := sc.Scan(&id, &conv, &sender, &m.SenderName, &m.Text, &created, &edited, &deleted); err != nil {
		return nil, err
	}
	m.ID = domain.MessageID(id)
	m.ConversationID = domain.ConversationID(conv)
	m.SenderID = domain.UserID(sender)
	m.CreatedAt = time.UnixMilli(created)
	m.Edited = edited != 0
	m.Deleted = domain.DeleteMode(deleted)
	return &m, nil
}

func (s *SQLStore) getMessage(ctx context.Context, q querier, id domain.MessageID) (*domain.Message, error) {
	m, err := scanMessage(q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *SQLStore) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	defer s.observe("get_message")()
	return s.getMessage(ctx, s.db, id)
}

func (s *SQLStore) UpdateMessage(ctx context.Context, msg *domain.Message) error {
	defer s.observe("update_message")()
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET text = $1, edited = $2, deleted = $3 WHERE id = $4
	`, msg.Text, boolInt(msg.Edited), string(msg.Deleted), string(msg.ID))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) HideMessage(ctx context.Context, id domain.MessageID, user domain.UserID) error {
	defer s.observe("hide_message")()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_hidden (message_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, string(id), string(user))
	return err
}

// lastVisible is the newest message of conv that viewer has not hidden.
func (s *SQLStore) lastVisible(ctx context.Context, conv domain.ConversationID, viewer domain.UserID) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.conversation_id = $1
		AND NOT EXISTS (SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = $2)
		ORDER BY m.created_at DESC, m.id DESC LIMIT 1
	`, string(conv), string(viewer))
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (s *SQLStore) ListMessages(ctx context.Context, conv domain.ConversationID, viewer domain.UserID) ([]domain.Message, error) {
	defer s.observe("list_messages")()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages m
		WHERE m.conversation_id = $1
		AND NOT EXISTS (SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = $2)
		ORDER BY m.created_at, m.id
	`, string(conv), string(viewer))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
