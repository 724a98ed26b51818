package store

// schema is portable between SQLite and PostgreSQL: timestamps are unix
// milliseconds and flags are 0/1 integers.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		tutor_id TEXT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		participant_a TEXT NOT NULL,
		participant_b TEXT NOT NULL,
		last_message_id TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_members (
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		unread_count INTEGER NOT NULL DEFAULT 0,
		hidden INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversation_members_user ON conversation_members(user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		edited INTEGER NOT NULL DEFAULT 0,
		deleted TEXT NOT NULL DEFAULT 'none'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS message_hidden (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (message_id, user_id)
	)`,
}
