package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"trailguard/core"
)

const messageSchema = `
CREATE TABLE IF NOT EXISTS alert_messages (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	recipient_name TEXT NOT NULL,
	channel TEXT NOT NULL,
	status TEXT NOT NULL,
	provider_message_id TEXT,
	error TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	seq INTEGER
);
CREATE INDEX IF NOT EXISTS idx_alert_messages_recipient ON alert_messages(recipient_id);
CREATE INDEX IF NOT EXISTS idx_alert_messages_seq ON alert_messages(seq);
`

// SQLiteMessageStore is the durable MessageStore backend. It keeps the same
// key shapes as the in-memory ledger so the dispatch engine's invariants
// survive process restarts.
type SQLiteMessageStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger

	mu  sync.Mutex // guards seq; auto-alert goroutines append concurrently
	seq int64
}

// NewSQLiteMessageStore opens (creating if needed) the ledger database at
// the given path.
func NewSQLiteMessageStore(path string, logger *zap.SugaredLogger) (*SQLiteMessageStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if _, err := db.Exec(messageSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	s := &SQLiteMessageStore{db: db, logger: logger}
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM alert_messages`).Scan(&s.seq); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read ledger sequence: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteMessageStore) Close() error {
	return s.db.Close()
}

// Append records one delivery attempt. The sequence counter is held under a
// lock across the insert so concurrent appends get distinct seq values.
func (s *SQLiteMessageStore) Append(msg core.AlertMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	_, err := s.db.Exec(
		`INSERT INTO alert_messages
		 (id, event_id, recipient_id, recipient_name, channel, status, provider_message_id, error, created_at, updated_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.EventID, msg.RecipientID, msg.RecipientName,
		string(msg.Channel), string(msg.Status), msg.ProviderMessageID, msg.Error,
		msg.CreatedAt.UnixMilli(), msg.UpdatedAt.UnixMilli(), s.seq,
	)
	if err != nil {
		return fmt.Errorf("failed to append alert message: %w", err)
	}
	return nil
}

// List returns messages most-recent-first.
func (s *SQLiteMessageStore) List(recipientID string, limit int) ([]core.AlertMessage, error) {
	query := `SELECT id, event_id, recipient_id, recipient_name, channel, status,
	          COALESCE(provider_message_id, ''), COALESCE(error, ''), created_at, updated_at
	          FROM alert_messages`
	args := []any{}
	if recipientID != "" {
		query += ` WHERE recipient_id = ?`
		args = append(args, recipientID)
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert messages: %w", err)
	}
	defer rows.Close()

	var out []core.AlertMessage
	for rows.Next() {
		var m core.AlertMessage
		var channel, status string
		var createdAt, updatedAt int64
		if err := rows.Scan(&m.ID, &m.EventID, &m.RecipientID, &m.RecipientName,
			&channel, &status, &m.ProviderMessageID, &m.Error, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert message: %w", err)
		}
		m.Channel = core.Channel(channel)
		m.Status = core.MessageStatus(status)
		m.CreatedAt = time.UnixMilli(createdAt)
		m.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
