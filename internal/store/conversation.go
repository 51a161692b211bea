package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertConversation inserts or updates a conversation record.
func (db *DB) UpsertConversation(c *Conversation) error {
	return db.BulkUpsertConversations([]Conversation{*c})
}

// BulkUpsertConversations inserts or updates conversations in a single
// transaction. A cached last message is never replaced by an older one.
func (db *DB) BulkUpsertConversations(convs []Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range convs {
		if _, err := tx.Exec(`
			INSERT INTO conversations (counterpart_id, counterpart_name, last_message_body, last_message_at, last_sender_id, unread_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(counterpart_id) DO UPDATE SET
				counterpart_name = CASE WHEN excluded.counterpart_name != '' THEN excluded.counterpart_name ELSE conversations.counterpart_name END,
				last_message_body = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_message_body ELSE conversations.last_message_body END,
				last_sender_id = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_sender_id ELSE conversations.last_sender_id END,
				last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
				unread_count = excluded.unread_count,
				updated_at = excluded.updated_at`,
			c.CounterpartID, c.CounterpartName, c.LastMessageBody, c.LastMessageAt, c.LastSenderID, c.UnreadCount, now); err != nil {
			return fmt.Errorf("upsert conversation %q: %w", c.CounterpartID, err)
		}
	}
	return tx.Commit()
}

// ListConversations returns cached conversations, most recent first.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT counterpart_id, counterpart_name, last_message_body, last_message_at, last_sender_id, unread_count
		FROM conversations
		ORDER BY last_message_at DESC, counterpart_id ASC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.CounterpartID, &c.CounterpartName, &c.LastMessageBody, &c.LastMessageAt, &c.LastSenderID, &c.UnreadCount); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation, or nil if not cached.
func (db *DB) GetConversation(counterpartID string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT counterpart_id, counterpart_name, last_message_body, last_message_at, last_sender_id, unread_count
		FROM conversations
		WHERE counterpart_id = ?`, counterpartID).
		Scan(&c.CounterpartID, &c.CounterpartName, &c.LastMessageBody, &c.LastMessageAt, &c.LastSenderID, &c.UnreadCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConversationCount returns the total number of cached conversations.
func (db *DB) ConversationCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}
