package store

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// UpsertMessage inserts or updates a message (idempotent on counterpart_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	return db.UpsertMessages([]Message{*m})
}

// UpsertMessages writes a thread batch in one transaction.
func (db *DB) UpsertMessages(msgs []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO messages (counterpart_id, msg_id, sender_id, sender_name, body, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(counterpart_id, msg_id) DO UPDATE SET
				sender_name = excluded.sender_name,
				body = excluded.body,
				timestamp = excluded.timestamp`,
			m.CounterpartID, m.MsgID, m.SenderID, m.SenderName, m.Body, m.Timestamp, now); err != nil {
			return fmt.Errorf("upsert message %q: %w", m.MsgID, err)
		}
	}
	return tx.Commit()
}

// ListMessages returns up to limit messages of a thread older than beforeTs
// (0 means now), oldest first.
func (db *DB) ListMessages(counterpartID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, counterpart_id, msg_id, sender_id, sender_name, body, timestamp
		FROM messages
		WHERE counterpart_id = ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, counterpartID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.CounterpartID, &m.MsgID, &m.SenderID, &m.SenderName, &m.Body, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// SearchMessages returns cached messages whose body contains query, newest
// first. An empty counterpartID searches every thread.
func (db *DB) SearchMessages(query, counterpartID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT id, counterpart_id, msg_id, sender_id, sender_name, body, timestamp
		FROM messages
		WHERE body LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(query) + "%"}
	if counterpartID != "" {
		q += " AND counterpart_id = ?"
		args = append(args, counterpartID)
	}
	q += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.CounterpartID, &m.MsgID, &m.SenderID, &m.SenderName, &m.Body, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
