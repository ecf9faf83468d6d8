package cache

import (
	"fmt"
	"time"

	"github.com/feiralabs/feira/internal/model"
)

// SaveMessages upserts a batch of persisted messages (idempotent on
// room_id + msg_id). Placeholders are skipped; they have no server identity.
func (db *DB) SaveMessages(msgs []model.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	now := time.Now().UnixMilli()
	for i := range msgs {
		m := &msgs[i]
		if model.IsPlaceholderID(m.ID) {
			continue
		}
		var linkType, linkURL, linkLabel string
		if m.ActionLink != nil {
			linkType = string(m.ActionLink.Type)
			linkURL = m.ActionLink.URL
			linkLabel = m.ActionLink.Label
		}
		_, err := tx.Exec(`
			INSERT INTO messages (room_id, msg_id, kind, body, image_url, sender_id, sender_name, created_at, link_type, link_url, link_label, saved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(room_id, msg_id) DO UPDATE SET
				kind = excluded.kind,
				body = excluded.body,
				image_url = excluded.image_url,
				sender_name = excluded.sender_name`,
			m.RoomID, m.ID, string(m.Kind), m.Body, m.ImageURL, m.SenderID, m.SenderName, m.CreatedAt, linkType, linkURL, linkLabel, now)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// LoadMessages returns the newest messages for a room, newest first, the
// same wire order the backend uses.
func (db *DB) LoadMessages(roomID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT msg_id, room_id, kind, body, image_url, sender_id, sender_name, created_at, link_type, link_url, link_label
		FROM messages
		WHERE room_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var kind, linkType, linkURL, linkLabel string
		if err := rows.Scan(&m.ID, &m.RoomID, &kind, &m.Body, &m.ImageURL, &m.SenderID, &m.SenderName, &m.CreatedAt, &linkType, &linkURL, &linkLabel); err != nil {
			return nil, err
		}
		m.Kind = model.MessageKind(kind)
		if linkType != "" {
			m.ActionLink = &model.ActionLink{Type: model.ActionLinkType(linkType), URL: linkURL, Label: linkLabel}
		}
		m.Seen = true
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
