package cache

import (
	"fmt"
	"time"

	"github.com/feiralabs/feira/internal/model"
)

// UpsertRoom inserts or updates a room record (idempotent on id).
func (db *DB) UpsertRoom(r *model.Room) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO rooms (id, kind, display_name, avatar, last_message_preview, last_message_at, last_message_sender_id, unseen_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			display_name = excluded.display_name,
			avatar = excluded.avatar,
			last_message_preview = excluded.last_message_preview,
			last_message_at = excluded.last_message_at,
			last_message_sender_id = excluded.last_message_sender_id,
			unseen_count = excluded.unseen_count,
			updated_at = excluded.updated_at`,
		r.ID, string(r.Kind), r.DisplayName, r.Avatar, r.LastMessagePreview, r.LastMessageAt, r.LastMessageSenderID, r.UnseenCount, now)
	return err
}

// SaveRooms upserts a batch inside a single transaction.
func (db *DB) SaveRooms(rooms []model.Room) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	now := time.Now().UnixMilli()
	for i := range rooms {
		r := &rooms[i]
		_, err := tx.Exec(`
			INSERT INTO rooms (id, kind, display_name, avatar, last_message_preview, last_message_at, last_message_sender_id, unseen_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				display_name = excluded.display_name,
				avatar = excluded.avatar,
				last_message_preview = excluded.last_message_preview,
				last_message_at = excluded.last_message_at,
				last_message_sender_id = excluded.last_message_sender_id,
				unseen_count = excluded.unseen_count,
				updated_at = excluded.updated_at`,
			r.ID, string(r.Kind), r.DisplayName, r.Avatar, r.LastMessagePreview, r.LastMessageAt, r.LastMessageSenderID, r.UnseenCount, now)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert room %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// LoadRooms returns cached rooms sorted by last message timestamp descending.
func (db *DB) LoadRooms(limit int) ([]model.Room, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, kind, display_name, avatar, last_message_preview, last_message_at, last_message_sender_id, unseen_count
		FROM rooms
		ORDER BY last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rooms []model.Room
	for rows.Next() {
		var r model.Room
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.DisplayName, &r.Avatar, &r.LastMessagePreview, &r.LastMessageAt, &r.LastMessageSenderID, &r.UnseenCount); err != nil {
			return nil, err
		}
		r.Kind = model.RoomKind(kind)
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}
