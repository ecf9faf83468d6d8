package backend

import (
	"context"

	"github.com/feiralabs/feira/internal/model"
)

// Client is the contract the conversation engine holds against the
// marketplace backend. Messages pages come back newest-first; rooms pages
// come back ordered by last activity descending.
type Client interface {
	FetchRoomsPage(ctx context.Context, userID string, kind model.RoomKind, limit, offset int) ([]model.Room, error)
	FetchMessagesPage(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error)
	SendTextMessage(ctx context.Context, roomID, senderID, text string) error
	SendImageMessage(ctx context.Context, roomID, senderID, imageData string) error
	MarkRoomSeen(ctx context.Context, roomID, userID string) error
	FetchRoomDetail(ctx context.Context, roomID string) (*model.RoomDetail, error)
}
