package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/feiralabs/feira/internal/model"
	"go.uber.org/zap"
)

// GraphQL talks to the marketplace GraphQL endpoint over HTTPS.
type GraphQL struct {
	endpoint string
	token    string
	http     *http.Client
	logger   *zap.Logger
}

// NewGraphQL creates a backend client for the given endpoint and auth token.
func NewGraphQL(endpoint, token string, logger *zap.Logger) *GraphQL {
	return &GraphQL{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

func (g *GraphQL) do(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("post graphql: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graphql http status %d", resp.StatusCode)
	}

	var envelope gqlResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("graphql: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// Wire shapes. The backend's field names differ from the in-memory model, so
// each operation maps explicitly.

type wireRoom struct {
	ID                  string `json:"id"`
	Kind                string `json:"kind"`
	DisplayName         string `json:"displayName"`
	Avatar              string `json:"avatar"`
	LastMessagePreview  string `json:"lastMessagePreview"`
	LastMessageAt       int64  `json:"lastMessageAt"`
	LastMessageSenderID string `json:"lastMessageSenderId"`
	UnseenCount         int    `json:"unseenCount"`
}

type wireActionLink struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Label string `json:"label"`
}

type wireMessage struct {
	ID         string          `json:"id"`
	RoomID     string          `json:"roomId"`
	Kind       string          `json:"kind"`
	Body       string          `json:"body"`
	ImageURL   string          `json:"imageUrl"`
	SenderID   string          `json:"senderId"`
	SenderName string          `json:"senderName"`
	CreatedAt  int64           `json:"createdAt"`
	ActionLink *wireActionLink `json:"actionLink"`
}

func (w *wireMessage) toModel() model.Message {
	m := model.Message{
		ID:         w.ID,
		RoomID:     w.RoomID,
		Kind:       model.MessageKind(w.Kind),
		Body:       w.Body,
		ImageURL:   w.ImageURL,
		SenderID:   w.SenderID,
		SenderName: w.SenderName,
		CreatedAt:  w.CreatedAt,
	}
	if m.Kind == "" {
		m.Kind = model.KindText
	}
	if w.ActionLink != nil {
		m.ActionLink = &model.ActionLink{
			Type:  model.ActionLinkType(w.ActionLink.Type),
			URL:   w.ActionLink.URL,
			Label: w.ActionLink.Label,
		}
	}
	return m
}

const roomsQuery = `query Rooms($userId: ID!, $kind: String, $limit: Int!, $offset: Int!) {
  rooms(userId: $userId, kind: $kind, limit: $limit, offset: $offset) {
    id kind displayName avatar lastMessagePreview lastMessageAt lastMessageSenderId unseenCount
  }
}`

// FetchRoomsPage returns one page of rooms ordered by last activity descending.
func (g *GraphQL) FetchRoomsPage(ctx context.Context, userID string, kind model.RoomKind, limit, offset int) ([]model.Room, error) {
	vars := map[string]any{"userId": userID, "limit": limit, "offset": offset}
	if kind != "" {
		vars["kind"] = string(kind)
	}
	var data struct {
		Rooms []wireRoom `json:"rooms"`
	}
	if err := g.do(ctx, roomsQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	rooms := make([]model.Room, 0, len(data.Rooms))
	for _, r := range data.Rooms {
		rooms = append(rooms, model.Room{
			ID:                  r.ID,
			Kind:                model.RoomKind(r.Kind),
			DisplayName:         r.DisplayName,
			Avatar:              r.Avatar,
			LastMessagePreview:  r.LastMessagePreview,
			LastMessageAt:       r.LastMessageAt,
			LastMessageSenderID: r.LastMessageSenderID,
			UnseenCount:         r.UnseenCount,
		})
	}
	return rooms, nil
}

const messagesQuery = `query Messages($roomId: ID!, $limit: Int!, $offset: Int!) {
  messages(roomId: $roomId, limit: $limit, offset: $offset) {
    id roomId kind body imageUrl senderId senderName createdAt
    actionLink { type url label }
  }
}`

// FetchMessagesPage returns one page of messages, newest first.
func (g *GraphQL) FetchMessagesPage(ctx context.Context, roomID string, limit, offset int) ([]model.Message, error) {
	var data struct {
		Messages []wireMessage `json:"messages"`
	}
	vars := map[string]any{"roomId": roomID, "limit": limit, "offset": offset}
	if err := g.do(ctx, messagesQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	msgs := make([]model.Message, 0, len(data.Messages))
	for i := range data.Messages {
		msgs = append(msgs, data.Messages[i].toModel())
	}
	return msgs, nil
}

const sendTextMutation = `mutation SendText($roomId: ID!, $senderId: ID!, $text: String!) {
  sendTextMessage(roomId: $roomId, senderId: $senderId, text: $text) { ok }
}`

// SendTextMessage persists a text message to the room.
func (g *GraphQL) SendTextMessage(ctx context.Context, roomID, senderID, text string) error {
	var data struct {
		SendTextMessage struct {
			OK bool `json:"ok"`
		} `json:"sendTextMessage"`
	}
	err := g.do(ctx, sendTextMutation, map[string]any{
		"roomId": roomID, "senderId": senderID, "text": text,
	}, &data)
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	if !data.SendTextMessage.OK {
		return fmt.Errorf("send text: rejected by backend")
	}
	return nil
}

const sendImageMutation = `mutation SendImage($roomId: ID!, $senderId: ID!, $imageData: String!) {
  sendImageMessage(roomId: $roomId, senderId: $senderId, imageData: $imageData) { ok }
}`

// SendImageMessage persists an image message. imageData is the full encoded
// payload; there is no separate upload step.
func (g *GraphQL) SendImageMessage(ctx context.Context, roomID, senderID, imageData string) error {
	var data struct {
		SendImageMessage struct {
			OK bool `json:"ok"`
		} `json:"sendImageMessage"`
	}
	err := g.do(ctx, sendImageMutation, map[string]any{
		"roomId": roomID, "senderId": senderID, "imageData": imageData,
	}, &data)
	if err != nil {
		return fmt.Errorf("send image: %w", err)
	}
	if !data.SendImageMessage.OK {
		return fmt.Errorf("send image: rejected by backend")
	}
	return nil
}

const markSeenMutation = `mutation MarkSeen($roomId: ID!, $userId: ID!) {
  markRoomSeen(roomId: $roomId, userId: $userId) { ok }
}`

// MarkRoomSeen zeroes the room's unseen count server-side.
func (g *GraphQL) MarkRoomSeen(ctx context.Context, roomID, userID string) error {
	if err := g.do(ctx, markSeenMutation, map[string]any{"roomId": roomID, "userId": userID}, nil); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

const roomDetailQuery = `query RoomDetail($roomId: ID!) {
  roomDetail(roomId: $roomId) { roomId memberIds adminId public }
}`

// FetchRoomDetail returns membership metadata for a room.
func (g *GraphQL) FetchRoomDetail(ctx context.Context, roomID string) (*model.RoomDetail, error) {
	var data struct {
		RoomDetail struct {
			RoomID    string   `json:"roomId"`
			MemberIDs []string `json:"memberIds"`
			AdminID   string   `json:"adminId"`
			Public    bool     `json:"public"`
		} `json:"roomDetail"`
	}
	if err := g.do(ctx, roomDetailQuery, map[string]any{"roomId": roomID}, &data); err != nil {
		return nil, fmt.Errorf("fetch room detail: %w", err)
	}
	return &model.RoomDetail{
		RoomID:    data.RoomDetail.RoomID,
		MemberIDs: data.RoomDetail.MemberIDs,
		AdminID:   data.RoomDetail.AdminID,
		Public:    data.RoomDetail.Public,
	}, nil
}
