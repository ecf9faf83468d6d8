package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageKind distinguishes message bodies.
type MessageKind string

const (
	KindText    MessageKind = "text"
	KindImage   MessageKind = "image"
	KindSystem  MessageKind = "system"
	KindLoading MessageKind = "loading"
	KindError   MessageKind = "error"
)

// RoomKind distinguishes room types.
type RoomKind string

const (
	RoomGroup     RoomKind = "group"
	RoomPrivate   RoomKind = "private"
	RoomAnonymous RoomKind = "anonymous"
	RoomPool      RoomKind = "pool"
)

// ActionLinkType enumerates the call-to-action variants a message can carry.
type ActionLinkType string

const (
	LinkInternal       ActionLinkType = "internal"
	LinkInternalNAC    ActionLinkType = "internal_nac"
	LinkInternalNAB    ActionLinkType = "internal_nab"
	LinkInternalNABNAC ActionLinkType = "internal_nab_nac"
	LinkExternal       ActionLinkType = "external"
	LinkExternalNAC    ActionLinkType = "external_nac"
	LinkJSON           ActionLinkType = "json"
	LinkYouTube        ActionLinkType = "youtube"
)

// ActionLink is an optional call-to-action attached to a message.
type ActionLink struct {
	Type  ActionLinkType
	URL   string
	Label string
}

// Renderable reports whether the link type is one the client knows how to
// render as a button. Unknown types are ignored, not errors.
func (a *ActionLink) Renderable() bool {
	if a == nil {
		return false
	}
	switch a.Type {
	case LinkInternal, LinkInternalNAC, LinkInternalNAB, LinkInternalNABNAC,
		LinkExternal, LinkExternalNAC, LinkJSON, LinkYouTube:
		return true
	}
	return false
}

// Message represents one entry in a room's conversation.
type Message struct {
	ID         string
	RoomID     string
	Kind       MessageKind
	Body       string
	ImageURL   string
	SenderID   string
	SenderName string
	CreatedAt  int64 // unix milliseconds
	Seen       bool
	ActionLink *ActionLink
	FailReason string
}

// Time returns the creation timestamp as time.Time.
func (m *Message) Time() time.Time {
	return time.UnixMilli(m.CreatedAt)
}

// placeholderPrefix marks locally created, not-yet-persisted messages.
const placeholderPrefix = "local-"

// NewPlaceholderID generates a locally unique id for an optimistic message.
// The creation time is encoded in the id so it survives without the struct.
func NewPlaceholderID(at time.Time) string {
	return placeholderPrefix + strconv.FormatInt(at.UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}

// IsPlaceholderID reports whether the id was generated locally.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}

// PlaceholderTime extracts the creation time encoded in a placeholder id.
// Returns zero time for non-placeholder ids.
func PlaceholderTime(id string) time.Time {
	if !IsPlaceholderID(id) {
		return time.Time{}
	}
	rest := strings.TrimPrefix(id, placeholderPrefix)
	if i := strings.IndexByte(rest, '-'); i > 0 {
		if ms, err := strconv.ParseInt(rest[:i], 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}

// IsPlaceholder reports whether the message is an unresolved local echo.
func (m *Message) IsPlaceholder() bool {
	return IsPlaceholderID(m.ID)
}

// Room represents a chat container the user belongs to.
type Room struct {
	ID                  string
	Kind                RoomKind
	DisplayName         string
	Avatar              string
	LastMessagePreview  string
	LastMessageAt       int64
	LastMessageSenderID string
	UnseenCount         int
}

// RoomDetail carries room metadata consumed on open.
type RoomDetail struct {
	RoomID    string
	MemberIDs []string
	AdminID   string
	Public    bool
}
