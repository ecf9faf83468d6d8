package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/feiralabs/feira/internal/backend"
	"github.com/feiralabs/feira/internal/bus"
	"github.com/feiralabs/feira/internal/model"
	"go.uber.org/zap"
)

// RoomJoiner subscribes the push channel to a room's events after the room
// is selected.
type RoomJoiner interface {
	JoinRoom(roomID string) error
}

// Archiver persists server-authoritative messages for offline warm starts.
// A nil archiver disables persistence.
type Archiver interface {
	SaveMessages(msgs []model.Message) error
	LoadMessages(roomID string, limit int) ([]model.Message, error)
}

// Params configures the engine.
type Params struct {
	UserID        string
	UserName      string
	PageSize      int
	ReconcileTail int
	Windows       Windows
	MaxImageBytes int64
}

// Engine owns the conversation session for the currently selected room and
// funnels all three update sources — history pages, optimistic local echoes,
// and push-triggered reconciling fetches — through the message store.
// Responses that resolve after the user has switched rooms are discarded by
// comparing the room id captured at request time against the current
// selection at resolution time.
type Engine struct {
	mu sync.Mutex

	params  Params
	backend backend.Client
	joiner  RoomJoiner
	archive Archiver
	bus     *bus.Bus
	logger  *zap.Logger

	session *Session
}

// NewEngine creates a conversation engine. joiner and archive may be nil.
func NewEngine(p Params, be backend.Client, joiner RoomJoiner, archive Archiver, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.ReconcileTail <= 0 {
		p.ReconcileTail = p.PageSize
	}
	if p.MaxImageBytes <= 0 {
		p.MaxImageBytes = 10 << 20
	}
	return &Engine{params: p, backend: be, joiner: joiner, archive: archive, bus: b, logger: logger}
}

// SelectRoom tears down any previous session and builds a fresh one for the
// room: loads the first history page, computes the unread boundary from the
// room's unseen count, joins the push room, and zeroes the unseen count
// remotely. A response arriving after another switch is discarded.
func (e *Engine) SelectRoom(ctx context.Context, room model.Room) error {
	e.mu.Lock()
	sess := NewSession(room.ID, e.params.UserID, e.params.Windows, e.params.PageSize)
	e.session = sess
	sess.Pager.TryBeginFirst()
	e.mu.Unlock()

	if e.joiner != nil {
		if err := e.joiner.JoinRoom(room.ID); err != nil {
			e.logger.Warn("join room failed", zap.String("room", room.ID), zap.Error(err))
		}
	}

	// Warm start: render the cached page while the network fetch is in
	// flight. The fetched page replaces it wholesale.
	if e.archive != nil {
		if cached, err := e.archive.LoadMessages(room.ID, e.params.PageSize); err == nil && len(cached) > 0 {
			e.mu.Lock()
			if e.session == sess {
				sess.Store.ResetLoad(cached, room.UnseenCount)
				if sess.Store.HasUnread() {
					sess.SetUnreadPending()
				}
			}
			e.mu.Unlock()
			e.publish(bus.KindConvLoaded, room.ID)
		}
	}

	page, err := e.backend.FetchMessagesPage(ctx, room.ID, e.params.PageSize, 0)

	e.mu.Lock()
	if e.session != sess {
		e.mu.Unlock()
		return nil // stale: user already moved on
	}
	if err != nil {
		sess.Pager.Abort()
		e.mu.Unlock()
		return fmt.Errorf("load room %s: %w", room.ID, err)
	}
	sess.Store.ResetLoad(page, room.UnseenCount)
	if sess.Store.HasUnread() {
		sess.SetUnreadPending()
	}
	sess.Pager.Complete(len(page))
	e.mu.Unlock()

	e.archiveMessages(page)
	e.publish(bus.KindConvLoaded, room.ID)

	go e.markSeen(room.ID)
	go e.checkMakePublicPrompt(room.ID, len(page))

	return nil
}

// HandlePush reacts to a push notification carrying only a room id. If the
// notified room is the open one, the newest tail is re-fetched and
// reconciled; otherwise false is returned so the caller can bump the room
// directory's unseen badge instead.
func (e *Engine) HandlePush(ctx context.Context, roomID string) (bool, error) {
	e.mu.Lock()
	sess := e.session
	if sess == nil || sess.RoomID != roomID {
		e.mu.Unlock()
		return false, nil
	}
	e.mu.Unlock()

	tail, err := e.backend.FetchMessagesPage(ctx, roomID, e.params.ReconcileTail, 0)

	e.mu.Lock()
	if e.session != sess {
		e.mu.Unlock()
		return true, nil // stale fetch for a room no longer open
	}
	if err != nil {
		e.mu.Unlock()
		return true, fmt.Errorf("reconcile fetch room %s: %w", roomID, err)
	}
	changed := sess.Store.ReconcileIncoming(tail)
	e.mu.Unlock()

	if changed {
		e.archiveMessages(tail)
		e.publish(bus.KindConvMessagesChanged, roomID)
	}
	return true, nil
}

// LoadOlder fetches the next older history page and prepends it. No-op when
// a load is already in flight or history is exhausted. Returns the number
// of prepended messages.
func (e *Engine) LoadOlder(ctx context.Context) (int, error) {
	e.mu.Lock()
	sess := e.session
	if sess == nil {
		e.mu.Unlock()
		return 0, ErrNoRoom
	}
	offset, ok := sess.Pager.TryBeginMore()
	e.mu.Unlock()
	if !ok {
		return 0, nil
	}

	page, err := e.backend.FetchMessagesPage(ctx, sess.RoomID, e.params.PageSize, offset)

	e.mu.Lock()
	if e.session != sess {
		sess.Pager.Abort()
		e.mu.Unlock()
		return 0, nil
	}
	if err != nil {
		sess.Pager.Abort()
		e.mu.Unlock()
		return 0, fmt.Errorf("load older: %w", err)
	}
	added := sess.Store.PrependOlder(page)
	sess.Pager.Complete(len(page))
	e.mu.Unlock()

	e.archiveMessages(page)
	if added > 0 {
		e.publish(bus.KindConvPrepended, added)
	}
	return added, nil
}

// markSeen zeroes the unseen count remotely; errors are logged only, the
// local decrement already happened in the directory.
func (e *Engine) markSeen(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.backend.MarkRoomSeen(ctx, roomID, e.params.UserID); err != nil {
		e.logger.Warn("mark room seen failed", zap.String("room", roomID), zap.Error(err))
	}
}

// checkMakePublicPrompt asks for room metadata and, for an empty private
// room administered by the viewer, prompts to make it public.
func (e *Engine) checkMakePublicPrompt(roomID string, messageCount int) {
	if messageCount != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	detail, err := e.backend.FetchRoomDetail(ctx, roomID)
	if err != nil {
		e.logger.Warn("room detail fetch failed", zap.String("room", roomID), zap.Error(err))
		return
	}
	e.mu.Lock()
	stillOpen := e.session != nil && e.session.RoomID == roomID
	e.mu.Unlock()
	if stillOpen && !detail.Public && detail.AdminID == e.params.UserID {
		e.publish(bus.KindConvMakePublicPrompt, roomID)
	}
}

func (e *Engine) archiveMessages(msgs []model.Message) {
	if e.archive == nil || len(msgs) == 0 {
		return
	}
	if err := e.archive.SaveMessages(msgs); err != nil {
		e.logger.Warn("archive messages failed", zap.Error(err))
	}
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// RoomID returns the open room's id, or empty when no room is selected.
func (e *Engine) RoomID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ""
	}
	return e.session.RoomID
}

// Messages returns a snapshot of the open room's sequence.
func (e *Engine) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.Store.Messages()
}

// FirstUnread returns the unread boundary marker id for the open room.
func (e *Engine) FirstUnread() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return "", false
	}
	return e.session.Store.FirstUnreadID(), e.session.Store.HasUnread()
}

// HasMoreHistory reports whether older pages remain for the open room.
func (e *Engine) HasMoreHistory() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil && e.session.Pager.HasMore()
}

// WithSession runs fn with the current session under the engine lock. fn
// must not block; it exists for the view layer to read and flip the
// session's render/anchor/unread flags atomically. No-op when no room is
// open.
func (e *Engine) WithSession(fn func(*Session)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		fn(e.session)
	}
}
