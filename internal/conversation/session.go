package conversation

import "fmt"

// AnchorState tracks the pagination anchoring machine. While Anchoring,
// the auto-scroll-to-bottom policy is suppressed.
type AnchorState int

const (
	AnchorIdle AnchorState = iota
	Anchoring
)

// UnreadScroll tracks the once-per-session first-unread centering.
type UnreadScroll int

const (
	// UnreadNone means the room opened with nothing unseen; centering
	// never runs.
	UnreadNone UnreadScroll = iota
	// UnreadPending means centering is owed after the initial render.
	UnreadPending
	// UnreadDone is terminal; the effect never re-fires for this session.
	UnreadDone
)

// Session is the ephemeral per-open-room state. It is created when a room
// is selected and discarded wholesale on room switch, which is what keeps
// pagination cursors, anchor flags, and unread state from leaking across
// rooms.
type Session struct {
	RoomID string
	Store  *Store
	Pager  *Paginator

	anchor        AnchorState
	unread        UnreadScroll
	renderedOnce  bool
	selfSend      bool // one-shot, set at send time, consumed by the scroll policy
	failedUploads map[string]pendingUpload
}

// pendingUpload retains a failed image payload keyed by its error bubble's
// id so the send can be retried.
type pendingUpload struct {
	mime string
	data []byte
}

func (s *Session) stashUpload(id, mime string, data []byte) {
	if s.failedUploads == nil {
		s.failedUploads = map[string]pendingUpload{}
	}
	s.failedUploads[id] = pendingUpload{mime: mime, data: data}
}

func (s *Session) takeUpload(id string) (pendingUpload, bool) {
	u, ok := s.failedUploads[id]
	if ok {
		delete(s.failedUploads, id)
	}
	return u, ok
}

// NewSession builds a fresh session for roomID.
func NewSession(roomID, selfID string, w Windows, pageSize int) *Session {
	return &Session{
		RoomID: roomID,
		Store:  NewStore(selfID, w),
		Pager:  NewPaginator(pageSize),
		unread: UnreadNone,
	}
}

// BeginAnchoring enters the pagination-anchoring state.
func (s *Session) BeginAnchoring() error {
	if s.anchor != AnchorIdle {
		return fmt.Errorf("anchoring already in progress")
	}
	s.anchor = Anchoring
	return nil
}

// EndAnchoring returns to idle after the anchor has been restored.
func (s *Session) EndAnchoring() {
	s.anchor = AnchorIdle
}

// IsAnchoring reports whether a prepend-and-restore cycle is in progress.
func (s *Session) IsAnchoring() bool { return s.anchor == Anchoring }

// SetUnreadPending arms the first-unread centering. Called once, at load,
// when the room came in with unseen messages.
func (s *Session) SetUnreadPending() {
	if s.unread == UnreadNone {
		s.unread = UnreadPending
	}
}

// UnreadScrollState returns the centering machine's state.
func (s *Session) UnreadScrollState() UnreadScroll { return s.unread }

// MarkUnreadScrolled makes the centering terminal. Later re-renders, late
// pushes included, must not re-fire it.
func (s *Session) MarkUnreadScrolled() {
	s.unread = UnreadDone
}

// UnreadSettled reports that centering has either run or was never needed.
func (s *Session) UnreadSettled() bool { return s.unread != UnreadPending }

// MarkRendered records that the initial history render happened. Returns
// true the first time only.
func (s *Session) MarkRendered() bool {
	if s.renderedOnce {
		return false
	}
	s.renderedOnce = true
	return true
}

// RenderedOnce reports whether the first render is behind us.
func (s *Session) RenderedOnce() bool { return s.renderedOnce }

// MarkSelfSend arms the one-shot own-send flag at call time.
func (s *Session) MarkSelfSend() { s.selfSend = true }

// ConsumeSelfSend reads and clears the own-send flag.
func (s *Session) ConsumeSelfSend() bool {
	v := s.selfSend
	s.selfSend = false
	return v
}
