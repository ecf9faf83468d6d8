package conversation

import (
	"sort"
	"time"

	"github.com/feiralabs/feira/internal/model"
)

// Windows holds the reconciliation matching heuristics. A placeholder is
// resolved against a persisted echo when sender and content match within
// Text (or Image, for uploads); a non-placeholder message with the same
// sender and content arriving within Duplicate of an existing entry is
// treated as a redundant copy.
type Windows struct {
	Text      time.Duration
	Image     time.Duration
	Duplicate time.Duration
}

// DefaultWindows mirrors the configuration defaults.
func DefaultWindows() Windows {
	return Windows{Text: 10 * time.Second, Image: 15 * time.Second, Duplicate: time.Second}
}

// Store is the ordered, deduplicated in-memory message sequence for the
// currently open room. Messages are kept sorted by CreatedAt ascending,
// ties broken by arrival order. The store is not safe for concurrent use;
// the engine serializes access.
type Store struct {
	selfID  string
	windows Windows

	messages      []model.Message
	hasUnread     bool
	firstUnreadID string
}

// NewStore creates an empty store for a room viewed by selfID.
func NewStore(selfID string, w Windows) *Store {
	return &Store{selfID: selfID, windows: w}
}

// ResetLoad replaces the full sequence with the first history page. The page
// arrives newest-first from the backend and is reversed before storage.
// The last unseenCount messages not authored by the viewer are marked
// unseen; the earliest of those becomes the unread boundary.
func (s *Store) ResetLoad(pageNewestFirst []model.Message, unseenCount int) {
	msgs := reverseCopy(pageNewestFirst)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt < msgs[j].CreatedAt })

	for i := range msgs {
		msgs[i].Seen = true
	}

	s.hasUnread = false
	s.firstUnreadID = ""
	if unseenCount > 0 {
		remaining := unseenCount
		for i := len(msgs) - 1; i >= 0 && remaining > 0; i-- {
			if msgs[i].SenderID == s.selfID {
				continue
			}
			msgs[i].Seen = false
			s.firstUnreadID = msgs[i].ID
			remaining--
		}
		s.hasUnread = s.firstUnreadID != ""
	}

	s.messages = msgs
}

// PrependOlder inserts an older history page before the current head.
// The page arrives newest-first; history is always marked seen. Entries
// already present are skipped so existing message identity is untouched.
func (s *Store) PrependOlder(pageNewestFirst []model.Message) int {
	older := reverseCopy(pageNewestFirst)

	present := make(map[string]struct{}, len(s.messages))
	for i := range s.messages {
		present[s.messages[i].ID] = struct{}{}
	}

	kept := older[:0]
	for _, m := range older {
		if _, dup := present[m.ID]; dup {
			continue
		}
		m.Seen = true
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return 0
	}

	merged := make([]model.Message, 0, len(kept)+len(s.messages))
	merged = append(merged, kept...)
	merged = append(merged, s.messages...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].CreatedAt < merged[j].CreatedAt })
	s.messages = merged
	return len(kept)
}

// AppendOptimistic pushes a local placeholder to the tail ahead of any
// network round-trip.
func (s *Store) AppendOptimistic(placeholder model.Message) {
	placeholder.Seen = true
	s.messages = append(s.messages, placeholder)
}

// ReconcileIncoming merges a freshly fetched tail (newest-first) into the
// store. Placeholders matching a persisted echo are replaced in place,
// duplicates are suppressed, and genuinely new messages are appended.
// The operation is idempotent: reconciling the same tail twice leaves the
// store unchanged after the first application. Returns whether anything
// changed.
func (s *Store) ReconcileIncoming(tailNewestFirst []model.Message) bool {
	fresh := reverseCopy(tailNewestFirst)
	changed := false

	for _, f := range fresh {
		f.Seen = true

		if i, ok := s.matchPlaceholder(f); ok {
			s.messages[i] = f
			changed = true
			continue
		}
		if s.isDuplicate(f) {
			continue
		}
		if len(s.messages) == 0 || f.CreatedAt > s.messages[len(s.messages)-1].CreatedAt {
			s.messages = append(s.messages, f)
			changed = true
		}
	}

	if changed {
		sort.SliceStable(s.messages, func(i, j int) bool { return s.messages[i].CreatedAt < s.messages[j].CreatedAt })
	}
	return changed
}

// matchPlaceholder finds an unresolved local echo the fresh message settles.
func (s *Store) matchPlaceholder(f model.Message) (int, bool) {
	for i := range s.messages {
		p := &s.messages[i]
		if !p.IsPlaceholder() || p.SenderID != f.SenderID {
			continue
		}
		delta := absDuration(time.Duration(f.CreatedAt-p.CreatedAt) * time.Millisecond)
		switch {
		case p.Kind == model.KindText && f.Kind == model.KindText && p.Body == f.Body && delta <= s.windows.Text:
			return i, true
		case p.Kind == model.KindLoading && f.Kind == model.KindImage && delta <= s.windows.Image:
			return i, true
		}
	}
	return 0, false
}

func (s *Store) isDuplicate(f model.Message) bool {
	for i := range s.messages {
		m := &s.messages[i]
		if m.ID == f.ID {
			return true
		}
		if m.SenderID == f.SenderID && m.Kind == f.Kind && m.Body == f.Body &&
			absDuration(time.Duration(f.CreatedAt-m.CreatedAt)*time.Millisecond) <= s.windows.Duplicate {
			return true
		}
	}
	return false
}

// ReplaceWithError mutates a placeholder in place into an error bubble so
// the user keeps a record of the failed attempt.
func (s *Store) ReplaceWithError(placeholderID, reason string) bool {
	for i := range s.messages {
		if s.messages[i].ID == placeholderID {
			s.messages[i].Kind = model.KindError
			s.messages[i].FailReason = reason
			return true
		}
	}
	return false
}

// RemovePlaceholder deletes a placeholder (text-send rollback). Returns the
// removed body so the caller can restore the compose input.
func (s *Store) RemovePlaceholder(placeholderID string) (string, bool) {
	for i := range s.messages {
		if s.messages[i].ID == placeholderID {
			body := s.messages[i].Body
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return body, true
		}
	}
	return "", false
}

// Messages returns a copy of the current sequence, ascending by CreatedAt.
func (s *Store) Messages() []model.Message {
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int { return len(s.messages) }

// HasUnread reports whether the room was opened with unseen messages.
func (s *Store) HasUnread() bool { return s.hasUnread }

// FirstUnreadID returns the unread boundary marker, or empty.
func (s *Store) FirstUnreadID() string { return s.firstUnreadID }

func reverseCopy(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
