package viewport

// Decision is the outcome of the scroll-to-bottom policy.
type Decision int

const (
	// Stay leaves the reading position untouched.
	Stay Decision = iota
	// SmoothBottom scrolls to the newest message with animation.
	SmoothBottom
	// InstantBottom jumps to the newest message without animation.
	InstantBottom
)

// Change describes a message-set change for the scroll policy.
type Change struct {
	// Pagination marks a change caused by a history prepend; those are
	// handled exclusively by the anchor controller.
	Pagination bool
	// SelfSend is the one-shot flag armed when the viewer sent a message.
	SelfSend bool
	// FirstRender marks the very first render of a freshly opened room.
	FirstRender bool
	// UnreadPending means the first-unread centering still has to run.
	UnreadPending bool
	// NearBottom records whether the viewport was within the bottom
	// threshold before the change.
	NearBottom bool
}

// Decide applies the scroll-to-bottom priority order. First match wins:
// the viewer's own send always follows to the bottom; a fresh room with no
// unread marker lands at the bottom instantly; otherwise only a reader who
// was already at the bottom is pulled along, and someone reading older
// context is left alone.
func Decide(ch Change) Decision {
	if ch.Pagination {
		return Stay
	}
	if ch.SelfSend {
		return SmoothBottom
	}
	if ch.FirstRender {
		if ch.UnreadPending {
			return Stay // the unread centering owns this render
		}
		return InstantBottom
	}
	if !ch.UnreadPending && ch.NearBottom {
		return SmoothBottom
	}
	return Stay
}
