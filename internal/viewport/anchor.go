package viewport

// Anchor is the visual reference point captured before a history prepend.
// Anchoring to a specific message's offset (rather than raw height deltas)
// stays correct when image bubbles and wrapped lines make heights variable.
type Anchor struct {
	ID            string
	Offset        int // anchor message's distance from the viewport top
	ContentHeight int // total content height at capture time, for the fallback
}

// CaptureAnchor records the first message whose top edge lies inside the
// visible viewport and its offset from the viewport top. When nothing is
// visible it falls back to the very first rendered message. Returns false
// only for an empty thread.
func CaptureAnchor(g Geometry) (Anchor, bool) {
	if len(g.Items) == 0 {
		return Anchor{}, false
	}
	for _, it := range g.Items {
		if it.Top >= g.ScrollTop && it.Top < g.ScrollTop+g.ViewportHeight {
			return Anchor{ID: it.ID, Offset: it.Top - g.ScrollTop, ContentHeight: g.ContentHeight}, true
		}
	}
	first := g.Items[0]
	return Anchor{ID: first.ID, Offset: first.Top - g.ScrollTop, ContentHeight: g.ContentHeight}, true
}

// RestoreAnchor computes the scrollTop that puts the anchor message back at
// its recorded offset after the content has grown. If the anchor message is
// gone it falls back to shifting by the raw content growth.
func RestoreAnchor(g Geometry, a Anchor) int {
	for _, it := range g.Items {
		if it.ID == a.ID {
			return g.clamp(it.Top - a.Offset)
		}
	}
	return g.clamp(g.ScrollTop + (g.ContentHeight - a.ContentHeight))
}
