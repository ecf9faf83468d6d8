package viewport

// DefaultUnreadNudge is how far above exact center the unread marker lands,
// revealing a line of preceding context.
const DefaultUnreadNudge = 50

// CenterOnUnread computes the scrollTop that centers the unread-boundary
// marker vertically, nudged up slightly. Returns false when the marker is
// not rendered.
func CenterOnUnread(g Geometry, markerID string, nudge int) (int, bool) {
	for _, it := range g.Items {
		if it.ID == markerID {
			center := it.Top + it.Height/2 - g.ViewportHeight/2
			return g.clamp(center - nudge), true
		}
	}
	return 0, false
}
