// Package viewport holds the scroll geometry logic for the message thread:
// anchor capture/restore across history prepends, the once-per-session
// first-unread centering, and the scroll-to-bottom policy. All functions are
// pure over a Geometry snapshot so any renderer (pixel- or row-based) can
// drive them.
package viewport

// Item is one rendered message's vertical extent, in the renderer's units.
type Item struct {
	ID     string
	Top    int
	Height int
}

// Geometry is a snapshot of the rendered thread at one instant.
type Geometry struct {
	ViewportHeight int
	ScrollTop      int
	ContentHeight  int
	Items          []Item // ascending by Top
}

// NearTop reports whether the viewport is within threshold of the content's
// top edge (the trigger for loading older history).
func (g Geometry) NearTop(threshold int) bool {
	return g.ScrollTop <= threshold
}

// NearBottom reports whether the viewport is within threshold of the
// content's bottom edge.
func (g Geometry) NearBottom(threshold int) bool {
	return g.ContentHeight-(g.ScrollTop+g.ViewportHeight) <= threshold
}

// MaxScrollTop returns the largest meaningful scrollTop.
func (g Geometry) MaxScrollTop() int {
	m := g.ContentHeight - g.ViewportHeight
	if m < 0 {
		return 0
	}
	return m
}

func (g Geometry) clamp(scrollTop int) int {
	if scrollTop < 0 {
		return 0
	}
	if m := g.MaxScrollTop(); scrollTop > m {
		return m
	}
	return scrollTop
}
