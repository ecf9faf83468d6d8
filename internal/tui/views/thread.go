package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/feiralabs/feira/internal/model"
	"github.com/feiralabs/feira/internal/tui/ui"
	"github.com/feiralabs/feira/internal/viewport"
)

const fallbackWidth = 80

// Thread renders a conversation as a scrollable column of message bubbles.
// It owns the scroll position and reports row geometry so anchor restore,
// unread centering and the auto-scroll policy operate on exact item offsets.
type Thread struct {
	*tview.TextView
	theme  *ui.Theme
	selfID string

	topThreshold    int
	bottomThreshold int

	items         []viewport.Item
	contentHeight int
	scrollTop     int
	viewHeight    int

	links     map[string]model.ActionLink
	linkOrder []string
	linkIdx   int

	onNearTop    func()
	onActionLink func(link model.ActionLink)
	onRetry      func()
}

// NewThread creates a thread view. Thresholds are in rows.
func NewThread(theme *ui.Theme, topThreshold, bottomThreshold int) *Thread {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetScrollable(true).
		SetWrap(false)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Messages ")
	tv.SetTitleColor(theme.TitleColor)

	t := &Thread{
		TextView:        tv,
		theme:           theme,
		topThreshold:    topThreshold,
		bottomThreshold: bottomThreshold,
		links:           map[string]model.ActionLink{},
	}
	tv.SetInputCapture(t.handleKey)
	return t
}

// SetSelfID marks which sender renders as "You".
func (t *Thread) SetSelfID(id string) { t.selfID = id }

// SetTitleName updates the room title.
func (t *Thread) SetTitleName(name string) {
	t.SetTitle(fmt.Sprintf(" %s ", name))
}

// SetOnNearTop sets the callback fired when the view scrolls into the
// top threshold.
func (t *Thread) SetOnNearTop(fn func()) { t.onNearTop = fn }

// SetOnActionLink sets the callback fired when a link button is activated.
func (t *Thread) SetOnActionLink(fn func(link model.ActionLink)) { t.onActionLink = fn }

// SetOnRetry sets the callback fired to retry the latest failed upload.
func (t *Thread) SetOnRetry(fn func()) { t.onRetry = fn }

// Render rebuilds the view from the message list. firstUnreadID places the
// new-messages divider; empty means no divider. The scroll position is left
// untouched; callers apply the scroll policy afterwards.
func (t *Thread) Render(msgs []model.Message, firstUnreadID string) {
	width := t.innerWidth()
	t.Clear()
	t.items = t.items[:0]
	t.links = map[string]model.ActionLink{}
	t.linkOrder = t.linkOrder[:0]
	t.linkIdx = -1

	var b strings.Builder
	top := 0
	for i := range msgs {
		m := &msgs[i]
		lines := t.renderMessage(&b, m, firstUnreadID, width)
		t.items = append(t.items, viewport.Item{ID: m.ID, Top: top, Height: lines})
		top += lines
	}
	t.contentHeight = top
	_, _ = fmt.Fprint(t.TextView, b.String())
	t.applyScroll(t.scrollTop)
}

// renderMessage appends one message's rows to b and returns how many rows
// it occupies, divider and trailing blank included.
func (t *Thread) renderMessage(b *strings.Builder, m *model.Message, firstUnreadID string, width int) int {
	lines := 0
	if m.ID == firstUnreadID {
		fmt.Fprintf(b, "[%s]── new messages ──[-]\n", colorTag(t.theme.UnreadColor))
		lines++
	}

	switch m.Kind {
	case model.KindSystem:
		for _, l := range wrapLines(sanitizeForTerminal(m.Body), width) {
			fmt.Fprintf(b, "[%s]· %s[-]\n", colorTag(t.theme.SystemColor), tview.Escape(l))
			lines++
		}
	case model.KindError:
		fmt.Fprintf(b, "[%s]! send failed: %s[-]\n", colorTag(t.theme.ErrorColor), tview.Escape(sanitizeForTerminal(m.FailReason)))
		lines++
	default:
		lines += t.renderHeader(b, m)
		lines += t.renderBody(b, m, width)
	}

	if m.ActionLink != nil && m.ActionLink.Renderable() {
		region := "link:" + m.ID
		t.links[region] = *m.ActionLink
		t.linkOrder = append(t.linkOrder, region)
		fmt.Fprintf(b, `["%s"][%s]‹%s›[-][""]`+"\n", region, colorTag(t.theme.LinkColor), tview.Escape(m.ActionLink.Label))
		lines++
	}

	b.WriteString("\n")
	return lines + 1
}

func (t *Thread) renderHeader(b *strings.Builder, m *model.Message) int {
	sender := m.SenderName
	if sender == "" {
		sender = m.SenderID
	}
	color := colorTag(t.theme.FgColor)
	if m.SenderID == t.selfID {
		sender = "You"
		color = colorTag(t.theme.SelfColor)
	}
	ts := formatTimestamp(m.CreatedAt)
	if model.IsPlaceholderID(m.ID) {
		ts = "sending…"
	}
	fmt.Fprintf(b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n", color, tview.Escape(sanitizeForTerminal(sender)), ts)
	return 1
}

func (t *Thread) renderBody(b *strings.Builder, m *model.Message, width int) int {
	switch m.Kind {
	case model.KindImage:
		fmt.Fprintf(b, "[%s][image] %s[-]\n", colorTag(t.theme.LinkColor), tview.Escape(m.ImageURL))
		return 1
	case model.KindLoading:
		fmt.Fprintf(b, "[%s][uploading image…][-]\n", colorTag(t.theme.PendingColor))
		return 1
	default:
		body := sanitizeForTerminal(m.Body)
		wrapped := wrapLines(body, width)
		for _, l := range wrapped {
			fmt.Fprintf(b, "%s\n", tview.Escape(l))
		}
		return len(wrapped)
	}
}

// Geometry snapshots the current row layout.
func (t *Thread) Geometry() viewport.Geometry {
	_, _, _, h := t.GetInnerRect()
	if h <= 0 {
		h = t.viewHeight
	}
	t.viewHeight = h
	items := make([]viewport.Item, len(t.items))
	copy(items, t.items)
	return viewport.Geometry{
		ViewportHeight: h,
		ScrollTop:      t.scrollTop,
		ContentHeight:  t.contentHeight,
		Items:          items,
	}
}

// ScrollToOffset scrolls so the given row is the first visible one.
func (t *Thread) ScrollToOffset(top int) {
	t.applyScroll(top)
}

// ScrollToBottom pins the view to the newest message. Terminals have no
// smooth scrolling, so both policy decisions land here.
func (t *Thread) ScrollToBottom() {
	g := t.Geometry()
	t.applyScroll(g.MaxScrollTop())
}

// AtBottom reports whether the view is within the bottom threshold.
func (t *Thread) AtBottom() bool {
	return t.Geometry().NearBottom(t.bottomThreshold)
}

func (t *Thread) applyScroll(top int) {
	g := t.Geometry()
	max := g.MaxScrollTop()
	if top > max {
		top = max
	}
	if top < 0 {
		top = 0
	}
	t.scrollTop = top
	t.ScrollTo(top, 0)
}

func (t *Thread) scrollBy(delta int) {
	t.applyScroll(t.scrollTop + delta)
	if delta < 0 && t.onNearTop != nil && t.Geometry().NearTop(t.topThreshold) {
		t.onNearTop()
	}
}

func (t *Thread) handleKey(event *tcell.EventKey) *tcell.EventKey {
	_, _, _, h := t.GetInnerRect()
	if h <= 0 {
		h = 1
	}
	switch event.Key() {
	case tcell.KeyUp:
		t.scrollBy(-1)
	case tcell.KeyDown:
		t.scrollBy(1)
	case tcell.KeyPgUp:
		t.scrollBy(-h)
	case tcell.KeyPgDn:
		t.scrollBy(h)
	case tcell.KeyHome:
		t.scrollBy(-t.contentHeight)
	case tcell.KeyEnd:
		t.applyScroll(t.contentHeight)
	case tcell.KeyTab:
		t.cycleLink(1)
	case tcell.KeyBacktab:
		t.cycleLink(-1)
	case tcell.KeyEnter:
		t.activateLink()
	case tcell.KeyRune:
		switch event.Rune() {
		case 'k':
			t.scrollBy(-1)
		case 'j':
			t.scrollBy(1)
		case 'g':
			t.scrollBy(-t.contentHeight)
		case 'G':
			t.applyScroll(t.contentHeight)
		case 'r':
			if t.onRetry != nil {
				t.onRetry()
			}
		default:
			return event
		}
	default:
		return event
	}
	return nil
}

func (t *Thread) cycleLink(dir int) {
	if len(t.linkOrder) == 0 {
		return
	}
	t.linkIdx = (t.linkIdx + dir + len(t.linkOrder)) % len(t.linkOrder)
	t.Highlight(t.linkOrder[t.linkIdx])
}

func (t *Thread) activateLink() {
	if t.linkIdx < 0 || t.linkIdx >= len(t.linkOrder) || t.onActionLink == nil {
		return
	}
	t.onActionLink(t.links[t.linkOrder[t.linkIdx]])
}

func (t *Thread) innerWidth() int {
	_, _, w, _ := t.GetInnerRect()
	if w <= 0 {
		w = fallbackWidth
	}
	return w
}

func colorTag(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}

// wrapLines greedily word-wraps s to the given width. Words longer than a
// full row are hard-broken. The result always has at least one line so every
// message occupies a row.
func wrapLines(s string, width int) []string {
	if width <= 0 {
		width = fallbackWidth
	}
	var out []string
	for _, raw := range strings.Split(s, "\n") {
		words := strings.Fields(raw)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, w := range words {
			for len([]rune(w)) > width {
				r := []rune(w)
				if line != "" {
					out = append(out, line)
					line = ""
				}
				out = append(out, string(r[:width]))
				w = string(r[width:])
			}
			switch {
			case line == "":
				line = w
			case len([]rune(line))+1+len([]rune(w)) <= width:
				line += " " + w
			default:
				out = append(out, line)
				line = w
			}
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}
