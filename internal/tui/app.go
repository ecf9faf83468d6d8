// Package tui is the terminal front end. It is a thin projection of engine
// state: every mutation flows through the conversation engine or the room
// directory, and the views redraw on bus events.
package tui

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/feiralabs/feira/internal/bus"
	"github.com/feiralabs/feira/internal/conversation"
	"github.com/feiralabs/feira/internal/directory"
	"github.com/feiralabs/feira/internal/model"
	tuimodel "github.com/feiralabs/feira/internal/tui/model"
	"github.com/feiralabs/feira/internal/tui/ui"
	"github.com/feiralabs/feira/internal/tui/views"
	"github.com/feiralabs/feira/internal/viewport"
)

const (
	refreshInterval = 30 * time.Second
	flashDuration   = 5 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app    *tview.Application
	pages  *tview.Pages
	theme  *ui.Theme
	flash  *tuimodel.Flash
	logger *zap.Logger

	engine *conversation.Engine
	dir    *directory.Directory
	bus    *bus.Bus

	statusBar *views.StatusBar
	roomList  *views.RoomList
	thread    *views.Thread
	composer  *views.Composer
	searchIn  *tview.InputField

	anchor    viewport.Anchor
	hasAnchor bool

	bottomThreshold int

	ctx    context.Context
	cancel context.CancelFunc
}

// Options configures the application shell.
type Options struct {
	Profile         string
	SelfID          string
	TopThreshold    int
	BottomThreshold int
}

// NewApp creates the TUI application.
func NewApp(opts Options, eng *conversation.Engine, dir *directory.Directory, b *bus.Bus, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:             tview.NewApplication(),
		pages:           tview.NewPages(),
		theme:           theme,
		flash:           &tuimodel.Flash{},
		logger:          logger,
		engine:          eng,
		dir:             dir,
		bus:             b,
		statusBar:       views.NewStatusBar(),
		roomList:        views.NewRoomList(),
		thread:          views.NewThread(theme, opts.TopThreshold, opts.BottomThreshold),
		composer:        views.NewComposer(),
		bottomThreshold: opts.BottomThreshold,
		ctx:             ctx,
		cancel:          cancel,
	}

	a.thread.SetSelfID(opts.SelfID)
	a.statusBar.SetProfile(opts.Profile)
	a.setupSearch()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupSearch() {
	a.searchIn = tview.NewInputField().
		SetLabel(" / ").
		SetFieldWidth(0)
	a.searchIn.SetChangedFunc(func(text string) {
		a.dir.SetSearch(text)
		a.roomList.Update(a.dir.Rooms())
	})
	a.searchIn.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			a.searchIn.SetText("")
			a.dir.SetSearch("")
			a.roomList.Update(a.dir.Rooms())
		}
		a.app.SetFocus(a.roomList)
	})
}

func (a *App) setupCallbacks() {
	a.roomList.SetOnSelect(a.openRoom)

	// Fetch the next directory page when the cursor nears the end.
	a.roomList.SetSelectionChangedFunc(func(row, col int) {
		if row >= a.roomList.GetRowCount()-2 && a.dir.HasMore() {
			go func() {
				if err := a.dir.LoadMore(a.ctx); err != nil {
					a.logger.Warn("load more rooms failed", zap.Error(err))
				}
			}()
		}
	})

	a.thread.SetOnNearTop(a.loadOlder)

	a.thread.SetOnActionLink(func(link model.ActionLink) {
		// Terminal clients cannot navigate in-app product pages; surface
		// the target so the user can follow it.
		a.flash.Set("Link: "+link.URL, flashDuration)
		a.statusBar.SetFlash(a.flash.Get())
	})

	a.thread.SetOnRetry(func() {
		msgs := a.engine.Messages()
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Kind == model.KindError {
				id := msgs[i].ID
				go func() {
					if err := a.engine.Retry(a.ctx, id); err != nil {
						a.logger.Warn("retry failed", zap.Error(err))
					}
				}()
				return
			}
		}
	})

	a.composer.SetOnSend(func(text string) {
		if strings.HasPrefix(text, "/img ") {
			a.sendImage(strings.TrimSpace(strings.TrimPrefix(text, "/img ")))
			return
		}
		go func() {
			if err := a.engine.SendText(a.ctx, text); err != nil {
				a.logger.Warn("send failed", zap.Error(err))
			}
		}()
	})
}

func (a *App) setupLayout() {
	roomsFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.roomList, 0, 1, true).
		AddItem(a.searchIn, 1, 0, false)

	threadFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, true).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("rooms", roomsFlex, true, true)
	a.pages.AddPage("room", threadFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "room" {
			a.pages.SwitchToPage("rooms")
			a.app.SetFocus(a.roomList)
			return nil
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'q':
				if currentPage == "rooms" {
					a.app.Stop()
					return nil
				}
			case '/':
				if currentPage == "rooms" {
					a.app.SetFocus(a.searchIn)
					return nil
				}
			case 'i':
				if currentPage == "room" {
					a.app.SetFocus(a.composer.InputField)
					return nil
				}
			}
		}

		return event
	})
}

func (a *App) openRoom(roomID string) {
	room, ok := a.dir.Get(roomID)
	if !ok {
		return
	}
	a.dir.MarkOpened(roomID)
	a.thread.SetTitleName(room.DisplayName)
	a.thread.Render(nil, "")
	a.pages.SwitchToPage("room")
	a.app.SetFocus(a.thread)

	go func() {
		if err := a.engine.SelectRoom(a.ctx, room); err != nil {
			a.flash.Set("Load failed: "+err.Error(), flashDuration)
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetFlash(a.flash.Get())
			})
		}
	}()
}

func (a *App) loadOlder() {
	if !a.engine.HasMoreHistory() {
		return
	}
	var begun bool
	a.engine.WithSession(func(s *conversation.Session) {
		begun = s.BeginAnchoring() == nil
	})
	if !begun {
		return
	}
	a.anchor, a.hasAnchor = viewport.CaptureAnchor(a.thread.Geometry())

	go func() {
		if _, err := a.engine.LoadOlder(a.ctx); err != nil {
			a.logger.Warn("load older failed", zap.Error(err))
			a.engine.WithSession(func(s *conversation.Session) { s.EndAnchoring() })
		}
	}()
}

func (a *App) sendImage(path string) {
	go func() {
		data, err := os.ReadFile(path)
		if err != nil {
			a.flash.Set("Read image failed: "+err.Error(), flashDuration)
			a.app.QueueUpdateDraw(func() { a.statusBar.SetFlash(a.flash.Get()) })
			return
		}
		mime := http.DetectContentType(data)
		if err := a.engine.SendImage(a.ctx, mime, data); err != nil {
			a.logger.Warn("send image failed", zap.Error(err))
		}
	}()
}

// Run starts the TUI application.
func (a *App) Run() error {
	defer a.cancel()

	a.dir.WarmStart()
	a.roomList.Update(a.dir.Rooms())

	go func() {
		if err := a.dir.Refresh(a.ctx); err != nil {
			a.flash.Set("Refresh failed: "+err.Error(), flashDuration)
		}
		a.app.QueueUpdateDraw(func() {
			a.roomList.Update(a.dir.Rooms())
			a.statusBar.SetFlash(a.flash.Get())
		})
	}()

	go a.eventLoop()
	go a.refreshLoop()

	return a.app.Run()
}

// Stop terminates the application.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) eventLoop() {
	events, unsub := a.bus.Subscribe("", 64)
	defer unsub()

	for {
		select {
		case evt := <-events:
			a.handleEvent(evt)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindPushConnected:
		a.app.QueueUpdateDraw(func() { a.statusBar.SetConnected(true) })

	case bus.KindPushDisconnected:
		a.app.QueueUpdateDraw(func() { a.statusBar.SetConnected(false) })

	case bus.KindPushMessage:
		roomID, _ := evt.Payload.(string)
		if roomID == "" {
			return
		}
		go a.handlePushMessage(roomID)

	case bus.KindConvLoaded, bus.KindConvMessagesChanged, bus.KindConvPrepended:
		a.app.QueueUpdateDraw(a.renderThread)

	case bus.KindConvSendFailed:
		failure, ok := evt.Payload.(conversation.SendFailure)
		if !ok {
			return
		}
		a.flash.Set("Send failed: "+failure.Reason, flashDuration)
		a.app.QueueUpdateDraw(func() {
			if failure.RestoreText != "" {
				a.composer.Restore(failure.RestoreText)
			}
			a.statusBar.SetFlash(a.flash.Get())
			a.renderThread()
		})

	case bus.KindConvMakePublicPrompt:
		a.app.QueueUpdateDraw(a.showMakePublicPrompt)

	case bus.KindRoomsChanged:
		a.app.QueueUpdateDraw(func() {
			a.roomList.Update(a.dir.Rooms())
		})
	}
}

// handlePushMessage routes a push notification: the open room reconciles
// through the engine, any other room bumps its directory badge.
func (a *App) handlePushMessage(roomID string) {
	handled, err := a.engine.HandlePush(a.ctx, roomID)
	if err != nil {
		a.logger.Warn("push reconcile failed", zap.String("room", roomID), zap.Error(err))
		return
	}
	if handled {
		return
	}
	if !a.dir.BumpUnseen(roomID) {
		// Unknown room, likely past the fetched pages. Refetch.
		if err := a.dir.Refresh(a.ctx); err != nil {
			a.logger.Warn("directory refresh failed", zap.Error(err))
		}
	}
	a.app.QueueUpdateDraw(func() {
		a.roomList.Update(a.dir.Rooms())
	})
}

// renderThread redraws the conversation and applies the scroll policy.
// Must run on the UI goroutine.
func (a *App) renderThread() {
	msgs := a.engine.Messages()
	firstUnread, hasUnread := a.engine.FirstUnread()
	if !hasUnread {
		firstUnread = ""
	}

	before := a.thread.Geometry()

	var anchoring, selfSend, firstRender, unreadPending bool
	a.engine.WithSession(func(s *conversation.Session) {
		anchoring = s.IsAnchoring()
		selfSend = s.ConsumeSelfSend()
		firstRender = s.MarkRendered()
		unreadPending = s.UnreadScrollState() == conversation.UnreadPending
	})

	a.thread.Render(msgs, firstUnread)

	if anchoring {
		if a.hasAnchor {
			a.thread.ScrollToOffset(viewport.RestoreAnchor(a.thread.Geometry(), a.anchor))
		}
		a.hasAnchor = false
		a.engine.WithSession(func(s *conversation.Session) { s.EndAnchoring() })
		return
	}

	if firstRender && unreadPending {
		if top, ok := viewport.CenterOnUnread(a.thread.Geometry(), firstUnread, viewport.DefaultUnreadNudge); ok {
			a.thread.ScrollToOffset(top)
		} else {
			a.thread.ScrollToBottom()
		}
		a.engine.WithSession(func(s *conversation.Session) { s.MarkUnreadScrolled() })
		return
	}

	decision := viewport.Decide(viewport.Change{
		Pagination:    false,
		SelfSend:      selfSend,
		FirstRender:   firstRender,
		UnreadPending: unreadPending,
		NearBottom:    before.NearBottom(a.bottomThreshold),
	})
	switch decision {
	case viewport.SmoothBottom, viewport.InstantBottom:
		a.thread.ScrollToBottom()
	}
}

func (a *App) showMakePublicPrompt() {
	modal := tview.NewModal().
		SetText("This room is empty and you are its admin.\nMake it public so others can find it?").
		AddButtons([]string{"Learn more", "Dismiss"}).
		SetDoneFunc(func(idx int, label string) {
			a.pages.RemovePage("prompt")
			a.app.SetFocus(a.thread)
			if label == "Learn more" {
				a.flash.Set("Room visibility is managed in room settings", flashDuration)
				a.statusBar.SetFlash(a.flash.Get())
			}
		})
	a.pages.AddPage("prompt", modal, true, true)
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := a.dir.Refresh(a.ctx); err != nil {
				a.logger.Warn("directory refresh failed", zap.Error(err))
			}
			a.app.QueueUpdateDraw(func() {
				currentPage, _ := a.pages.GetFrontPage()
				if currentPage == "rooms" {
					a.roomList.Update(a.dir.Rooms())
				}
				a.statusBar.SetFlash(a.flash.Get())
			})
		case <-a.ctx.Done():
			return
		}
	}
}
