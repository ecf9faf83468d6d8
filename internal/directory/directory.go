// Package directory maintains the paginated, searchable list of rooms the
// user belongs to, with unseen badges and last-message previews.
package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/feiralabs/feira/internal/backend"
	"github.com/feiralabs/feira/internal/bus"
	"github.com/feiralabs/feira/internal/conversation"
	"github.com/feiralabs/feira/internal/model"
	"go.uber.org/zap"
)

// RoomCache persists the room list for offline warm starts. May be nil.
type RoomCache interface {
	SaveRooms(rooms []model.Room) error
	LoadRooms(limit int) ([]model.Room, error)
}

// Directory holds the room list. The backend refetch is authoritative: a
// Refresh replaces local state wholesale, so optimistic unseen tweaks never
// survive a conflicting fetch.
type Directory struct {
	mu sync.Mutex

	backend backend.Client
	cache   RoomCache
	bus     *bus.Bus
	logger  *zap.Logger

	userID string
	kind   model.RoomKind
	pager  *conversation.Paginator
	rooms  []model.Room
	query  string
}

// New creates a directory for the user, optionally filtered to one room kind.
func New(userID string, kind model.RoomKind, pageSize int, be backend.Client, cache RoomCache, b *bus.Bus, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		backend: be,
		cache:   cache,
		bus:     b,
		logger:  logger,
		userID:  userID,
		kind:    kind,
		pager:   conversation.NewPaginator(pageSize),
	}
}

// WarmStart seeds the list from the local cache so the UI has something to
// show before the first network fetch lands.
func (d *Directory) WarmStart() {
	if d.cache == nil {
		return
	}
	cached, err := d.cache.LoadRooms(d.pager.PageSize())
	if err != nil {
		d.logger.Warn("room cache load failed", zap.Error(err))
		return
	}
	d.mu.Lock()
	if len(d.rooms) == 0 {
		d.rooms = cached
	}
	d.mu.Unlock()
	if len(cached) > 0 {
		d.publishChanged()
	}
}

// Refresh fetches the first page and replaces the list. Last-fetch-wins:
// any local optimistic adjustments are discarded.
func (d *Directory) Refresh(ctx context.Context) error {
	if !d.pager.TryBeginFirst() {
		return nil
	}
	page, err := d.backend.FetchRoomsPage(ctx, d.userID, d.kind, d.pager.PageSize(), 0)
	if err != nil {
		d.pager.Abort()
		return fmt.Errorf("refresh rooms: %w", err)
	}
	d.mu.Lock()
	d.rooms = page
	d.mu.Unlock()
	d.pager.Complete(len(page))

	d.persist(page)
	d.publishChanged()
	return nil
}

// LoadMore appends the next page when scrolled near the list's bottom.
// No-op while a load is in flight or after the last short page.
func (d *Directory) LoadMore(ctx context.Context) error {
	offset, ok := d.pager.TryBeginMore()
	if !ok {
		return nil
	}
	page, err := d.backend.FetchRoomsPage(ctx, d.userID, d.kind, d.pager.PageSize(), offset)
	if err != nil {
		d.pager.Abort()
		return fmt.Errorf("load more rooms: %w", err)
	}
	d.mu.Lock()
	d.rooms = append(d.rooms, page...)
	d.mu.Unlock()
	d.pager.Complete(len(page))

	d.persist(page)
	d.publishChanged()
	return nil
}

// Rooms returns the current list: search-filtered, ordered by last activity
// descending with unseen rooms floated on timestamp ties.
func (d *Directory) Rooms() []model.Room {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]model.Room, 0, len(d.rooms))
	q := strings.ToLower(d.query)
	for _, r := range d.rooms {
		if q != "" && !strings.Contains(strings.ToLower(r.DisplayName), q) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastMessageAt != out[j].LastMessageAt {
			return out[i].LastMessageAt > out[j].LastMessageAt
		}
		return out[i].UnseenCount > 0 && out[j].UnseenCount == 0
	})
	return out
}

// SetSearch filters the visible list by display-name substring.
func (d *Directory) SetSearch(query string) {
	d.mu.Lock()
	d.query = strings.TrimSpace(query)
	d.mu.Unlock()
	d.publishChanged()
}

// MarkOpened zeroes a room's unseen count locally the moment it becomes the
// selected room. The remote zeroing happens in the conversation engine.
func (d *Directory) MarkOpened(roomID string) {
	d.mu.Lock()
	for i := range d.rooms {
		if d.rooms[i].ID == roomID {
			d.rooms[i].UnseenCount = 0
			break
		}
	}
	d.mu.Unlock()
	d.publishChanged()
}

// BumpUnseen increments a room's badge after a push for a room that is not
// currently open, and floats it by bumping its activity timestamp. Returns
// false when the room is not in the list yet (caller should Refresh).
func (d *Directory) BumpUnseen(roomID string) bool {
	d.mu.Lock()
	found := false
	for i := range d.rooms {
		if d.rooms[i].ID == roomID {
			d.rooms[i].UnseenCount++
			d.rooms[i].LastMessageAt = time.Now().UnixMilli()
			found = true
			break
		}
	}
	d.mu.Unlock()
	if found {
		d.publishChanged()
	}
	return found
}

// Get returns the room by id.
func (d *Directory) Get(roomID string) (model.Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.rooms {
		if r.ID == roomID {
			return r, true
		}
	}
	return model.Room{}, false
}

// HasMore reports whether older rooms remain.
func (d *Directory) HasMore() bool { return d.pager.HasMore() }

// Len returns the unfiltered list length.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func (d *Directory) persist(rooms []model.Room) {
	if d.cache == nil || len(rooms) == 0 {
		return
	}
	if err := d.cache.SaveRooms(rooms); err != nil {
		d.logger.Warn("room cache save failed", zap.Error(err))
	}
}

func (d *Directory) publishChanged() {
	if d.bus != nil {
		d.bus.Publish(bus.Event{Kind: bus.KindRoomsChanged, Timestamp: time.Now()})
	}
}
