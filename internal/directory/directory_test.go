package directory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/feiralabs/feira/internal/model"
)

// pagedBackend serves rooms from a fixed list, page by page.
type pagedBackend struct {
	mu    sync.Mutex
	rooms []model.Room
	calls int
}

func (p *pagedBackend) FetchRoomsPage(_ context.Context, _ string, _ model.RoomKind, limit, offset int) ([]model.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if offset >= len(p.rooms) {
		return nil, nil
	}
	end := offset + limit
	if end > len(p.rooms) {
		end = len(p.rooms)
	}
	return p.rooms[offset:end], nil
}

func (p *pagedBackend) FetchMessagesPage(context.Context, string, int, int) ([]model.Message, error) {
	return nil, nil
}
func (p *pagedBackend) SendTextMessage(context.Context, string, string, string) error  { return nil }
func (p *pagedBackend) SendImageMessage(context.Context, string, string, string) error { return nil }
func (p *pagedBackend) MarkRoomSeen(context.Context, string, string) error             { return nil }
func (p *pagedBackend) FetchRoomDetail(_ context.Context, roomID string) (*model.RoomDetail, error) {
	return &model.RoomDetail{RoomID: roomID}, nil
}

func makeRooms(n int) []model.Room {
	rooms := make([]model.Room, n)
	for i := range rooms {
		rooms[i] = model.Room{
			ID:            fmt.Sprintf("r%02d", i),
			Kind:          model.RoomGroup,
			DisplayName:   fmt.Sprintf("Room %02d", i),
			LastMessageAt: int64(10000 - i), // backend order: most recent first
		}
	}
	return rooms
}

func TestRefreshThenLoadMore(t *testing.T) {
	be := &pagedBackend{rooms: makeRooms(25)}
	d := New("me", "", 20, be, nil, nil, nil)

	if err := d.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Len() != 20 {
		t.Fatalf("len = %d, want 20", d.Len())
	}
	if !d.HasMore() {
		t.Fatal("HasMore = false after full page of 20")
	}

	if err := d.LoadMore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Len() != 25 {
		t.Errorf("len = %d, want 25", d.Len())
	}
	if d.HasMore() {
		t.Error("HasMore = true after short page of 5")
	}
	// Exhausted: further loads are no-ops.
	if err := d.LoadMore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Len() != 25 {
		t.Errorf("len = %d after exhausted LoadMore, want 25", d.Len())
	}
}

func TestRoomsFloatsUnseenOnTies(t *testing.T) {
	be := &pagedBackend{rooms: []model.Room{
		{ID: "a", DisplayName: "A", LastMessageAt: 5000},
		{ID: "b", DisplayName: "B", LastMessageAt: 4000},
		{ID: "c", DisplayName: "C", LastMessageAt: 4000, UnseenCount: 2},
	}}
	d := New("me", "", 20, be, nil, nil, nil)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	rooms := d.Rooms()
	ids := []string{rooms[0].ID, rooms[1].ID, rooms[2].ID}
	if ids[0] != "a" || ids[1] != "c" || ids[2] != "b" {
		t.Errorf("order = %v, want [a c b] (unseen floats on tie)", ids)
	}
}

func TestSearchFilter(t *testing.T) {
	be := &pagedBackend{rooms: []model.Room{
		{ID: "a", DisplayName: "Alice", LastMessageAt: 3},
		{ID: "b", DisplayName: "Bikes for sale", LastMessageAt: 2},
		{ID: "c", DisplayName: "alice & bob", LastMessageAt: 1},
	}}
	d := New("me", "", 20, be, nil, nil, nil)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	d.SetSearch("alice")
	rooms := d.Rooms()
	if len(rooms) != 2 {
		t.Fatalf("filtered len = %d, want 2", len(rooms))
	}

	d.SetSearch("")
	if len(d.Rooms()) != 3 {
		t.Error("clearing search did not restore the list")
	}
}

func TestMarkOpenedZeroesUnseen(t *testing.T) {
	be := &pagedBackend{rooms: []model.Room{
		{ID: "a", DisplayName: "A", UnseenCount: 7, LastMessageAt: 1},
	}}
	d := New("me", "", 20, be, nil, nil, nil)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	d.MarkOpened("a")
	if r, _ := d.Get("a"); r.UnseenCount != 0 {
		t.Errorf("UnseenCount = %d, want 0", r.UnseenCount)
	}
}

func TestBumpUnseenFloatsRoom(t *testing.T) {
	be := &pagedBackend{rooms: []model.Room{
		{ID: "a", DisplayName: "A", LastMessageAt: 5000},
		{ID: "b", DisplayName: "B", LastMessageAt: 1000},
	}}
	d := New("me", "", 20, be, nil, nil, nil)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !d.BumpUnseen("b") {
		t.Fatal("BumpUnseen = false for known room")
	}
	rooms := d.Rooms()
	if rooms[0].ID != "b" || rooms[0].UnseenCount != 1 {
		t.Errorf("top room = %+v, want b with 1 unseen", rooms[0])
	}
	if d.BumpUnseen("unknown") {
		t.Error("BumpUnseen = true for unknown room")
	}
}

func TestRefreshIsAuthoritative(t *testing.T) {
	be := &pagedBackend{rooms: []model.Room{
		{ID: "a", DisplayName: "A", UnseenCount: 3, LastMessageAt: 1},
	}}
	d := New("me", "", 20, be, nil, nil, nil)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Optimistic local zero, then a refetch that still reports 3.
	d.MarkOpened("a")
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r, _ := d.Get("a"); r.UnseenCount != 3 {
		t.Errorf("UnseenCount = %d after refetch, want 3 (last-fetch-wins)", r.UnseenCount)
	}
}
