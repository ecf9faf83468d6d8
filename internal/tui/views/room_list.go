package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/feiralabs/feira/internal/model"
)

// RoomList is the room directory view.
type RoomList struct {
	*tview.Table
	rooms      []model.Room
	onSelect   func(roomID string)
	selectedFn func() (int, int)
}

// NewRoomList creates a new room list table.
func NewRoomList() *RoomList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Rooms ")

	rl := &RoomList{Table: table}
	rl.selectedFn = table.GetSelection

	table.SetSelectedFunc(func(row, col int) {
		if rl.onSelect == nil {
			return
		}
		if id := rl.SelectedRoom(); id != "" {
			rl.onSelect(id)
		}
	})
	return rl
}

// SetOnSelect sets the callback when a room is opened.
func (rl *RoomList) SetOnSelect(fn func(roomID string)) {
	rl.onSelect = fn
}

// Update refreshes the room list with new data.
func (rl *RoomList) Update(rooms []model.Room) {
	rl.rooms = rooms
	rl.Clear()

	rl.SetCell(0, 0, tview.NewTableCell(" Room").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	rl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	rl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, room := range rooms {
		row := i + 1
		name := room.DisplayName
		if name == "" {
			name = room.ID
		}
		if room.UnseenCount > 0 {
			name = fmt.Sprintf("* %s (%d)", name, room.UnseenCount)
		}

		rl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetMaxWidth(30).SetExpansion(1))
		rl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(room.LastMessagePreview))).SetMaxWidth(40).SetExpansion(2))
		rl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(room.LastMessageAt)).SetMaxWidth(12))
	}
}

// SelectedRoom returns the id of the currently selected room.
func (rl *RoomList) SelectedRoom() string {
	row, _ := rl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(rl.rooms) {
		return rl.rooms[idx].ID
	}
	return ""
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
