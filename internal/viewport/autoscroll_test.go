package viewport

import "testing"

func TestDecidePriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		ch   Change
		want Decision
	}{
		{"pagination suppresses everything", Change{Pagination: true, SelfSend: true, NearBottom: true}, Stay},
		{"own send scrolls smooth", Change{SelfSend: true}, SmoothBottom},
		{"own send beats reading position", Change{SelfSend: true, NearBottom: false}, SmoothBottom},
		{"first render no unread jumps instantly", Change{FirstRender: true}, InstantBottom},
		{"first render with unread stays for centering", Change{FirstRender: true, UnreadPending: true}, Stay},
		{"incoming while at bottom follows", Change{NearBottom: true}, SmoothBottom},
		{"incoming while reading history stays", Change{NearBottom: false}, Stay},
		{"incoming before centering ran stays", Change{UnreadPending: true, NearBottom: true}, Stay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.ch); got != tt.want {
				t.Errorf("Decide(%+v) = %v, want %v", tt.ch, got, tt.want)
			}
		})
	}
}
