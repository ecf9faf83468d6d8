package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("push.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindPushMessage, Timestamp: time.Now(), Payload: "room-1"})

	select {
	case evt := <-ch:
		if evt.Kind != KindPushMessage {
			t.Errorf("got kind %q, want %q", evt.Kind, KindPushMessage)
		}
		if evt.Payload.(string) != "room-1" {
			t.Errorf("payload = %v, want room-1", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conv.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindPushConnected})
	b.Publish(Event{Kind: KindConvMessagesChanged})

	select {
	case evt := <-ch:
		if evt.Kind != KindConvMessagesChanged {
			t.Errorf("got kind %q, want %q", evt.Kind, KindConvMessagesChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure push event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("rooms.", 10)
	unsub()

	b.Publish(Event{Kind: KindRoomsChanged})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}
