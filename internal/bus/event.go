package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the engine and its collaborators. Subscribers
// filter with a namespace prefix, e.g. "conv." for all conversation events.
const (
	KindPushMessage      = "push.message" // payload: room id (string)
	KindPushConnected    = "push.connected"
	KindPushDisconnected = "push.disconnected"

	KindConvLoaded           = "conv.loaded"
	KindConvMessagesChanged  = "conv.messages_changed"
	KindConvPrepended        = "conv.prepended"
	KindConvSendFailed       = "conv.send_failed"
	KindConvMakePublicPrompt = "conv.make_public_prompt"

	KindRoomsChanged = "rooms.changed"
)
