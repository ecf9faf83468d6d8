package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/feiralabs/feira/internal/bus"
	"github.com/feiralabs/feira/internal/model"
)

// fakeBackend scripts the collaborator interface per test.
type fakeBackend struct {
	mu sync.Mutex

	fetchMessages func(roomID string, limit, offset int) ([]model.Message, error)
	sendText      func(roomID, senderID, text string) error
	sendImage     func(roomID, senderID, imageData string) error
	detail        *model.RoomDetail

	fetchCalls int
	marked     []string
}

func (f *fakeBackend) FetchRoomsPage(context.Context, string, model.RoomKind, int, int) ([]model.Room, error) {
	return nil, nil
}

func (f *fakeBackend) FetchMessagesPage(_ context.Context, roomID string, limit, offset int) ([]model.Message, error) {
	f.mu.Lock()
	f.fetchCalls++
	fn := f.fetchMessages
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(roomID, limit, offset)
}

func (f *fakeBackend) SendTextMessage(_ context.Context, roomID, senderID, text string) error {
	if f.sendText == nil {
		return nil
	}
	return f.sendText(roomID, senderID, text)
}

func (f *fakeBackend) SendImageMessage(_ context.Context, roomID, senderID, imageData string) error {
	if f.sendImage == nil {
		return nil
	}
	return f.sendImage(roomID, senderID, imageData)
}

func (f *fakeBackend) MarkRoomSeen(_ context.Context, roomID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, roomID)
	return nil
}

func (f *fakeBackend) FetchRoomDetail(_ context.Context, roomID string) (*model.RoomDetail, error) {
	if f.detail == nil {
		return &model.RoomDetail{RoomID: roomID, Public: true}, nil
	}
	return f.detail, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

type fakeJoiner struct {
	mu     sync.Mutex
	joined []string
}

func (j *fakeJoiner) JoinRoom(roomID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.joined = append(j.joined, roomID)
	return nil
}

func testEngine(be *fakeBackend, b *bus.Bus) *Engine {
	return NewEngine(Params{
		UserID: self, UserName: "Me", PageSize: 20, ReconcileTail: 20,
		Windows: DefaultWindows(), MaxImageBytes: 10 << 20,
	}, be, &fakeJoiner{}, nil, b, nil)
}

func TestSelectRoomLoadsAndJoins(t *testing.T) {
	be := &fakeBackend{
		fetchMessages: func(roomID string, limit, offset int) ([]model.Message, error) {
			return []model.Message{
				msg("m2", "other", "two", 2000),
				msg("m1", "other", "one", 1000),
			}, nil
		},
	}
	joiner := &fakeJoiner{}
	e := NewEngine(Params{UserID: self, PageSize: 20, Windows: DefaultWindows()}, be, joiner, nil, nil, nil)

	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1", UnseenCount: 1}); err != nil {
		t.Fatal(err)
	}

	msgs := e.Messages()
	if len(msgs) != 2 || msgs[0].ID != "m1" {
		t.Fatalf("messages = %+v, want ascending m1,m2", msgs)
	}
	if id, ok := e.FirstUnread(); !ok || id != "m2" {
		t.Errorf("FirstUnread = (%q, %v), want (m2, true)", id, ok)
	}
	joiner.mu.Lock()
	joined := len(joiner.joined)
	joiner.mu.Unlock()
	if joined != 1 {
		t.Errorf("joined %d rooms, want 1", joined)
	}
}

func TestSelectRoomFailureLeavesNoMessages(t *testing.T) {
	be := &fakeBackend{
		fetchMessages: func(string, int, int) ([]model.Message, error) {
			return nil, errors.New("network down")
		},
	}
	e := testEngine(be, nil)

	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err == nil {
		t.Fatal("want error on fetch failure")
	}
	if len(e.Messages()) != 0 {
		t.Error("store mutated despite fetch failure")
	}
}

func TestHandlePushForClosedRoom(t *testing.T) {
	be := &fakeBackend{}
	e := testEngine(be, nil)

	handled, err := e.HandlePush(context.Background(), "other-room")
	if err != nil {
		t.Fatal(err)
	}
	if handled {
		t.Error("push for unopened room reported handled")
	}
	if be.calls() != 0 {
		t.Error("push for unopened room triggered a fetch")
	}
}

func TestHandlePushReconcilesOpenRoom(t *testing.T) {
	var phase int
	be := &fakeBackend{}
	be.fetchMessages = func(roomID string, limit, offset int) ([]model.Message, error) {
		if phase == 0 {
			return []model.Message{msg("m1", "other", "one", 1000)}, nil
		}
		return []model.Message{
			msg("m2", "other", "two", 2000),
			msg("m1", "other", "one", 1000),
		}, nil
	}
	e := testEngine(be, nil)
	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err != nil {
		t.Fatal(err)
	}
	phase = 1

	handled, err := e.HandlePush(context.Background(), "r1")
	if err != nil || !handled {
		t.Fatalf("HandlePush = (%v, %v), want (true, nil)", handled, err)
	}
	if len(e.Messages()) != 2 {
		t.Errorf("len = %d, want 2 after reconcile", len(e.Messages()))
	}
}

func TestStaleResponseDiscardedOnRoomSwitch(t *testing.T) {
	gate := make(chan struct{})
	be := &fakeBackend{}
	be.fetchMessages = func(roomID string, limit, offset int) ([]model.Message, error) {
		if roomID == "slow" {
			<-gate
			return []model.Message{msg("stale", "other", "stale body", 9000)}, nil
		}
		return []model.Message{msg("fresh", "other", "fresh body", 1000)}, nil
	}
	e := testEngine(be, nil)

	done := make(chan error, 1)
	go func() { done <- e.SelectRoom(context.Background(), model.Room{ID: "slow"}) }()

	// Switch rooms while the first fetch is blocked, then release it.
	time.Sleep(20 * time.Millisecond)
	if err := e.SelectRoom(context.Background(), model.Room{ID: "fast"}); err != nil {
		t.Fatal(err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	msgs := e.Messages()
	if len(msgs) != 1 || msgs[0].ID != "fresh" {
		t.Errorf("messages = %+v, want only the fast room's page", msgs)
	}
	if e.RoomID() != "fast" {
		t.Errorf("RoomID = %q, want fast", e.RoomID())
	}
}

func TestLoadOlderSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	be := &fakeBackend{}
	be.fetchMessages = func(roomID string, limit, offset int) ([]model.Message, error) {
		if offset == 0 {
			// Full first page keeps hasMore true.
			page := make([]model.Message, 20)
			for i := range page {
				page[i] = msg(string(rune('a'+i)), "other", "x", int64(2000-i))
			}
			return page, nil
		}
		<-gate
		return []model.Message{msg("old", "other", "old body", 10)}, nil
	}
	e := testEngine(be, nil)
	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err != nil {
		t.Fatal(err)
	}
	callsAfterLoad := be.calls()

	done := make(chan struct{})
	go func() {
		_, _ = e.LoadOlder(context.Background())
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	// Second trigger while the first is in flight is a no-op.
	n, err := e.LoadOlder(context.Background())
	if err != nil || n != 0 {
		t.Errorf("second LoadOlder = (%d, %v), want (0, nil)", n, err)
	}
	close(gate)
	<-done

	if got := be.calls() - callsAfterLoad; got != 1 {
		t.Errorf("older-page fetches = %d, want exactly 1", got)
	}
}

func TestSendTextFailureRestoresInput(t *testing.T) {
	b := bus.New()
	failCh, unsub := b.Subscribe("conv.send_failed", 4)
	defer unsub()

	be := &fakeBackend{
		sendText: func(string, string, string) error { return errors.New("offline") },
	}
	e := testEngine(be, b)
	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err != nil {
		t.Fatal(err)
	}

	if err := e.SendText(context.Background(), "ok"); err == nil {
		t.Fatal("want error for failed send")
	}

	// Placeholder must be gone.
	for _, m := range e.Messages() {
		if m.IsPlaceholder() {
			t.Errorf("placeholder %s still present after failed send", m.ID)
		}
	}

	select {
	case evt := <-failCh:
		f := evt.Payload.(SendFailure)
		if f.RestoreText != "ok" {
			t.Errorf("RestoreText = %q, want ok", f.RestoreText)
		}
	case <-time.After(time.Second):
		t.Fatal("no send_failed event")
	}
}

func TestSendTextOptimisticThenConverges(t *testing.T) {
	be := &fakeBackend{}
	e := testEngine(be, nil)
	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err != nil {
		t.Fatal(err)
	}

	if err := e.SendText(context.Background(), "  hello  "); err != nil {
		t.Fatal(err)
	}
	msgs := e.Messages()
	if len(msgs) != 1 || !msgs[0].IsPlaceholder() || msgs[0].Body != "hello" {
		t.Fatalf("messages = %+v, want one trimmed placeholder", msgs)
	}

	// Push-triggered reconcile carries the server echo.
	be.mu.Lock()
	be.fetchMessages = func(string, int, int) ([]model.Message, error) {
		return []model.Message{{
			ID: "srv-1", Kind: model.KindText, Body: "hello",
			SenderID: self, CreatedAt: time.Now().UnixMilli(),
		}}, nil
	}
	be.mu.Unlock()
	if _, err := e.HandlePush(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}

	msgs = e.Messages()
	if len(msgs) != 1 || msgs[0].ID != "srv-1" {
		t.Errorf("messages = %+v, want single persisted hello", msgs)
	}
}

func TestSendTextValidation(t *testing.T) {
	be := &fakeBackend{}
	e := testEngine(be, nil)
	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err != nil {
		t.Fatal(err)
	}

	if err := e.SendText(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
	if len(e.Messages()) != 0 {
		t.Error("placeholder created for empty text")
	}
}

func TestSendImageValidation(t *testing.T) {
	be := &fakeBackend{}
	e := testEngine(be, nil)
	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err != nil {
		t.Fatal(err)
	}

	if err := e.SendImage(context.Background(), "application/pdf", []byte("x")); !errors.Is(err, ErrNotImage) {
		t.Errorf("err = %v, want ErrNotImage", err)
	}
	big := make([]byte, (10<<20)+1)
	if err := e.SendImage(context.Background(), "image/png", big); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("err = %v, want ErrImageTooLarge", err)
	}
	if len(e.Messages()) != 0 {
		t.Error("placeholder created for rejected file")
	}
}

func TestSendImageFailureKeepsErrorBubble(t *testing.T) {
	be := &fakeBackend{
		sendImage: func(string, string, string) error { return errors.New("upload failed") },
	}
	e := testEngine(be, nil)
	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err != nil {
		t.Fatal(err)
	}

	if err := e.SendImage(context.Background(), "image/jpeg", []byte("jpegdata")); err == nil {
		t.Fatal("want error for failed upload")
	}
	msgs := e.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1 (bubble kept)", len(msgs))
	}
	if msgs[0].Kind != model.KindError || msgs[0].FailReason == "" {
		t.Errorf("message = %+v, want error bubble with reason", msgs[0])
	}
}

func TestMakePublicPromptForEmptyPrivateAdminRoom(t *testing.T) {
	b := bus.New()
	promptCh, unsub := b.Subscribe(bus.KindConvMakePublicPrompt, 4)
	defer unsub()

	be := &fakeBackend{
		detail: &model.RoomDetail{RoomID: "r1", AdminID: self, Public: false},
	}
	e := testEngine(be, b)
	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-promptCh:
		if evt.Payload.(string) != "r1" {
			t.Errorf("payload = %v, want r1", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no make_public prompt for empty private admin-owned room")
	}
}

// fakeArchive records saves and serves a scripted cached page.
type fakeArchive struct {
	mu     sync.Mutex
	cached []model.Message
	saved  [][]model.Message
}

func (a *fakeArchive) SaveMessages(msgs []model.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, msgs)
	return nil
}

func (a *fakeArchive) LoadMessages(roomID string, limit int) ([]model.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cached, nil
}

func TestSelectRoomWarmStartsFromArchiveThenRefetches(t *testing.T) {
	b := bus.New()
	loadedCh, unsub := b.Subscribe(bus.KindConvLoaded, 4)
	defer unsub()

	archive := &fakeArchive{
		cached: []model.Message{
			msg("old-2", "other", "stale two", 2000),
			msg("old-1", "other", "stale one", 1000),
		},
	}
	be := &fakeBackend{
		fetchMessages: func(roomID string, limit, offset int) ([]model.Message, error) {
			return []model.Message{
				msg("m2", "other", "fresh two", 2000),
				msg("m1", "other", "fresh one", 1000),
			}, nil
		},
	}
	e := NewEngine(Params{
		UserID: self, PageSize: 20, Windows: DefaultWindows(),
	}, be, &fakeJoiner{}, archive, b, nil)

	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err != nil {
		t.Fatal(err)
	}

	// One loaded event for the cached page, one for the fetched page.
	for i := 0; i < 2; i++ {
		select {
		case <-loadedCh:
		case <-time.After(time.Second):
			t.Fatalf("loaded event %d not published", i+1)
		}
	}

	msgs := e.Messages()
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("messages = %v, want fetched page to replace cached one", msgs)
	}

	archive.mu.Lock()
	defer archive.mu.Unlock()
	if len(archive.saved) != 1 || len(archive.saved[0]) != 2 {
		t.Errorf("saved = %v, want one batch of the fetched page", archive.saved)
	}
}

func TestRetryFailedImageResends(t *testing.T) {
	var calls int
	var mu sync.Mutex
	be := &fakeBackend{
		sendImage: func(roomID, senderID, imageData string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return errors.New("upload rejected")
			}
			return nil
		},
	}
	e := testEngine(be, nil)
	if err := e.SelectRoom(context.Background(), model.Room{ID: "r1"}); err != nil {
		t.Fatal(err)
	}

	data := []byte{0xff, 0xd8, 0xff}
	if err := e.SendImage(context.Background(), "image/jpeg", data); err == nil {
		t.Fatal("first send should fail")
	}

	msgs := e.Messages()
	if len(msgs) != 1 || msgs[0].Kind != model.KindError {
		t.Fatalf("messages = %v, want one error bubble", msgs)
	}
	bubbleID := msgs[0].ID

	if err := e.Retry(context.Background(), bubbleID); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}

	msgs = e.Messages()
	if len(msgs) != 1 || msgs[0].Kind != model.KindLoading {
		t.Fatalf("messages = %v, want one fresh loading placeholder", msgs)
	}

	// The payload is consumed; a second retry has nothing to work with.
	if err := e.Retry(context.Background(), bubbleID); !errors.Is(err, ErrNothingToRetry) {
		t.Errorf("second Retry() error = %v, want ErrNothingToRetry", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("sendImage calls = %d, want 2", calls)
	}
}
