package conversation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feiralabs/feira/internal/bus"
	"github.com/feiralabs/feira/internal/model"
	"go.uber.org/zap"
)

var (
	// ErrNoRoom means no room is currently selected.
	ErrNoRoom = errors.New("no room selected")
	// ErrEmptyMessage means the trimmed text was empty; nothing was sent.
	ErrEmptyMessage = errors.New("empty message")
	// ErrNotImage means the picked file is not an image; rejected locally.
	ErrNotImage = errors.New("file is not an image")
	// ErrImageTooLarge means the image exceeds the upload limit; rejected locally.
	ErrImageTooLarge = errors.New("image exceeds upload size limit")
	// ErrNothingToRetry means the given message has no retained payload.
	ErrNothingToRetry = errors.New("nothing to retry")
)

// SendFailure is the payload of a conv.send_failed event. RestoreText is
// non-empty for text sends, where the composer should get the input back.
type SendFailure struct {
	RoomID        string
	PlaceholderID string
	RestoreText   string
	Reason        string
}

// SendText validates and sends a text message: placeholder first, network
// second. On failure the placeholder is removed and the original text is
// handed back through the returned SendFailure-carrying error path and the
// conv.send_failed event.
func (e *Engine) SendText(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	e.mu.Lock()
	sess := e.session
	if sess == nil {
		e.mu.Unlock()
		return ErrNoRoom
	}
	now := time.Now()
	ph := model.Message{
		ID:         model.NewPlaceholderID(now),
		RoomID:     sess.RoomID,
		Kind:       model.KindText,
		Body:       trimmed,
		SenderID:   e.params.UserID,
		SenderName: e.params.UserName,
		CreatedAt:  now.UnixMilli(),
	}
	sess.Store.AppendOptimistic(ph)
	sess.MarkSelfSend()
	e.mu.Unlock()

	e.publish(bus.KindConvMessagesChanged, sess.RoomID)

	err := e.backend.SendTextMessage(ctx, sess.RoomID, e.params.UserID, trimmed)

	e.mu.Lock()
	if e.session != sess {
		// Room switched mid-send; the session (and placeholder) is gone.
		e.mu.Unlock()
		return err
	}
	if err != nil {
		restore, _ := sess.Store.RemovePlaceholder(ph.ID)
		e.mu.Unlock()
		e.logger.Warn("text send failed", zap.String("room", sess.RoomID), zap.Error(err))
		e.publish(bus.KindConvSendFailed, SendFailure{
			RoomID:        sess.RoomID,
			PlaceholderID: ph.ID,
			RestoreText:   restore,
			Reason:        err.Error(),
		})
		e.publish(bus.KindConvMessagesChanged, sess.RoomID)
		return fmt.Errorf("send text: %w", err)
	}
	e.mu.Unlock()

	// The placeholder resolves via the send-triggered or push-triggered
	// reconcile; both converge on the same store state.
	e.publish(bus.KindRoomsChanged, sess.RoomID)
	return nil
}

// SendImage validates the file locally (MIME and size, before any network
// call), inserts a loading placeholder, and uploads the encoded payload.
// On failure the placeholder becomes an error bubble in place; it is never
// removed.
func (e *Engine) SendImage(ctx context.Context, mime string, data []byte) error {
	if !strings.HasPrefix(mime, "image/") {
		return ErrNotImage
	}
	if int64(len(data)) > e.params.MaxImageBytes {
		return ErrImageTooLarge
	}

	e.mu.Lock()
	sess := e.session
	if sess == nil {
		e.mu.Unlock()
		return ErrNoRoom
	}
	now := time.Now()
	ph := model.Message{
		ID:         model.NewPlaceholderID(now),
		RoomID:     sess.RoomID,
		Kind:       model.KindLoading,
		SenderID:   e.params.UserID,
		SenderName: e.params.UserName,
		CreatedAt:  now.UnixMilli(),
	}
	sess.Store.AppendOptimistic(ph)
	sess.MarkSelfSend()
	e.mu.Unlock()

	e.publish(bus.KindConvMessagesChanged, sess.RoomID)

	payload := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	err := e.backend.SendImageMessage(ctx, sess.RoomID, e.params.UserID, payload)

	e.mu.Lock()
	if e.session != sess {
		e.mu.Unlock()
		return err
	}
	if err != nil {
		sess.Store.ReplaceWithError(ph.ID, err.Error())
		sess.stashUpload(ph.ID, mime, data)
		e.mu.Unlock()
		e.logger.Warn("image send failed", zap.String("room", sess.RoomID), zap.Error(err))
		e.publish(bus.KindConvSendFailed, SendFailure{
			RoomID:        sess.RoomID,
			PlaceholderID: ph.ID,
			Reason:        err.Error(),
		})
		e.publish(bus.KindConvMessagesChanged, sess.RoomID)
		return fmt.Errorf("send image: %w", err)
	}
	e.mu.Unlock()

	e.publish(bus.KindRoomsChanged, sess.RoomID)
	return nil
}

// Retry re-attempts a failed image upload identified by its error bubble.
// The bubble is removed and the retained payload goes through the regular
// send pipeline again, fresh placeholder included.
func (e *Engine) Retry(ctx context.Context, messageID string) error {
	e.mu.Lock()
	sess := e.session
	if sess == nil {
		e.mu.Unlock()
		return ErrNoRoom
	}
	upload, ok := sess.takeUpload(messageID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("retry %s: %w", messageID, ErrNothingToRetry)
	}
	sess.Store.RemovePlaceholder(messageID)
	e.mu.Unlock()
	e.publish(bus.KindConvMessagesChanged, sess.RoomID)

	return e.SendImage(ctx, upload.mime, upload.data)
}
