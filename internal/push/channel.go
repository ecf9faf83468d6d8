// Package push maintains the persistent notification channel. The server
// side only ever sends a room identifier, never a message body; the
// conversation engine re-fetches and reconciles on every event.
package push

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/feiralabs/feira/internal/bus"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	frameMessage  = "message"
	frameJoinRoom = "join_room"

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// frame is the wire format in both directions.
type frame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
}

// Channel is a long-lived push connection scoped to the authenticated user.
// It reconnects with capped backoff and re-joins the active room after a
// reconnect.
type Channel struct {
	endpoint string
	userID   string
	token    string
	bus      *bus.Bus
	logger   *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	activeRoom string
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a push channel for the user. Call Start to connect.
func New(endpoint, userID, token string, b *bus.Bus, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		endpoint: endpoint,
		userID:   userID,
		token:    token,
		bus:      b,
		logger:   logger,
	}
}

// Start launches the connect/read loop in the background.
func (c *Channel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()
	go c.run(ctx)
}

// Stop tears the connection down and waits for the loop to exit.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	done := c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

// JoinRoom subscribes to a room's events. The room is remembered so it is
// re-joined after a reconnect.
func (c *Channel) JoinRoom(roomID string) error {
	c.mu.Lock()
	c.activeRoom = roomID
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		// Not connected yet; the connect path re-joins the active room.
		return nil
	}
	if err := conn.WriteJSON(frame{Type: frameJoinRoom, RoomID: roomID}); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	return nil
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	backoff := initialBackoff

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("push dial failed", zap.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff

		c.mu.Lock()
		c.conn = conn
		room := c.activeRoom
		c.mu.Unlock()

		c.publish(bus.KindPushConnected, nil)
		if room != "" {
			if err := conn.WriteJSON(frame{Type: frameJoinRoom, RoomID: room}); err != nil {
				c.logger.Warn("re-join after reconnect failed", zap.String("room", room), zap.Error(err))
			}
		}

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
		c.publish(bus.KindPushDisconnected, nil)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse push endpoint: %w", err)
	}
	q := u.Query()
	q.Set("user_id", c.userID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial push socket: %w", err)
	}
	return conn, nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.logger.Info("push connection closed", zap.Error(err))
			return
		}
		switch f.Type {
		case frameMessage:
			if f.RoomID != "" {
				c.publish(bus.KindPushMessage, f.RoomID)
			}
		default:
			// Server heartbeats and unknown frames are ignored.
		}
	}
}

func (c *Channel) publish(kind string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
