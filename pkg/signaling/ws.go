package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// WSChannel is a Channel implementation over a single WebSocket connection to
// the external signaling server. Events are JSON frames. One read loop
// dispatches inbound events to subscribed handlers; writes are serialized so
// per-sender emission order is preserved.
type WSChannel struct {
	conn   *websocket.Conn
	selfID string

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[EventType][]*subscription
	closed   bool
	done     chan struct{}
}

// DialWS connects to the signaling server and starts the read loop. selfID is
// stamped on every outbound event; the server is still free to overwrite it.
func DialWS(ctx context.Context, url, selfID string) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signaling server %s: %w", url, err)
	}

	c := &WSChannel{
		conn:     conn,
		selfID:   selfID,
		handlers: make(map[EventType][]*subscription),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Send writes one event frame. Safe for concurrent use.
func (c *WSChannel) Send(ctx context.Context, e Event) error {
	if e.SenderID == "" {
		e.SenderID = c.selfID
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(e); err != nil {
		return fmt.Errorf("failed to send %s event: %w", e.Type, err)
	}
	return nil
}

// Subscribe registers h for events of type t.
func (c *WSChannel) Subscribe(t EventType, h Handler) (cancel func()) {
	sub := &subscription{h: h}
	c.mu.Lock()
	c.handlers[t] = append(c.handlers[t], sub)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.handlers[t]
		for i, s := range subs {
			if s == sub {
				c.handlers[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Close shuts the connection down and stops the read loop.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return c.conn.Close()
}

// Done is closed when the read loop exits, whether by Close or a read error.
func (c *WSChannel) Done() <-chan struct{} { return c.done }

func (c *WSChannel) readLoop() {
	for {
		var e Event
		if err := c.conn.ReadJSON(&e); err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			if !c.closed {
				c.closed = true
				close(c.done)
			}
			c.mu.Unlock()
			if !wasClosed {
				slog.Warn("signaling read loop terminated", "error", err)
			}
			return
		}
		c.dispatch(e)
	}
}

func (c *WSChannel) dispatch(e Event) {
	c.mu.Lock()
	subs := make([]*subscription, len(c.handlers[e.Type]))
	copy(subs, c.handlers[e.Type])
	c.mu.Unlock()

	for _, s := range subs {
		s.h(e)
	}
}
