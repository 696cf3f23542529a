package signaling

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub is the WebSocket signaling server. It never inspects SDP or chat
// payloads; it only translates request events to their notification
// counterparts and routes them by target or room, applying the room capacity
// and creator rules from Rooms.
type Hub struct {
	rooms    *Rooms
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*hubClient
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan Event
	done chan struct{}
	once sync.Once
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:   NewRooms(),
		clients: make(map[string]*hubClient),
		upgrader: websocket.Upgrader{
			// The hub fronts a LAN deployment; origin policy is the
			// caller's concern.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a WebSocket session. The client identity
// comes from the "id" query parameter; a duplicate identity bumps the previous
// connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "client", id, "error", err)
		return
	}

	c := &hubClient{
		id:   id,
		conn: conn,
		send: make(chan Event, 64),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if prev, ok := h.clients[id]; ok {
		prev.close()
	}
	h.clients[id] = c
	h.mu.Unlock()

	slog.Info("client connected", "client", id)
	go c.writePump()
	h.readPump(c)
}

func (h *Hub) readPump(c *hubClient) {
	defer h.dropClient(c)

	for {
		var e Event
		if err := c.conn.ReadJSON(&e); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("client read failed", "client", c.id, "error", err)
			}
			return
		}
		e.SenderID = c.id
		h.route(e)
	}
}

func (h *Hub) route(e Event) {
	switch e.Type {
	case EventJoinRoom:
		h.handleJoin(e)
		return
	case EventCallEnd:
		if e.RoomID != "" {
			h.handleRoomLeave(e)
			return
		}
	}

	e.Type = translateType(e.Type)
	if e.TargetID != "" {
		h.deliver(e.TargetID, e)
		return
	}
	if e.RoomID != "" {
		for _, m := range h.rooms.Members(e.RoomID) {
			if m.UserID != e.SenderID {
				h.deliver(m.UserID, e)
			}
		}
		return
	}
	slog.Debug("dropping unaddressed event", "type", e.Type, "sender", e.SenderID)
}

func (h *Hub) handleJoin(e Event) {
	var payload JoinPayload
	_ = e.Decode(&payload)

	res := h.rooms.Join(e.RoomID, e.SenderID, payload.Name)

	if res.Full {
		h.deliver(e.SenderID, Event{Type: EventRoomFull, RoomID: e.RoomID})
		slog.Info("join refused, room full", "room", e.RoomID, "client", e.SenderID)
		return
	}
	if res.Creator {
		h.deliver(e.SenderID, Event{Type: EventRoomCreator, RoomID: e.RoomID})
	}
	if res.Existing != nil {
		existing, _ := NewEvent(EventExistingUser, res.Existing)
		existing.SenderID = res.Existing.UserID
		existing.RoomID = e.RoomID
		h.deliver(e.SenderID, existing)

		joined, _ := NewEvent(EventUserJoined, UserPayload{UserID: e.SenderID, UserName: payload.Name})
		joined.SenderID = e.SenderID
		joined.RoomID = e.RoomID
		h.deliver(res.Existing.UserID, joined)
	}
	slog.Info("client joined room", "room", e.RoomID, "client", e.SenderID, "creator", res.Creator)
}

func (h *Hub) handleRoomLeave(e Event) {
	roomID, wasCreator, remaining := h.rooms.Leave(e.SenderID)
	if roomID == "" {
		return
	}
	h.notifyDeparture(roomID, e.SenderID, wasCreator, remaining, EventCallEnded)
}

// dropClient handles transport loss: the slot is freed and, if the client was
// in a room, the remaining occupant learns via user-left or, for the creator,
// host-disconnected.
func (h *Hub) dropClient(c *hubClient) {
	c.close()

	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()

	roomID, wasCreator, remaining := h.rooms.Leave(c.id)
	if roomID != "" {
		h.notifyDeparture(roomID, c.id, wasCreator, remaining, EventUserLeft)
	}
	slog.Info("client disconnected", "client", c.id)
}

func (h *Hub) notifyDeparture(roomID, leaverID string, wasCreator bool, remaining []UserPayload, leaveType EventType) {
	t := leaveType
	if wasCreator {
		t = EventHostDisconnected
	}
	note, _ := NewEvent(t, UserPayload{UserID: leaverID})
	note.SenderID = leaverID
	note.RoomID = roomID
	for _, m := range remaining {
		h.deliver(m.UserID, note)
	}
}

func (h *Hub) deliver(id string, e Event) {
	h.mu.Lock()
	c, ok := h.clients[id]
	h.mu.Unlock()
	if !ok {
		return
	}
	select {
	case c.send <- e:
	default:
		slog.Warn("client send buffer full, dropping event", "client", id, "type", e.Type)
	}
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}

func (c *hubClient) writePump() {
	for {
		select {
		case e := <-c.send:
			if err := c.conn.WriteJSON(e); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *hubClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
		_ = c.conn.Close()
	})
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

// ListenAndServe runs the hub on addr at the /ws path.
func (h *Hub) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	slog.Info("signaling hub listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		return fmt.Errorf("signaling hub stopped: %w", err)
	}
	return nil
}
