package signaling

import (
	"context"
	"sync"
)

// MemoryBus is an in-process signaling fabric connecting any number of
// endpoints. It applies the same rules as the WebSocket hub: request events
// translate to their notification counterparts, join-room runs the room
// capacity and role logic, and everything else routes by target or room.
// Untargeted broadcasts reach every endpoint including the sender's own, so
// self-echo suppression in the sessions stays honest.
//
// Delivery is synchronous in Send, which preserves per-sender emission order.
type MemoryBus struct {
	rooms *Rooms

	mu        sync.Mutex
	endpoints map[string]*MemoryChannel
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		rooms:     NewRooms(),
		endpoints: make(map[string]*MemoryChannel),
	}
}

// Endpoint returns (creating if needed) the channel bound to the given identity.
func (b *MemoryBus) Endpoint(id string) *MemoryChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ep, ok := b.endpoints[id]; ok {
		return ep
	}
	ep := &MemoryChannel{id: id, bus: b, handlers: make(map[EventType][]*subscription)}
	b.endpoints[id] = ep
	return ep
}

// Disconnect simulates an abrupt transport loss for the given identity,
// triggering the same room eviction the hub performs on a dropped socket.
func (b *MemoryBus) Disconnect(id string) {
	roomID, wasCreator, remaining := b.rooms.Leave(id)
	if roomID == "" {
		return
	}
	b.notifyDeparture(roomID, id, wasCreator, remaining, EventUserLeft)
}

func (b *MemoryBus) route(e Event) {
	switch e.Type {
	case EventJoinRoom:
		b.handleJoin(e)
		return
	case EventCallEnd:
		if e.RoomID != "" {
			b.handleRoomLeave(e)
			return
		}
	}

	e.Type = translateType(e.Type)
	for _, ep := range b.resolve(e) {
		ep.dispatch(e)
	}
}

// resolve picks delivery endpoints: explicit target first, then room
// membership, then full broadcast.
func (b *MemoryBus) resolve(e Event) []*MemoryChannel {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e.TargetID != "" {
		if ep, ok := b.endpoints[e.TargetID]; ok {
			return []*MemoryChannel{ep}
		}
		return nil
	}
	if e.RoomID != "" {
		var targets []*MemoryChannel
		for _, m := range b.rooms.Members(e.RoomID) {
			if ep, ok := b.endpoints[m.UserID]; ok {
				targets = append(targets, ep)
			}
		}
		return targets
	}
	targets := make([]*MemoryChannel, 0, len(b.endpoints))
	for _, ep := range b.endpoints {
		targets = append(targets, ep)
	}
	return targets
}

func (b *MemoryBus) handleJoin(e Event) {
	var payload JoinPayload
	_ = e.Decode(&payload)

	res := b.rooms.Join(e.RoomID, e.SenderID, payload.Name)

	if res.Full {
		b.deliver(e.SenderID, Event{Type: EventRoomFull, RoomID: e.RoomID})
		return
	}
	if res.Creator {
		b.deliver(e.SenderID, Event{Type: EventRoomCreator, RoomID: e.RoomID})
	}
	if res.Existing != nil {
		existing, _ := NewEvent(EventExistingUser, res.Existing)
		existing.SenderID = res.Existing.UserID
		existing.RoomID = e.RoomID
		b.deliver(e.SenderID, existing)

		joined, _ := NewEvent(EventUserJoined, UserPayload{UserID: e.SenderID, UserName: payload.Name})
		joined.SenderID = e.SenderID
		joined.RoomID = e.RoomID
		b.deliver(res.Existing.UserID, joined)
	}
}

// handleRoomLeave processes an explicit room hang-up: the leaver's slot is
// freed and the remaining occupant is notified, with creator departure
// escalating to full eviction.
func (b *MemoryBus) handleRoomLeave(e Event) {
	roomID, wasCreator, remaining := b.rooms.Leave(e.SenderID)
	if roomID == "" {
		return
	}
	b.notifyDeparture(roomID, e.SenderID, wasCreator, remaining, EventCallEnded)
}

func (b *MemoryBus) notifyDeparture(roomID, leaverID string, wasCreator bool, remaining []UserPayload, leaveType EventType) {
	t := leaveType
	if wasCreator {
		t = EventHostDisconnected
	}
	note, _ := NewEvent(t, UserPayload{UserID: leaverID})
	note.SenderID = leaverID
	note.RoomID = roomID
	for _, m := range remaining {
		b.deliver(m.UserID, note)
	}
}

func (b *MemoryBus) deliver(id string, e Event) {
	b.mu.Lock()
	ep, ok := b.endpoints[id]
	b.mu.Unlock()
	if ok {
		ep.dispatch(e)
	}
}

type subscription struct {
	h Handler
}

// MemoryChannel is one endpoint on a MemoryBus. It implements Channel.
type MemoryChannel struct {
	id  string
	bus *MemoryBus

	mu       sync.Mutex
	handlers map[EventType][]*subscription
}

// ID returns the identity this endpoint was created under.
func (c *MemoryChannel) ID() string { return c.id }

// Send stamps the event with this endpoint's identity and routes it.
func (c *MemoryChannel) Send(_ context.Context, e Event) error {
	e.SenderID = c.id
	c.bus.route(e)
	return nil
}

// Subscribe registers h for events of type t.
func (c *MemoryChannel) Subscribe(t EventType, h Handler) (cancel func()) {
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

func (c *MemoryChannel) dispatch(e Event) {
	c.mu.Lock()
	subs := make([]*subscription, len(c.handlers[e.Type]))
	copy(subs, c.handlers[e.Type])
	c.mu.Unlock()

	for _, s := range subs {
		s.h(e)
	}
}
