package signaling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures every delivered event of the subscribed types, in order.
// MemoryBus delivery is synchronous, so no waiting is needed.
type recorder struct {
	events []Event
}

func record(ch Channel, types ...EventType) *recorder {
	r := &recorder{}
	for _, t := range types {
		ch.Subscribe(t, func(e Event) {
			r.events = append(r.events, e)
		})
	}
	return r
}

func (r *recorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func joinRoom(t *testing.T, ch *MemoryChannel, roomID, name string) {
	t.Helper()
	e, err := NewEvent(EventJoinRoom, JoinPayload{Name: name})
	require.NoError(t, err)
	e.RoomID = roomID
	require.NoError(t, ch.Send(context.Background(), e))
}

func TestMemoryBus_TargetedTranslation(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")
	bob := bus.Endpoint("bob")

	got := record(bob, EventIncomingCall)

	e, err := NewEvent(EventCallInitiate, UserPayload{UserID: "alice", UserName: "Alice"})
	require.NoError(t, err)
	e.TargetID = "bob"
	require.NoError(t, alice.Send(context.Background(), e))

	require.Len(t, got.events, 1, "Callee should receive the translated notification")
	assert.Equal(t, EventIncomingCall, got.events[0].Type)
	assert.Equal(t, "alice", got.events[0].SenderID, "Sender identity is stamped by the channel")

	var payload UserPayload
	require.NoError(t, got.events[0].Decode(&payload))
	assert.Equal(t, "Alice", payload.UserName, "Payload passes through untouched")
}

func TestMemoryBus_TargetedDeliveryIsExclusive(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")
	bob := record(bus.Endpoint("bob"), EventMessageReceive)
	carol := record(bus.Endpoint("carol"), EventMessageReceive)

	e, err := NewEvent(EventMessageSend, ChatPayload{Content: "hi bob"})
	require.NoError(t, err)
	e.TargetID = "bob"
	require.NoError(t, alice.Send(context.Background(), e))

	assert.Len(t, bob.events, 1, "Target receives the message")
	assert.Empty(t, carol.events, "Nobody else does")
}

func TestMemoryBus_JoinFlow(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")
	bob := bus.Endpoint("bob")

	aliceGot := record(alice, EventRoomCreator, EventExistingUser, EventUserJoined)
	bobGot := record(bob, EventRoomCreator, EventExistingUser, EventUserJoined)

	joinRoom(t, alice, "room-1", "Alice")
	require.Equal(t, []EventType{EventRoomCreator}, aliceGot.types(),
		"First joiner is told they created the room")

	joinRoom(t, bob, "room-1", "Bob")

	// The joiner learns about the occupant; the occupant learns about the joiner.
	require.Equal(t, []EventType{EventExistingUser}, bobGot.types())
	var existing UserPayload
	require.NoError(t, bobGot.events[0].Decode(&existing))
	assert.Equal(t, "alice", existing.UserID)
	assert.Equal(t, "alice", bobGot.events[0].SenderID,
		"existing-user carries the occupant's identity as sender")

	require.Equal(t, []EventType{EventRoomCreator, EventUserJoined}, aliceGot.types())
	var joined UserPayload
	require.NoError(t, aliceGot.events[1].Decode(&joined))
	assert.Equal(t, "bob", joined.UserID)
	assert.Equal(t, "Bob", joined.UserName)
}

func TestMemoryBus_RoomFull(t *testing.T) {
	bus := NewMemoryBus()
	joinRoom(t, bus.Endpoint("alice"), "room-1", "Alice")
	joinRoom(t, bus.Endpoint("bob"), "room-1", "Bob")

	carol := bus.Endpoint("carol")
	carolGot := record(carol, EventRoomFull, EventRoomCreator, EventExistingUser)
	joinRoom(t, carol, "room-1", "Carol")

	require.Equal(t, []EventType{EventRoomFull}, carolGot.types(),
		"Third joiner gets only the refusal")
}

func TestMemoryBus_GuestHangUp(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")
	bob := bus.Endpoint("bob")
	joinRoom(t, alice, "room-1", "Alice")
	joinRoom(t, bob, "room-1", "Bob")

	aliceGot := record(alice, EventCallEnded, EventHostDisconnected)

	e := Event{Type: EventCallEnd, RoomID: "room-1"}
	require.NoError(t, bob.Send(context.Background(), e))

	require.Equal(t, []EventType{EventCallEnded}, aliceGot.types(),
		"Creator is told the call ended, not that the host left")
	assert.Equal(t, "bob", aliceGot.events[0].SenderID)

	// Room survives in waiting state.
	assert.Len(t, bus.rooms.Members("room-1"), 1)
}

func TestMemoryBus_CreatorHangUpEvicts(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")
	bob := bus.Endpoint("bob")
	joinRoom(t, alice, "room-1", "Alice")
	joinRoom(t, bob, "room-1", "Bob")

	bobGot := record(bob, EventCallEnded, EventHostDisconnected)

	e := Event{Type: EventCallEnd, RoomID: "room-1"}
	require.NoError(t, alice.Send(context.Background(), e))

	require.Equal(t, []EventType{EventHostDisconnected}, bobGot.types(),
		"Creator departure escalates to eviction")
	assert.Empty(t, bus.rooms.Members("room-1"), "Room is dissolved")
}

func TestMemoryBus_DisconnectNotifiesPeer(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")
	bob := bus.Endpoint("bob")
	joinRoom(t, alice, "room-1", "Alice")
	joinRoom(t, bob, "room-1", "Bob")

	aliceGot := record(alice, EventUserLeft, EventHostDisconnected)

	bus.Disconnect("bob")
	require.Equal(t, []EventType{EventUserLeft}, aliceGot.types(),
		"Abrupt guest loss surfaces as user-left")

	var who UserPayload
	require.NoError(t, aliceGot.events[0].Decode(&who))
	assert.Equal(t, "bob", who.UserID)
}

func TestMemoryBus_DisconnectCreatorEvicts(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")
	bob := bus.Endpoint("bob")
	joinRoom(t, alice, "room-1", "Alice")
	joinRoom(t, bob, "room-1", "Bob")

	bobGot := record(bob, EventUserLeft, EventHostDisconnected)

	bus.Disconnect("alice")
	require.Equal(t, []EventType{EventHostDisconnected}, bobGot.types())
}

func TestMemoryBus_RoomScopedDeliveryIncludesSender(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")
	bob := bus.Endpoint("bob")
	joinRoom(t, alice, "room-1", "Alice")
	joinRoom(t, bob, "room-1", "Bob")

	aliceGot := record(alice, EventGuestReceive)
	bobGot := record(bob, EventGuestReceive)

	e, err := NewEvent(EventGuestMessage, ChatPayload{Content: "hello room"})
	require.NoError(t, err)
	e.RoomID = "room-1"
	require.NoError(t, alice.Send(context.Background(), e))

	// The bus echoes room traffic back to the sender so the sessions' own
	// self-suppression is what the tests exercise.
	assert.Len(t, aliceGot.events, 1)
	assert.Len(t, bobGot.events, 1)
	assert.Equal(t, "alice", bobGot.events[0].SenderID)
}

func TestMemoryChannel_SubscribeCancel(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")
	bob := bus.Endpoint("bob")

	var got int
	cancel := bob.Subscribe(EventMessageReceive, func(Event) { got++ })

	e, err := NewEvent(EventMessageSend, ChatPayload{Content: "one"})
	require.NoError(t, err)
	e.TargetID = "bob"
	require.NoError(t, alice.Send(context.Background(), e))
	cancel()
	require.NoError(t, alice.Send(context.Background(), e))

	assert.Equal(t, 1, got, "Cancelled subscription must not fire again")
}

func TestMemoryBus_EndpointIsStable(t *testing.T) {
	bus := NewMemoryBus()
	first := bus.Endpoint("alice")
	second := bus.Endpoint("alice")
	assert.Same(t, first, second, "One identity maps to one endpoint")
	assert.Equal(t, "alice", first.ID())
}
