package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, srv *httptest.Server, id string) *WSChannel {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?id=" + id
	ch, err := DialWS(context.Background(), url, id)
	require.NoError(t, err, "Failed to dial hub as %s", id)
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

// collect funnels the given event types into one channel so tests can await
// asynchronous hub deliveries.
func collect(ch Channel, types ...EventType) <-chan Event {
	out := make(chan Event, 16)
	for _, t := range types {
		ch.Subscribe(t, func(e Event) { out <- e })
	}
	return out
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHub_RequiresIdentity(t *testing.T) {
	srv := httptest.NewServer(NewHub())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "A connection without an id is refused")
}

func TestHub_TargetedTranslation(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	alice := dialHub(t, srv, "alice")
	bob := dialHub(t, srv, "bob")
	incoming := collect(bob, EventIncomingCall)

	e, err := NewEvent(EventCallInitiate, UserPayload{UserID: "alice", UserName: "Alice"})
	require.NoError(t, err)
	e.TargetID = "bob"
	require.NoError(t, alice.Send(context.Background(), e))

	got := waitEvent(t, incoming)
	assert.Equal(t, EventIncomingCall, got.Type)
	assert.Equal(t, "alice", got.SenderID, "Hub stamps the authenticated sender")

	var payload UserPayload
	require.NoError(t, got.Decode(&payload))
	assert.Equal(t, "Alice", payload.UserName)
}

func TestHub_RoomLifecycle(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	alice := dialHub(t, srv, "alice")
	aliceGot := collect(alice, EventRoomCreator, EventUserJoined, EventUserLeft)

	join, err := NewEvent(EventJoinRoom, JoinPayload{Name: "Alice"})
	require.NoError(t, err)
	join.RoomID = "room-1"
	require.NoError(t, alice.Send(context.Background(), join))
	assert.Equal(t, EventRoomCreator, waitEvent(t, aliceGot).Type)

	bob := dialHub(t, srv, "bob")
	bobGot := collect(bob, EventExistingUser, EventHostDisconnected)

	join, err = NewEvent(EventJoinRoom, JoinPayload{Name: "Bob"})
	require.NoError(t, err)
	join.RoomID = "room-1"
	require.NoError(t, bob.Send(context.Background(), join))

	existing := waitEvent(t, bobGot)
	assert.Equal(t, EventExistingUser, existing.Type)
	var occupant UserPayload
	require.NoError(t, existing.Decode(&occupant))
	assert.Equal(t, "alice", occupant.UserID)

	joined := waitEvent(t, aliceGot)
	assert.Equal(t, EventUserJoined, joined.Type)

	// Dropping the guest's socket surfaces as user-left on the creator side.
	require.NoError(t, bob.Close())
	left := waitEvent(t, aliceGot)
	assert.Equal(t, EventUserLeft, left.Type)
	var who UserPayload
	require.NoError(t, left.Decode(&who))
	assert.Equal(t, "bob", who.UserID)
}

func TestHub_RoomBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	alice := dialHub(t, srv, "alice")
	bob := dialHub(t, srv, "bob")
	aliceReady := collect(alice, EventRoomCreator)
	bobReady := collect(bob, EventExistingUser)

	join, err := NewEvent(EventJoinRoom, JoinPayload{Name: "Alice"})
	require.NoError(t, err)
	join.RoomID = "room-1"
	require.NoError(t, alice.Send(context.Background(), join))
	waitEvent(t, aliceReady)

	join, err = NewEvent(EventJoinRoom, JoinPayload{Name: "Bob"})
	require.NoError(t, err)
	join.RoomID = "room-1"
	require.NoError(t, bob.Send(context.Background(), join))
	waitEvent(t, bobReady)

	aliceChat := collect(alice, EventGuestReceive)
	bobChat := collect(bob, EventGuestReceive)

	msg, err := NewEvent(EventGuestMessage, ChatPayload{Content: "hello"})
	require.NoError(t, err)
	msg.RoomID = "room-1"
	require.NoError(t, alice.Send(context.Background(), msg))

	got := waitEvent(t, bobChat)
	assert.Equal(t, "alice", got.SenderID)

	select {
	case e := <-aliceChat:
		t.Fatalf("sender received its own room broadcast: %v", e.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHub_DuplicateIdentityBumpsPrevious(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	first := dialHub(t, srv, "alice")
	second := dialHub(t, srv, "alice")

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("previous connection was not bumped")
	}

	// The replacement connection still receives traffic.
	bob := dialHub(t, srv, "bob")
	msgs := collect(second, EventMessageReceive)

	e, err := NewEvent(EventMessageSend, ChatPayload{Content: "still here?"})
	require.NoError(t, err)
	e.TargetID = "alice"
	require.NoError(t, bob.Send(context.Background(), e))
	assert.Equal(t, EventMessageReceive, waitEvent(t, msgs).Type)
}
