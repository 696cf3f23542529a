package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/pairLink/pkg/concurrency"
	"github.com/rescp17/pairLink/pkg/media"
	"github.com/rescp17/pairLink/pkg/peer"
	"github.com/rescp17/pairLink/pkg/signaling"
)

type fakeTrack struct {
	id      string
	kind    media.Kind
	enabled bool
	stopped bool
	onEnded func()
}

func (t *fakeTrack) ID() string               { return t.id }
func (t *fakeTrack) Label() string            { return t.id }
func (t *fakeTrack) Kind() media.Kind         { return t.kind }
func (t *fakeTrack) Enabled() bool            { return t.enabled }
func (t *fakeTrack) SetEnabled(v bool)        { t.enabled = v }
func (t *fakeTrack) Stop()                    { t.stopped = true }
func (t *fakeTrack) OnEnded(fn func())        { t.onEnded = fn }
func (t *fakeTrack) Local() webrtc.TrackLocal { return nil }

type fakeGateway struct {
	err    error
	tracks []*fakeTrack
}

func (g *fakeGateway) AcquireUserMedia(_ context.Context, c media.Constraints) ([]media.Track, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.tracks = nil
	var out []media.Track
	if c.Audio {
		tr := &fakeTrack{id: "mic-0", kind: media.KindAudio, enabled: true}
		g.tracks = append(g.tracks, tr)
		out = append(out, tr)
	}
	if c.Video {
		tr := &fakeTrack{id: "cam-0", kind: media.KindVideo, enabled: true}
		g.tracks = append(g.tracks, tr)
		out = append(out, tr)
	}
	return out, nil
}

func (g *fakeGateway) AcquireDisplayMedia(context.Context) (media.Track, error) {
	tr := &fakeTrack{id: "screen-0", kind: media.KindVideo, enabled: true}
	g.tracks = append(g.tracks, tr)
	return tr, nil
}

func (g *fakeGateway) EnumerateVideoInputs(context.Context) ([]media.DeviceInfo, error) {
	return nil, nil
}

type fakeLink struct {
	name string

	mu         sync.Mutex
	tracks     []media.Track
	offers     int
	answered   string
	candidates []json.RawMessage
	closed     bool

	onICE   func(json.RawMessage)
	onTrack func(peer.RemoteTrackInfo)
	onState func(peer.LinkState)
}

func (l *fakeLink) ReplaceVideoTrack(media.Track) error { return nil }

func (l *fakeLink) AddLocalTracks(tracks []media.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = tracks
	return nil
}

func (l *fakeLink) CreateOffer(context.Context) (peer.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offers++
	return peer.SessionDescription{Type: "offer", SDP: "offer-from-" + l.name}, nil
}

func (l *fakeLink) HandleOffer(offer peer.SessionDescription) (peer.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answered = offer.SDP
	return peer.SessionDescription{Type: "answer", SDP: "answer-from-" + l.name}, nil
}

func (l *fakeLink) HandleAnswer(answer peer.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answered = answer.SDP
	return nil
}

func (l *fakeLink) AddICECandidate(c json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, c)
	return nil
}

func (l *fakeLink) OnICECandidate(fn func(json.RawMessage))     { l.onICE = fn }
func (l *fakeLink) OnRemoteTrack(fn func(peer.RemoteTrackInfo)) { l.onTrack = fn }
func (l *fakeLink) OnStateChange(fn func(state peer.LinkState)) { l.onState = fn }

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// occupant bundles one participant's room session wiring over the shared bus.
type occupant struct {
	id      string
	gw      *fakeGateway
	guard   *concurrency.Guard
	session *Session

	mu          sync.Mutex
	links       []*fakeLink
	full        int
	joined      []string
	left        []string
	evicted     int
	shareStates []bool
}

func newOccupant(t *testing.T, bus *signaling.MemoryBus, id string) *occupant {
	t.Helper()
	o := &occupant{id: id, gw: &fakeGateway{}, guard: concurrency.NewGuard()}

	factory := func() (peer.Link, error) {
		link := &fakeLink{name: id}
		o.mu.Lock()
		o.links = append(o.links, link)
		o.mu.Unlock()
		return link, nil
	}

	o.session = NewSession(id, bus.Endpoint(id), media.NewPipeline(o.gw), factory, o.guard, Callbacks{
		OnRoomFull: func() {
			o.mu.Lock()
			o.full++
			o.mu.Unlock()
		},
		OnPeerJoined: func(_, userName string) {
			o.mu.Lock()
			o.joined = append(o.joined, userName)
			o.mu.Unlock()
		},
		OnPeerLeft: func(userID string) {
			o.mu.Lock()
			o.left = append(o.left, userID)
			o.mu.Unlock()
		},
		OnHostDisconnected: func() {
			o.mu.Lock()
			o.evicted++
			o.mu.Unlock()
		},
		OnRemoteScreenShare: func(active bool) {
			o.mu.Lock()
			o.shareStates = append(o.shareStates, active)
			o.mu.Unlock()
		},
	})
	t.Cleanup(o.session.Close)
	return o
}

func (o *occupant) link(t *testing.T) *fakeLink {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.links, "occupant %s never created a peer link", o.id)
	return o.links[len(o.links)-1]
}

// fillRoom joins creator then guest and asserts the handshake completed.
func fillRoom(t *testing.T, creator, guest *occupant, roomID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, creator.session.JoinRoom(ctx, roomID, "Creator"))
	state, role, _ := creator.session.State()
	require.Equal(t, StateWaiting, state)
	require.Equal(t, RoleCreator, role)

	require.NoError(t, guest.session.JoinRoom(ctx, roomID, "Guest"))
	state, role, remote := guest.session.State()
	require.Equal(t, StateConnected, state)
	require.Equal(t, RoleJoiner, role)
	require.Equal(t, "Creator", remote)

	state, _, _ = creator.session.State()
	require.Equal(t, StateConnected, state)
}

func TestRoomSession_JoinHandshake(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")

	fillRoom(t, alice, bob, "room-1")

	// The joiner always sends the first offer; the creator only answers.
	assert.Equal(t, 1, bob.link(t).offers, "Joiner creates the offer")
	assert.Equal(t, 0, alice.link(t).offers, "Creator never offers")
	assert.Equal(t, "offer-from-bob", alice.link(t).answered)
	assert.Equal(t, "answer-from-alice", bob.link(t).answered)

	assert.Equal(t, []string{"Guest"}, alice.joined, "Creator is told who arrived")
	assert.ErrorIs(t, alice.guard.TryAcquire(), concurrency.ErrBusy)
	assert.ErrorIs(t, bob.guard.TryAcquire(), concurrency.ErrBusy)
}

func TestRoomSession_JoinTwiceRefused(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")

	require.NoError(t, alice.session.JoinRoom(context.Background(), "room-1", "Alice"))
	err := alice.session.JoinRoom(context.Background(), "room-2", "Alice")
	require.Error(t, err, "A session holds at most one room membership")
}

func TestRoomSession_RoomFull(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	carol := newOccupant(t, bus, "carol")
	fillRoom(t, alice, bob, "room-1")

	require.NoError(t, carol.session.JoinRoom(context.Background(), "room-1", "Carol"))

	state, role, _ := carol.session.State()
	assert.Equal(t, StateIdle, state, "Refused joiner drops back to idle")
	assert.Equal(t, RoleNone, role)
	assert.Equal(t, 1, carol.full)
	for _, tr := range carol.gw.tracks {
		assert.True(t, tr.stopped, "Refused joiner releases local capture")
	}
	carol.mu.Lock()
	assert.Empty(t, carol.links, "No peer link is built for a refused join")
	carol.mu.Unlock()
}

func TestRoomSession_GuestLeaveKeepsCreatorWaiting(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	fillRoom(t, alice, bob, "room-1")

	bobLink := bob.link(t)
	bob.session.LeaveRoom(context.Background())

	assert.True(t, bobLink.closed)
	assert.NoError(t, bob.guard.TryAcquire(), "Leaver releases link ownership")

	state, role, remote := alice.session.State()
	assert.Equal(t, StateWaiting, state, "Creator drops back to waiting, not idle")
	assert.Equal(t, RoleCreator, role)
	assert.Empty(t, remote)
	assert.Equal(t, []string{"bob"}, alice.left)
	assert.True(t, alice.link(t).closed, "Creator's dead link is released")
	assert.NoError(t, alice.guard.TryAcquire(), "Creator can build a link for the next guest")
	alice.guard.Release()

	// Local media survives the departure so the next guest connects instantly.
	for _, tr := range alice.gw.tracks {
		assert.False(t, tr.stopped, "Creator's capture stays live")
	}
}

func TestRoomSession_RoomSurvivesForNextGuest(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	carol := newOccupant(t, bus, "carol")
	fillRoom(t, alice, bob, "room-1")

	bob.session.LeaveRoom(context.Background())

	require.NoError(t, carol.session.JoinRoom(context.Background(), "room-1", "Carol"))
	state, role, _ := carol.session.State()
	assert.Equal(t, StateConnected, state, "A fresh guest takes the freed slot")
	assert.Equal(t, RoleJoiner, role)

	state, _, remote := alice.session.State()
	assert.Equal(t, StateConnected, state)
	assert.Equal(t, "Carol", remote)
}

func TestRoomSession_CreatorLeaveEvictsGuest(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	fillRoom(t, alice, bob, "room-1")

	alice.session.LeaveRoom(context.Background())

	state, role, _ := bob.session.State()
	assert.Equal(t, StateIdle, state, "Guest is evicted when the creator leaves")
	assert.Equal(t, RoleNone, role)
	assert.Equal(t, 1, bob.evicted)
	for _, tr := range bob.gw.tracks {
		assert.True(t, tr.stopped, "Eviction stops guest capture")
	}
	assert.NoError(t, bob.guard.TryAcquire())
}

func TestRoomSession_AbruptGuestDisconnect(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	fillRoom(t, alice, bob, "room-1")

	bus.Disconnect("bob")

	state, _, _ := alice.session.State()
	assert.Equal(t, StateWaiting, state, "Transport loss looks like a leave")
	assert.Equal(t, []string{"bob"}, alice.left)
}

func TestRoomSession_HostActionMutesGuest(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	fillRoom(t, alice, bob, "room-1")
	ctx := context.Background()

	require.NoError(t, alice.session.SendHostAction(ctx, signaling.HostActionMute))

	var mic *fakeTrack
	for _, tr := range bob.gw.tracks {
		if tr.kind == media.KindAudio {
			mic = tr
		}
	}
	require.NotNil(t, mic)
	assert.False(t, mic.enabled, "Host mute lands as a local disable on the guest")

	// Repeating the action leaves the mic alone.
	require.NoError(t, alice.session.SendHostAction(ctx, signaling.HostActionMute))
	assert.False(t, mic.enabled)
}

func TestRoomSession_HostActionsAreCreatorOnly(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	fillRoom(t, alice, bob, "room-1")

	err := bob.session.SendHostAction(context.Background(), signaling.HostActionMute)
	require.ErrorIs(t, err, ErrNotCreator)

	// The creator's own tracks are untouched by anything so far.
	for _, tr := range alice.gw.tracks {
		assert.True(t, tr.enabled)
	}
}

func TestRoomSession_ScreenShareHint(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	fillRoom(t, alice, bob, "room-1")
	ctx := context.Background()

	active, err := bob.session.ToggleScreenShare(ctx)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, []bool{true}, alice.shareStates, "Creator sees the share start")
	assert.Empty(t, bob.shareStates, "The sharer does not echo its own hint")

	active, err = bob.session.ToggleScreenShare(ctx)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Equal(t, []bool{true, false}, alice.shareStates)
}

func TestRoomSession_HostStopsGuestShare(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	fillRoom(t, alice, bob, "room-1")
	ctx := context.Background()

	_, err := bob.session.ToggleScreenShare(ctx)
	require.NoError(t, err)

	require.NoError(t, alice.session.SendHostAction(ctx, signaling.HostActionDisableScreenShare))
	assert.Equal(t, []bool{true, false}, alice.shareStates, "The forced stop is published like a local one")
}

func TestRoomSession_JoinWithoutMedia(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	bob.gw.err = errors.New("no capture devices")

	require.NoError(t, alice.session.JoinRoom(context.Background(), "room-1", "Alice"))

	// A guest with no working camera still joins and negotiates receive-only.
	require.NoError(t, bob.session.JoinRoom(context.Background(), "room-1", "Bob"))
	state, role, _ := bob.session.State()
	assert.Equal(t, StateConnected, state)
	assert.Equal(t, RoleJoiner, role)
	assert.Empty(t, bob.link(t).tracks, "No local tracks ride on the link")
}

func TestRoomSession_LinkFailureFallsBackToWaiting(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	fillRoom(t, alice, bob, "room-1")

	alice.link(t).onState(peer.LinkFailed)

	state, role, remote := alice.session.State()
	assert.Equal(t, StateWaiting, state, "The room outlives a failed link")
	assert.Equal(t, RoleCreator, role)
	assert.Empty(t, remote)
	assert.True(t, alice.link(t).closed)
	assert.NoError(t, alice.guard.TryAcquire())
}

func TestRoomSession_CandidateRelay(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")
	bob := newOccupant(t, bus, "bob")
	fillRoom(t, alice, bob, "room-1")

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 10.0.0.4 50000 typ host"}`)
	bob.link(t).onICE(candidate)

	require.Len(t, alice.link(t).candidates, 1)
	assert.JSONEq(t, string(candidate), string(alice.link(t).candidates[0]))
}

func TestRoomSession_LeaveIdempotent(t *testing.T) {
	bus := signaling.NewMemoryBus()
	alice := newOccupant(t, bus, "alice")

	alice.session.LeaveRoom(context.Background())
	require.NoError(t, alice.session.JoinRoom(context.Background(), "room-1", "Alice"))
	alice.session.LeaveRoom(context.Background())
	alice.session.LeaveRoom(context.Background())

	state, _, _ := alice.session.State()
	assert.Equal(t, StateIdle, state)
}
