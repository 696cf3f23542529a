// Package room implements the anonymous two-party room session: ad-hoc rooms
// joined via a shared link, with a creator/joiner role split. The joiner
// always sends the first offer; the creator only answers. Room capacity is
// enforced server-side and surfaces here as a room-full signal.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rescp17/pairLink/pkg/call"
	"github.com/rescp17/pairLink/pkg/concurrency"
	"github.com/rescp17/pairLink/pkg/media"
	"github.com/rescp17/pairLink/pkg/peer"
	"github.com/rescp17/pairLink/pkg/signaling"
)

// State is the room session state. Waiting means joined with live local media
// but no peer, the state a session returns to when the other party leaves.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateConnected:
		return "connected"
	default:
		return "idle"
	}
}

// Role is assigned by the server on arrival order.
type Role int

const (
	RoleNone Role = iota
	RoleCreator
	RoleJoiner
)

func (r Role) String() string {
	switch r {
	case RoleCreator:
		return "creator"
	case RoleJoiner:
		return "joiner"
	default:
		return "none"
	}
}

var (
	// ErrRoomFull is returned when the server refused the join.
	ErrRoomFull = errors.New("room is full")
	// ErrNotCreator guards host-only moderation actions.
	ErrNotCreator = errors.New("only the room creator can do that")
)

// Callbacks notify the UI layer. All fields optional; must not block.
type Callbacks struct {
	OnStateChange       func(s State, remoteName string)
	OnRoomFull          func()
	OnPeerJoined        func(userID, userName string)
	OnPeerLeft          func(userID string)
	OnHostDisconnected  func()
	OnRemoteTrack       func(info peer.RemoteTrackInfo)
	OnRemoteScreenShare func(active bool)
}

// Session is one room membership lifetime.
type Session struct {
	selfID   string
	sig      signaling.Channel
	pipeline *media.Pipeline
	newLink  call.LinkFactory
	guard    *concurrency.Guard
	cb       Callbacks

	handlers signaling.HandlerTable

	mu         sync.Mutex
	state      State
	role       Role
	roomID     string
	remoteID   string
	remoteName string
	link       peer.Link
}

// NewSession creates an idle room session and installs its handlers.
func NewSession(selfID string, sig signaling.Channel, pipeline *media.Pipeline, newLink call.LinkFactory, guard *concurrency.Guard, cb Callbacks) *Session {
	s := &Session{
		selfID:   selfID,
		sig:      sig,
		pipeline: pipeline,
		newLink:  newLink,
		guard:    guard,
		cb:       cb,
	}

	pipeline.OnScreenShareChanged(s.publishScreenShare)

	s.handlers.Install(sig, signaling.EventRoomFull, s.handleRoomFull)
	s.handlers.Install(sig, signaling.EventRoomCreator, s.handleRoomCreator)
	s.handlers.Install(sig, signaling.EventExistingUser, s.handleExistingUser)
	s.handlers.Install(sig, signaling.EventUserJoined, s.handleUserJoined)
	s.handlers.Install(sig, signaling.EventUserLeft, s.handleUserLeft)
	s.handlers.Install(sig, signaling.EventHostDisconnected, s.handleHostDisconnected)
	s.handlers.Install(sig, signaling.EventOffer, s.handleOffer)
	s.handlers.Install(sig, signaling.EventAnswer, s.handleAnswer)
	s.handlers.Install(sig, signaling.EventICECandidate, s.handleCandidate)
	s.handlers.Install(sig, signaling.EventHostAction, s.handleHostAction)
	s.handlers.Install(sig, signaling.EventScreenShare, s.handleScreenShareStatus)
	s.handlers.Install(sig, signaling.EventCallEnded, s.handleCallEnded)
	return s
}

// Close leaves the room and removes all signaling handlers.
func (s *Session) Close() {
	s.LeaveRoom(context.Background())
	s.handlers.RemoveAll()
}

// State returns the current state, role and remote display name.
func (s *Session) State() (State, Role, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.role, s.remoteName
}

// JoinRoom opens local media and announces arrival. Media failure does not
// abort the join: the session continues receive-only, matching how a guest
// with a broken camera can still participate.
func (s *Session) JoinRoom(ctx context.Context, roomID, name string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: already in a room", call.ErrInvalidState)
	}
	s.roomID = roomID
	s.state = StateWaiting
	s.mu.Unlock()

	if err := s.pipeline.Acquire(ctx, media.Constraints{Audio: true, Video: true}); err != nil {
		slog.Warn("joining without local media", "error", err)
	}

	s.notifyState()
	return s.send(ctx, signaling.EventJoinRoom, signaling.JoinPayload{Name: name})
}

// LeaveRoom is the only cancellation primitive: idempotent, legal from any
// state, releases capture synchronously.
func (s *Session) LeaveRoom(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	engaged := s.state == StateConnected
	link := s.link
	s.link = nil
	s.state = StateIdle
	s.role = RoleNone
	s.remoteID = ""
	s.remoteName = ""
	s.mu.Unlock()

	if engaged {
		if err := s.send(ctx, signaling.EventCallEnd, nil); err != nil {
			slog.Warn("failed to announce leave", "error", err)
		}
	}
	s.releaseLink(link)
	s.pipeline.StopAll()
	s.notifyState()
}

// ToggleMic flips the local audio track.
func (s *Session) ToggleMic() (bool, error) { return s.pipeline.ToggleTrack(media.KindAudio) }

// ToggleCamera flips the local video track.
func (s *Session) ToggleCamera() (bool, error) { return s.pipeline.ToggleTrack(media.KindVideo) }

// SwitchCamera cycles to the next physical camera.
func (s *Session) SwitchCamera(ctx context.Context) error { return s.pipeline.SwitchCamera(ctx) }

// ToggleScreenShare starts or stops screen sharing.
func (s *Session) ToggleScreenShare(ctx context.Context) (bool, error) {
	return s.pipeline.ToggleScreenShare(ctx)
}

// SendHostAction forces a moderation toggle on the guest. Creator only.
func (s *Session) SendHostAction(ctx context.Context, action signaling.HostAction) error {
	s.mu.Lock()
	role := s.role
	s.mu.Unlock()
	if role != RoleCreator {
		return ErrNotCreator
	}
	return s.send(ctx, signaling.EventHostAction, signaling.HostActionPayload{Action: action})
}

func (s *Session) isSelf(e signaling.Event) bool { return e.SenderID == s.selfID }

// inRoom filters events carrying a room correlation key that is not ours.
func (s *Session) inRoom(e signaling.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return false
	}
	return e.RoomID == "" || e.RoomID == s.roomID
}

func (s *Session) handleRoomFull(e signaling.Event) {
	if !s.inRoom(e) {
		return
	}
	s.mu.Lock()
	s.state = StateIdle
	s.roomID = ""
	s.mu.Unlock()

	s.pipeline.StopAll()
	s.notifyState()
	if s.cb.OnRoomFull != nil {
		s.cb.OnRoomFull()
	}
}

func (s *Session) handleRoomCreator(e signaling.Event) {
	if !s.inRoom(e) {
		return
	}
	s.mu.Lock()
	s.role = RoleCreator
	s.mu.Unlock()
}

// handleExistingUser tells us we are the second arrival: adopt the joiner
// role and send the first offer immediately.
func (s *Session) handleExistingUser(e signaling.Event) {
	if s.isSelf(e) || !s.inRoom(e) {
		return
	}

	var payload signaling.UserPayload
	if err := e.Decode(&payload); err != nil {
		slog.Warn("malformed existing-user payload", "error", err)
		return
	}

	s.mu.Lock()
	s.role = RoleJoiner
	s.remoteID = payload.UserID
	s.remoteName = payload.UserName
	s.mu.Unlock()

	ctx := context.Background()
	link, err := s.establishLink()
	if err != nil {
		slog.Error("failed to establish peer link", "error", err)
		return
	}
	offer, err := link.CreateOffer(ctx)
	if err != nil {
		slog.Error("failed to create offer", "error", err)
		return
	}
	if err := s.send(ctx, signaling.EventOffer, signaling.SDPPayload{SDP: signaling.SessionDescription(offer)}); err != nil {
		slog.Error("failed to send offer", "error", err)
	}
}

func (s *Session) handleUserJoined(e signaling.Event) {
	if s.isSelf(e) || !s.inRoom(e) {
		return
	}

	var payload signaling.UserPayload
	if err := e.Decode(&payload); err != nil {
		slog.Warn("malformed user-joined payload", "error", err)
		return
	}

	s.mu.Lock()
	s.remoteID = payload.UserID
	s.remoteName = payload.UserName
	s.mu.Unlock()

	if s.cb.OnPeerJoined != nil {
		s.cb.OnPeerJoined(payload.UserID, payload.UserName)
	}
}

// handleUserLeft drops the peer link but keeps local media live: the session
// returns to the one-party waiting state, ready for a new arrival.
func (s *Session) handleUserLeft(e signaling.Event) {
	if s.isSelf(e) || !s.inRoom(e) {
		return
	}

	s.mu.Lock()
	link := s.link
	s.link = nil
	left := s.remoteID
	s.remoteID = ""
	s.remoteName = ""
	if s.state == StateConnected {
		s.state = StateWaiting
	}
	s.mu.Unlock()

	s.releaseLink(link)
	s.pipeline.AttachReplacer(nil)
	s.notifyState()
	if s.cb.OnPeerLeft != nil {
		s.cb.OnPeerLeft(left)
	}
}

// handleHostDisconnected evicts everyone: there is no host migration.
func (s *Session) handleHostDisconnected(e signaling.Event) {
	if s.isSelf(e) || !s.inRoom(e) {
		return
	}

	s.mu.Lock()
	link := s.link
	s.link = nil
	s.state = StateIdle
	s.role = RoleNone
	s.roomID = ""
	s.remoteID = ""
	s.remoteName = ""
	s.mu.Unlock()

	s.releaseLink(link)
	s.pipeline.StopAll()
	s.notifyState()
	if s.cb.OnHostDisconnected != nil {
		s.cb.OnHostDisconnected()
	}
}

// handleOffer is the creator's path: answer whatever the joiner proposes.
func (s *Session) handleOffer(e signaling.Event) {
	if s.isSelf(e) || !s.inRoom(e) {
		return
	}

	var payload signaling.SDPPayload
	if err := e.Decode(&payload); err != nil {
		slog.Warn("malformed offer payload", "error", err)
		return
	}

	s.mu.Lock()
	if s.remoteID == "" {
		s.remoteID = e.SenderID
	}
	link := s.link
	s.mu.Unlock()

	ctx := context.Background()
	if link == nil {
		var err error
		if link, err = s.establishLink(); err != nil {
			slog.Error("failed to establish peer link on offer", "error", err)
			return
		}
	}

	answer, err := link.HandleOffer(peer.SessionDescription(payload.SDP))
	if err != nil {
		slog.Error("failed to answer offer", "error", err)
		return
	}
	if err := s.send(ctx, signaling.EventAnswer, signaling.SDPPayload{SDP: signaling.SessionDescription(answer)}); err != nil {
		slog.Error("failed to send answer", "error", err)
		return
	}
	s.markConnected()
}

func (s *Session) handleAnswer(e signaling.Event) {
	if s.isSelf(e) || !s.inRoom(e) {
		return
	}

	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
	if link == nil {
		return
	}

	var payload signaling.SDPPayload
	if err := e.Decode(&payload); err != nil {
		slog.Warn("malformed answer payload", "error", err)
		return
	}
	if err := link.HandleAnswer(peer.SessionDescription(payload.SDP)); err != nil {
		slog.Error("failed to apply answer", "error", err)
		return
	}
	s.markConnected()
}

func (s *Session) handleCandidate(e signaling.Event) {
	if s.isSelf(e) || !s.inRoom(e) {
		return
	}

	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
	if link == nil {
		return
	}

	var payload signaling.CandidatePayload
	if err := e.Decode(&payload); err != nil {
		slog.Warn("malformed candidate payload", "error", err)
		return
	}
	if err := link.AddICECandidate(payload.Candidate); err != nil {
		slog.Warn("failed to add remote candidate", "error", err)
	}
}

// handleHostAction applies a forced toggle through the exact same pipeline
// operations a local toggle uses, so guest-side state stays consistent.
func (s *Session) handleHostAction(e signaling.Event) {
	if s.isSelf(e) || !s.inRoom(e) {
		return
	}
	s.mu.Lock()
	role := s.role
	s.mu.Unlock()
	if role == RoleCreator {
		return
	}

	var payload signaling.HostActionPayload
	if err := e.Decode(&payload); err != nil {
		slog.Warn("malformed host-action payload", "error", err)
		return
	}
	if err := s.pipeline.ApplyHostAction(context.Background(), payload.Action); err != nil {
		slog.Warn("failed to apply host action", "action", payload.Action, "error", err)
	}
}

// handleScreenShareStatus is a UI hint only.
func (s *Session) handleScreenShareStatus(e signaling.Event) {
	if s.isSelf(e) || !s.inRoom(e) {
		return
	}
	var payload signaling.ScreenSharePayload
	if err := e.Decode(&payload); err != nil {
		return
	}
	if s.cb.OnRemoteScreenShare != nil {
		s.cb.OnRemoteScreenShare(payload.IsScreenSharing)
	}
}

// handleCallEnded mirrors user-left: the peer hung up but the room persists.
func (s *Session) handleCallEnded(e signaling.Event) {
	s.handleUserLeft(e)
}

func (s *Session) establishLink() (peer.Link, error) {
	if err := s.guard.TryAcquire(); err != nil {
		return nil, fmt.Errorf("previous peer link not yet released: %w", err)
	}

	link, err := s.newLink()
	if err != nil {
		s.guard.Release()
		return nil, fmt.Errorf("failed to create peer link: %w", err)
	}
	if err := link.AddLocalTracks(s.pipeline.Tracks()); err != nil {
		_ = link.Close()
		s.guard.Release()
		return nil, err
	}

	link.OnICECandidate(func(candidate json.RawMessage) {
		err := s.send(context.Background(), signaling.EventICECandidate, signaling.CandidatePayload{Candidate: candidate})
		if err != nil {
			slog.Warn("failed to send candidate", "error", err)
		}
	})
	link.OnRemoteTrack(func(info peer.RemoteTrackInfo) {
		s.markConnected()
		if s.cb.OnRemoteTrack != nil {
			s.cb.OnRemoteTrack(info)
		}
	})
	link.OnStateChange(func(state peer.LinkState) {
		if state == peer.LinkFailed {
			s.handleLinkFailure()
		}
	})

	s.mu.Lock()
	s.link = link
	s.mu.Unlock()
	s.pipeline.AttachReplacer(link)
	return link, nil
}

// handleLinkFailure drops back to waiting; the room itself is still alive.
func (s *Session) handleLinkFailure() {
	s.mu.Lock()
	link := s.link
	s.link = nil
	s.remoteID = ""
	s.remoteName = ""
	if s.state == StateConnected {
		s.state = StateWaiting
	}
	s.mu.Unlock()

	s.releaseLink(link)
	s.pipeline.AttachReplacer(nil)
	s.notifyState()
}

func (s *Session) releaseLink(link peer.Link) {
	if link == nil {
		return
	}
	if err := link.Close(); err != nil {
		slog.Warn("failed to close peer link", "error", err)
	}
	s.guard.Release()
}

func (s *Session) markConnected() {
	s.mu.Lock()
	changed := s.state == StateWaiting
	if changed {
		s.state = StateConnected
	}
	s.mu.Unlock()
	if changed {
		s.notifyState()
	}
}

// publishScreenShare relays local screen-share state to the room as a hint.
func (s *Session) publishScreenShare(active bool) {
	s.mu.Lock()
	joined := s.state != StateIdle
	s.mu.Unlock()
	if !joined {
		return
	}
	err := s.send(context.Background(), signaling.EventScreenShare, signaling.ScreenSharePayload{IsScreenSharing: active})
	if err != nil {
		slog.Warn("failed to publish screen-share status", "error", err)
	}
}

func (s *Session) send(ctx context.Context, t signaling.EventType, payload any) error {
	e, err := signaling.NewEvent(t, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	e.SenderID = s.selfID
	s.mu.Lock()
	e.RoomID = s.roomID
	s.mu.Unlock()
	return s.sig.Send(ctx, e)
}

func (s *Session) notifyState() {
	if s.cb.OnStateChange == nil {
		return
	}
	s.mu.Lock()
	state, name := s.state, s.remoteName
	s.mu.Unlock()
	s.cb.OnStateChange(state, name)
}
