// Package call implements the authenticated-mode session: a state machine
// driving call signaling, peer link negotiation and media lifecycle between
// two fixed users. The transport and capture layers are injected; the session
// only reacts to events and UI commands.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rescp17/pairLink/pkg/concurrency"
	"github.com/rescp17/pairLink/pkg/media"
	"github.com/rescp17/pairLink/pkg/peer"
	"github.com/rescp17/pairLink/pkg/signaling"
)

// State is the call session state.
type State int

const (
	StateIdle State = iota
	StateCalling
	StateReceiving
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateCalling:
		return "calling"
	case StateReceiving:
		return "receiving"
	case StateConnected:
		return "connected"
	default:
		return "idle"
	}
}

// ErrInvalidState is returned when an action is not legal from the current
// state. It never crashes a session; callers surface it as a no-op.
var ErrInvalidState = errors.New("invalid state for requested transition")

// LinkFactory constructs a fresh peer link. Injected so tests can substitute
// a fake for the pion-backed implementation.
type LinkFactory func() (peer.Link, error)

// Callbacks are the session's notifications to the UI layer. All fields are
// optional. Callbacks run on the signaling dispatch goroutine and must not
// block.
type Callbacks struct {
	OnStateChange  func(s State, remoteID string)
	OnIncomingCall func(callerID string)
	OnCallRejected func(peerID string)
	OnRemoteTrack  func(info peer.RemoteTrackInfo)
}

// Session is one authenticated-mode call lifetime. Exactly one exists per
// active call; construct with NewSession and always Close it so signaling
// handlers do not leak into the next session.
type Session struct {
	selfID   string
	sig      signaling.Channel
	pipeline *media.Pipeline
	newLink  LinkFactory
	guard    *concurrency.Guard
	cb       Callbacks

	handlers signaling.HandlerTable

	mu       sync.Mutex
	state    State
	remoteID string
	link     peer.Link
}

// NewSession creates an idle session and installs its signaling handlers.
func NewSession(selfID string, sig signaling.Channel, pipeline *media.Pipeline, newLink LinkFactory, guard *concurrency.Guard, cb Callbacks) *Session {
	s := &Session{
		selfID:   selfID,
		sig:      sig,
		pipeline: pipeline,
		newLink:  newLink,
		guard:    guard,
		cb:       cb,
	}

	s.handlers.Install(sig, signaling.EventIncomingCall, s.handleIncomingCall)
	s.handlers.Install(sig, signaling.EventCallAccepted, s.handleCallAccepted)
	s.handlers.Install(sig, signaling.EventCallRejected, s.handleCallRejected)
	s.handlers.Install(sig, signaling.EventOffer, s.handleOffer)
	s.handlers.Install(sig, signaling.EventAnswer, s.handleAnswer)
	s.handlers.Install(sig, signaling.EventICECandidate, s.handleCandidate)
	s.handlers.Install(sig, signaling.EventCallEnded, s.handleCallEnded)
	return s
}

// Close tears the session down and removes its signaling handlers.
func (s *Session) Close() {
	s.teardown(context.Background(), true)
	s.handlers.RemoveAll()
}

// State returns the current state and remote participant.
func (s *Session) State() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.remoteID
}

// isSelf discards events that originated locally, even if the server echoes
// them back.
func (s *Session) isSelf(e signaling.Event) bool {
	return e.SenderID == s.selfID
}

func (s *Session) isRemote(e signaling.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID != "" && e.SenderID == s.remoteID
}

// InitiateCall starts an outbound call to peerID. Only legal from idle.
func (s *Session) InitiateCall(ctx context.Context, peerID string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: initiate from %s", ErrInvalidState, s.state)
	}
	s.state = StateCalling
	s.remoteID = peerID
	s.mu.Unlock()

	s.notifyState()
	return s.send(ctx, signaling.EventCallInitiate, peerID, nil)
}

// AcceptCall answers an incoming call. Local media is acquired first; if
// acquisition fails the call is rejected and the failure returned.
func (s *Session) AcceptCall(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateReceiving {
		s.mu.Unlock()
		return fmt.Errorf("%w: accept from %s", ErrInvalidState, s.state)
	}
	remote := s.remoteID
	s.mu.Unlock()

	if err := s.pipeline.Acquire(ctx, media.Constraints{Audio: true, Video: true}); err != nil {
		if rejectErr := s.RejectCall(ctx); rejectErr != nil {
			slog.Warn("failed to reject call after media failure", "error", rejectErr)
		}
		return err
	}

	s.mu.Lock()
	s.state = StateConnected
	s.mu.Unlock()
	s.notifyState()

	// The caller creates the offer; we wait for it.
	return s.send(ctx, signaling.EventCallAccept, remote, nil)
}

// RejectCall declines an incoming call and returns to idle.
func (s *Session) RejectCall(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateReceiving {
		s.mu.Unlock()
		return fmt.Errorf("%w: reject from %s", ErrInvalidState, s.state)
	}
	remote := s.remoteID
	s.state = StateIdle
	s.remoteID = ""
	s.mu.Unlock()

	s.notifyState()
	return s.send(ctx, signaling.EventCallReject, remote, nil)
}

// EndCall tears everything down. Idempotent and legal from any state,
// including mid-negotiation; local capture stops synchronously even if the
// remote side never acknowledges.
func (s *Session) EndCall(ctx context.Context) {
	s.teardown(ctx, true)
}

// ToggleMic flips the local audio track and returns the new enabled state.
func (s *Session) ToggleMic() (bool, error) {
	return s.pipeline.ToggleTrack(media.KindAudio)
}

// ToggleCamera flips the local video track and returns the new enabled state.
func (s *Session) ToggleCamera() (bool, error) {
	return s.pipeline.ToggleTrack(media.KindVideo)
}

func (s *Session) handleIncomingCall(e signaling.Event) {
	if s.isSelf(e) {
		return
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		// Busy policy: no queueing, no call waiting. Our state is untouched.
		if err := s.send(context.Background(), signaling.EventCallReject, e.SenderID, nil); err != nil {
			slog.Warn("failed to send busy rejection", "caller", e.SenderID, "error", err)
		}
		return
	}
	s.state = StateReceiving
	s.remoteID = e.SenderID
	s.mu.Unlock()

	s.notifyState()
	if s.cb.OnIncomingCall != nil {
		s.cb.OnIncomingCall(e.SenderID)
	}
}

func (s *Session) handleCallAccepted(e signaling.Event) {
	if s.isSelf(e) {
		return
	}

	s.mu.Lock()
	if s.state != StateCalling || e.SenderID != s.remoteID {
		s.mu.Unlock()
		return
	}
	s.state = StateConnected
	remote := s.remoteID
	s.mu.Unlock()
	s.notifyState()

	ctx := context.Background()
	if err := s.pipeline.Acquire(ctx, media.Constraints{Audio: true, Video: true}); err != nil {
		slog.Error("media acquisition failed after acceptance", "error", err)
		s.teardown(ctx, true)
		return
	}

	link, err := s.establishLink()
	if err != nil {
		slog.Error("failed to establish peer link", "error", err)
		s.teardown(ctx, true)
		return
	}

	offer, err := link.CreateOffer(ctx)
	if err != nil {
		slog.Error("failed to create offer", "error", err)
		s.teardown(ctx, true)
		return
	}
	if err := s.send(ctx, signaling.EventOffer, remote, signaling.SDPPayload{SDP: signaling.SessionDescription(offer)}); err != nil {
		slog.Error("failed to send offer", "error", err)
		s.teardown(ctx, true)
	}
}

func (s *Session) handleCallRejected(e signaling.Event) {
	if s.isSelf(e) {
		return
	}

	s.mu.Lock()
	if s.state != StateCalling || e.SenderID != s.remoteID {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.remoteID = ""
	s.mu.Unlock()

	s.notifyState()
	if s.cb.OnCallRejected != nil {
		s.cb.OnCallRejected(e.SenderID)
	}
}

// handleOffer serves both the initial caller offer and any renegotiation
// offer while connected.
func (s *Session) handleOffer(e signaling.Event) {
	if s.isSelf(e) || !s.isRemote(e) {
		return
	}

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	remote := s.remoteID
	s.mu.Unlock()

	var payload signaling.SDPPayload
	if err := e.Decode(&payload); err != nil {
		slog.Warn("malformed offer payload", "error", err)
		return
	}

	ctx := context.Background()
	if !s.pipeline.Acquired() {
		if err := s.pipeline.Acquire(ctx, media.Constraints{Audio: true, Video: true}); err != nil {
			slog.Error("media acquisition failed on offer", "error", err)
			return
		}
	}

	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
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
	if err := s.send(ctx, signaling.EventAnswer, remote, signaling.SDPPayload{SDP: signaling.SessionDescription(answer)}); err != nil {
		slog.Error("failed to send answer", "error", err)
	}
}

func (s *Session) handleAnswer(e signaling.Event) {
	if s.isSelf(e) || !s.isRemote(e) {
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
	}
}

func (s *Session) handleCandidate(e signaling.Event) {
	if s.isSelf(e) || !s.isRemote(e) {
		// Candidates for a session we are not in are discarded.
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

func (s *Session) handleCallEnded(e signaling.Event) {
	if s.isSelf(e) || !s.isRemote(e) {
		return
	}
	// Remote already ended; no call-end echo back.
	s.teardown(context.Background(), false)
}

// establishLink builds the peer link under the ownership guard, attaches
// local tracks and wires link callbacks back into the session.
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
		s.mu.Lock()
		remote := s.remoteID
		s.mu.Unlock()
		if remote == "" {
			return
		}
		err := s.send(context.Background(), signaling.EventICECandidate, remote, signaling.CandidatePayload{Candidate: candidate})
		if err != nil {
			slog.Warn("failed to send candidate", "error", err)
		}
	})
	link.OnRemoteTrack(func(info peer.RemoteTrackInfo) {
		if s.cb.OnRemoteTrack != nil {
			s.cb.OnRemoteTrack(info)
		}
	})
	link.OnStateChange(func(state peer.LinkState) {
		if state == peer.LinkFailed {
			// Degradation is terminal: same teardown as a local hang-up,
			// no reconnection attempt.
			s.teardown(context.Background(), true)
		}
	})

	s.mu.Lock()
	s.link = link
	s.mu.Unlock()
	s.pipeline.AttachReplacer(link)
	return link, nil
}

// teardown returns the session to idle, releasing the link and stopping all
// local capture. Safe from any state and idempotent.
func (s *Session) teardown(ctx context.Context, emitEnd bool) {
	s.mu.Lock()
	if s.state == StateIdle && s.link == nil && s.remoteID == "" {
		s.mu.Unlock()
		return
	}
	remote := s.remoteID
	engaged := s.state != StateIdle && remote != ""
	link := s.link
	s.link = nil
	s.state = StateIdle
	s.remoteID = ""
	s.mu.Unlock()

	if emitEnd && engaged {
		if err := s.send(ctx, signaling.EventCallEnd, remote, nil); err != nil {
			slog.Warn("failed to send call-end", "error", err)
		}
	}

	s.pipeline.AttachReplacer(nil)
	if link != nil {
		if err := link.Close(); err != nil {
			slog.Warn("failed to close peer link", "error", err)
		}
		s.guard.Release()
	}
	s.pipeline.StopAll()
	s.notifyState()
}

func (s *Session) send(ctx context.Context, t signaling.EventType, targetID string, payload any) error {
	e, err := signaling.NewEvent(t, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	e.SenderID = s.selfID
	e.TargetID = targetID
	return s.sig.Send(ctx, e)
}

func (s *Session) notifyState() {
	if s.cb.OnStateChange == nil {
		return
	}
	s.mu.Lock()
	state, remote := s.state, s.remoteID
	s.mu.Unlock()
	s.cb.OnStateChange(state, remote)
}
