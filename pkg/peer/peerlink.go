package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"

	"github.com/rescp17/pairLink/pkg/media"
)

// WebRTCAPI holds a configured pion API instance. Using NewAPI instead of the
// package-level constructors keeps multiple PeerLinks in one process isolated.
type WebRTCAPI struct {
	api *webrtc.API
}

// Config holds the configuration for creating a new PeerLink.
type Config struct {
	ICEServers []webrtc.ICEServer
}

func NewWebRTCAPI() *WebRTCAPI {
	settings := webrtc.SettingEngine{}
	settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)

	return &WebRTCAPI{api: webrtc.NewAPI(webrtc.WithSettingEngine(settings))}
}

// NewPeerLink creates a link with the given ICE servers, defaulting to a
// public STUN server when none are configured.
func (a *WebRTCAPI) NewPeerLink(config Config) (*PeerLink, error) {
	if len(config.ICEServers) == 0 {
		config.ICEServers = append(config.ICEServers, webrtc.ICEServer{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}

	pc, err := a.api.NewPeerConnection(webrtc.Configuration{ICEServers: config.ICEServers})
	if err != nil {
		err = fmt.Errorf("failed to create peer connection: %w", err)
		log.Printf("[NewPeerLink] %v", err)
		return nil, err
	}

	l := &PeerLink{pc: pc}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		raw, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			log.Printf("[OnICECandidate] failed to marshal candidate: %v", err)
			return
		}
		l.mu.Lock()
		fn := l.onCandidate
		l.mu.Unlock()
		if fn != nil {
			fn(raw)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := media.KindVideo
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			kind = media.KindAudio
		}
		l.mu.Lock()
		fn := l.onRemoteTrack
		l.mu.Unlock()
		if fn != nil {
			fn(RemoteTrackInfo{ID: track.ID(), StreamID: track.StreamID(), Kind: kind})
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		var mapped LinkState
		switch state {
		case webrtc.PeerConnectionStateConnected:
			mapped = LinkConnected
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			mapped = LinkFailed
		default:
			return
		}
		l.mu.Lock()
		fn := l.onState
		l.mu.Unlock()
		if fn != nil {
			fn(mapped)
		}
	})

	return l, nil
}

// PeerLink wraps a single pion peer connection and its negotiation state.
type PeerLink struct {
	pc *webrtc.PeerConnection

	mu            sync.Mutex
	videoSender   *webrtc.RTPSender
	pending       []webrtc.ICECandidateInit
	remoteSet     bool
	onCandidate   func(json.RawMessage)
	onRemoteTrack func(RemoteTrackInfo)
	onState       func(LinkState)
}

// AddLocalTracks attaches the pipeline's sendable tracks. The video sender is
// remembered so later track replacement keeps the negotiated transceiver.
func (l *PeerLink) AddLocalTracks(tracks []media.Track) error {
	for _, t := range tracks {
		local := t.Local()
		if local == nil {
			continue
		}
		sender, err := l.pc.AddTrack(local)
		if err != nil {
			return fmt.Errorf("failed to add %s track: %w", t.Kind(), err)
		}
		if t.Kind() == media.KindVideo {
			l.mu.Lock()
			l.videoSender = sender
			l.mu.Unlock()
		}
	}
	return nil
}

// ReplaceVideoTrack swaps the outgoing video track in place, without removing
// or re-adding the slot. Camera switches and screen sharing both land here.
func (l *PeerLink) ReplaceVideoTrack(t media.Track) error {
	l.mu.Lock()
	sender := l.videoSender
	l.mu.Unlock()

	if sender == nil {
		return fmt.Errorf("no outgoing video track to replace")
	}
	local := t.Local()
	if local == nil {
		return fmt.Errorf("track %s is not sendable", t.ID())
	}
	if err := sender.ReplaceTrack(local); err != nil {
		return fmt.Errorf("failed to replace video track: %w", err)
	}
	return nil
}

func (l *PeerLink) CreateOffer(_ context.Context) (SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		err = fmt.Errorf("failed to create offer: %w", err)
		log.Printf("[CreateOffer] %v", err)
		return SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		err = fmt.Errorf("failed to set local description: %w", err)
		log.Printf("[CreateOffer] %v", err)
		return SessionDescription{}, err
	}
	return SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (l *PeerLink) HandleOffer(offer SessionDescription) (SessionDescription, error) {
	if err := l.setRemote(offer); err != nil {
		log.Printf("[HandleOffer] %v", err)
		return SessionDescription{}, err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		err = fmt.Errorf("failed to create answer: %w", err)
		log.Printf("[HandleOffer] %v", err)
		return SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		err = fmt.Errorf("failed to set local description for answer: %w", err)
		log.Printf("[HandleOffer] %v", err)
		return SessionDescription{}, err
	}
	return SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (l *PeerLink) HandleAnswer(answer SessionDescription) error {
	if err := l.setRemote(answer); err != nil {
		log.Printf("[HandleAnswer] %v", err)
		return err
	}
	return nil
}

// setRemote installs a remote description and flushes candidates that arrived
// before it. The flush is what gives sessions the "candidates are buffered
// implicitly" guarantee.
func (l *PeerLink) setRemote(desc SessionDescription) error {
	sdpType := webrtc.NewSDPType(desc.Type)
	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			log.Printf("[setRemote] failed to add buffered candidate: %v", err)
		}
	}
	return nil
}

func (l *PeerLink) AddICECandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("failed to parse ICE candidate: %w", err)
	}

	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, init)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.pc.AddICECandidate(init); err != nil {
		err = fmt.Errorf("failed to add ICE candidate: %w", err)
		log.Printf("[AddICECandidate] %v", err)
		return err
	}
	return nil
}

func (l *PeerLink) OnICECandidate(fn func(json.RawMessage)) {
	l.mu.Lock()
	l.onCandidate = fn
	l.mu.Unlock()
}

func (l *PeerLink) OnRemoteTrack(fn func(RemoteTrackInfo)) {
	l.mu.Lock()
	l.onRemoteTrack = fn
	l.mu.Unlock()
}

func (l *PeerLink) OnStateChange(fn func(LinkState)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()
}

// Close gracefully shuts down the peer connection.
func (l *PeerLink) Close() error {
	if l.pc != nil {
		log.Printf("Closing peer link")
		return l.pc.Close()
	}
	return nil
}
