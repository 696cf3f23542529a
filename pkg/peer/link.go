// Package peer wraps a single WebRTC peer connection behind the Link
// interface the session state machines drive. One Link is exclusively owned
// by one session; it is created after media acquisition and released on
// teardown.
package peer

import (
	"context"
	"encoding/json"

	"github.com/rescp17/pairLink/pkg/media"
)

// LinkState is the collapsed connection state sessions care about. The
// underlying disconnected/failed/closed states all map to LinkFailed: there is
// no automatic retry, the user must re-initiate.
type LinkState int

const (
	LinkConnecting LinkState = iota
	LinkConnected
	LinkFailed
)

func (s LinkState) String() string {
	switch s {
	case LinkConnected:
		return "connected"
	case LinkFailed:
		return "failed"
	default:
		return "connecting"
	}
}

// RemoteTrackInfo describes an inbound media track. The session forwards it to
// the UI layer; no media processing happens in this core.
type RemoteTrackInfo struct {
	ID       string
	StreamID string
	Kind     media.Kind
}

// Link is the session-facing surface of one peer connection.
type Link interface {
	media.TrackReplacer

	AddLocalTracks(tracks []media.Track) error
	// CreateOffer creates and installs the local offer.
	CreateOffer(ctx context.Context) (SessionDescription, error)
	// HandleOffer installs the remote offer and returns the local answer.
	// Valid both for initial negotiation and renegotiation.
	HandleOffer(offer SessionDescription) (SessionDescription, error)
	HandleAnswer(answer SessionDescription) error
	AddICECandidate(candidate json.RawMessage) error

	OnICECandidate(fn func(candidate json.RawMessage))
	OnRemoteTrack(fn func(info RemoteTrackInfo))
	OnStateChange(fn func(state LinkState))

	Close() error
}

// SessionDescription is the transport-neutral SDP blob exchanged over
// signaling. Opaque to the sessions.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}
