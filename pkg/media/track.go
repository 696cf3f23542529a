// Package media owns local capture: device acquisition, the audio/video track
// slots, mute toggling, camera switching and screen sharing. The capture
// backend is abstracted behind DeviceGateway so sessions and tests never touch
// hardware directly.
package media

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Kind distinguishes the two logical track slots.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one live capture track. Enabled mirrors the WebRTC track.enabled
// semantics: a disabled track stays attached and negotiated but produces
// silence/black frames. Stop releases the device.
type Track interface {
	ID() string
	Label() string
	Kind() Kind
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
	// OnEnded fires when the platform terminates the track on its own, e.g.
	// the native "stop sharing" control for display capture.
	OnEnded(fn func())
	// Local exposes the underlying sendable track for the peer connection
	// layer. May be nil for tracks that are never transmitted (tests).
	Local() webrtc.TrackLocal
}

// DeviceInfo describes one physical video input.
type DeviceInfo struct {
	DeviceID string
	Label    string
}

// Constraints selects which tracks to acquire. VideoDeviceID, when set, pins
// the capture to one physical camera.
type Constraints struct {
	Audio         bool
	Video         bool
	VideoDeviceID string
}

// DeviceGateway wraps the platform capture API. Implementations must be safe
// for use from the session goroutine.
type DeviceGateway interface {
	AcquireUserMedia(ctx context.Context, c Constraints) ([]Track, error)
	AcquireDisplayMedia(ctx context.Context) (Track, error)
	EnumerateVideoInputs(ctx context.Context) ([]DeviceInfo, error)
}
