package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// Gateway is the DeviceGateway implementation backed by pion/mediadevices.
// Driver registration (camera, microphone, screen) is left to the importing
// binary; the codec selector is injected because codec choice is a build-time
// concern (VP8/Opus need cgo encoders).
type Gateway struct {
	selector *mediadevices.CodecSelector
}

// NewGateway creates a gateway. selector may be nil, in which case acquisition
// fails and sessions run receive-only.
func NewGateway(selector *mediadevices.CodecSelector) *Gateway {
	return &Gateway{selector: selector}
}

func (g *Gateway) AcquireUserMedia(_ context.Context, c Constraints) ([]Track, error) {
	if g.selector == nil {
		return nil, fmt.Errorf("no codec selector configured")
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: g.selector}
	if c.Video {
		constraints.Video = func(mtc *mediadevices.MediaTrackConstraints) {
			if c.VideoDeviceID != "" {
				mtc.DeviceID = prop.StringExact(c.VideoDeviceID)
			}
		}
	}
	if c.Audio {
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("GetUserMedia failed: %w", err)
	}
	return g.wrapTracks(stream.GetTracks()), nil
}

func (g *Gateway) AcquireDisplayMedia(_ context.Context) (Track, error) {
	if g.selector == nil {
		return nil, fmt.Errorf("no codec selector configured")
	}

	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(*mediadevices.MediaTrackConstraints) {},
		Codec: g.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("GetDisplayMedia failed: %w", err)
	}
	tracks := g.wrapTracks(stream.GetTracks())
	for _, t := range tracks {
		if t.Kind() == KindVideo {
			return t, nil
		}
	}
	return nil, fmt.Errorf("display capture produced no video track")
}

func (g *Gateway) EnumerateVideoInputs(_ context.Context) ([]DeviceInfo, error) {
	var out []DeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind == mediadevices.VideoInput {
			out = append(out, DeviceInfo{DeviceID: d.DeviceID, Label: d.Label})
		}
	}
	return out, nil
}

func (g *Gateway) wrapTracks(tracks []mediadevices.Track) []Track {
	labels := make(map[string]string)
	for _, d := range mediadevices.EnumerateDevices() {
		labels[d.DeviceID] = d.Label
	}

	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, newDeviceTrack(t, labels[t.ID()]))
	}
	return out
}

// deviceTrack adapts a mediadevices.Track to the Track interface. The enabled
// flag is slot state carried alongside the capture; mediadevices has no
// native mute, so consumers treat a disabled track as not-to-be-rendered.
type deviceTrack struct {
	t     mediadevices.Track
	label string

	mu      sync.Mutex
	enabled bool
	onEnded func()
}

func newDeviceTrack(t mediadevices.Track, label string) *deviceTrack {
	dt := &deviceTrack{t: t, label: label, enabled: true}
	t.OnEnded(func(error) {
		dt.mu.Lock()
		fn := dt.onEnded
		dt.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	return dt
}

func (d *deviceTrack) ID() string    { return d.t.ID() }
func (d *deviceTrack) Label() string { return d.label }

func (d *deviceTrack) Kind() Kind {
	if d.t.Kind() == webrtc.RTPCodecTypeAudio {
		return KindAudio
	}
	return KindVideo
}

func (d *deviceTrack) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

func (d *deviceTrack) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
}

func (d *deviceTrack) Stop() {
	_ = d.t.Close()
}

func (d *deviceTrack) OnEnded(fn func()) {
	d.mu.Lock()
	d.onEnded = fn
	d.mu.Unlock()
}

func (d *deviceTrack) Local() webrtc.TrackLocal { return d.t }
