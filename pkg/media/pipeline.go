package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rescp17/pairLink/pkg/signaling"
)

var (
	// ErrAcquisition wraps every camera/mic/display acquisition failure.
	ErrAcquisition = errors.New("media acquisition failed")
	// ErrNotAcquired is returned by operations that need live local media.
	ErrNotAcquired = errors.New("local media not acquired")
)

// VideoSource tags what currently feeds the outgoing video slot. Camera and
// screen are mutually exclusive; the enum makes both-bound unrepresentable.
type VideoSource int

const (
	SourceNone VideoSource = iota
	SourceCamera
	SourceScreen
)

func (s VideoSource) String() string {
	switch s {
	case SourceCamera:
		return "camera"
	case SourceScreen:
		return "screen"
	default:
		return "none"
	}
}

// TrackReplacer is the slice of the peer link the pipeline needs: swapping the
// outgoing video track in place without renegotiating the slot.
type TrackReplacer interface {
	ReplaceVideoTrack(t Track) error
}

// Pipeline owns the local media streams for one session. All methods are safe
// for concurrent use, though in practice they run on the session's event loop.
type Pipeline struct {
	gw DeviceGateway

	mu       sync.Mutex
	audio    Track
	camera   Track
	screen   Track
	source   VideoSource
	cameraID string
	replacer TrackReplacer

	// onScreenShare reports local screen-share state changes so the session
	// can emit the status hint; the pipeline never talks to signaling itself.
	onScreenShare func(active bool)
}

// NewPipeline creates a pipeline over the given capture gateway.
func NewPipeline(gw DeviceGateway) *Pipeline {
	return &Pipeline{gw: gw}
}

// AttachReplacer binds the pipeline to a peer link's video sender. Passing nil
// detaches it.
func (p *Pipeline) AttachReplacer(r TrackReplacer) {
	p.mu.Lock()
	p.replacer = r
	p.mu.Unlock()
}

// OnScreenShareChanged registers the status callback.
func (p *Pipeline) OnScreenShareChanged(fn func(active bool)) {
	p.mu.Lock()
	p.onScreenShare = fn
	p.mu.Unlock()
}

// Acquire captures local media. It is idempotent: if tracks are already live
// the call is a no-op, mirroring the original behaviour of returning the
// existing stream.
func (p *Pipeline) Acquire(ctx context.Context, c Constraints) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.audio != nil || p.camera != nil {
		return nil
	}

	if p.cameraID != "" && c.VideoDeviceID == "" {
		c.VideoDeviceID = p.cameraID
	}
	tracks, err := p.gw.AcquireUserMedia(ctx, c)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAcquisition, err)
	}

	for _, t := range tracks {
		switch t.Kind() {
		case KindAudio:
			p.audio = t
		case KindVideo:
			p.camera = t
			p.source = SourceCamera
		}
	}
	if p.camera != nil {
		p.cameraID = p.camera.ID()
	}
	slog.Debug("local media acquired", "tracks", len(tracks), "source", p.source.String())
	return nil
}

// Acquired reports whether any local track is live.
func (p *Pipeline) Acquired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio != nil || p.camera != nil
}

// Tracks returns the tracks that should be attached to a new peer link: the
// audio slot and whatever currently feeds the video slot.
func (p *Pipeline) Tracks() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Track
	if p.audio != nil {
		out = append(out, p.audio)
	}
	if v := p.activeVideoLocked(); v != nil {
		out = append(out, v)
	}
	return out
}

// ActiveVideo returns the track currently bound to the video slot, if any.
func (p *Pipeline) ActiveVideo() Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeVideoLocked()
}

func (p *Pipeline) activeVideoLocked() Track {
	if p.source == SourceScreen {
		return p.screen
	}
	return p.camera
}

// Source reports what feeds the video slot.
func (p *Pipeline) Source() VideoSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// ToggleTrack flips the enabled flag of the given slot without detaching the
// track, so mute/unmute never renegotiates. It returns the new enabled state.
func (p *Pipeline) ToggleTrack(kind Kind) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var t Track
	switch kind {
	case KindAudio:
		t = p.audio
	case KindVideo:
		t = p.camera
	}
	if t == nil {
		return false, ErrNotAcquired
	}
	t.SetEnabled(!t.Enabled())
	return t.Enabled(), nil
}

// SwitchCamera moves the video slot to the next physical camera in cyclic
// order: acquire the new device, carry over the enabled flag, replace the
// outgoing track in place, then stop the old device.
func (p *Pipeline) SwitchCamera(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.camera == nil {
		return ErrNotAcquired
	}

	devices, err := p.gw.EnumerateVideoInputs(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAcquisition, err)
	}
	if len(devices) < 2 {
		return nil
	}

	next := devices[0]
	for i, d := range devices {
		if d.DeviceID == p.cameraID {
			next = devices[(i+1)%len(devices)]
			break
		}
	}

	tracks, err := p.gw.AcquireUserMedia(ctx, Constraints{Video: true, VideoDeviceID: next.DeviceID})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAcquisition, err)
	}
	var newCam Track
	for _, t := range tracks {
		if t.Kind() == KindVideo {
			newCam = t
		}
	}
	if newCam == nil {
		return fmt.Errorf("%w: device %s produced no video track", ErrAcquisition, next.DeviceID)
	}

	newCam.SetEnabled(p.camera.Enabled())

	old := p.camera
	p.camera = newCam
	p.cameraID = next.DeviceID
	old.Stop()

	// Only swap the outgoing track when the camera is what the peer sees.
	if p.source == SourceCamera && p.replacer != nil {
		if err := p.replacer.ReplaceVideoTrack(newCam); err != nil {
			return fmt.Errorf("failed to replace outgoing video track: %w", err)
		}
	}
	slog.Debug("switched camera", "device", next.Label)
	return nil
}

// ToggleScreenShare starts display capture and swaps it into the video slot,
// or reverts to the camera if sharing is already active. The platform's native
// stop control funnels into the same revert path via OnEnded. Returns whether
// sharing is active after the call.
func (p *Pipeline) ToggleScreenShare(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == SourceScreen {
		p.stopScreenLocked()
		return false, nil
	}

	screen, err := p.gw.AcquireDisplayMedia(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrAcquisition, err)
	}
	screen.OnEnded(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.source == SourceScreen {
			p.stopScreenLocked()
		}
	})

	p.screen = screen
	p.source = SourceScreen
	if p.replacer != nil {
		if err := p.replacer.ReplaceVideoTrack(screen); err != nil {
			p.stopScreenLocked()
			return false, fmt.Errorf("failed to replace outgoing video track: %w", err)
		}
	}
	if p.onScreenShare != nil {
		p.onScreenShare(true)
	}
	return true, nil
}

// stopScreenLocked tears down display capture and restores the camera track to
// the video slot in whatever enabled state it already carries. Shared by the
// explicit toggle, the native-termination callback and host moderation.
func (p *Pipeline) stopScreenLocked() {
	if p.screen != nil {
		p.screen.Stop()
		p.screen = nil
	}
	p.source = SourceCamera
	if p.camera != nil && p.replacer != nil {
		if err := p.replacer.ReplaceVideoTrack(p.camera); err != nil {
			slog.Warn("failed to restore camera track after screen share", "error", err)
		}
	}
	if p.onScreenShare != nil {
		p.onScreenShare(false)
	}
}

// ApplyHostAction executes a remote moderation override. Each action funnels
// through the same operation the local user would have invoked, so the local
// state stays indistinguishable from a local toggle.
func (p *Pipeline) ApplyHostAction(ctx context.Context, action signaling.HostAction) error {
	switch action {
	case signaling.HostActionMute:
		p.mu.Lock()
		needsToggle := p.audio != nil && p.audio.Enabled()
		p.mu.Unlock()
		if needsToggle {
			_, err := p.ToggleTrack(KindAudio)
			return err
		}
	case signaling.HostActionDisableCamera:
		p.mu.Lock()
		needsToggle := p.camera != nil && p.camera.Enabled()
		p.mu.Unlock()
		if needsToggle {
			_, err := p.ToggleTrack(KindVideo)
			return err
		}
	case signaling.HostActionDisableScreenShare:
		if p.Source() == SourceScreen {
			_, err := p.ToggleScreenShare(ctx)
			return err
		}
	default:
		return fmt.Errorf("unknown host action %q", action)
	}
	return nil
}

// StopAll synchronously stops every live track and resets the slots. Safe to
// call repeatedly and from any session state.
func (p *Pipeline) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range []Track{p.audio, p.camera, p.screen} {
		if t != nil {
			t.Stop()
		}
	}
	p.audio, p.camera, p.screen = nil, nil, nil
	p.source = SourceNone
}
