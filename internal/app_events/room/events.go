// Package room defines the event vocabulary between the room-mode TUI and its
// logic controller.
package room

import (
	appevents "github.com/rescp17/pairLink/internal/app_events"
	"github.com/rescp17/pairLink/pkg/chat"
	"github.com/rescp17/pairLink/pkg/room"
	"github.com/rescp17/pairLink/pkg/signaling"
)

// --- App Events (from TUI to App) ---

// JoinEvent asks the controller to join a room.
type JoinEvent struct {
	appevents.Event
	RoomID string
	Name   string
}

// LeaveEvent leaves the room.
type LeaveEvent struct {
	appevents.Event
}

// ToggleMicEvent flips the microphone.
type ToggleMicEvent struct {
	appevents.Event
}

// ToggleCameraEvent flips the camera.
type ToggleCameraEvent struct {
	appevents.Event
}

// SwitchCameraEvent cycles to the next camera device.
type SwitchCameraEvent struct {
	appevents.Event
}

// ToggleScreenShareEvent starts or stops screen sharing.
type ToggleScreenShareEvent struct {
	appevents.Event
}

// HostActionEvent forces a moderation toggle on the guest. Creator only.
type HostActionEvent struct {
	appevents.Event
	Action signaling.HostAction
}

// SendMessageEvent submits one room chat message.
type SendMessageEvent struct {
	appevents.Event
	Content string
}

var (
	_ appevents.AppEvent = (*JoinEvent)(nil)
	_ appevents.AppEvent = (*HostActionEvent)(nil)
)

// --- UI Messages (from App to TUI) ---

// StateMsg reports a room state transition.
type StateMsg struct {
	State      room.State
	Role       room.Role
	RemoteName string
}

// FullMsg reports that the join was refused.
type FullMsg struct{}

// PeerJoinedMsg announces the second participant.
type PeerJoinedMsg struct {
	UserID   string
	UserName string
}

// PeerLeftMsg reports the peer leaving while the room stays open.
type PeerLeftMsg struct {
	UserID string
}

// HostDisconnectedMsg reports eviction after the creator vanished.
type HostDisconnectedMsg struct{}

// RemoteScreenShareMsg is the peer's screen-share hint.
type RemoteScreenShareMsg struct {
	Active bool
}

// MicStateMsg and CameraStateMsg confirm local toggle results.
type MicStateMsg struct {
	Enabled bool
}

type CameraStateMsg struct {
	Enabled bool
}

// ScreenShareStateMsg reports local screen-share state.
type ScreenShareStateMsg struct {
	Active bool
}

// ChatMsg delivers one received room chat message.
type ChatMsg struct {
	Message chat.Message
}

// SentMsg echoes a locally sent message for display.
type SentMsg struct {
	Message chat.Message
}
