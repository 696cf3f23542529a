// Package call defines the event vocabulary between the call-mode TUI and its
// logic controller.
package call

import (
	appevents "github.com/rescp17/pairLink/internal/app_events"
	"github.com/rescp17/pairLink/pkg/call"
	"github.com/rescp17/pairLink/pkg/chat"
	"github.com/rescp17/pairLink/pkg/media"
)

// --- App Events (from TUI to App) ---

// DialEvent is sent when the user starts an outbound call.
type DialEvent struct {
	appevents.Event
	PeerID string
}

// AnswerEvent is sent when the user accepts the ringing call.
type AnswerEvent struct {
	appevents.Event
}

// DeclineEvent is sent when the user rejects the ringing call.
type DeclineEvent struct {
	appevents.Event
}

// HangUpEvent ends the active call.
type HangUpEvent struct {
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

// SendMessageEvent submits one chat message.
type SendMessageEvent struct {
	appevents.Event
	Content string
}

// TypingEvent reports the local typing indicator state.
type TypingEvent struct {
	appevents.Event
	Active bool
}

// MarkReadEvent tells the peer their messages were seen.
type MarkReadEvent struct {
	appevents.Event
}

var (
	_ appevents.AppEvent = (*DialEvent)(nil)
	_ appevents.AppEvent = (*AnswerEvent)(nil)
	_ appevents.AppEvent = (*SendMessageEvent)(nil)
)

// --- UI Messages (from App to TUI) ---

// StateMsg reports a call state transition.
type StateMsg struct {
	State  call.State
	Remote string
}

// IncomingCallMsg announces a ringing inbound call.
type IncomingCallMsg struct {
	CallerID string
}

// RejectedMsg reports that the callee declined.
type RejectedMsg struct {
	PeerID string
}

// RemoteMediaMsg reports that remote media started flowing.
type RemoteMediaMsg struct {
	Kind media.Kind
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

// ChatMsg delivers one received chat message.
type ChatMsg struct {
	Message chat.Message
}

// SentMsg confirms a locally sent message, echoing it for display.
type SentMsg struct {
	Message   chat.Message
	Encrypted bool
}

// PeerTypingMsg reports the remote typing indicator.
type PeerTypingMsg struct {
	Typing bool
}

// MessagesReadMsg reports that the peer read our messages.
type MessagesReadMsg struct{}

// PlaintextWarningMsg fires when a message went out unencrypted.
type PlaintextWarningMsg struct{}
