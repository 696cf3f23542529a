package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	appevents "github.com/rescp17/pairLink/internal/app_events"
	roomevents "github.com/rescp17/pairLink/internal/app_events/room"
	"github.com/rescp17/pairLink/pkg/chat"
	"github.com/rescp17/pairLink/pkg/concurrency"
	"github.com/rescp17/pairLink/pkg/media"
	"github.com/rescp17/pairLink/pkg/peer"
	"github.com/rescp17/pairLink/pkg/room"
	"github.com/rescp17/pairLink/pkg/signaling"
)

// RoomConfig wires a room-mode controller.
type RoomConfig struct {
	SelfID     string
	SelfName   string
	RoomID     string
	Channel    signaling.Channel
	Gateway    media.DeviceGateway
	LinkConfig peer.Config
}

// RoomApp is the logic controller for anonymous room calls. Room chat is
// unencrypted; anonymous participants carry no key material.
type RoomApp struct {
	cfg      RoomConfig
	pipeline *media.Pipeline

	uiMessages chan tea.Msg
	appEvents  chan appevents.AppEvent

	mu        sync.Mutex
	session   *room.Session
	messenger *chat.Messenger
}

// NewRoomApp creates the controller. Run must be called before it does
// anything.
func NewRoomApp(cfg RoomConfig) *RoomApp {
	return &RoomApp{
		cfg:        cfg,
		pipeline:   media.NewPipeline(cfg.Gateway),
		uiMessages: make(chan tea.Msg, 10),
		appEvents:  make(chan appevents.AppEvent),
	}
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *RoomApp) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *RoomApp) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Run starts the controller's event loop, joins the configured room and
// blocks until ctx is canceled.
func (a *RoomApp) Run(ctx context.Context) error {
	guard := concurrency.NewGuard()
	webrtcAPI := peer.NewWebRTCAPI()
	newLink := func() (peer.Link, error) {
		return webrtcAPI.NewPeerLink(a.cfg.LinkConfig)
	}

	session := room.NewSession(a.cfg.SelfID, a.cfg.Channel, a.pipeline, newLink, guard, room.Callbacks{
		OnStateChange: func(s room.State, remoteName string) {
			_, role, _ := a.sessionState()
			a.uiMessages <- roomevents.StateMsg{State: s, Role: role, RemoteName: remoteName}
		},
		OnRoomFull: func() {
			a.uiMessages <- roomevents.FullMsg{}
		},
		OnPeerJoined: func(userID, userName string) {
			a.uiMessages <- roomevents.PeerJoinedMsg{UserID: userID, UserName: userName}
		},
		OnPeerLeft: func(userID string) {
			a.uiMessages <- roomevents.PeerLeftMsg{UserID: userID}
		},
		OnHostDisconnected: func() {
			a.uiMessages <- roomevents.HostDisconnectedMsg{}
		},
		OnRemoteScreenShare: func(active bool) {
			a.uiMessages <- roomevents.RemoteScreenShareMsg{Active: active}
		},
	})
	defer session.Close()

	messenger := chat.NewMessenger(a.cfg.SelfID, a.cfg.SelfName, a.cfg.Channel, chat.RoomWire(a.cfg.RoomID), chat.Callbacks{
		OnMessage: func(m chat.Message) {
			a.uiMessages <- roomevents.ChatMsg{Message: m}
		},
	})
	defer messenger.Close()

	a.mu.Lock()
	a.session = session
	a.messenger = messenger
	a.mu.Unlock()

	a.pipeline.OnScreenShareChanged(func(active bool) {
		a.uiMessages <- roomevents.ScreenShareStateMsg{Active: active}
	})

	if err := session.JoinRoom(ctx, a.cfg.RoomID, a.cfg.SelfName); err != nil {
		a.sendAndLogError("Failed to join room", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				session.LeaveRoom(context.Background())
				return nil
			case event := <-a.appEvents:
				a.handleEvent(ctx, event)
			}
		}
	})
	return g.Wait()
}

func (a *RoomApp) sessionState() (room.State, room.Role, string) {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		return room.StateIdle, room.RoleNone, ""
	}
	return session.State()
}

func (a *RoomApp) handleEvent(ctx context.Context, event appevents.AppEvent) {
	a.mu.Lock()
	session, messenger := a.session, a.messenger
	a.mu.Unlock()

	switch e := event.(type) {
	case roomevents.JoinEvent:
		if err := session.JoinRoom(ctx, e.RoomID, e.Name); err != nil {
			a.sendAndLogError("Failed to join room", err)
		}
	case roomevents.LeaveEvent:
		session.LeaveRoom(ctx)
	case roomevents.ToggleMicEvent:
		if enabled, err := session.ToggleMic(); err == nil {
			a.uiMessages <- roomevents.MicStateMsg{Enabled: enabled}
		}
	case roomevents.ToggleCameraEvent:
		if enabled, err := session.ToggleCamera(); err == nil {
			a.uiMessages <- roomevents.CameraStateMsg{Enabled: enabled}
		}
	case roomevents.SwitchCameraEvent:
		if err := session.SwitchCamera(ctx); err != nil {
			a.sendAndLogError("Failed to switch camera", err)
		}
	case roomevents.ToggleScreenShareEvent:
		if _, err := session.ToggleScreenShare(ctx); err != nil {
			a.sendAndLogError("Failed to toggle screen share", err)
		}
	case roomevents.HostActionEvent:
		if err := session.SendHostAction(ctx, e.Action); err != nil {
			a.sendAndLogError("Moderation action failed", err)
		}
	case roomevents.SendMessageEvent:
		id, err := messenger.Send(ctx, "", e.Content)
		if err != nil {
			a.sendAndLogError("Failed to send message", err)
			return
		}
		a.uiMessages <- roomevents.SentMsg{Message: chat.Message{
			ID:         id,
			SenderID:   a.cfg.SelfID,
			SenderName: a.cfg.SelfName,
			Content:    e.Content,
			Timestamp:  time.Now(),
		}}
	case appevents.UIErrorEvent:
		slog.Error("UI error", "error", e.Err)
	}
}

func (a *RoomApp) sendAndLogError(baseMessage string, err error) {
	slog.Error(baseMessage, "error", err)
	a.uiMessages <- appevents.Error{Err: fmt.Errorf("%s: %w", baseMessage, err)}
}
