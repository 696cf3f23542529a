// Package app hosts the logic controllers that sit between the TUI and the
// session layer. Each controller owns the signaling channel, media pipeline
// and session for one mode, consumes events from the TUI and pushes display
// messages back.
package app

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	appevents "github.com/rescp17/pairLink/internal/app_events"
	callevents "github.com/rescp17/pairLink/internal/app_events/call"
	"github.com/rescp17/pairLink/pkg/call"
	"github.com/rescp17/pairLink/pkg/chat"
	"github.com/rescp17/pairLink/pkg/concurrency"
	"github.com/rescp17/pairLink/pkg/crypto"
	"github.com/rescp17/pairLink/pkg/media"
	"github.com/rescp17/pairLink/pkg/peer"
	"github.com/rescp17/pairLink/pkg/signaling"
)

// CallConfig wires a call-mode controller.
type CallConfig struct {
	SelfID     string
	SelfName   string
	Channel    signaling.Channel
	Gateway    media.DeviceGateway
	LinkConfig peer.Config
	// PrivateKey enables E2EE chat when set. The matching public key is
	// offered to the peer over signaling once a call connects.
	PrivateKey *rsa.PrivateKey
}

// CallApp is the logic controller for authenticated two-user calls with chat.
type CallApp struct {
	cfg      CallConfig
	pipeline *media.Pipeline

	uiMessages chan tea.Msg            // App -> TUI
	appEvents  chan appevents.AppEvent // TUI -> App

	handlers signaling.HandlerTable

	mu        sync.Mutex
	session   *call.Session
	messenger *chat.Messenger
	remoteID  string
	keySent   bool
}

// NewCallApp creates the controller. Run must be called before it does
// anything.
func NewCallApp(cfg CallConfig) *CallApp {
	return &CallApp{
		cfg:        cfg,
		pipeline:   media.NewPipeline(cfg.Gateway),
		uiMessages: make(chan tea.Msg, 10),
		appEvents:  make(chan appevents.AppEvent),
	}
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *CallApp) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *CallApp) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Run starts the controller's event loop and blocks until ctx is canceled.
func (a *CallApp) Run(ctx context.Context) error {
	guard := concurrency.NewGuard()
	webrtcAPI := peer.NewWebRTCAPI()
	newLink := func() (peer.Link, error) {
		return webrtcAPI.NewPeerLink(a.cfg.LinkConfig)
	}

	session := call.NewSession(a.cfg.SelfID, a.cfg.Channel, a.pipeline, newLink, guard, call.Callbacks{
		OnStateChange: func(s call.State, remoteID string) {
			a.mu.Lock()
			a.remoteID = remoteID
			if s != call.StateConnected {
				a.keySent = false
			}
			a.mu.Unlock()
			a.uiMessages <- callevents.StateMsg{State: s, Remote: remoteID}
			if s == call.StateConnected {
				a.offerPublicKey(ctx)
			}
		},
		OnIncomingCall: func(callerID string) {
			a.uiMessages <- callevents.IncomingCallMsg{CallerID: callerID}
		},
		OnCallRejected: func(peerID string) {
			a.uiMessages <- callevents.RejectedMsg{PeerID: peerID}
		},
		OnRemoteTrack: func(info peer.RemoteTrackInfo) {
			a.uiMessages <- callevents.RemoteMediaMsg{Kind: info.Kind}
		},
	})
	defer session.Close()

	messenger := chat.NewMessenger(a.cfg.SelfID, a.cfg.SelfName, a.cfg.Channel, chat.DirectWire(), chat.Callbacks{
		OnMessage: func(m chat.Message) {
			a.uiMessages <- callevents.ChatMsg{Message: m}
		},
		OnTyping: func(_ string, typing bool) {
			a.uiMessages <- callevents.PeerTypingMsg{Typing: typing}
		},
		OnMessagesRead: func(string) {
			a.uiMessages <- callevents.MessagesReadMsg{}
		},
		OnPlaintextSend: func() {
			a.uiMessages <- callevents.PlaintextWarningMsg{}
		},
	})
	defer messenger.Close()

	if a.cfg.PrivateKey != nil {
		messenger.SetKeys(chat.KeyRing{
			Private: a.cfg.PrivateKey,
			SelfPub: &a.cfg.PrivateKey.PublicKey,
		})
	}

	a.mu.Lock()
	a.session = session
	a.messenger = messenger
	a.mu.Unlock()

	a.handlers.Install(a.cfg.Channel, signaling.EventPublicKey, a.handlePublicKey)
	defer a.handlers.RemoveAll()

	a.pipeline.OnScreenShareChanged(func(active bool) {
		a.uiMessages <- callevents.ScreenShareStateMsg{Active: active}
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				session.EndCall(context.Background())
				return nil
			case event := <-a.appEvents:
				a.handleEvent(ctx, event)
			}
		}
	})
	return g.Wait()
}

func (a *CallApp) handleEvent(ctx context.Context, event appevents.AppEvent) {
	a.mu.Lock()
	session, messenger, remote := a.session, a.messenger, a.remoteID
	a.mu.Unlock()

	switch e := event.(type) {
	case callevents.DialEvent:
		if err := session.InitiateCall(ctx, e.PeerID); err != nil {
			a.sendAndLogError("Failed to start call", err)
		}
	case callevents.AnswerEvent:
		if err := session.AcceptCall(ctx); err != nil {
			a.sendAndLogError("Failed to accept call", err)
		}
	case callevents.DeclineEvent:
		if err := session.RejectCall(ctx); err != nil {
			a.sendAndLogError("Failed to reject call", err)
		}
	case callevents.HangUpEvent:
		session.EndCall(ctx)
	case callevents.ToggleMicEvent:
		if enabled, err := session.ToggleMic(); err == nil {
			a.uiMessages <- callevents.MicStateMsg{Enabled: enabled}
		}
	case callevents.ToggleCameraEvent:
		if enabled, err := session.ToggleCamera(); err == nil {
			a.uiMessages <- callevents.CameraStateMsg{Enabled: enabled}
		}
	case callevents.SwitchCameraEvent:
		if err := a.pipeline.SwitchCamera(ctx); err != nil {
			a.sendAndLogError("Failed to switch camera", err)
		}
	case callevents.ToggleScreenShareEvent:
		if _, err := a.pipeline.ToggleScreenShare(ctx); err != nil {
			a.sendAndLogError("Failed to toggle screen share", err)
		}
	case callevents.SendMessageEvent:
		if remote == "" {
			a.sendAndLogError("No active conversation", fmt.Errorf("no remote peer"))
			return
		}
		id, err := messenger.Send(ctx, remote, e.Content)
		if err != nil {
			a.sendAndLogError("Failed to send message", err)
			return
		}
		a.uiMessages <- callevents.SentMsg{Message: chat.Message{
			ID:         id,
			SenderID:   a.cfg.SelfID,
			SenderName: a.cfg.SelfName,
			Content:    e.Content,
			Timestamp:  time.Now(),
		}, Encrypted: a.cfg.PrivateKey != nil}
	case callevents.TypingEvent:
		if remote != "" {
			_ = messenger.SetTyping(ctx, remote, e.Active)
		}
	case callevents.MarkReadEvent:
		if remote != "" {
			_ = messenger.MarkRead(ctx, remote)
		}
	case appevents.UIErrorEvent:
		slog.Error("UI error", "error", e.Err)
	}
}

// offerPublicKey sends our public key to the connected peer so both sides can
// escrow message keys. Sent once per call.
func (a *CallApp) offerPublicKey(ctx context.Context) {
	a.mu.Lock()
	remote := a.remoteID
	sent := a.keySent
	if a.cfg.PrivateKey == nil || remote == "" || sent {
		a.mu.Unlock()
		return
	}
	a.keySent = true
	a.mu.Unlock()

	encoded, err := crypto.ExportPublicKey(&a.cfg.PrivateKey.PublicKey)
	if err != nil {
		slog.Error("failed to export public key", "error", err)
		return
	}
	e, err := signaling.NewEvent(signaling.EventPublicKey, signaling.PublicKeyPayload{Key: encoded})
	if err != nil {
		return
	}
	e.SenderID = a.cfg.SelfID
	e.TargetID = remote
	if err := a.cfg.Channel.Send(ctx, e); err != nil {
		slog.Warn("failed to send public key", "error", err)
	}
}

// handlePublicKey installs the peer's key into the messenger's ring and
// answers with our own if we have not offered it yet.
func (a *CallApp) handlePublicKey(e signaling.Event) {
	if e.SenderID == a.cfg.SelfID || a.cfg.PrivateKey == nil {
		return
	}

	var payload signaling.PublicKeyPayload
	if err := e.Decode(&payload); err != nil {
		slog.Warn("malformed public-key payload", "error", err)
		return
	}
	pub, err := crypto.ImportPublicKey(payload.Key)
	if err != nil {
		slog.Warn("failed to import peer public key", "error", err)
		return
	}

	a.mu.Lock()
	messenger := a.messenger
	a.mu.Unlock()
	if messenger == nil {
		return
	}
	messenger.SetKeys(chat.KeyRing{
		Private: a.cfg.PrivateKey,
		SelfPub: &a.cfg.PrivateKey.PublicKey,
		PeerPub: pub,
	})
	a.offerPublicKey(context.Background())
}

// sendAndLogError both logs an error and sends it to the UI.
func (a *CallApp) sendAndLogError(baseMessage string, err error) {
	slog.Error(baseMessage, "error", err)
	a.uiMessages <- appevents.Error{Err: fmt.Errorf("%s: %w", baseMessage, err)}
}
