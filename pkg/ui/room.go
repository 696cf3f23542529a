package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	roomevents "github.com/rescp17/pairLink/internal/app_events/room"
	"github.com/rescp17/pairLink/internal/style"
	"github.com/rescp17/pairLink/pkg/room"
	"github.com/rescp17/pairLink/pkg/signaling"
)

// roomUIState defines the different states of the room UI.
type roomUIState int

const (
	roomJoining roomUIState = iota
	roomWaiting
	roomConnected
	roomRefused
	roomEvicted
)

type roomModel struct {
	state    roomUIState
	selfName string
	spinner  spinner.Model
	input    textinput.Model

	role          room.Role
	remoteName    string
	micOn         bool
	cameraOn      bool
	sharing       bool
	remoteSharing bool

	chatFocused bool
	chatLog     []chatLine
}

// RoomKeyMap extends the call controls with creator moderation bindings.
type RoomKeyMap struct {
	Leave       key.Binding
	Mic         key.Binding
	Camera      key.Binding
	SwitchCam   key.Binding
	ScreenShare key.Binding
	Chat        key.Binding
	MuteGuest   key.Binding
	BlindGuest  key.Binding
	StopShare   key.Binding
}

var roomKeys = RoomKeyMap{
	Leave:       key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "leave")),
	Mic:         key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mic")),
	Camera:      key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "camera")),
	SwitchCam:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "switch cam")),
	ScreenShare: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "share screen")),
	Chat:        key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "chat")),
	MuteGuest:   key.NewBinding(key.WithKeys("M"), key.WithHelp("M", "mute guest")),
	BlindGuest:  key.NewBinding(key.WithKeys("V"), key.WithHelp("V", "guest cam off")),
	StopShare:   key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "stop guest share")),
}

func initRoomModel(selfName string) roomModel {
	input := textinput.New()
	input.Placeholder = "message"
	input.CharLimit = 512

	return roomModel{
		state:    roomJoining,
		selfName: selfName,
		spinner:  style.NewSpinner(),
		input:    input,
		micOn:    true,
		cameraOn: true,
	}
}

func (m *Model) initRoom() tea.Cmd {
	return tea.Batch(m.room.spinner.Tick, m.listenForAppMessages())
}

func (m Model) updateRoom(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, handled := m.handleRoomAppMessage(msg); handled {
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.room.state {
	case roomWaiting, roomConnected:
		cmd = m.updateRoomActive(msg)
	case roomRefused, roomEvicted:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
			return m, tea.Quit
		}
	}

	var spinCmd tea.Cmd
	m.room.spinner, spinCmd = m.room.spinner.Update(msg)
	return m, tea.Batch(cmd, spinCmd)
}

func (m *Model) handleRoomAppMessage(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case roomevents.StateMsg:
		m.room.role = msg.Role
		m.room.remoteName = msg.RemoteName
		switch msg.State {
		case room.StateWaiting:
			m.room.state = roomWaiting
		case room.StateConnected:
			m.room.state = roomConnected
		case room.StateIdle:
			if m.room.state == roomConnected || m.room.state == roomWaiting {
				m.room.state = roomEvicted
			}
		}
		return m.listenForAppMessages(), true
	case roomevents.FullMsg:
		m.room.state = roomRefused
		return m.listenForAppMessages(), true
	case roomevents.PeerJoinedMsg:
		m.room.remoteName = msg.UserName
		return m.listenForAppMessages(), true
	case roomevents.PeerLeftMsg:
		m.room.remoteName = ""
		m.room.remoteSharing = false
		return m.listenForAppMessages(), true
	case roomevents.HostDisconnectedMsg:
		m.room.state = roomEvicted
		return m.listenForAppMessages(), true
	case roomevents.RemoteScreenShareMsg:
		m.room.remoteSharing = msg.Active
		return m.listenForAppMessages(), true
	case roomevents.MicStateMsg:
		m.room.micOn = msg.Enabled
		return m.listenForAppMessages(), true
	case roomevents.CameraStateMsg:
		m.room.cameraOn = msg.Enabled
		return m.listenForAppMessages(), true
	case roomevents.ScreenShareStateMsg:
		m.room.sharing = msg.Active
		return m.listenForAppMessages(), true
	case roomevents.ChatMsg:
		m.room.chatLog = append(m.room.chatLog, chatLine{
			sender:  msg.Message.SenderName,
			content: msg.Message.Content,
			at:      msg.Message.Timestamp,
		})
		return m.listenForAppMessages(), true
	case roomevents.SentMsg:
		m.room.chatLog = append(m.room.chatLog, chatLine{
			sender:  m.room.selfName,
			content: msg.Message.Content,
			at:      msg.Message.Timestamp,
			mine:    true,
		})
		return m.listenForAppMessages(), true
	}
	return nil, false
}

func (m *Model) updateRoomActive(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	if key.Matches(keyMsg, roomKeys.Chat) {
		m.room.chatFocused = !m.room.chatFocused
		if m.room.chatFocused {
			m.room.input.Focus()
			return textinput.Blink
		}
		m.room.input.Blur()
		return nil
	}

	if m.room.chatFocused {
		if keyMsg.Type == tea.KeyEnter {
			content := strings.TrimSpace(m.room.input.Value())
			if content != "" {
				m.controller.AppEvents() <- roomevents.SendMessageEvent{Content: content}
				m.room.input.Reset()
			}
			return nil
		}
		var cmd tea.Cmd
		m.room.input, cmd = m.room.input.Update(msg)
		return cmd
	}

	switch {
	case key.Matches(keyMsg, roomKeys.Leave):
		m.controller.AppEvents() <- roomevents.LeaveEvent{}
	case key.Matches(keyMsg, roomKeys.Mic):
		m.controller.AppEvents() <- roomevents.ToggleMicEvent{}
	case key.Matches(keyMsg, roomKeys.Camera):
		m.controller.AppEvents() <- roomevents.ToggleCameraEvent{}
	case key.Matches(keyMsg, roomKeys.SwitchCam):
		m.controller.AppEvents() <- roomevents.SwitchCameraEvent{}
	case key.Matches(keyMsg, roomKeys.ScreenShare):
		m.controller.AppEvents() <- roomevents.ToggleScreenShareEvent{}
	case key.Matches(keyMsg, roomKeys.MuteGuest) && m.room.role == room.RoleCreator:
		m.controller.AppEvents() <- roomevents.HostActionEvent{Action: signaling.HostActionMute}
	case key.Matches(keyMsg, roomKeys.BlindGuest) && m.room.role == room.RoleCreator:
		m.controller.AppEvents() <- roomevents.HostActionEvent{Action: signaling.HostActionDisableCamera}
	case key.Matches(keyMsg, roomKeys.StopShare) && m.room.role == room.RoleCreator:
		m.controller.AppEvents() <- roomevents.HostActionEvent{Action: signaling.HostActionDisableScreenShare}
	}
	return nil
}

func (m Model) roomView() string {
	switch m.room.state {
	case roomJoining:
		return fmt.Sprintf("\n%s Joining room...", m.room.spinner.View())
	case roomWaiting:
		return fmt.Sprintf("\n%s Waiting for someone to join...\n(role: %s)\n\n%s",
			m.room.spinner.View(), m.room.role, style.HelpStyle.Render(m.roomControlHelp()))
	case roomConnected:
		return m.roomConnectedView()
	case roomRefused:
		return "\nThat room is full.\n\nPress Enter to exit."
	case roomEvicted:
		return "\nThe room was closed.\n\nPress Enter to exit."
	default:
		return "Internal error: unknown room state"
	}
}

func (m Model) roomConnectedView() string {
	var b strings.Builder

	name := m.room.remoteName
	if name == "" {
		name = "guest"
	}
	b.WriteString("\n" + style.ConnectedStyle.Render("● "+name) + "\n")

	parts := []string{
		toggleLabel("mic", m.room.micOn),
		toggleLabel("cam", m.room.cameraOn),
	}
	if m.room.sharing {
		parts = append(parts, style.HighlightFontStyle.Render("[sharing screen]"))
	}
	if m.room.remoteSharing {
		parts = append(parts, style.HighlightFontStyle.Render("[peer is sharing]"))
	}
	b.WriteString(strings.Join(parts, "  ") + "\n\n")
	b.WriteString(renderChatLog(m.room.chatLog))

	if m.room.chatFocused {
		b.WriteString("\n" + m.room.input.View() + "\n")
		b.WriteString(style.HelpStyle.Render("enter send · tab controls"))
	} else {
		b.WriteString("\n" + style.HelpStyle.Render(m.roomControlHelp()))
	}
	return b.String()
}

func (m Model) roomControlHelp() string {
	bindings := []key.Binding{
		roomKeys.Mic, roomKeys.Camera, roomKeys.SwitchCam,
		roomKeys.ScreenShare, roomKeys.Chat, roomKeys.Leave,
	}
	if m.room.role == room.RoleCreator {
		bindings = append(bindings, roomKeys.MuteGuest, roomKeys.BlindGuest, roomKeys.StopShare)
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, fmt.Sprintf("%s %s", b.Help().Key, b.Help().Desc))
	}
	return strings.Join(parts, " · ")
}
