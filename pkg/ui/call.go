package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	callevents "github.com/rescp17/pairLink/internal/app_events/call"
	"github.com/rescp17/pairLink/internal/style"
	"github.com/rescp17/pairLink/internal/util"
	"github.com/rescp17/pairLink/pkg/call"
	"github.com/rescp17/pairLink/pkg/crypto"
)

// callUIState defines the different states of the call UI.
type callUIState int

const (
	enteringPeer callUIState = iota
	dialing
	ringing
	inCall
	callEnded
)

type chatLine struct {
	sender    string
	content   string
	at        time.Time
	encrypted bool
	mine      bool
}

type callModel struct {
	state    callUIState
	selfName string
	spinner  spinner.Model
	input    textinput.Model

	remoteID    string
	callerID    string
	callStart   time.Time
	micOn       bool
	cameraOn    bool
	sharing     bool
	peerTyping  bool
	plainWarned bool
	endReason   string

	chatFocused bool
	chatLog     []chatLine
}

// CallKeyMap groups the in-call control bindings.
type CallKeyMap struct {
	Accept      key.Binding
	Decline     key.Binding
	HangUp      key.Binding
	Mic         key.Binding
	Camera      key.Binding
	SwitchCam   key.Binding
	ScreenShare key.Binding
	Chat        key.Binding
}

var callKeys = CallKeyMap{
	Accept:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "accept")),
	Decline:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "decline")),
	HangUp:      key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "hang up")),
	Mic:         key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mic")),
	Camera:      key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "camera")),
	SwitchCam:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "switch cam")),
	ScreenShare: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "share screen")),
	Chat:        key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "chat")),
}

// durationTickMsg drives the call timer.
type durationTickMsg time.Time

func tickDuration() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return durationTickMsg(t)
	})
}

func initCallModel(selfName string) callModel {
	input := textinput.New()
	input.Placeholder = "peer id"
	input.Focus()
	input.CharLimit = 128

	return callModel{
		state:    enteringPeer,
		selfName: selfName,
		spinner:  style.NewSpinner(),
		input:    input,
		micOn:    true,
		cameraOn: true,
	}
}

func (m *Model) initCall() tea.Cmd {
	return tea.Batch(m.call.spinner.Tick, textinput.Blink, m.listenForAppMessages())
}

func (m Model) updateCall(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, handled := m.handleCallAppMessage(msg); handled {
		return m, cmd
	}
	if tick, ok := msg.(durationTickMsg); ok {
		_ = tick
		if m.call.state == inCall {
			return m, tickDuration()
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.call.state {
	case enteringPeer:
		cmd = m.updateEnteringPeer(msg)
	case ringing:
		cmd = m.updateRinging(msg)
	case inCall:
		cmd = m.updateInCall(msg)
	case dialing, callEnded:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
			m.call = initCallModel(m.call.selfName)
			return m, m.initCall()
		}
	}

	var spinCmd tea.Cmd
	m.call.spinner, spinCmd = m.call.spinner.Update(msg)
	return m, tea.Batch(cmd, spinCmd)
}

// handleCallAppMessage consumes controller messages; every branch re-arms the
// listener so the message pump never stalls.
func (m *Model) handleCallAppMessage(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case callevents.StateMsg:
		switch msg.State {
		case call.StateIdle:
			if m.call.state == inCall || m.call.state == dialing {
				m.call.state = callEnded
			}
		case call.StateCalling:
			m.call.state = dialing
			m.call.remoteID = msg.Remote
		case call.StateReceiving:
			m.call.state = ringing
			m.call.callerID = msg.Remote
		case call.StateConnected:
			m.call.state = inCall
			m.call.remoteID = msg.Remote
			m.call.callStart = time.Now()
			m.call.input.Reset()
			m.call.input.Placeholder = "message"
			return tea.Batch(m.listenForAppMessages(), tickDuration()), true
		}
		return m.listenForAppMessages(), true
	case callevents.IncomingCallMsg:
		m.call.callerID = msg.CallerID
		return m.listenForAppMessages(), true
	case callevents.RejectedMsg:
		m.call.state = callEnded
		m.call.endReason = fmt.Sprintf("%s declined the call", msg.PeerID)
		return m.listenForAppMessages(), true
	case callevents.MicStateMsg:
		m.call.micOn = msg.Enabled
		return m.listenForAppMessages(), true
	case callevents.CameraStateMsg:
		m.call.cameraOn = msg.Enabled
		return m.listenForAppMessages(), true
	case callevents.ScreenShareStateMsg:
		m.call.sharing = msg.Active
		return m.listenForAppMessages(), true
	case callevents.ChatMsg:
		m.call.peerTyping = false
		m.call.chatLog = append(m.call.chatLog, chatLine{
			sender:    msg.Message.SenderName,
			content:   msg.Message.Content,
			at:        msg.Message.Timestamp,
			encrypted: msg.Message.Encrypted,
		})
		m.controller.AppEvents() <- callevents.MarkReadEvent{}
		return m.listenForAppMessages(), true
	case callevents.SentMsg:
		m.call.chatLog = append(m.call.chatLog, chatLine{
			sender:    m.call.selfName,
			content:   msg.Message.Content,
			at:        msg.Message.Timestamp,
			encrypted: msg.Encrypted,
			mine:      true,
		})
		return m.listenForAppMessages(), true
	case callevents.PeerTypingMsg:
		m.call.peerTyping = msg.Typing
		return m.listenForAppMessages(), true
	case callevents.MessagesReadMsg:
		return m.listenForAppMessages(), true
	case callevents.PlaintextWarningMsg:
		m.call.plainWarned = true
		return m.listenForAppMessages(), true
	case callevents.RemoteMediaMsg:
		return m.listenForAppMessages(), true
	}
	return nil, false
}

func (m *Model) updateEnteringPeer(msg tea.Msg) tea.Cmd {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter {
		peerID := strings.TrimSpace(m.call.input.Value())
		if peerID != "" {
			m.controller.AppEvents() <- callevents.DialEvent{PeerID: peerID}
		}
		return nil
	}
	var cmd tea.Cmd
	m.call.input, cmd = m.call.input.Update(msg)
	return cmd
}

func (m *Model) updateRinging(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch {
	case key.Matches(keyMsg, callKeys.Accept):
		m.controller.AppEvents() <- callevents.AnswerEvent{}
	case key.Matches(keyMsg, callKeys.Decline):
		m.controller.AppEvents() <- callevents.DeclineEvent{}
		m.call = initCallModel(m.call.selfName)
	}
	return nil
}

func (m *Model) updateInCall(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	if key.Matches(keyMsg, callKeys.Chat) {
		m.call.chatFocused = !m.call.chatFocused
		if m.call.chatFocused {
			m.call.input.Focus()
			return textinput.Blink
		}
		m.call.input.Blur()
		m.controller.AppEvents() <- callevents.TypingEvent{Active: false}
		return nil
	}

	if m.call.chatFocused {
		if keyMsg.Type == tea.KeyEnter {
			content := strings.TrimSpace(m.call.input.Value())
			if content != "" {
				m.controller.AppEvents() <- callevents.SendMessageEvent{Content: content}
				m.controller.AppEvents() <- callevents.TypingEvent{Active: false}
				m.call.input.Reset()
			}
			return nil
		}
		var cmd tea.Cmd
		m.call.input, cmd = m.call.input.Update(msg)
		m.controller.AppEvents() <- callevents.TypingEvent{Active: m.call.input.Value() != ""}
		return cmd
	}

	switch {
	case key.Matches(keyMsg, callKeys.HangUp):
		m.controller.AppEvents() <- callevents.HangUpEvent{}
	case key.Matches(keyMsg, callKeys.Mic):
		m.controller.AppEvents() <- callevents.ToggleMicEvent{}
	case key.Matches(keyMsg, callKeys.Camera):
		m.controller.AppEvents() <- callevents.ToggleCameraEvent{}
	case key.Matches(keyMsg, callKeys.SwitchCam):
		m.controller.AppEvents() <- callevents.SwitchCameraEvent{}
	case key.Matches(keyMsg, callKeys.ScreenShare):
		m.controller.AppEvents() <- callevents.ToggleScreenShareEvent{}
	}
	return nil
}

func (m Model) callView() string {
	switch m.call.state {
	case enteringPeer:
		return fmt.Sprintf("\n%s\n\nWho do you want to call?\n%s\n\nEnter to dial.",
			style.TitleStyle.Render("pairLink"), m.call.input.View())
	case dialing:
		return fmt.Sprintf("\n%s Calling %s...\n\nEsc to cancel.",
			m.call.spinner.View(), style.HighlightFontStyle.Render(m.call.remoteID))
	case ringing:
		return fmt.Sprintf("\nIncoming call from %s\n\n  %s/%s  %s/%s",
			style.HighlightFontStyle.Render(m.call.callerID),
			callKeys.Accept.Help().Key, callKeys.Accept.Help().Desc,
			callKeys.Decline.Help().Key, callKeys.Decline.Help().Desc)
	case inCall:
		return m.inCallView()
	case callEnded:
		reason := m.call.endReason
		if reason == "" {
			reason = "Call ended"
		}
		return fmt.Sprintf("\n%s\n\nEsc to start over.", reason)
	default:
		return "Internal error: unknown call state"
	}
}

func (m Model) inCallView() string {
	var b strings.Builder

	header := fmt.Sprintf("%s  %s",
		style.ConnectedStyle.Render("● "+m.call.remoteID),
		style.DurationStyle.Render(util.FormatDuration(time.Since(m.call.callStart))))
	b.WriteString("\n" + header + "\n")
	b.WriteString(m.statusLine() + "\n\n")
	b.WriteString(renderChatLog(m.call.chatLog))

	if m.call.peerTyping {
		b.WriteString(style.TimestampStyle.Render(m.call.remoteID+" is typing...") + "\n")
	}
	if m.call.plainWarned {
		b.WriteString(style.WarningStyle.Render("⚠ messages are not end-to-end encrypted") + "\n")
	}
	if m.call.chatFocused {
		b.WriteString("\n" + m.call.input.View() + "\n")
		b.WriteString(style.HelpStyle.Render("enter send · tab controls"))
	} else {
		b.WriteString("\n" + style.HelpStyle.Render(controlHelp()))
	}
	return b.String()
}

func (m Model) statusLine() string {
	parts := []string{
		toggleLabel("mic", m.call.micOn),
		toggleLabel("cam", m.call.cameraOn),
	}
	if m.call.sharing {
		parts = append(parts, style.HighlightFontStyle.Render("[sharing screen]"))
	}
	return strings.Join(parts, "  ")
}

func toggleLabel(name string, on bool) string {
	if on {
		return "[" + name + " on]"
	}
	return style.MutedStyle.Render("[" + name + " off]")
}

func controlHelp() string {
	pairs := []key.Binding{
		callKeys.Mic, callKeys.Camera, callKeys.SwitchCam,
		callKeys.ScreenShare, callKeys.Chat, callKeys.HangUp,
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s %s", p.Help().Key, p.Help().Desc))
	}
	return strings.Join(parts, " · ")
}

func renderChatLog(log []chatLine) string {
	if len(log) == 0 {
		return style.HelpStyle.Render("no messages yet") + "\n"
	}

	const window = 12
	start := 0
	if len(log) > window {
		start = len(log) - window
	}

	var b strings.Builder
	for _, line := range log[start:] {
		name := line.sender
		if name == "" {
			name = "peer"
		}
		marker := " "
		if line.encrypted {
			if line.content == crypto.Undecryptable {
				marker = style.ErrorStyle.Render("✗")
			} else {
				marker = style.EncryptedStyle.Render("🔒")
			}
		} else {
			marker = style.PlaintextStyle.Render("!")
		}
		nameStyle := style.SenderNameStyle
		if line.mine {
			nameStyle = style.HighlightFontStyle
		}
		b.WriteString(fmt.Sprintf("%s %s %s %s\n",
			style.TimestampStyle.Render(util.FormatClock(line.at)),
			marker,
			nameStyle.Render(util.PadRight(name, 12)),
			line.content))
	}
	return b.String()
}

func errorLine(err error) string {
	return style.ErrorStyle.Render("error: " + err.Error())
}
