// Package ui implements the terminal interface: one bubbletea program with a
// view per mode, driven entirely by messages from the logic controller.
package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	appevents "github.com/rescp17/pairLink/internal/app_events"
)

// AppController is the logic-controller surface the TUI drives.
type AppController interface {
	Run(ctx context.Context) error
	UIMessages() <-chan tea.Msg
	AppEvents() chan<- appevents.AppEvent
}

// Mode selects which view the program runs.
type Mode int

const (
	ModeCall Mode = iota
	ModeRoom
)

// Model is the root bubbletea model.
type Model struct {
	mode       Mode
	controller AppController
	call       callModel
	room       roomModel
	err        error
}

// InitialModel builds the root model for the given mode.
func InitialModel(mode Mode, controller AppController, selfName string) Model {
	m := Model{
		mode:       mode,
		controller: controller,
	}
	switch mode {
	case ModeCall:
		m.call = initCallModel(selfName)
	case ModeRoom:
		m.room = initRoomModel(selfName)
	}
	return m
}

// listenForAppMessages relays the next controller message into the program.
func (m *Model) listenForAppMessages() tea.Cmd {
	return func() tea.Msg {
		return <-m.controller.UIMessages()
	}
}

func (m Model) Init() tea.Cmd {
	ctx := context.Background()
	go func() {
		_ = m.controller.Run(ctx)
	}()

	switch m.mode {
	case ModeCall:
		return m.initCall()
	case ModeRoom:
		return m.initRoom()
	default:
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if errMsg, ok := msg.(appevents.Error); ok {
		m.err = errMsg.Err
		return m, m.listenForAppMessages()
	}

	switch m.mode {
	case ModeCall:
		return m.updateCall(msg)
	case ModeRoom:
		return m.updateRoom(msg)
	}
	return m, nil
}

func (m Model) View() string {
	var s string
	switch m.mode {
	case ModeCall:
		s = m.callView()
	case ModeRoom:
		s = m.roomView()
	}
	if m.err != nil {
		s += "\n" + errorLine(m.err)
	}
	s += "\nPress ctrl + c to quit"
	return s
}
