package style

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink      = lipgloss.Color("205")
	colorDarkGray  = lipgloss.Color("240")
	colorLightGray = lipgloss.Color("229")
	colorCyan      = lipgloss.Color("212")
	colorPurple    = lipgloss.Color("99")
	colorRed       = lipgloss.Color("196")
	colorGreen     = lipgloss.Color("42")
	colorYellow    = lipgloss.Color("220")
)

// --- General Purpose Styles ---
var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	WarningStyle = lipgloss.NewStyle().Foreground(colorYellow)
	HelpStyle    = lipgloss.NewStyle().Faint(true)
)

// --- Call View Styles ---
var (
	BaseStyle          = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(colorDarkGray)
	TitleStyle         = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	HighlightFontStyle = lipgloss.NewStyle().Foreground(colorCyan)
	ConnectedStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	MutedStyle         = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	DurationStyle      = lipgloss.NewStyle().Foreground(colorLightGray)
)

// --- Chat View Styles ---
var (
	SenderNameStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPurple)
	TimestampStyle  = lipgloss.NewStyle().Faint(true)
	EncryptedStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	PlaintextStyle  = lipgloss.NewStyle().Foreground(colorYellow)
)

// NewSpinner creates a spinner with a consistent style.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return s
}
