package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	// Palette
	ColorNeonPink   = lipgloss.Color("#ff79c6")
	ColorNeonCyan   = lipgloss.Color("#8be9fd")
	ColorNeonPurple = lipgloss.Color("#bd93f9")
	ColorGray       = lipgloss.Color("#6272a4")
	ColorLightGray  = lipgloss.Color("#bfbfbf")
	ColorDarkGray   = lipgloss.Color("#44475a")

	// Download states
	ColorStateDownloading = lipgloss.Color("#50fa7b")
	ColorStateQueued      = lipgloss.Color("#ffb86c")
	ColorStateDone        = lipgloss.Color("#bd93f9")
	ColorStateError       = lipgloss.Color("#ff5555")
	ColorStatePartial     = lipgloss.Color("#f1fa8c")

	LogoStyle = lipgloss.NewStyle().
			Foreground(ColorNeonPink).
			Bold(true)

	StatsLabelStyle = lipgloss.NewStyle().
			Foreground(ColorNeonCyan).
			Width(11)

	StatsValueStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray)

	ActiveTabStyle = lipgloss.NewStyle().
			Foreground(ColorNeonPink).
			Bold(true).
			Underline(true).
			Padding(0, 1)

	TabStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Padding(0, 1)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(ColorNeonPink).
				Bold(true)

	ItemStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray)

	NotificationStyle = lipgloss.NewStyle().
				Foreground(ColorNeonCyan).
				Bold(true)

	ErrorNotificationStyle = lipgloss.NewStyle().
				Foreground(ColorStateError).
				Bold(true)
)

// DisableColor forces plain output, for --no-color and dumb terminals.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
