package cli

import (
	"github.com/charmbracelet/lipgloss"

	"dtvctl/internal/directv"
)

// Screen types
type screen int

const (
	screenReceiverSetup screen = iota
	screenRemoteControl
)

// Common styles
var (
	titleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#00A8E1")).
		Padding(0, 1).
		Bold(true)

	subtitleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00A8E1")).
		Bold(true)

	inputStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#00A8E1")).
		Padding(0, 1).
		Width(40)

	inputFocusedStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#FF79C6")).
		Padding(0, 1).
		Width(40)

	buttonStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("#00A8E1")).
		Foreground(lipgloss.Color("#FAFAFA")).
		Padding(0, 2).
		Margin(0, 1)

	buttonActiveStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("#FF79C6")).
		Foreground(lipgloss.Color("#FAFAFA")).
		Padding(0, 2).
		Margin(0, 1)

	remoteButtonStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("#44475A")).
		Foreground(lipgloss.Color("#F8F8F2"))

	remoteButtonActiveStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("#FF79C6")).
		Foreground(lipgloss.Color("#FAFAFA"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF5555")).
		Bold(true)

	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#50FA7B")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFB86C"))

	helpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6272A4"))
)

// remoteButton is one labelled key on the on-screen remote
type remoteButton struct {
	key      directv.RemoteKey
	label    string
	shortcut string
}

// remoteGroup is a titled block of buttons rendered as rows
type remoteGroup struct {
	title string
	color lipgloss.Color
	rows  [][]remoteButton
}

var remoteLayout = []remoteGroup{
	{
		title: "Power & Navigation:",
		color: lipgloss.Color("#50FA7B"),
		rows: [][]remoteButton{
			{{directv.KeyPower, "PWR", "p"}, {directv.KeyGuide, "GUIDE", "g"}},
			{{directv.KeyUp, " ↑ ", "up"}},
			{{directv.KeyLeft, " ← ", "left"}, {directv.KeySelect, "SEL", "enter"}, {directv.KeyRight, " → ", "right"}},
			{{directv.KeyDown, " ↓ ", "down"}},
		},
	},
	{
		title: "Channel & Menus:",
		color: lipgloss.Color("#8BE9FD"),
		rows: [][]remoteButton{
			{{directv.KeyChannelUp, "CH + ", "pgup"}, {directv.KeyMenu, "MENU", "m"}},
			{{directv.KeyChannelDown, "CH - ", "pgdown"}, {directv.KeyInfo, "INFO", "i"}},
			{{directv.KeyPrevious, "PREV ", "v"}, {directv.KeyList, "LIST", "l"}},
			{{directv.KeyBack, "BACK ", "backspace"}, {directv.KeyExit, "EXIT", "x"}},
		},
	},
	{
		title: "Playback:",
		color: lipgloss.Color("#FFB86C"),
		rows: [][]remoteButton{
			{{directv.KeyRewind, "REW ", "["}, {directv.KeyPlay, "PLAY", " "}, {directv.KeyFFwd, "FFWD", "]"}},
			{{directv.KeyReplay, "RPLY", "<"}, {directv.KeyPause, "PAUS", "."}, {directv.KeyAdvance, "ADV ", ">"}},
			{{directv.KeyStop, "STOP", "s"}, {directv.KeyRecord, "REC ", "r"}},
			{{directv.KeyRed, " R ", "f1"}, {directv.KeyGreen, " G ", "f2"}, {directv.KeyYellow, " Y ", "f3"}, {directv.KeyBlue, " B ", "f4"}},
		},
	},
}

// buttonForShortcut looks up the remote key bound to a keyboard shortcut
func buttonForShortcut(shortcut string) (remoteButton, bool) {
	for _, group := range remoteLayout {
		for _, row := range group.rows {
			for _, button := range row {
				if button.shortcut == shortcut {
					return button, true
				}
			}
		}
	}
	return remoteButton{}, false
}

// Utility functions

// insertText inserts text at the specified position in a string
func insertText(text string, pos int, insert string) string {
	if pos < 0 {
		pos = 0
	}
	if pos > len(text) {
		pos = len(text)
	}
	return text[:pos] + insert + text[pos:]
}

// deleteCharAt deletes the character at the specified position
func deleteCharAt(text string, pos int) string {
	if pos < 0 || pos >= len(text) {
		return text
	}
	return text[:pos] + text[pos+1:]
}

// renderTextWithCursor renders text with a cursor indicator at the specified position
func renderTextWithCursor(text string, cursorPos int, showCursor bool) string {
	if !showCursor || cursorPos < 0 {
		return text
	}

	if cursorPos >= len(text) {
		return text + "│"
	}

	highlighted := lipgloss.NewStyle().
		Background(lipgloss.Color("#FF79C6")).
		Foreground(lipgloss.Color("#FAFAFA")).
		Render(string(text[cursorPos]))

	return text[:cursorPos] + highlighted + text[cursorPos+1:]
}
