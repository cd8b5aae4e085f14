// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dtvctl/internal/directv"
	"dtvctl/internal/logger"
)

const (
	stateRefreshInterval = 10 * time.Second
	maxLogEntries        = 20
	visibleLogLines      = 3
	maxChannelInput      = 8
)

// LogEntry represents a log entry for display
type LogEntry struct {
	Timestamp time.Time
	Level     string // INF, ERR
	Message   string
}

// keySentMsg reports the result of a remote/processKey request
type keySentMsg struct {
	key directv.RemoteKey
	err error
}

// tunedMsg reports the result of a tv/tune request
type tunedMsg struct {
	channel string
	err     error
}

// stateMsg carries a fresh client state
type stateMsg struct {
	client string
	state  directv.State
}

// stateTickMsg triggers the periodic state refresh of one remote session
type stateTickMsg struct {
	session int
}

// RemoteModel handles the remote control screen
type RemoteModel struct {
	receiver *directv.Receiver
	device   *directv.Device
	client   string
	session  int

	selectedKey     directv.RemoteKey
	lastButtonPress time.Time

	// digits typed so far, tuned on enter
	channelInput string

	state     *directv.State
	lastError string

	debugMode bool
	testMode  bool

	width  int
	height int

	logBuffer []LogEntry
}

// NewRemoteModel creates the remote control screen for a connected receiver
func NewRemoteModel(session int, receiver *directv.Receiver, device *directv.Device, client string, debug, test bool) RemoteModel {
	return RemoteModel{
		receiver:  receiver,
		device:    device,
		client:    client,
		session:   session,
		debugMode: debug,
		testMode:  test,
		logBuffer: []LogEntry{},
	}
}

// Init loads the first state of the selected client and starts the refresh ticker
func (m RemoteModel) Init() tea.Cmd {
	return tea.Batch(m.refreshState(), m.scheduleStateRefresh())
}

// Update handles remote control screen messages
func (m RemoteModel) Update(msg tea.Msg) (RemoteModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case keySentMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			m.addLogEntry("ERR", fmt.Sprintf("%s failed: %v", msg.key, msg.err))
			return m, nil
		}
		m.lastError = ""
		m.addLogEntry("INF", fmt.Sprintf("Key %s sent", msg.key))
		return m, m.refreshState()

	case tunedMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			m.addLogEntry("ERR", fmt.Sprintf("tune %s failed: %v", msg.channel, msg.err))
			return m, nil
		}
		m.lastError = ""
		m.addLogEntry("INF", fmt.Sprintf("Tuned to channel %s", msg.channel))
		return m, m.refreshState()

	case stateMsg:
		if msg.client != m.client {
			return m, nil
		}
		state := msg.state
		m.state = &state
		return m, nil

	case stateTickMsg:
		if msg.session != m.session {
			return m, nil
		}
		return m, tea.Batch(m.refreshState(), m.scheduleStateRefresh())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m RemoteModel) handleKey(msg tea.KeyMsg) (RemoteModel, tea.Cmd) {
	key := msg.String()

	switch {
	case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
		if len(m.channelInput) < maxChannelInput {
			m.channelInput += key
		}
		return m, nil

	case key == "-" && m.channelInput != "" && !strings.Contains(m.channelInput, "-"):
		m.channelInput += key
		return m, nil

	case key == "esc":
		m.channelInput = ""
		return m, nil

	case key == "enter" && m.channelInput != "":
		channel := strings.TrimSuffix(m.channelInput, "-")
		m.channelInput = ""
		return m, m.tune(channel)

	case key == "backspace" && m.channelInput != "":
		m.channelInput = m.channelInput[:len(m.channelInput)-1]
		return m, nil

	case key == "tab":
		m.client = m.nextClient()
		m.state = nil
		m.addLogEntry("INF", fmt.Sprintf("Controlling client %s", m.client))
		return m, m.refreshState()

	case key == "ctrl+r":
		return m, m.refreshState()
	}

	if button, ok := buttonForShortcut(key); ok {
		return m.pressButton(button)
	}

	return m, nil
}

func (m RemoteModel) pressButton(button remoteButton) (RemoteModel, tea.Cmd) {
	if m.receiver == nil {
		return m, nil
	}

	m.selectedKey = button.key
	m.lastButtonPress = time.Now()

	receiver, client, key := m.receiver, m.client, button.key
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), directv.DefaultTimeout)
		defer cancel()

		err := receiver.Remote(ctx, string(key), client)
		log := logger.Component("cli")
		log.Info().
			Str("key", string(key)).
			Str("client", client).
			Bool("success", err == nil).
			Msg("Remote button pressed")
		return keySentMsg{key: key, err: err}
	}
}

func (m RemoteModel) tune(channel string) tea.Cmd {
	if m.receiver == nil {
		return nil
	}

	receiver, client := m.receiver, m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), directv.DefaultTimeout)
		defer cancel()

		return tunedMsg{channel: channel, err: receiver.Tune(ctx, channel, client)}
	}
}

func (m RemoteModel) refreshState() tea.Cmd {
	if m.receiver == nil {
		return nil
	}

	receiver, client := m.receiver, m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), directv.DefaultTimeout)
		defer cancel()

		return stateMsg{client: client, state: receiver.State(ctx, client)}
	}
}

func (m RemoteModel) scheduleStateRefresh() tea.Cmd {
	session := m.session
	return tea.Tick(stateRefreshInterval, func(time.Time) tea.Msg {
		return stateTickMsg{session: session}
	})
}

// nextClient cycles through the receiver's locations
func (m RemoteModel) nextClient() string {
	if m.device == nil || len(m.device.Locations) == 0 {
		return m.client
	}

	locations := m.device.Locations
	for i, location := range locations {
		if location.Address == m.client {
			return locations[(i+1)%len(locations)].Address
		}
	}
	return locations[0].Address
}

// Close releases the receiver connection
func (m RemoteModel) Close() {
	if m.receiver != nil {
		_ = m.receiver.Close()
	}
}

// View renders the remote control screen
func (m RemoteModel) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render("dtvctl - DirecTV Remote"))

	header := successStyle.Render("📺 " + m.receiverLabel())
	if m.testMode {
		header += " " + warnStyle.Render("(Test)")
	}
	sections = append(sections, header)

	sections = append(sections, m.renderStateLine())
	sections = append(sections, m.renderRemoteLayout())
	sections = append(sections, m.renderChannelEntry())

	if m.lastError != "" {
		sections = append(sections, errorStyle.Render("✗ "+m.lastError))
	}

	if m.debugMode || m.testMode {
		if logDisplay := m.renderLogDisplay(); logDisplay != "" {
			sections = append(sections, logDisplay)
		}
	}

	sections = append(sections, m.renderHelpText())

	return strings.Join(sections, "\n\n")
}

func (m RemoteModel) receiverLabel() string {
	if m.device == nil {
		return "DirecTV Receiver"
	}

	label := fmt.Sprintf("%s %s", directv.Brand, m.device.Info.ReceiverID)
	if location, ok := m.device.Location(m.client); ok {
		return fmt.Sprintf("%s • %s (%s)", label, location.Name, location.Address)
	}
	return fmt.Sprintf("%s • client %s", label, m.client)
}

// renderStateLine shows the coarse status and the program on the selected client
func (m RemoteModel) renderStateLine() string {
	if m.state == nil {
		return helpStyle.Render("State: loading...")
	}

	status := m.state.Status()
	var statusText string
	switch status {
	case directv.StatusActive:
		statusText = successStyle.Render(string(status))
	case directv.StatusStandby:
		statusText = warnStyle.Render(string(status))
	default:
		statusText = errorStyle.Render(string(status))
	}

	line := "State: " + statusText
	if program := m.state.Program; program != nil {
		line += fmt.Sprintf(" • ch %s %s • %s", program.Channel, program.ChannelName, program.Title)
		if program.EpisodeTitle != "" {
			line += fmt.Sprintf(" (%s)", program.EpisodeTitle)
		}
	}
	return line
}

func (m RemoteModel) renderRemoteLayout() string {
	columns := make([]string, 0, len(remoteLayout)*2)

	for i, group := range remoteLayout {
		rows := []string{lipgloss.NewStyle().Foreground(group.color).Render(group.title)}
		for _, row := range group.rows {
			buttons := make([]string, 0, len(row))
			for _, button := range row {
				style := remoteButtonStyle
				if m.selectedKey == button.key && time.Since(m.lastButtonPress) < 200*time.Millisecond {
					style = remoteButtonActiveStyle
				}
				buttons = append(buttons, style.Render(" "+button.label+" "), " ")
			}
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, buttons...))
		}

		if i > 0 {
			columns = append(columns, strings.Repeat(" ", 4))
		}
		columns = append(columns, lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

func (m RemoteModel) renderChannelEntry() string {
	entry := m.channelInput
	if entry == "" {
		entry = "_"
	}
	return subtitleStyle.Render("Channel: ") + entry
}

// renderLogDisplay shows the last few log entries
func (m RemoteModel) renderLogDisplay() string {
	if len(m.logBuffer) == 0 {
		return ""
	}

	start := 0
	if len(m.logBuffer) > visibleLogLines {
		start = len(m.logBuffer) - visibleLogLines
	}

	header := "─── LOGS ───"
	if start > 0 {
		header = "─── LOGS ↓ ───"
	}
	lines := []string{helpStyle.Render(header)}

	for i := 0; i < visibleLogLines; i++ {
		if start+i >= len(m.logBuffer) {
			lines = append(lines, "")
			continue
		}

		entry := m.logBuffer[start+i]
		levelStyle := successStyle
		if entry.Level == "ERR" {
			levelStyle = errorStyle
		}

		line := fmt.Sprintf("%s [%s] %s",
			entry.Timestamp.Format("15:04:05"),
			levelStyle.Render(entry.Level),
			entry.Message)
		if len(line) > 90 {
			line = line[:87] + "..."
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// addLogEntry adds a new log entry to the buffer
func (m *RemoteModel) addLogEntry(level, message string) {
	m.logBuffer = append(m.logBuffer, LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	})

	if len(m.logBuffer) > maxLogEntries {
		m.logBuffer = m.logBuffer[len(m.logBuffer)-maxLogEntries:]
	}
}

func (m RemoteModel) renderHelpText() string {
	help := "Arrows: Navigate • Enter: Select/Tune • 0-9,-: Channel • P: Power • PgUp/PgDn: CH"
	if m.width > 100 {
		help += " • G: Guide • M: Menu • I: Info • Tab: Next client • ctrl+r: Refresh • q: Disconnect"
	} else {
		help += " • Tab: Client • q: Disconnect"
	}

	return helpStyle.Render(help)
}
