package cli

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbletea"

	"dtvctl/internal"
	"dtvctl/internal/directv"
	"dtvctl/internal/logger"
)

const simulatorHost = "simulator"

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)

// Setup screen input fields
type setupField int

const (
	setupFieldHost setupField = iota
	setupFieldPort
	setupFieldClient
	setupFieldUsername
	setupFieldPassword
	setupFieldConnect
)

var setupFields = []setupField{
	setupFieldHost,
	setupFieldPort,
	setupFieldClient,
	setupFieldUsername,
	setupFieldPassword,
	setupFieldConnect,
}

var setupLabels = map[setupField]string{
	setupFieldHost:     "Receiver Host (IP or hostname):",
	setupFieldPort:     "Port:",
	setupFieldClient:   "Client Address (0 = host receiver):",
	setupFieldUsername: "Username (optional):",
	setupFieldPassword: "Password (optional):",
}

// connectedMsg reports a receiver that answered the initial full update
type connectedMsg struct {
	receiver *directv.Receiver
	device   *directv.Device
	client   string
}

// connectFailedMsg reports why the initial full update failed
type connectFailedMsg struct {
	err error
}

// SetupModel handles the receiver setup screen
type SetupModel struct {
	focusedField setupField

	values  map[setupField]string
	cursors map[setupField]int

	connecting      bool
	connectionError string

	receiver *directv.Receiver
	device   *directv.Device
	client   string

	debugMode bool
	testMode  bool
}

// NewSetupModelWithFlags creates a new setup screen model with flags
func NewSetupModelWithFlags(debug, test bool) SetupModel {
	values := map[setupField]string{
		setupFieldHost:   "",
		setupFieldPort:   strconv.Itoa(directv.DefaultPort),
		setupFieldClient: directv.HostClientAddr,
	}
	if test {
		values[setupFieldHost] = simulatorHost
	}

	cursors := make(map[setupField]int, len(values))
	for field, value := range values {
		cursors[field] = len(value)
	}

	return SetupModel{
		focusedField: setupFieldHost,
		values:       values,
		cursors:      cursors,
		debugMode:    debug,
		testMode:     test,
	}
}

// Update handles setup screen messages
func (m SetupModel) Update(msg tea.Msg) (SetupModel, tea.Cmd) {
	switch msg := msg.(type) {
	case connectedMsg:
		m.connecting = false
		m.receiver = msg.receiver
		m.device = msg.device
		m.client = msg.client
		return m, nil

	case connectFailedMsg:
		m.connecting = false
		m.connectionError = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "down":
			return m.moveFocus(false), nil
		case "shift+tab", "up":
			return m.moveFocus(true), nil
		case "enter":
			if m.focusedField == setupFieldConnect {
				return m.handleConnect()
			}
			return m.moveFocus(false), nil
		case "left":
			return m.moveCursor(-1), nil
		case "right":
			return m.moveCursor(1), nil
		case "home":
			return m.moveCursor(-len(m.values[m.focusedField])), nil
		case "end":
			return m.moveCursor(len(m.values[m.focusedField])), nil
		case "backspace":
			return m.handleBackspace(), nil
		case "delete":
			return m.handleDelete(), nil
		default:
			if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
				return m.handleTextInput(string(msg.Runes)), nil
			}
		}
	}

	return m, nil
}

// View renders the setup screen
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("dtvctl - Receiver Setup"))
	if m.testMode {
		b.WriteString(" " + warnStyle.Render("(Test mode: built-in simulator)"))
	}
	b.WriteString("\n\n")

	for _, field := range setupFields {
		if field == setupFieldConnect {
			break
		}

		b.WriteString(subtitleStyle.Render(setupLabels[field]))
		b.WriteString("\n")

		focused := m.focusedField == field
		style := inputStyle
		if focused {
			style = inputFocusedStyle
		}

		text := m.values[field]
		if field == setupFieldPassword {
			text = strings.Repeat("*", len(text))
		}
		b.WriteString(style.Render(renderTextWithCursor(text, m.cursors[field], focused)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	connectStyle := buttonStyle
	if m.focusedField == setupFieldConnect {
		connectStyle = buttonActiveStyle
	}
	connectText := "Connect"
	if m.connecting {
		connectText = "Connecting..."
	}
	b.WriteString(connectStyle.Render(connectText))
	b.WriteString("\n\n")

	if m.connectionError != "" {
		b.WriteString(errorStyle.Render("Error: " + m.connectionError))
		b.WriteString("\n\n")
	}

	b.WriteString(helpStyle.Render("Tab/↑/↓: Navigate • Enter: Next/Connect • ←/→: Move cursor • Home/End: Start/End • ctrl+c: Quit"))

	return b.String()
}

func (m SetupModel) moveFocus(reverse bool) SetupModel {
	index := 0
	for i, field := range setupFields {
		if field == m.focusedField {
			index = i
			break
		}
	}

	if reverse {
		index = (index - 1 + len(setupFields)) % len(setupFields)
	} else {
		index = (index + 1) % len(setupFields)
	}

	m.focusedField = setupFields[index]
	return m
}

func (m SetupModel) moveCursor(delta int) SetupModel {
	if m.focusedField == setupFieldConnect {
		return m
	}

	cursor := m.cursors[m.focusedField] + delta
	if cursor < 0 {
		cursor = 0
	}
	if length := len(m.values[m.focusedField]); cursor > length {
		cursor = length
	}

	m.cursors = copyCursors(m.cursors)
	m.cursors[m.focusedField] = cursor
	return m
}

func (m SetupModel) handleBackspace() SetupModel {
	field := m.focusedField
	if field == setupFieldConnect || m.cursors[field] == 0 {
		return m
	}

	m.values = copyValues(m.values)
	m.cursors = copyCursors(m.cursors)
	m.values[field] = deleteCharAt(m.values[field], m.cursors[field]-1)
	m.cursors[field]--
	return m
}

func (m SetupModel) handleDelete() SetupModel {
	field := m.focusedField
	if field == setupFieldConnect || m.cursors[field] >= len(m.values[field]) {
		return m
	}

	m.values = copyValues(m.values)
	m.values[field] = deleteCharAt(m.values[field], m.cursors[field])
	return m
}

func (m SetupModel) handleTextInput(input string) SetupModel {
	field := m.focusedField
	if field == setupFieldConnect {
		return m
	}

	printable := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, input)
	if printable == "" {
		return m
	}

	m.values = copyValues(m.values)
	m.cursors = copyCursors(m.cursors)
	m.values[field] = insertText(m.values[field], m.cursors[field], printable)
	m.cursors[field] += len(printable)
	return m
}

// handleConnect validates the form and starts the initial full update
func (m SetupModel) handleConnect() (SetupModel, tea.Cmd) {
	if m.connecting {
		return m, nil
	}

	host := strings.TrimSpace(m.values[setupFieldHost])
	if host == "" {
		m.connectionError = "Receiver host is required"
		return m, nil
	}
	if !IsValidHost(host) {
		m.connectionError = "Invalid receiver host"
		return m, nil
	}

	port, err := ParsePort(m.values[setupFieldPort])
	if err != nil {
		m.connectionError = err.Error()
		return m, nil
	}

	client := strings.TrimSpace(m.values[setupFieldClient])
	if client == "" {
		client = directv.HostClientAddr
	}

	m.connecting = true
	m.connectionError = ""

	receiver := directv.New(host,
		directv.WithPort(port),
		directv.WithCredentials(m.values[setupFieldUsername], m.values[setupFieldPassword]),
		directv.WithModeOptions(internal.NewModeOptions(internal.WithDebug(m.debugMode), internal.WithTest(m.testMode))),
	)

	return m, connectCmd(receiver, client)
}

func connectCmd(receiver *directv.Receiver, client string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), directv.DefaultTimeout)
		defer cancel()

		device, err := receiver.Update(ctx, true)
		if err != nil {
			_ = receiver.Close()
			return connectFailedMsg{err: err}
		}

		log := logger.Component("cli")
		log.Info().
			Str("host", receiver.Host()).
			Str("receiver_id", device.Info.ReceiverID).
			Str("version", device.Info.Version).
			Msg("Receiver connected successfully")

		return connectedMsg{receiver: receiver, device: device, client: client}
	}
}

// IsValidHost accepts an IP address or a plain hostname without a port
func IsValidHost(host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}
	return hostnamePattern.MatchString(host)
}

// ParsePort validates a TCP port typed into the form
func ParsePort(value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", value)
	}
	return port, nil
}

// IsConnected returns true once the receiver answered the initial update
func (m SetupModel) IsConnected() bool {
	return m.receiver != nil
}

// GetReceiver returns the connected receiver
func (m SetupModel) GetReceiver() *directv.Receiver {
	return m.receiver
}

// GetDevice returns the receiver snapshot from the initial update
func (m SetupModel) GetDevice() *directv.Device {
	return m.device
}

// GetClient returns the client address the remote should drive
func (m SetupModel) GetClient() string {
	return m.client
}

// GetDebugMode returns the debug mode flag
func (m SetupModel) GetDebugMode() bool {
	return m.debugMode
}

// GetTestMode returns the test mode flag
func (m SetupModel) GetTestMode() bool {
	return m.testMode
}

func copyValues(values map[setupField]string) map[setupField]string {
	copied := make(map[setupField]string, len(values))
	for field, value := range values {
		copied[field] = value
	}
	return copied
}

func copyCursors(cursors map[setupField]int) map[setupField]int {
	copied := make(map[setupField]int, len(cursors))
	for field, cursor := range cursors {
		copied[field] = cursor
	}
	return copied
}
