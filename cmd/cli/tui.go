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
	"github.com/charmbracelet/bubbletea"
)

// Main TUI model that routes between screens
type model struct {
	currentScreen screen
	width         int
	height        int
	quitting      bool
	sessions      int

	// Screen models
	setupModel  SetupModel
	remoteModel RemoteModel
}

func initialModelWithFlags(debug, test bool) model {
	return model{
		currentScreen: screenReceiverSetup,
		setupModel:    NewSetupModelWithFlags(debug, test),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		var cmd tea.Cmd
		m.remoteModel, cmd = m.remoteModel.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.remoteModel.Close()
			m.quitting = true
			return m, tea.Quit

		case "q":
			// in the remote, 'q' disconnects and goes back to setup
			if m.currentScreen == screenRemoteControl {
				m.remoteModel.Close()
				m.remoteModel = RemoteModel{}
				m.currentScreen = screenReceiverSetup
				m.setupModel = NewSetupModelWithFlags(m.setupModel.GetDebugMode(), m.setupModel.GetTestMode())
				return m, nil
			}
		}
	}

	switch m.currentScreen {
	case screenReceiverSetup:
		var cmd tea.Cmd
		m.setupModel, cmd = m.setupModel.Update(msg)

		if m.setupModel.IsConnected() {
			m.sessions++
			m.remoteModel = NewRemoteModel(
				m.sessions,
				m.setupModel.GetReceiver(),
				m.setupModel.GetDevice(),
				m.setupModel.GetClient(),
				m.setupModel.GetDebugMode(),
				m.setupModel.GetTestMode(),
			)
			m.remoteModel.width = m.width
			m.remoteModel.height = m.height
			m.currentScreen = screenRemoteControl
			return m, tea.Batch(cmd, m.remoteModel.Init())
		}

		return m, cmd

	case screenRemoteControl:
		var cmd tea.Cmd
		m.remoteModel, cmd = m.remoteModel.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return successStyle.Render("Thanks for using dtvctl!") + "\n"
	}

	switch m.currentScreen {
	case screenReceiverSetup:
		return m.setupModel.View()
	case screenRemoteControl:
		return m.remoteModel.View()
	default:
		return "Unknown screen"
	}
}

// StartTUI runs the interactive remote until the user quits
func StartTUI(debug, test bool) error {
	p := tea.NewProgram(
		initialModelWithFlags(debug, test),
		tea.WithAltScreen(),
	)

	// Ensure proper cleanup on panic or interrupt
	defer func() {
		if r := recover(); r != nil {
			p.Kill()
		}
	}()

	_, err := p.Run()
	return err
}
