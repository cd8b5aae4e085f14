package hub

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dtvctl/internal"
	"dtvctl/internal/directv"
)

// simulatedConfig returns a config whose receivers are served by the in-process simulator
func simulatedConfig(t *testing.T, ids ...string) *Config {
	t.Helper()

	config := &Config{
		Hub: HubConfig{
			ID:          "test-hub",
			HistoryPath: filepath.Join(t.TempDir(), "history.db"),
			TestMode:    true,
		},
		API: APIConfig{Listen: "127.0.0.1:0"},
	}
	for _, id := range ids {
		config.Receivers = append(config.Receivers, ReceiverConfig{
			ID:      id,
			Name:    id,
			Host:    "simulator",
			Clients: []string{directv.HostClientAddr, directv.SimulatorClientAddr},
		})
	}
	config.ApplyDefaults()
	require.NoError(t, config.Validate())
	return config
}

func testModeOptions() *internal.FnModeOptions {
	return internal.NewModeOptions(internal.WithTest(true))
}

func simulatedManager(t *testing.T, ids ...string) *DeviceManager {
	t.Helper()

	manager := NewDeviceManager(simulatedConfig(t, ids...), testModeOptions())
	require.NoError(t, manager.Initialize())
	t.Cleanup(manager.Shutdown)
	return manager
}

func memoryHistory(t *testing.T) *History {
	t.Helper()

	history, err := OpenHistory(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })
	return history
}

// recordingPublisher collects published states
type recordingPublisher struct {
	mu     sync.Mutex
	states []ClientState
	err    error
}

func (p *recordingPublisher) PublishState(state ClientState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
	return p.err
}

func (p *recordingPublisher) published() []ClientState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ClientState(nil), p.states...)
}

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
