package hub

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtvctl/internal"
	"dtvctl/internal/directv"
)

func TestPollerRecordsChanges(t *testing.T) {
	ctx := context.Background()
	manager := simulatedManager(t, "living_room")
	history := memoryHistory(t)
	publisher := &recordingPublisher{}
	metrics := NewMetrics()

	poller := NewPoller(manager, time.Minute)
	poller.SetHistory(history)
	poller.SetPublisher(publisher)
	poller.SetMetrics(metrics)

	states := poller.PollAll(ctx)
	require.Len(t, states, 2)
	assert.Equal(t, directv.StatusActive, states[0].Status)
	assert.Equal(t, "231", states[0].State.Program.Channel)
	assert.Equal(t, "312", states[1].State.Program.Channel)
	assert.Len(t, publisher.published(), 2)

	// unchanged states are neither recorded nor published
	poller.PollAll(ctx)
	assert.Len(t, publisher.published(), 2)
	entries, err := history.List(ctx, "living_room", "", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, manager.Tune(ctx, "living_room", "202", "0"))
	poller.PollAll(ctx)

	published := publisher.published()
	require.Len(t, published, 3)
	assert.Equal(t, "0", published[2].Client)
	assert.Equal(t, "202", published[2].State.Program.Channel)

	latest, err := history.Latest(ctx, "living_room", "0")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "202", latest.Channel)

	require.NoError(t, manager.Remote(ctx, "living_room", "poweroff", "0"))
	poller.PollAll(ctx)

	current := poller.Latest("living_room")
	require.Len(t, current, 2)
	assert.Equal(t, directv.StatusStandby, current[0].Status)
	assert.Equal(t, directv.StatusActive, current[1].Status)

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.pollsTotal.WithLabelValues("living_room", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.receiverStatus.WithLabelValues("living_room", "0", "standby")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.receiverStatus.WithLabelValues("living_room", "0", "active")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.historyWrites))
}

func TestPollerResumesFromHistory(t *testing.T) {
	ctx := context.Background()
	manager := simulatedManager(t, "living_room")
	history := memoryHistory(t)

	first := NewPoller(manager, time.Minute)
	first.SetHistory(history)
	first.PollAll(ctx)

	entries, err := history.List(ctx, "living_room", "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// a restarted hub publishes current state but does not repeat history rows
	publisher := &recordingPublisher{}
	restarted := NewPoller(manager, time.Minute)
	restarted.SetHistory(history)
	restarted.SetPublisher(publisher)
	restarted.PollAll(ctx)

	assert.Len(t, publisher.published(), 2)
	entries, err = history.List(ctx, "living_room", "", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, manager.Tune(ctx, "living_room", "206", directv.HostClientAddr))
	restarted.PollAll(ctx)

	latest, err := history.Latest(ctx, "living_room", directv.HostClientAddr)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "206", latest.Channel)
}

func TestPollerPublishErrorsAreNotFatal(t *testing.T) {
	ctx := context.Background()
	manager := simulatedManager(t, "living_room")
	publisher := &recordingPublisher{err: errors.New("broker down")}

	poller := NewPoller(manager, time.Minute)
	poller.SetPublisher(publisher)

	states, err := poller.PollReceiver(ctx, "living_room")
	require.NoError(t, err)
	assert.Len(t, states, 2)
	assert.Len(t, publisher.published(), 2)
}

func TestPollerUnknownReceiver(t *testing.T) {
	poller := NewPoller(simulatedManager(t, "living_room"), time.Minute)

	_, err := poller.PollReceiver(context.Background(), "garage")
	assert.ErrorIs(t, err, ErrReceiverNotFound)

	assert.Nil(t, poller.Latest("garage"))
}

// closedPort returns a local port with nothing listening on it
func closedPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func TestPollerBreakerOpensForUnreachableReceiver(t *testing.T) {
	ctx := context.Background()
	config := &Config{
		Receivers: []ReceiverConfig{{
			ID:      "attic",
			Host:    "127.0.0.1",
			Port:    closedPort(t),
			Timeout: time.Second,
		}},
	}
	config.ApplyDefaults()

	manager := NewDeviceManager(config, internal.NewModeOptions())
	require.NoError(t, manager.Initialize())
	defer manager.Shutdown()

	metrics := NewMetrics()
	history := memoryHistory(t)
	poller := NewPoller(manager, time.Minute)
	poller.SetMetrics(metrics)
	poller.SetHistory(history)

	for i := 0; i < breakerFailureThreshold; i++ {
		states, err := poller.PollReceiver(ctx, "attic")
		assert.ErrorIs(t, err, ErrReceiverUnreachable)
		require.Len(t, states, 1)
		assert.Equal(t, directv.StatusUnavailable, states[0].Status)
	}

	state, err := poller.BreakerState("attic")
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateOpen, state)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.breakerState.WithLabelValues("attic")))

	states, err := poller.PollReceiver(ctx, "attic")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Len(t, states, 1)
	assert.Equal(t, directv.StatusUnavailable, states[0].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.pollsTotal.WithLabelValues("attic", "rejected")))

	entries, err := history.List(ctx, "attic", "", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "repeated unavailable states are recorded once")
}

func TestUnreachable(t *testing.T) {
	up := ClientState{Client: "0", State: directv.State{Authorized: true, Available: true}}
	down := ClientState{Client: "0", State: directv.State{Authorized: true, Standby: true}}
	genieDown := ClientState{Client: directv.SimulatorClientAddr, State: directv.State{Authorized: true, Standby: true}}
	genieUp := ClientState{Client: directv.SimulatorClientAddr, State: directv.State{Authorized: true, Available: true}}

	assert.False(t, unreachable(nil))
	assert.False(t, unreachable([]ClientState{up, genieDown}), "only the host client decides")
	assert.True(t, unreachable([]ClientState{genieUp, down}))
	assert.True(t, unreachable([]ClientState{genieDown}), "first client stands in for an unwatched host")
}
