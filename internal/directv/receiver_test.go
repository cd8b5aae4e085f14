package directv_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtvctl/internal/directv"
)

func TestReceiverUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("first call fetches info and locations", func(t *testing.T) {
		fake := newFakeReceiver(t, deviceRoutes(t))
		receiver := fake.receiver(t)
		assert.Nil(t, receiver.Device())

		device, err := receiver.Update(ctx, false)
		require.NoError(t, err)

		assert.Equal(t, "DirecTV", device.Info.Brand)
		assert.Equal(t, "028877455858", device.Info.ReceiverID)
		assert.Equal(t, "0x4ed7", device.Info.Version)
		require.Len(t, device.Locations, 2)
		assert.Equal(t, "Host", device.Locations[0].Name)
		assert.Equal(t, "0", device.Locations[0].Address)
		assert.Equal(t, clientAddr, device.Locations[1].Address)
		assert.Same(t, device, receiver.Device())

		calls := fake.calls()
		require.Len(t, calls, 2)
		assert.Equal(t, "/info/getVersion", calls[0].URL.Path)
		assert.Equal(t, "/info/getLocations", calls[1].URL.Path)
	})

	t.Run("cached device is returned without requests", func(t *testing.T) {
		fake := newFakeReceiver(t, deviceRoutes(t))
		receiver := fake.receiver(t)

		first, err := receiver.Update(ctx, false)
		require.NoError(t, err)

		second, err := receiver.Update(ctx, false)
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Len(t, fake.calls(), 2)
		assert.Len(t, second.Locations, 2)
	})

	t.Run("full update fetches again", func(t *testing.T) {
		fake := newFakeReceiver(t, deviceRoutes(t))
		receiver := fake.receiver(t)

		_, err := receiver.Update(ctx, false)
		require.NoError(t, err)

		fake.setRoute("/info/getLocations", jsonRoute(http.StatusOK,
			`{"locations": [{"clientAddr": "0", "locationName": "Den"}]}`))

		device, err := receiver.Update(ctx, true)
		require.NoError(t, err)
		assert.Len(t, fake.calls(), 4)
		require.Len(t, device.Locations, 1)
		assert.Equal(t, "Den", device.Locations[0].Name)
	})

	t.Run("empty info", func(t *testing.T) {
		routes := deviceRoutes(t)
		routes["/info/getVersion"] = jsonRoute(http.StatusOK, `{}`)
		fake := newFakeReceiver(t, routes)

		_, err := fake.receiver(t).Update(ctx, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, directv.ErrDirecTV)
		assert.Contains(t, err.Error(), "empty API response")
		assert.Len(t, fake.calls(), 1)
	})

	t.Run("missing locations wrapper", func(t *testing.T) {
		routes := deviceRoutes(t)
		routes["/info/getLocations"] = jsonRoute(http.StatusOK, `{"status": {"code": 200}}`)
		fake := newFakeReceiver(t, routes)

		receiver := fake.receiver(t)
		_, err := receiver.Update(ctx, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty API response")
		assert.Nil(t, receiver.Device())
	})

	t.Run("request failure propagates", func(t *testing.T) {
		routes := deviceRoutes(t)
		routes["/info/getVersion"] = jsonRoute(http.StatusForbidden, `{}`)
		fake := newFakeReceiver(t, routes)

		_, err := fake.receiver(t).Update(ctx, false)
		assert.True(t, directv.IsAccessRestricted(err))
	})
}

func TestReceiverRemote(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid key issues no request", func(t *testing.T) {
		fake := newFakeReceiver(t, map[string]route{
			"/remote/processKey": jsonRoute(http.StatusOK, `{}`),
		})

		err := fake.receiver(t).Remote(ctx, "super", "0")
		require.Error(t, err)
		assert.ErrorIs(t, err, directv.ErrDirecTV)
		assert.False(t, directv.IsConnectionError(err))
		assert.False(t, directv.IsAccessRestricted(err))
		assert.Contains(t, err.Error(), "Remote key is invalid: super")
		assert.Empty(t, fake.calls())
	})

	t.Run("key press is scoped to client", func(t *testing.T) {
		fake := newFakeReceiver(t, map[string]route{
			"/remote/processKey": jsonRoute(http.StatusOK, `{"hold": "keyPress", "key": "info"}`),
		})

		require.NoError(t, fake.receiver(t).Remote(ctx, "INFO", clientAddr))

		calls := fake.calls()
		require.Len(t, calls, 1)
		query := calls[0].URL.Query()
		assert.Equal(t, "info", query.Get("key"))
		assert.Equal(t, "keyPress", query.Get("hold"))
		assert.Equal(t, clientAddr, query.Get("clientAddr"))
	})

	t.Run("empty client means host", func(t *testing.T) {
		fake := newFakeReceiver(t, map[string]route{
			"/remote/processKey": jsonRoute(http.StatusOK, `{}`),
		})

		require.NoError(t, fake.receiver(t).Remote(ctx, "dash", ""))
		assert.Equal(t, "0", fake.calls()[0].URL.Query().Get("clientAddr"))
	})

	t.Run("every key is accepted", func(t *testing.T) {
		fake := newFakeReceiver(t, map[string]route{
			"/remote/processKey": jsonRoute(http.StatusOK, `{}`),
		})
		receiver := fake.receiver(t)

		keys := directv.RemoteKeys()
		assert.Len(t, keys, 43)
		for _, key := range keys {
			assert.NoError(t, receiver.Remote(ctx, strings.ToUpper(string(key)), "0"), key)
		}
		assert.Len(t, fake.calls(), len(keys))
	})
}

func TestReceiverTune(t *testing.T) {
	ctx := context.Background()
	fake := newFakeReceiver(t, map[string]route{
		"/tv/tune": jsonRoute(http.StatusOK, `{"status": {"code": 200}}`),
	})
	receiver := fake.receiver(t)

	require.NoError(t, receiver.Tune(ctx, "231", "0"))
	require.NoError(t, receiver.Tune(ctx, "8-1", clientAddr))

	calls := fake.calls()
	require.Len(t, calls, 2)

	query := calls[0].URL.Query()
	assert.Equal(t, "231", query.Get("major"))
	assert.Equal(t, "65535", query.Get("minor"))
	assert.Equal(t, "0", query.Get("clientAddr"))

	query = calls[1].URL.Query()
	assert.Equal(t, "8", query.Get("major"))
	assert.Equal(t, "1", query.Get("minor"))
	assert.Equal(t, clientAddr, query.Get("clientAddr"))
}

func TestReceiverEmptyAcknowledgement(t *testing.T) {
	ctx := context.Background()
	routes := deviceRoutes(t)
	routes["/tv/tune"] = jsonRoute(http.StatusOK, "")
	routes["/remote/processKey"] = jsonRoute(http.StatusOK, "")
	fake := newFakeReceiver(t, routes)
	receiver := fake.receiver(t)

	assert.NoError(t, receiver.Tune(ctx, "206", "0"))
	assert.NoError(t, receiver.Remote(ctx, "guide", "0"))

	routes = deviceRoutes(t)
	routes["/info/getVersion"] = jsonRoute(http.StatusOK, "")
	_, err := newFakeReceiver(t, routes).receiver(t).Update(ctx, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty API response")
}

func TestReceiverTuned(t *testing.T) {
	ctx := context.Background()
	fake := newFakeReceiver(t, map[string]route{
		"/tv/getTuned": fixtureRoute(t, "tuned.json"),
	})

	program, err := fake.receiver(t).Tuned(ctx, clientAddr)
	require.NoError(t, err)
	assert.Equal(t, "231", program.Channel)
	assert.Equal(t, "tvshow", program.ProgramType)
	assert.Equal(t, "6728716739474078694", program.UniqueID)
	assert.Equal(t, clientAddr, fake.calls()[0].URL.Query().Get("clientAddr"))
}

func TestReceiverState(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		mode       route
		tuned      route
		authorized bool
		available  bool
		standby    bool
		program    bool
		calls      int
	}{
		{
			name:       "mode access restricted",
			mode:       jsonRoute(http.StatusForbidden, `{}`),
			authorized: false, available: false, standby: true, calls: 1,
		},
		{
			name:       "mode server error",
			mode:       jsonRoute(http.StatusInternalServerError, `{}`),
			authorized: true, available: false, standby: true, calls: 1,
		},
		{
			name:       "standby skips tuned",
			mode:       jsonRoute(http.StatusOK, `{"mode": 1}`),
			authorized: true, available: true, standby: true, calls: 1,
		},
		{
			name:       "tuned access restricted",
			mode:       jsonRoute(http.StatusOK, `{"mode": 0}`),
			tuned:      jsonRoute(http.StatusForbidden, `{}`),
			authorized: false, available: true, standby: false, calls: 2,
		},
		{
			name:       "tuned server error",
			mode:       jsonRoute(http.StatusOK, `{"mode": 0}`),
			tuned:      jsonRoute(http.StatusInternalServerError, `{}`),
			authorized: true, available: false, standby: false, calls: 2,
		},
		{
			name:       "active with program",
			mode:       jsonRoute(http.StatusOK, `{"mode": 0}`),
			tuned:      fixtureRoute(t, "tuned-movie.json"),
			authorized: true, available: true, standby: false, program: true, calls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes := map[string]route{"/info/mode": tt.mode}
			if tt.tuned.status != 0 {
				routes["/tv/getTuned"] = tt.tuned
			}
			fake := newFakeReceiver(t, routes)

			state := fake.receiver(t).State(ctx, clientAddr)

			assert.Equal(t, tt.authorized, state.Authorized, "authorized")
			assert.Equal(t, tt.available, state.Available, "available")
			assert.Equal(t, tt.standby, state.Standby, "standby")
			assert.False(t, state.At.IsZero())
			if tt.program {
				require.NotNil(t, state.Program)
				assert.Equal(t, "Snow Bride", state.Program.Title)
				assert.Equal(t, "312", state.Program.Channel)
			} else {
				assert.Nil(t, state.Program)
			}
			assert.Len(t, fake.calls(), tt.calls)
		})
	}

	t.Run("unreachable receiver", func(t *testing.T) {
		receiver := directv.New("127.0.0.1", directv.WithPort(1))
		defer receiver.Close()

		state := receiver.State(ctx, "0")
		assert.True(t, state.Authorized)
		assert.False(t, state.Available)
		assert.True(t, state.Standby)
		assert.Nil(t, state.Program)
	})
}

func TestReceiverStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mode   route
		status directv.Status
	}{
		{"unauthorized", jsonRoute(http.StatusForbidden, `{}`), directv.StatusUnauthorized},
		{"unavailable", jsonRoute(http.StatusInternalServerError, `{}`), directv.StatusUnavailable},
		{"missing mode", jsonRoute(http.StatusOK, `{}`), directv.StatusUnavailable},
		{"standby", jsonRoute(http.StatusOK, `{"mode": 1}`), directv.StatusStandby},
		{"active", jsonRoute(http.StatusOK, `{"mode": 0}`), directv.StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeReceiver(t, map[string]route{"/info/mode": tt.mode})
			assert.Equal(t, tt.status, fake.receiver(t).Status(ctx, ""))

			calls := fake.calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "0", calls[0].URL.Query().Get("clientAddr"))
		})
	}
}

func TestWithReceiver(t *testing.T) {
	fake := newFakeReceiver(t, map[string]route{
		"/info/mode": jsonRoute(http.StatusOK, `{"mode": 0}`),
	})
	host, port := fake.hostPort(t)

	var seen directv.Status
	err := directv.WithReceiver(context.Background(), host, func(ctx context.Context, r *directv.Receiver) error {
		seen = r.Status(ctx, "0")
		return nil
	}, directv.WithPort(port))
	require.NoError(t, err)
	assert.Equal(t, directv.StatusActive, seen)

	sentinel := errors.New("stop")
	err = directv.WithReceiver(context.Background(), host, func(ctx context.Context, r *directv.Receiver) error {
		return sentinel
	}, directv.WithPort(port))
	assert.ErrorIs(t, err, sentinel)
}
