package hub

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtvctl/internal/directv"
)

type apiFixture struct {
	server  *httptest.Server
	api     *APIServer
	manager *DeviceManager
	history *History
}

func newAPIFixture(t *testing.T, secret string) *apiFixture {
	t.Helper()
	return newAPIFixtureWithConfig(t, APIConfig{JWTSecret: secret, JWTIssuer: DefaultJWTIssuer})
}

func newAPIFixtureWithConfig(t *testing.T, config APIConfig) *apiFixture {
	t.Helper()

	manager := simulatedManager(t, "living_room")
	history := memoryHistory(t)
	metrics := NewMetrics()
	poller := NewPoller(manager, time.Minute)
	poller.SetHistory(history)
	poller.SetMetrics(metrics)

	api := NewAPIServer(config, "test-hub", manager, poller, history, metrics)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	return &apiFixture{server: server, api: api, manager: manager, history: history}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) (int, APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope APIResponse
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	}
	return resp.StatusCode, envelope
}

func dataMap(t *testing.T, response APIResponse) map[string]any {
	t.Helper()
	data, ok := response.Data.(map[string]any)
	require.True(t, ok, "data is %T", response.Data)
	return data
}

func TestAPIHealth(t *testing.T) {
	f := newAPIFixture(t, "")

	status, response := f.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, response.Success)

	data := dataMap(t, response)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "test-hub", data["hub_id"])
	assert.EqualValues(t, 1, data["receiver_count"])
	assert.Equal(t, directv.Version, data["version"])
}

func TestAPIReceivers(t *testing.T) {
	f := newAPIFixture(t, "")

	status, response := f.do(t, http.MethodGet, "/api/v1/receivers", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, dataMap(t, response)["count"])

	status, response = f.do(t, http.MethodGet, "/api/v1/receivers/living_room?refresh=true", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	receiver := dataMap(t, response)["receiver"].(map[string]any)
	assert.Equal(t, "living_room", receiver["id"])
	device := receiver["device"].(map[string]any)
	assert.Equal(t, "028877455858", device["info"].(map[string]any)["receiver_id"])

	status, response = f.do(t, http.MethodGet, "/api/v1/receivers/garage", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "receiver not found")
}

func TestAPIReceiverQueries(t *testing.T) {
	f := newAPIFixture(t, "")

	status, response := f.do(t, http.MethodGet, "/api/v1/receivers/living_room/status", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "active", dataMap(t, response)["status"])
	assert.Equal(t, "0", dataMap(t, response)["client"])

	status, response = f.do(t, http.MethodGet, "/api/v1/receivers/living_room/state?client="+directv.SimulatorClientAddr, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	state := dataMap(t, response)
	assert.Equal(t, true, state["available"])
	assert.Equal(t, "312", state["program"].(map[string]any)["channel"])

	status, response = f.do(t, http.MethodGet, "/api/v1/receivers/living_room/tuned", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "231", dataMap(t, response)["channel"])

	status, _ = f.do(t, http.MethodGet, "/api/v1/receivers/living_room/tuned?client=BADC0FFEE", nil, nil)
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestAPITuneAndRemote(t *testing.T) {
	f := newAPIFixture(t, "")

	status, _ := f.do(t, http.MethodPost, "/api/v1/receivers/living_room/tune", TuneRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodPost, "/api/v1/receivers/living_room/tune", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, response := f.do(t, http.MethodPost, "/api/v1/receivers/living_room/tune", TuneRequest{Channel: "206"}, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, response.Success)

	program, err := f.manager.Tuned(context.Background(), "living_room", "0")
	require.NoError(t, err)
	assert.Equal(t, "206", program.Channel)

	status, response = f.do(t, http.MethodPost, "/api/v1/receivers/living_room/remote", RemoteRequest{Key: "warp"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, response.Error, "Remote key is invalid")

	status, _ = f.do(t, http.MethodPost, "/api/v1/receivers/living_room/remote", RemoteRequest{Key: "PowerOff"}, nil)
	assert.Equal(t, http.StatusOK, status)

	// the receiver answers 403 for a tuner in standby
	status, _ = f.do(t, http.MethodGet, "/api/v1/receivers/living_room/tuned", nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(t, http.MethodPost, "/api/v1/receivers/garage/remote", RemoteRequest{Key: "info"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIAction(t *testing.T) {
	f := newAPIFixture(t, "")
	nonce := GenerateNonce()
	action := `{"type":"remote","action":"chanup"}`

	status, response := f.do(t, http.MethodPost, "/api/v1/receivers/living_room/action", action, map[string]string{nonceHeader: nonce})
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, response.Success)

	status, _ = f.do(t, http.MethodPost, "/api/v1/receivers/living_room/action", action, map[string]string{nonceHeader: nonce})
	assert.Equal(t, http.StatusOK, status)

	program, err := f.manager.Tuned(context.Background(), "living_room", "0")
	require.NoError(t, err)
	assert.Equal(t, "232", program.Channel, "the retried action was only applied once")

	status, _ = f.do(t, http.MethodPost, "/api/v1/receivers/living_room/action", action, map[string]string{nonceHeader: "bogus"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, response = f.do(t, http.MethodPost, "/api/v1/receivers/living_room/action", `{"type":"remote","action":"warp"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, response.Error, "Remote key is invalid")
}

func TestAPIHistory(t *testing.T) {
	f := newAPIFixture(t, "")
	ctx := context.Background()

	for i, channel := range []string{"202", "206", "231"} {
		entry := entryAt("0", channel, testEpoch.Add(time.Duration(i)*time.Minute))
		_, err := f.history.Record(ctx, entry)
		require.NoError(t, err)
	}

	status, response := f.do(t, http.MethodGet, "/api/v1/receivers/living_room/history?limit=2", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	data := dataMap(t, response)
	assert.EqualValues(t, 2, data["count"])
	entries := data["entries"].([]any)
	assert.Equal(t, "231", entries[0].(map[string]any)["channel"])

	status, _ = f.do(t, http.MethodGet, "/api/v1/receivers/living_room/history?limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodGet, "/api/v1/receivers/garage/history", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIAuthentication(t *testing.T) {
	f := newAPIFixture(t, "s3cret")

	status, _ := f.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, status, "health stays public")

	status, response := f.do(t, http.MethodGet, "/api/v1/receivers", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authorization header required", response.Message)

	status, _ = f.do(t, http.MethodGet, "/api/v1/receivers", nil, map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodGet, "/api/v1/receivers", nil, map[string]string{"Authorization": "Bearer abc"})
	assert.Equal(t, http.StatusUnauthorized, status)

	token, err := f.api.Tokens().IssueToken("test", time.Hour)
	require.NoError(t, err)
	status, _ = f.do(t, http.MethodGet, "/api/v1/receivers", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, status)
}

func TestAPILogin(t *testing.T) {
	hash, err := NewPasswordService().HashPassword("hunter2")
	require.NoError(t, err)

	f := newAPIFixtureWithConfig(t, APIConfig{
		JWTSecret: "s3cret",
		JWTIssuer: DefaultJWTIssuer,
		Users:     []APIUser{{Username: "admin", PasswordHash: hash}},
	})

	status, _ := f.do(t, http.MethodPost, "/api/v1/login", LoginRequest{Username: "admin", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodPost, "/api/v1/login", LoginRequest{Username: "nobody", Password: "hunter2"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodPost, "/api/v1/login", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, response := f.do(t, http.MethodPost, "/api/v1/login", LoginRequest{Username: "admin", Password: "hunter2"}, nil)
	require.Equal(t, http.StatusOK, status)
	token, ok := dataMap(t, response)["token"].(string)
	require.True(t, ok)

	claims, err := f.api.Tokens().ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)

	status, _ = f.do(t, http.MethodGet, "/api/v1/receivers", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, status)
}

func TestAPILoginDisabled(t *testing.T) {
	f := newAPIFixture(t, "")

	status, _ := f.do(t, http.MethodPost, "/api/v1/login", LoginRequest{Username: "admin", Password: "hunter2"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIMetrics(t *testing.T) {
	f := newAPIFixture(t, "")

	f.do(t, http.MethodGet, "/api/v1/health", nil, nil)

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body.String(), `dtvctl_api_requests_total{outcome="2xx",route="/api/v1/health"} 1`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrReceiverNotFound, http.StatusNotFound},
		{"nonce", ErrInvalidNonce, http.StatusBadRequest},
		{"restricted", &directv.Error{Kind: directv.KindAccessRestricted}, http.StatusForbidden},
		{"connection", &directv.Error{Kind: directv.KindConnection}, http.StatusBadGateway},
		{"request", &directv.Error{Kind: directv.KindRequest}, http.StatusBadGateway},
		{"other", context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
