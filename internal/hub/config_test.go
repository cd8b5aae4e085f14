package hub

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtvctl/internal/directv"
)

const sampleConfig = `
hub:
  id: den-hub
  poll_interval: 45s
api:
  listen: 127.0.0.1:9000
  jwt_secret: s3cret
mqtt:
  enabled: true
  broker: tcp://broker.local:1883
  qos: 1
receivers:
  - id: living_room
    host: 192.168.1.100
    clients: ["0", "2CA17D1CD30X"]
  - host: 192.168.1.101
    port: 8081
    base_path: shef
    timeout: 3s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "den-hub", config.Hub.ID)
	assert.Equal(t, 45*time.Second, config.Hub.PollInterval)
	assert.Equal(t, DefaultHistoryPath, config.Hub.HistoryPath)
	assert.Equal(t, DefaultHistoryRetention, config.Hub.HistoryRetention)

	assert.Equal(t, "127.0.0.1:9000", config.API.Listen)
	assert.Equal(t, "s3cret", config.API.JWTSecret)
	assert.Equal(t, DefaultJWTIssuer, config.API.JWTIssuer)

	assert.True(t, config.MQTT.Enabled)
	assert.Equal(t, "tcp://broker.local:1883", config.MQTT.Broker)
	assert.Equal(t, "dtvctl-den-hub", config.MQTT.ClientID)
	assert.Equal(t, "dtvctl", config.MQTT.TopicPrefix)

	require.Len(t, config.Receivers, 2)

	first := config.Receivers[0]
	assert.Equal(t, "living_room", first.ID)
	assert.Equal(t, "192.168.1.100", first.Name)
	assert.Equal(t, directv.DefaultPort, first.Port)
	assert.Equal(t, directv.DefaultTimeout, first.Timeout)
	assert.Equal(t, []string{"0", "2CA17D1CD30X"}, first.WatchedClients())

	second := config.Receivers[1]
	assert.NotEmpty(t, second.ID, "missing receiver IDs are generated")
	assert.Equal(t, 8081, second.Port)
	assert.Equal(t, 3*time.Second, second.Timeout)
	assert.Equal(t, []string{directv.HostClientAddr}, second.WatchedClients())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadConfig(writeConfig(t, "hub: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfig(writeConfig(t, "hub:\n  id: empty\n"))
	assert.ErrorContains(t, err, "at least one receiver must be configured")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short poll interval", func(c *Config) { c.Hub.PollInterval = 100 * time.Millisecond }, "poll_interval"},
		{"missing host", func(c *Config) { c.Receivers[0].Host = "" }, "receiver[0].host is required"},
		{"bad port", func(c *Config) { c.Receivers[0].Port = 70000 }, "port is out of range"},
		{"duplicate id", func(c *Config) {
			c.Receivers = append(c.Receivers, c.Receivers[0])
		}, "duplicate receiver ID"},
		{"mqtt without broker", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker = ""
		}, "mqtt"},
		{"api user", func(c *Config) {
			c.API.JWTSecret = "s3cret"
			c.API.Users = []APIUser{{Username: "admin", PasswordHash: sampleHash}}
		}, ""},
		{"api users without secret", func(c *Config) {
			c.API.Users = []APIUser{{Username: "admin", PasswordHash: sampleHash}}
		}, "requires api.jwt_secret"},
		{"api user without name", func(c *Config) {
			c.API.JWTSecret = "s3cret"
			c.API.Users = []APIUser{{PasswordHash: sampleHash}}
		}, "username is required"},
		{"duplicate api user", func(c *Config) {
			c.API.JWTSecret = "s3cret"
			c.API.Users = []APIUser{{Username: "admin", PasswordHash: sampleHash}, {Username: "admin", PasswordHash: sampleHash}}
		}, "duplicate API user"},
		{"bad password hash", func(c *Config) {
			c.API.JWTSecret = "s3cret"
			c.API.Users = []APIUser{{Username: "admin", PasswordHash: "plaintext"}}
		}, "password_hash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSaveConfig(t *testing.T) {
	config := NewDefaultConfig()
	config.Receivers[0].Clients = []string{"0", "2CA17D1CD30X"}
	path := filepath.Join(t.TempDir(), "hub.yaml")

	require.NoError(t, config.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.Hub, loaded.Hub)
	assert.Equal(t, config.Receivers, loaded.Receivers)
	assert.Equal(t, config.MQTT, loaded.MQTT)
}

func TestGetReceiver(t *testing.T) {
	config := NewDefaultConfig()

	receiver, err := config.GetReceiver("living_room")
	require.NoError(t, err)
	assert.Equal(t, "Living Room", receiver.Name)

	_, err = config.GetReceiver("garage")
	assert.ErrorIs(t, err, ErrReceiverNotFound)
}
