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

package hub

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"dtvctl/internal"
	"dtvctl/internal/directv"
	"dtvctl/internal/mqtt"
)

const (
	DefaultPollInterval     = 30 * time.Second
	DefaultHistoryPath      = "dtvctl-history.db"
	DefaultHistoryRetention = 7 * 24 * time.Hour
	DefaultListenAddress    = ":8090"
	DefaultJWTIssuer        = "dtvctl-hub"
)

// Config represents the hub configuration structure
type Config struct {
	Hub       HubConfig        `yaml:"hub"`
	API       APIConfig        `yaml:"api"`
	MQTT      MQTTConfig       `yaml:"mqtt"`
	Receivers []ReceiverConfig `yaml:"receivers"`
}

// HubConfig contains hub identity and polling settings
type HubConfig struct {
	ID               string        `yaml:"id"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	HistoryPath      string        `yaml:"history_path"`
	HistoryRetention time.Duration `yaml:"history_retention"`
	TestMode         bool          `yaml:"test_mode"`
}

// APIConfig controls the REST API. An empty JWTSecret disables authentication.
type APIConfig struct {
	Listen    string    `yaml:"listen"`
	JWTSecret string    `yaml:"jwt_secret"`
	JWTIssuer string    `yaml:"jwt_issuer"`
	Users     []APIUser `yaml:"users,omitempty"`
}

// APIUser may exchange a password for a bearer token at /api/v1/login
type APIUser struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// User returns the API user with the given name
func (c APIConfig) User(username string) (APIUser, bool) {
	for _, user := range c.Users {
		if user.Username == username {
			return user, true
		}
	}
	return APIUser{}, false
}

// MQTTConfig enables state publishing to a broker
type MQTTConfig struct {
	Enabled     bool `yaml:"enabled"`
	mqtt.Config `yaml:",inline"`
}

// ReceiverConfig represents a single receiver
type ReceiverConfig struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port,omitempty"`
	BasePath string        `yaml:"base_path,omitempty"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	// Clients lists the client addresses the poller watches; empty means the host only
	Clients []string `yaml:"clients,omitempty"`
}

// Options converts the receiver settings into client options
func (r ReceiverConfig) Options(modeOpts *internal.FnModeOptions) []directv.Option {
	opts := []directv.Option{
		directv.WithPort(r.Port),
		directv.WithBasePath(r.BasePath),
		directv.WithCredentials(r.Username, r.Password),
		directv.WithTimeout(r.Timeout),
	}
	if modeOpts != nil {
		opts = append(opts, directv.WithModeOptions(modeOpts))
	}
	return opts
}

// WatchedClients returns the client addresses to poll
func (r ReceiverConfig) WatchedClients() []string {
	if len(r.Clients) == 0 {
		return []string{directv.HostClientAddr}
	}
	return r.Clients
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills in every optional field left empty
func (c *Config) ApplyDefaults() {
	if c.Hub.ID == "" {
		c.Hub.ID = uuid.New().String()
	}
	if c.Hub.PollInterval <= 0 {
		c.Hub.PollInterval = DefaultPollInterval
	}
	if c.Hub.HistoryPath == "" {
		c.Hub.HistoryPath = DefaultHistoryPath
	}
	if c.Hub.HistoryRetention <= 0 {
		c.Hub.HistoryRetention = DefaultHistoryRetention
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListenAddress
	}
	if c.API.JWTIssuer == "" {
		c.API.JWTIssuer = DefaultJWTIssuer
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "dtvctl-" + c.Hub.ID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = mqtt.DefaultTopicPrefix
	}

	for i := range c.Receivers {
		if c.Receivers[i].ID == "" {
			c.Receivers[i].ID = uuid.New().String()
		}
		if c.Receivers[i].Port == 0 {
			c.Receivers[i].Port = directv.DefaultPort
		}
		if c.Receivers[i].Timeout <= 0 {
			c.Receivers[i].Timeout = directv.DefaultTimeout
		}
		if c.Receivers[i].Name == "" {
			c.Receivers[i].Name = c.Receivers[i].Host
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Hub.ID == "" {
		return fmt.Errorf("hub.id is required")
	}
	if c.Hub.PollInterval < time.Second {
		return fmt.Errorf("hub.poll_interval must be at least 1s")
	}

	if len(c.API.Users) > 0 && c.API.JWTSecret == "" {
		return fmt.Errorf("api.users requires api.jwt_secret")
	}
	usernames := make(map[string]bool)
	for i, user := range c.API.Users {
		if user.Username == "" {
			return fmt.Errorf("api.users[%d].username is required", i)
		}
		if usernames[user.Username] {
			return fmt.Errorf("duplicate API user: %s", user.Username)
		}
		usernames[user.Username] = true

		if _, _, _, err := parseArgon2Hash(user.PasswordHash); err != nil {
			return fmt.Errorf("api.users[%d].password_hash: %w", i, err)
		}
	}

	if c.MQTT.Enabled {
		if err := c.MQTT.Validate(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if len(c.Receivers) == 0 {
		return fmt.Errorf("at least one receiver must be configured")
	}

	receiverIDs := make(map[string]bool)
	for i, receiver := range c.Receivers {
		if receiver.ID == "" {
			return fmt.Errorf("receiver[%d].id is required", i)
		}
		if receiverIDs[receiver.ID] {
			return fmt.Errorf("duplicate receiver ID: %s", receiver.ID)
		}
		receiverIDs[receiver.ID] = true

		if receiver.Host == "" {
			return fmt.Errorf("receiver[%d].host is required", i)
		}
		if receiver.Port < 0 || receiver.Port > 65535 {
			return fmt.Errorf("receiver[%d].port is out of range: %d", i, receiver.Port)
		}
	}

	return nil
}

// GetReceiver returns a receiver configuration by ID
func (c *Config) GetReceiver(id string) (*ReceiverConfig, error) {
	for i := range c.Receivers {
		if c.Receivers[i].ID == id {
			return &c.Receivers[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrReceiverNotFound, id)
}

// Save saves the configuration to a YAML file
func (c *Config) Save(filepath string) error {
	return SaveConfig(c, filepath)
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filepath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewDefaultConfig creates a configuration template with one receiver
func NewDefaultConfig() *Config {
	config := &Config{
		Hub: HubConfig{
			ID:               uuid.New().String(),
			PollInterval:     DefaultPollInterval,
			HistoryPath:      DefaultHistoryPath,
			HistoryRetention: DefaultHistoryRetention,
		},
		API: APIConfig{
			Listen:    DefaultListenAddress,
			JWTIssuer: DefaultJWTIssuer,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Config: mqtt.Config{
				Broker:      "tcp://localhost:1883",
				TopicPrefix: mqtt.DefaultTopicPrefix,
				QoS:         1,
			},
		},
		Receivers: []ReceiverConfig{
			{
				ID:      "living_room",
				Name:    "Living Room",
				Host:    "192.168.1.100",
				Port:    directv.DefaultPort,
				Timeout: directv.DefaultTimeout,
				Clients: []string{directv.HostClientAddr},
			},
		},
	}
	config.ApplyDefaults()
	return config
}
