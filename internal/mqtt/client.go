package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"dtvctl/internal/logger"
)

// Client wraps paho.mqtt.golang for publishing receiver state.
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    Config
	topics Topics

	connected bool
	connMu    sync.RWMutex

	logger zerolog.Logger
}

// Connect establishes a connection, registers the last will and announces
// the hub as online.
func Connect(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg)

	c := newClient(cfg, nil)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnect runs asynchronously; mark connected now so IsConnected holds after return
	c.setConnected(true)

	return c, nil
}

func newClient(cfg Config, client pahomqtt.Client) *Client {
	return &Client{
		client: client,
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
		logger: logger.Component("mqtt"),
	}
}

// Topics returns the topic builder for the configured prefix
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.logger.Info().Str("broker", c.cfg.Broker).Msg("Connected to MQTT broker")

	token := c.client.Publish(c.topics.HubStatus(), c.cfg.QoS, true, buildStatusPayload(c.cfg.ClientID, "online", ""))
	if token.WaitTimeout(defaultPublishTimeout) && token.Error() != nil {
		c.logger.Warn().Err(token.Error()).Msg("Failed to publish online status")
	}
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)
	c.logger.Warn().Err(err).Str("broker", c.cfg.Broker).Msg("MQTT connection lost")
}

func (c *Client) setConnected(connected bool) {
	c.connMu.Lock()
	c.connected = connected
	c.connMu.Unlock()
}

// IsConnected returns the last known connection state
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(c.topics.HubStatus(), c.cfg.QoS, true, buildStatusPayload(c.cfg.ClientID, "offline", "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)

	return nil
}
