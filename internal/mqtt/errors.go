package mqtt

import "errors"

// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when publishing on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	ErrInvalidTopic  = errors.New("mqtt: invalid topic")
	ErrInvalidQoS    = errors.New("mqtt: invalid QoS level")
	ErrInvalidBroker = errors.New("mqtt: broker URL is required")
)
