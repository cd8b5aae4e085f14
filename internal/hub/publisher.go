package hub

import (
	"dtvctl/internal/mqtt"
)

// MQTTPublisher publishes state changes as retained JSON messages on
// <prefix>/<receiver_id>/<client>/state
type MQTTPublisher struct {
	client *mqtt.Client
}

func NewMQTTPublisher(client *mqtt.Client) *MQTTPublisher {
	return &MQTTPublisher{client: client}
}

func (p *MQTTPublisher) PublishState(state ClientState) error {
	return p.client.PublishJSON(p.client.Topics().ReceiverState(state.ReceiverID, state.Client), state)
}
