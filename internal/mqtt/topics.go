package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves the prefix empty
const DefaultTopicPrefix = "dtvctl"

// Topics builds topic names under a prefix:
//
//	<prefix>/status
//	<prefix>/<receiver_id>/<client>/state
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	prefix := strings.Trim(t.Prefix, "/")
	if prefix == "" {
		return DefaultTopicPrefix
	}
	return prefix
}

// HubStatus carries the retained online/offline status and the last will.
func (t Topics) HubStatus() string {
	return fmt.Sprintf("%s/status", t.prefix())
}

// ReceiverState carries the retained state of one receiver client.
func (t Topics) ReceiverState(receiverID, client string) string {
	return fmt.Sprintf("%s/%s/%s/state", t.prefix(), sanitize(receiverID), sanitize(client))
}

// ReceiverStates is the wildcard subscription for every receiver state.
func (t Topics) ReceiverStates() string {
	return fmt.Sprintf("%s/+/+/state", t.prefix())
}

// sanitize keeps topic levels free of wildcard and separator characters
func sanitize(level string) string {
	if level == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(level)
}
