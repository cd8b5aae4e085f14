package device

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Device represents a generic device that can process commands
type Device interface {
	// Process handles a JSON-encoded action and executes the corresponding operation
	Process(ctx context.Context, actionJSON []byte) (*ActionResponse, error)

	// GetDeviceInfo returns basic information about the device
	GetDeviceInfo() DeviceInfo
}

// DeviceInfo contains basic information about a device
type DeviceInfo struct {
	Type         string   `json:"type"`
	Model        string   `json:"model"`
	Address      string   `json:"address"`
	Capabilities []string `json:"capabilities"`
}

// ActionType represents the type of action to perform
type ActionType string

const (
	ActionTypeRemote  ActionType = "remote"
	ActionTypeControl ActionType = "control"
)

// ActionRequest represents a JSON action request
type ActionRequest struct {
	Type       ActionType             `json:"type"`       // "remote" or "control"
	Action     string                 `json:"action"`     // key name or control action
	Parameters map[string]interface{} `json:"parameters"` // optional parameters
}

// ActionResponse represents the response from processing an action
type ActionResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ControlAction represents available control API actions
type ControlAction string

const (
	ControlActionInfo      ControlAction = "info"
	ControlActionLocations ControlAction = "locations"
	ControlActionStatus    ControlAction = "status"
	ControlActionState     ControlAction = "state"
	ControlActionTuned     ControlAction = "tuned"
	ControlActionTune      ControlAction = "tune"
)

// ControlActions lists every control action in display order
var ControlActions = []ControlAction{
	ControlActionInfo,
	ControlActionLocations,
	ControlActionStatus,
	ControlActionState,
	ControlActionTuned,
	ControlActionTune,
}

// ParseActionRequest parses JSON input into ActionRequest
func ParseActionRequest(actionJSON []byte) (*ActionRequest, error) {
	var request ActionRequest
	if err := json.Unmarshal(actionJSON, &request); err != nil {
		return nil, fmt.Errorf("failed to parse action request: %w", err)
	}

	if request.Type == "" {
		return nil, fmt.Errorf("action type is required")
	}

	if request.Action == "" {
		return nil, fmt.Errorf("action is required")
	}

	return &request, nil
}

// StringParameter returns a string parameter, accepting numbers for convenience.
func (r *ActionRequest) StringParameter(name string) (string, bool) {
	if r.Parameters == nil {
		return "", false
	}
	value, exists := r.Parameters[name]
	if !exists || value == nil {
		return "", false
	}

	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return fmt.Sprintf("%g", v), true
	case int:
		return fmt.Sprintf("%d", v), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// Failure builds an unsuccessful response
func Failure(format string, args ...interface{}) *ActionResponse {
	return &ActionResponse{
		Success: false,
		Error:   fmt.Sprintf(format, args...),
	}
}

// Success builds a successful response carrying data
func Success(data interface{}) *ActionResponse {
	return &ActionResponse{
		Success: true,
		Data:    data,
	}
}
