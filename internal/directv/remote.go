package directv

import (
	"context"
	"fmt"

	"dtvctl/internal/device"
)

// DeviceType identifies DirecTV receivers in device.DeviceInfo
const DeviceType = "directv_receiver"

var _ device.Device = (*Receiver)(nil)

// GetDeviceInfo returns information about this receiver
func (r *Receiver) GetDeviceInfo() device.DeviceInfo {
	model := "DirecTV Receiver"
	if r.device != nil && r.device.Info.Version != "" {
		model = fmt.Sprintf("DirecTV Receiver (%s)", r.device.Info.Version)
	}

	return device.DeviceInfo{
		Type:    DeviceType,
		Model:   model,
		Address: r.client.BaseURL(),
		Capabilities: []string{
			"remote_control",
			"channel_tuning",
			"program_info",
			"state",
		},
	}
}

// Process handles JSON action requests and routes them to the receiver operations.
// Receiver failures are reported in the response, not as an error.
func (r *Receiver) Process(ctx context.Context, actionJSON []byte) (*device.ActionResponse, error) {
	request, err := device.ParseActionRequest(actionJSON)
	if err != nil {
		return device.Failure("%v", err), nil
	}

	return r.Dispatch(ctx, request), nil
}

// Dispatch executes an already parsed action
func (r *Receiver) Dispatch(ctx context.Context, request *device.ActionRequest) *device.ActionResponse {
	switch request.Type {
	case device.ActionTypeRemote:
		return r.processRemoteAction(ctx, request)
	case device.ActionTypeControl:
		return r.processControlAction(ctx, request)
	default:
		return device.Failure("unsupported action type: %s", request.Type)
	}
}

func (r *Receiver) processRemoteAction(ctx context.Context, request *device.ActionRequest) *device.ActionResponse {
	client, _ := request.StringParameter("client")

	if err := r.Remote(ctx, request.Action, client); err != nil {
		return device.Failure("remote request failed: %v", err)
	}

	return device.Success(fmt.Sprintf("Remote action '%s' executed successfully", request.Action))
}

func (r *Receiver) processControlAction(ctx context.Context, request *device.ActionRequest) *device.ActionResponse {
	client, _ := request.StringParameter("client")

	switch device.ControlAction(request.Action) {
	case device.ControlActionInfo:
		dev, err := r.Update(ctx, false)
		if err != nil {
			return device.Failure("control request failed: %v", err)
		}
		return device.Success(dev.Info)

	case device.ControlActionLocations:
		dev, err := r.Update(ctx, false)
		if err != nil {
			return device.Failure("control request failed: %v", err)
		}
		return device.Success(dev.Locations)

	case device.ControlActionStatus:
		return device.Success(map[string]Status{"status": r.Status(ctx, client)})

	case device.ControlActionState:
		return device.Success(r.State(ctx, client))

	case device.ControlActionTuned:
		program, err := r.Tuned(ctx, client)
		if err != nil {
			return device.Failure("control request failed: %v", err)
		}
		return device.Success(program)

	case device.ControlActionTune:
		channel, ok := request.StringParameter("channel")
		if !ok || channel == "" {
			return device.Failure("invalid parameters: channel is required")
		}
		if err := r.Tune(ctx, channel, client); err != nil {
			return device.Failure("control request failed: %v", err)
		}
		return device.Success(fmt.Sprintf("Tuned to channel %s", channel))

	default:
		return device.Failure("unsupported control action: %s", request.Action)
	}
}
