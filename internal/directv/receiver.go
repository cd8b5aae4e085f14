package directv

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Receiver is the stateful client for one DirecTV receiver. It caches the
// Device snapshot and is not safe for concurrent use.
type Receiver struct {
	client *Client
	device *Device
	logger zerolog.Logger
}

// New creates a Receiver for host; the HTTP client is created on first use
func New(host string, opts ...Option) *Receiver {
	client := NewClient(host, opts...)
	return &Receiver{
		client: client,
		logger: client.logger.With().Str("host", host).Logger(),
	}
}

// WithReceiver runs fn with a fresh Receiver and always closes it
func WithReceiver(ctx context.Context, host string, fn func(context.Context, *Receiver) error, opts ...Option) error {
	receiver := New(host, opts...)
	defer receiver.Close()

	return fn(ctx, receiver)
}

func (r *Receiver) Host() string {
	return r.client.Host()
}

// Device returns the cached snapshot, nil before the first Update
func (r *Receiver) Device() *Device {
	return r.device
}

// Update fetches identity and locations on the first call or when fullUpdate is set.
// Otherwise the cached Device is refreshed with no data and returned as is.
func (r *Receiver) Update(ctx context.Context, fullUpdate bool) (*Device, error) {
	if r.device != nil && !fullUpdate {
		return r.device.UpdateFromMap(map[string]any{}), nil
	}

	info, err := r.client.Get(ctx, string(VersionEndpoint), nil)
	if err != nil {
		return nil, err
	}
	if len(info.Data) == 0 {
		return nil, newError(msgEmptyResponse, nil)
	}

	locations, err := r.client.Get(ctx, string(LocationsEndpoint), nil)
	if err != nil {
		return nil, err
	}
	entries, ok := lookup(locations.Data, "locations")
	if !ok || len(listField(locations.Data, "locations")) == 0 {
		return nil, newError(msgEmptyResponse, nil)
	}

	device, err := NewDevice(map[string]any{
		"info":      info.Data,
		"locations": entries,
	})
	if err != nil {
		return nil, err
	}

	r.device = device
	r.logger.Debug().
		Str("receiver_id", device.Info.ReceiverID).
		Int("locations", len(device.Locations)).
		Msg("Receiver device updated")

	return r.device, nil
}

// Remote emulates a key press. Unknown keys fail without contacting the receiver.
func (r *Receiver) Remote(ctx context.Context, key, client string) error {
	remoteKey, err := ParseRemoteKey(key)
	if err != nil {
		return err
	}

	_, err = r.client.Get(ctx, string(ProcessKeyEndpoint), url.Values{
		"key":        {string(remoteKey)},
		"hold":       {"keyPress"},
		"clientAddr": {clientAddr(client)},
	})
	return err
}

// Tune changes the channel, e.g. "231" or "231-1"
func (r *Receiver) Tune(ctx context.Context, channel, client string) error {
	major, minor := ParseChannelNumber(channel)

	_, err := r.client.Get(ctx, string(TuneEndpoint), url.Values{
		"major":      {major},
		"minor":      {minor},
		"clientAddr": {clientAddr(client)},
	})
	return err
}

// Tuned returns the program currently playing on client
func (r *Receiver) Tuned(ctx context.Context, client string) (*Program, error) {
	resp, err := r.client.Get(ctx, string(TunedEndpoint), url.Values{
		"clientAddr": {clientAddr(client)},
	})
	if err != nil {
		return nil, err
	}

	program := ProgramFromMap(resp.Data)
	return &program, nil
}

// State never fails: mode and tuned lookups each degrade into flags.
func (r *Receiver) State(ctx context.Context, client string) State {
	state := State{
		Authorized: true,
		Available:  true,
		At:         time.Now().UTC(),
	}

	standby, err := r.mode(ctx, client)
	switch {
	case IsAccessRestricted(err):
		state.Authorized = false
		state.Available = false
		state.Standby = true
	case err != nil:
		state.Available = false
		state.Standby = true
	default:
		state.Standby = standby
	}

	if state.Standby {
		return state
	}

	program, err := r.Tuned(ctx, client)
	switch {
	case IsAccessRestricted(err):
		state.Authorized = false
	case err != nil:
		state.Available = false
	default:
		state.Program = program
	}

	return state
}

// Status derives the coarse condition from a single mode lookup
func (r *Receiver) Status(ctx context.Context, client string) Status {
	standby, err := r.mode(ctx, client)
	switch {
	case IsAccessRestricted(err):
		return StatusUnauthorized
	case err != nil:
		return StatusUnavailable
	case standby:
		return StatusStandby
	default:
		return StatusActive
	}
}

// Close releases the HTTP client if the receiver created it
func (r *Receiver) Close() error {
	return r.client.Close()
}

func (r *Receiver) mode(ctx context.Context, client string) (bool, error) {
	resp, err := r.client.Get(ctx, string(ModeEndpoint), url.Values{
		"clientAddr": {clientAddr(client)},
	})
	if err != nil {
		r.logger.Debug().Err(err).Str("client", clientAddr(client)).Msg("Mode lookup failed")
		return false, err
	}

	if _, ok := lookup(resp.Data, "mode"); !ok {
		return false, newError(msgEmptyResponse, nil)
	}

	return intField(resp.Data, "mode", ModeActive) == ModeStandby, nil
}

func clientAddr(client string) string {
	if client == "" {
		return HostClientAddr
	}
	return client
}
