package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"dtvctl/internal"
	"dtvctl/internal/device"
	"dtvctl/internal/directv"
	"dtvctl/internal/logger"
)

// managedReceiver pairs a receiver with the lock serialising calls to it
type managedReceiver struct {
	config   ReceiverConfig
	receiver *directv.Receiver
	mu       sync.Mutex
}

// ReceiverSummary describes a configured receiver for listings
type ReceiverSummary struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Host    string            `json:"host"`
	Clients []string          `json:"clients"`
	Device  *directv.Device   `json:"device,omitempty"`
	Info    device.DeviceInfo `json:"info"`
}

// DeviceManager owns one directv.Receiver per configured receiver.
// Receivers are not safe for concurrent use, so every call takes the receiver's lock.
type DeviceManager struct {
	receivers  map[string]*managedReceiver
	order      []string
	config     *Config
	modeOpts   *internal.FnModeOptions
	mutex      sync.RWMutex
	logger     zerolog.Logger
	nonceCache *NonceCache
	metrics    *Metrics
}

// NewDeviceManager creates a new device manager
func NewDeviceManager(config *Config, modeOpts *internal.FnModeOptions) *DeviceManager {
	return &DeviceManager{
		receivers:  make(map[string]*managedReceiver),
		config:     config,
		modeOpts:   modeOpts,
		logger:     logger.Component("device_manager"),
		nonceCache: NewNonceCache(defaultNoncesPerReceiver, defaultNonceExpiration),
	}
}

// SetMetrics attaches action counters
func (dm *DeviceManager) SetMetrics(metrics *Metrics) {
	dm.metrics = metrics
}

// Initialize creates a receiver client for every configured receiver
func (dm *DeviceManager) Initialize() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.logger.Info().
		Int("receiver_count", len(dm.config.Receivers)).
		Msg("Initializing receivers")

	for _, receiverConfig := range dm.config.Receivers {
		if _, exists := dm.receivers[receiverConfig.ID]; exists {
			return fmt.Errorf("duplicate receiver ID: %s", receiverConfig.ID)
		}

		dm.receivers[receiverConfig.ID] = &managedReceiver{
			config:   receiverConfig,
			receiver: directv.New(receiverConfig.Host, receiverConfig.Options(dm.modeOpts)...),
		}
		dm.order = append(dm.order, receiverConfig.ID)

		dm.logger.Info().
			Str("receiver_id", receiverConfig.ID).
			Str("host", receiverConfig.Host).
			Int("port", receiverConfig.Port).
			Msg("Receiver initialized")
	}

	return nil
}

func (dm *DeviceManager) managed(id string) (*managedReceiver, error) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	managed, exists := dm.receivers[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrReceiverNotFound, id)
	}
	return managed, nil
}

// ReceiverIDs returns configured receiver IDs in configuration order
func (dm *DeviceManager) ReceiverIDs() []string {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return append([]string(nil), dm.order...)
}

// ReceiverConfig returns the configuration of one receiver
func (dm *DeviceManager) ReceiverConfig(id string) (ReceiverConfig, error) {
	managed, err := dm.managed(id)
	if err != nil {
		return ReceiverConfig{}, err
	}
	return managed.config, nil
}

// Do runs fn with exclusive access to the receiver
func (dm *DeviceManager) Do(ctx context.Context, id string, fn func(context.Context, *directv.Receiver) error) error {
	managed, err := dm.managed(id)
	if err != nil {
		return err
	}

	managed.mu.Lock()
	defer managed.mu.Unlock()

	return fn(ctx, managed.receiver)
}

// Update returns the receiver's device snapshot, fetching it when missing or refresh is set
func (dm *DeviceManager) Update(ctx context.Context, id string, refresh bool) (*directv.Device, error) {
	var dev *directv.Device
	err := dm.Do(ctx, id, func(ctx context.Context, r *directv.Receiver) error {
		var err error
		dev, err = r.Update(ctx, refresh)
		return err
	})
	return dev, err
}

func (dm *DeviceManager) Status(ctx context.Context, id, client string) (directv.Status, error) {
	var status directv.Status
	err := dm.Do(ctx, id, func(ctx context.Context, r *directv.Receiver) error {
		status = r.Status(ctx, client)
		return nil
	})
	return status, err
}

func (dm *DeviceManager) State(ctx context.Context, id, client string) (directv.State, error) {
	var state directv.State
	err := dm.Do(ctx, id, func(ctx context.Context, r *directv.Receiver) error {
		state = r.State(ctx, client)
		return nil
	})
	return state, err
}

func (dm *DeviceManager) Tuned(ctx context.Context, id, client string) (*directv.Program, error) {
	var program *directv.Program
	err := dm.Do(ctx, id, func(ctx context.Context, r *directv.Receiver) error {
		var err error
		program, err = r.Tuned(ctx, client)
		return err
	})
	return program, err
}

func (dm *DeviceManager) Tune(ctx context.Context, id, channel, client string) error {
	err := dm.Do(ctx, id, func(ctx context.Context, r *directv.Receiver) error {
		return r.Tune(ctx, channel, client)
	})
	dm.metrics.ObserveAction(id, string(device.ActionTypeControl), err == nil)
	return err
}

func (dm *DeviceManager) Remote(ctx context.Context, id, key, client string) error {
	err := dm.Do(ctx, id, func(ctx context.Context, r *directv.Receiver) error {
		return r.Remote(ctx, key, client)
	})
	dm.metrics.ObserveAction(id, string(device.ActionTypeRemote), err == nil)
	return err
}

// ProcessAction dispatches a JSON action. A repeated nonce returns the stored response
// without touching the receiver. The nonce is checked and stored under the receiver's
// lock, so concurrent retries with one nonce press the key once.
func (dm *DeviceManager) ProcessAction(ctx context.Context, id, nonce string, actionJSON []byte) (*device.ActionResponse, error) {
	if _, err := dm.managed(id); err != nil {
		return nil, err
	}

	if nonce != "" && !ValidateNonce(nonce) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNonce, nonce)
	}

	request, err := device.ParseActionRequest(actionJSON)
	if err != nil {
		return device.Failure("%v", err), nil
	}

	var (
		response *device.ActionResponse
		replayed bool
	)
	if err := dm.Do(ctx, id, func(ctx context.Context, r *directv.Receiver) error {
		if cached, found := dm.nonceCache.Check(id, nonce); found {
			response, replayed = cached, true
			return nil
		}

		dm.logger.Debug().
			Str("receiver_id", id).
			Str("type", string(request.Type)).
			Str("action", request.Action).
			Msg("Processing receiver action")

		response = r.Dispatch(ctx, request)
		dm.nonceCache.Store(id, nonce, response)
		return nil
	}); err != nil {
		return nil, err
	}

	if replayed {
		dm.logger.Info().
			Str("receiver_id", id).
			Str("nonce", nonce).
			Msg("Returning cached response for duplicate nonce")
		return response, nil
	}

	dm.metrics.ObserveAction(id, string(request.Type), response.Success)

	dm.logger.Info().
		Str("receiver_id", id).
		Str("action", request.Action).
		Bool("success", response.Success).
		Msg("Receiver action processed")

	return response, nil
}

// Snapshot lists every receiver with its cached device data
func (dm *DeviceManager) Snapshot() []ReceiverSummary {
	ids := dm.ReceiverIDs()
	summaries := make([]ReceiverSummary, 0, len(ids))

	for _, id := range ids {
		managed, err := dm.managed(id)
		if err != nil {
			continue
		}

		managed.mu.Lock()
		summaries = append(summaries, ReceiverSummary{
			ID:      id,
			Name:    managed.config.Name,
			Host:    managed.config.Host,
			Clients: managed.config.WatchedClients(),
			Device:  managed.receiver.Device(),
			Info:    managed.receiver.GetDeviceInfo(),
		})
		managed.mu.Unlock()
	}

	return summaries
}

// Summary returns one receiver's listing entry
func (dm *DeviceManager) Summary(id string) (ReceiverSummary, error) {
	for _, summary := range dm.Snapshot() {
		if summary.ID == id {
			return summary, nil
		}
	}
	return ReceiverSummary{}, fmt.Errorf("%w: %s", ErrReceiverNotFound, id)
}

// NonceStats returns nonce cache statistics
func (dm *DeviceManager) NonceStats() NonceCacheStats {
	return dm.nonceCache.Stats()
}

// Count returns the number of managed receivers
func (dm *DeviceManager) Count() int {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return len(dm.receivers)
}

// Shutdown closes every receiver client and the nonce cache
func (dm *DeviceManager) Shutdown() {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.logger.Info().
		Int("receiver_count", len(dm.receivers)).
		Msg("Shutting down device manager")

	dm.nonceCache.Close()

	for id, managed := range dm.receivers {
		managed.mu.Lock()
		if err := managed.receiver.Close(); err != nil {
			dm.logger.Warn().Err(err).Str("receiver_id", id).Msg("Failed to close receiver")
		}
		managed.mu.Unlock()
	}

	dm.receivers = make(map[string]*managedReceiver)
	dm.order = nil
}
