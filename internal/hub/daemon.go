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
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dtvctl/internal"
	"dtvctl/internal/logger"
	"dtvctl/internal/mqtt"
)

const (
	healthCheckInterval = 60 * time.Second
	pruneInterval       = time.Hour
)

// Daemon represents the hub daemon
type Daemon struct {
	config   *Config
	modeOpts *internal.FnModeOptions

	deviceManager *DeviceManager
	poller        *Poller
	history       *History
	metrics       *Metrics
	api           *APIServer
	mqtt          *mqtt.Client

	logger  zerolog.Logger
	running bool
	mutex   sync.RWMutex
	workers sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewDaemon loads the configuration file and builds a daemon from it
func NewDaemon(configPath string, modeOpts *internal.FnModeOptions) (*Daemon, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewDaemonFromConfig(config, modeOpts)
}

// NewDaemonFromConfig builds every hub component; nothing talks to the network until Start
func NewDaemonFromConfig(config *Config, modeOpts *internal.FnModeOptions) (*Daemon, error) {
	if modeOpts == nil {
		modeOpts = internal.NewModeOptions()
	}
	if config.Hub.TestMode {
		modeOpts.Test = true
	}

	ctx, cancel := context.WithCancel(context.Background())

	daemon := &Daemon{
		config:   config,
		modeOpts: modeOpts,
		logger:   logger.Component("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}

	history, err := OpenHistory(config.Hub.HistoryPath)
	if err != nil {
		cancel()
		return nil, err
	}
	daemon.history = history

	daemon.metrics = NewMetrics()

	daemon.deviceManager = NewDeviceManager(config, modeOpts)
	daemon.deviceManager.SetMetrics(daemon.metrics)
	if err := daemon.deviceManager.Initialize(); err != nil {
		history.Close()
		cancel()
		return nil, fmt.Errorf("failed to initialize receivers: %w", err)
	}

	daemon.poller = NewPoller(daemon.deviceManager, config.Hub.PollInterval)
	daemon.poller.SetHistory(history)
	daemon.poller.SetMetrics(daemon.metrics)

	daemon.api = NewAPIServer(config.API, config.Hub.ID, daemon.deviceManager, daemon.poller, history, daemon.metrics)

	return daemon, nil
}

// Start runs the hub until SIGINT/SIGTERM or Stop
func (d *Daemon) Start() error {
	d.mutex.Lock()
	if d.running {
		d.mutex.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.mutex.Unlock()

	d.logger.Info().
		Str("hub_id", d.config.Hub.ID).
		Bool("debug", d.modeOpts.Debug).
		Bool("test_mode", d.modeOpts.Test).
		Msg("Starting dtvctl hub daemon")

	if d.config.MQTT.Enabled {
		d.connectMQTT()
	}

	if err := d.api.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	d.workers.Add(2)
	go func() {
		defer d.workers.Done()
		d.poller.Run(d.ctx)
	}()
	go func() {
		defer d.workers.Done()
		d.startMaintenance()
	}()

	d.logger.Info().
		Int("receiver_count", d.deviceManager.Count()).
		Str("listen", d.config.API.Listen).
		Msg("Hub daemon started successfully")

	select {
	case sig := <-sigChan:
		d.logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		return d.Stop()
	case <-d.ctx.Done():
		d.logger.Info().Msg("Context cancelled")
		return d.Stop()
	}
}

// connectMQTT attaches the publisher; a broker failure leaves the hub running without it
func (d *Daemon) connectMQTT() {
	client, err := mqtt.Connect(d.config.MQTT.Config)
	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("broker", d.config.MQTT.Broker).
			Msg("MQTT connection failed, continuing without state publishing")
		return
	}

	d.mqtt = client
	d.poller.SetPublisher(NewMQTTPublisher(client))
}

// Stop stops the hub daemon gracefully
func (d *Daemon) Stop() error {
	d.mutex.Lock()
	if !d.running {
		d.mutex.Unlock()
		return nil
	}
	d.running = false
	d.mutex.Unlock()

	d.logger.Info().Msg("Stopping hub daemon")

	d.cancel()
	// poller and maintenance use the history database
	d.workers.Wait()

	if err := d.api.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Error stopping API server")
	}

	if d.mqtt != nil {
		if err := d.mqtt.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Error closing MQTT client")
		}
	}

	d.deviceManager.Shutdown()

	if err := d.history.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Error closing history database")
	}

	d.logger.Info().Msg("Hub daemon stopped")
	return nil
}

// startMaintenance runs the periodic health log and history pruning
func (d *Daemon) startMaintenance() {
	healthTicker := time.NewTicker(healthCheckInterval)
	defer healthTicker.Stop()
	pruneTicker := time.NewTicker(pruneInterval)
	defer pruneTicker.Stop()

	d.pruneHistory()

	for {
		select {
		case <-healthTicker.C:
			d.performHealthCheck()
		case <-pruneTicker.C:
			d.pruneHistory()
		case <-d.ctx.Done():
			d.logger.Info().Msg("Maintenance routine stopping")
			return
		}
	}
}

func (d *Daemon) performHealthCheck() {
	status := d.GetStatus()
	d.logger.Info().
		Interface("receivers", status["receivers"]).
		Bool("mqtt_connected", status["mqtt_connected"].(bool)).
		Int("receiver_count", d.deviceManager.Count()).
		Msg("Health check completed")
}

func (d *Daemon) pruneHistory() {
	cutoff := time.Now().Add(-d.config.Hub.HistoryRetention)
	removed, err := d.history.Prune(d.ctx, cutoff)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to prune history")
		return
	}
	if removed > 0 {
		d.logger.Info().
			Int64("removed", removed).
			Time("before", cutoff).
			Msg("Pruned state history")
	}
}

// IsRunning returns whether the daemon is currently running
func (d *Daemon) IsRunning() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.running
}

// GetStatus returns the current status of the daemon
func (d *Daemon) GetStatus() map[string]interface{} {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	receivers := make(map[string]string)
	for _, id := range d.deviceManager.ReceiverIDs() {
		for _, state := range d.poller.Latest(id) {
			receivers[stateKey(id, state.Client)] = string(state.Status)
		}
	}

	return map[string]interface{}{
		"running":        d.running,
		"debug":          d.modeOpts.Debug,
		"test_mode":      d.modeOpts.Test,
		"mqtt_connected": d.mqtt != nil && d.mqtt.IsConnected(),
		"receiver_count": d.deviceManager.Count(),
		"receivers":      receivers,
		"nonce_cache":    d.deviceManager.NonceStats(),
	}
}

// DeviceManager exposes the managed receivers
func (d *Daemon) DeviceManager() *DeviceManager {
	return d.deviceManager
}

// Poller exposes the state poller
func (d *Daemon) Poller() *Poller {
	return d.poller
}

// API exposes the REST API server
func (d *Daemon) API() *APIServer {
	return d.api
}
