package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"dtvctl/internal/directv"
	"dtvctl/internal/logger"
)

const (
	breakerFailureThreshold = 3
	breakerOpenTimeout      = 2 * time.Minute
)

// ClientState is the polled state of one receiver client
type ClientState struct {
	ReceiverID string         `json:"receiver_id"`
	Client     string         `json:"client"`
	Status     directv.Status `json:"status"`
	State      directv.State  `json:"state"`
}

// StatePublisher receives every state change the poller detects
type StatePublisher interface {
	PublishState(state ClientState) error
}

// Poller periodically reads the state of every watched client. Each receiver
// sits behind a circuit breaker so an unreachable box is skipped until the
// breaker half-opens.
type Poller struct {
	manager   *DeviceManager
	interval  time.Duration
	history   *History
	publisher StatePublisher
	metrics   *Metrics

	breakers map[string]*gobreaker.CircuitBreaker[[]ClientState]
	last     map[string]ClientState
	mutex    sync.RWMutex

	logger zerolog.Logger
}

// NewPoller creates a poller with one breaker per managed receiver
func NewPoller(manager *DeviceManager, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	p := &Poller{
		manager:  manager,
		interval: interval,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]ClientState]),
		last:     make(map[string]ClientState),
		logger:   logger.Component("poller"),
	}

	for _, id := range manager.ReceiverIDs() {
		p.breakers[id] = p.newBreaker(id)
	}

	return p
}

// SetHistory records state changes to history
func (p *Poller) SetHistory(history *History) {
	p.history = history
}

// SetPublisher forwards state changes to publisher
func (p *Poller) SetPublisher(publisher StatePublisher) {
	p.publisher = publisher
}

// SetMetrics attaches poll and breaker metrics
func (p *Poller) SetMetrics(metrics *Metrics) {
	p.metrics = metrics
	for id := range p.breakers {
		metrics.SetBreakerState(id, gobreaker.StateClosed)
	}
}

func (p *Poller) newBreaker(receiverID string) *gobreaker.CircuitBreaker[[]ClientState] {
	return gobreaker.NewCircuitBreaker[[]ClientState](gobreaker.Settings{
		Name:        receiverID,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrReceiverNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info().
				Str("receiver_id", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Receiver breaker state changed")
			p.metrics.SetBreakerState(name, to)
		},
	})
}

// Run polls immediately and then on every interval until ctx is done
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info().
		Dur("interval", p.interval).
		Int("receiver_count", len(p.breakers)).
		Msg("Starting receiver poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollAll(ctx)

	for {
		select {
		case <-ticker.C:
			p.PollAll(ctx)
		case <-ctx.Done():
			p.logger.Info().Msg("Receiver poller stopping")
			return
		}
	}
}

// PollAll polls every receiver in configuration order
func (p *Poller) PollAll(ctx context.Context) []ClientState {
	var states []ClientState
	for _, id := range p.manager.ReceiverIDs() {
		polled, err := p.PollReceiver(ctx, id)
		if err != nil && !errors.Is(err, ErrReceiverUnreachable) && !isBreakerRejection(err) {
			p.logger.Warn().Err(err).Str("receiver_id", id).Msg("Receiver poll failed")
		}
		states = append(states, polled...)
	}
	return states
}

// PollReceiver reads the state of each watched client of one receiver.
// When the breaker is open the clients are reported unavailable without a request.
func (p *Poller) PollReceiver(ctx context.Context, id string) ([]ClientState, error) {
	breaker, err := p.breaker(id)
	if err != nil {
		return nil, err
	}
	config, err := p.manager.ReceiverConfig(id)
	if err != nil {
		return nil, err
	}
	clients := config.WatchedClients()

	start := time.Now()
	var polled []ClientState
	_, err = breaker.Execute(func() ([]ClientState, error) {
		if err := p.manager.Do(ctx, id, func(ctx context.Context, r *directv.Receiver) error {
			for _, client := range clients {
				state := r.State(ctx, client)
				polled = append(polled, ClientState{
					ReceiverID: id,
					Client:     client,
					Status:     state.Status(),
					State:      state,
				})
			}
			return nil
		}); err != nil {
			return nil, err
		}

		if unreachable(polled) {
			return polled, ErrReceiverUnreachable
		}
		return polled, nil
	})

	outcome := "success"
	switch {
	case isBreakerRejection(err):
		outcome = "rejected"
		polled = unavailableStates(id, clients)
	case errors.Is(err, ErrReceiverUnreachable):
		outcome = "unreachable"
	case err != nil:
		p.metrics.ObservePoll(id, "error", time.Since(start))
		return nil, err
	}
	p.metrics.ObservePoll(id, outcome, time.Since(start))

	for _, state := range polled {
		p.apply(ctx, state)
	}

	return polled, err
}

// Latest returns the last polled state of every client of a receiver
func (p *Poller) Latest(id string) []ClientState {
	config, err := p.manager.ReceiverConfig(id)
	if err != nil {
		return nil
	}

	p.mutex.RLock()
	defer p.mutex.RUnlock()

	var states []ClientState
	for _, client := range config.WatchedClients() {
		if state, ok := p.last[stateKey(id, client)]; ok {
			states = append(states, state)
		}
	}
	return states
}

// BreakerState reports the breaker state of a receiver
func (p *Poller) BreakerState(id string) (gobreaker.State, error) {
	breaker, err := p.breaker(id)
	if err != nil {
		return gobreaker.StateClosed, err
	}
	return breaker.State(), nil
}

func (p *Poller) breaker(id string) (*gobreaker.CircuitBreaker[[]ClientState], error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	breaker, exists := p.breakers[id]
	if !exists {
		if _, err := p.manager.ReceiverConfig(id); err != nil {
			return nil, err
		}
		breaker = p.newBreaker(id)
		p.breakers[id] = breaker
	}
	return breaker, nil
}

// apply stores a polled state and records and publishes it if it changed
func (p *Poller) apply(ctx context.Context, state ClientState) {
	key := stateKey(state.ReceiverID, state.Client)

	p.mutex.Lock()
	previous, seen := p.last[key]
	p.last[key] = state
	p.mutex.Unlock()

	p.metrics.SetReceiverStatus(state.ReceiverID, state.Client, state.Status)

	entry := NewHistoryEntry(state.ReceiverID, state.Client, state.State)
	if seen && entry.SameAs(NewHistoryEntry(previous.ReceiverID, previous.Client, previous.State)) {
		return
	}

	p.logger.Info().
		Str("receiver_id", state.ReceiverID).
		Str("client", state.Client).
		Str("status", string(state.Status)).
		Msg("Receiver state changed")

	if p.history != nil && (seen || !p.alreadyRecorded(ctx, entry)) {
		if _, err := p.history.Record(ctx, entry); err != nil {
			p.logger.Error().Err(err).Str("receiver_id", state.ReceiverID).Msg("Failed to record state")
		} else {
			p.metrics.IncHistoryWrites()
		}
	}

	if p.publisher != nil {
		if err := p.publisher.PublishState(state); err != nil {
			p.logger.Warn().Err(err).Str("receiver_id", state.ReceiverID).Msg("Failed to publish state")
		}
	}
}

// alreadyRecorded reports whether the newest stored entry for the client matches
// entry, so a restarted hub does not repeat the last recorded state
func (p *Poller) alreadyRecorded(ctx context.Context, entry HistoryEntry) bool {
	latest, err := p.history.Latest(ctx, entry.ReceiverID, entry.ClientAddr)
	if err != nil {
		p.logger.Warn().Err(err).Str("receiver_id", entry.ReceiverID).Msg("Failed to read latest state")
		return false
	}
	return latest != nil && latest.SameAs(entry)
}

func stateKey(receiverID, client string) string {
	return fmt.Sprintf("%s/%s", receiverID, client)
}

// unreachable reports whether the host client, or the first watched client when
// the host is not watched, answered as unavailable
func unreachable(states []ClientState) bool {
	if len(states) == 0 {
		return false
	}
	target := states[0]
	for _, state := range states {
		if state.Client == directv.HostClientAddr {
			target = state
			break
		}
	}
	return !target.State.Available
}

func unavailableStates(receiverID string, clients []string) []ClientState {
	now := time.Now().UTC()
	states := make([]ClientState, 0, len(clients))
	for _, client := range clients {
		state := directv.State{Authorized: true, Standby: true, At: now}
		states = append(states, ClientState{
			ReceiverID: receiverID,
			Client:     client,
			Status:     state.Status(),
			State:      state,
		})
	}
	return states
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
