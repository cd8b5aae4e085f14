package hub

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"dtvctl/internal/directv"
)

var receiverStatuses = []directv.Status{
	directv.StatusActive,
	directv.StatusStandby,
	directv.StatusUnavailable,
	directv.StatusUnauthorized,
}

// Metrics holds the hub's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pollsTotal      *prometheus.CounterVec
	pollDuration    *prometheus.HistogramVec
	receiverStatus  *prometheus.GaugeVec
	breakerState    *prometheus.GaugeVec
	actionsTotal    *prometheus.CounterVec
	historyWrites   prometheus.Counter
}

// NewMetrics creates and registers the hub collectors
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtvctl_api_requests_total",
		Help: "Total number of API requests by route and outcome",
	}, []string{"route", "outcome"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dtvctl_api_request_duration_seconds",
		Help:    "Duration of API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	pollsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtvctl_polls_total",
		Help: "Total number of receiver polls by outcome",
	}, []string{"receiver", "outcome"})
	pollDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dtvctl_poll_duration_seconds",
		Help:    "Duration of one receiver poll",
		Buckets: prometheus.DefBuckets,
	}, []string{"receiver"})
	receiverStatus := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dtvctl_receiver_status",
		Help: "Current status of a receiver client, 1 for the active status label",
	}, []string{"receiver", "client", "status"})
	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dtvctl_breaker_state",
		Help: "Circuit breaker state per receiver (0=closed, 1=half-open, 2=open)",
	}, []string{"receiver"})
	actionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtvctl_actions_total",
		Help: "Total number of receiver actions by type and result",
	}, []string{"receiver", "type", "result"})
	historyWrites := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dtvctl_history_writes_total",
		Help: "Total number of state changes written to history",
	})

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		pollsTotal,
		pollDuration,
		receiverStatus,
		breakerState,
		actionsTotal,
		historyWrites,
	)

	return &Metrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		pollsTotal:      pollsTotal,
		pollDuration:    pollDuration,
		receiverStatus:  receiverStatus,
		breakerState:    breakerState,
		actionsTotal:    actionsTotal,
		historyWrites:   historyWrites,
	}
}

// ObserveRequest records one API request; outcome is the status class ("2xx", "4xx", ...)
func (m *Metrics) ObserveRequest(route string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, fmt.Sprintf("%dxx", statusCode/100)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObservePoll records one poll's outcome and duration
func (m *Metrics) ObservePoll(receiverID, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.pollsTotal.WithLabelValues(receiverID, outcome).Inc()
	m.pollDuration.WithLabelValues(receiverID).Observe(duration.Seconds())
}

// SetReceiverStatus marks status as the current one for a client
func (m *Metrics) SetReceiverStatus(receiverID, client string, status directv.Status) {
	if m == nil {
		return
	}
	for _, s := range receiverStatuses {
		value := 0.0
		if s == status {
			value = 1
		}
		m.receiverStatus.WithLabelValues(receiverID, client, string(s)).Set(value)
	}
}

// SetBreakerState records a breaker transition
func (m *Metrics) SetBreakerState(receiverID string, state gobreaker.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(receiverID).Set(breakerStateValue(state))
}

// ObserveAction counts a remote or control action
func (m *Metrics) ObserveAction(receiverID, actionType string, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.actionsTotal.WithLabelValues(receiverID, actionType, result).Inc()
}

// IncHistoryWrites counts one history insert
func (m *Metrics) IncHistoryWrites() {
	if m == nil {
		return
	}
	m.historyWrites.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
