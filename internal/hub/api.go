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
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"dtvctl/internal/directv"
	"dtvctl/internal/logger"
)

const (
	apiPrefix       = "/api/v1"
	nonceHeader     = "X-Nonce"
	maxRequestBody  = 64 << 10
	shutdownTimeout = 5 * time.Second

	// LoginTokenExpiry is the lifetime of tokens issued by POST /login
	LoginTokenExpiry = 24 * time.Hour
)

// APIResponse is the envelope of every API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// TuneRequest is the body of POST /receivers/{id}/tune
type TuneRequest struct {
	Channel string `json:"channel"`
	Client  string `json:"client"`
}

// RemoteRequest is the body of POST /receivers/{id}/remote
type RemoteRequest struct {
	Key    string `json:"key"`
	Client string `json:"client"`
}

// LoginRequest is the body of POST /login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries a freshly issued bearer token
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// APIServer provides the hub REST API
type APIServer struct {
	hubID     string
	manager   *DeviceManager
	poller    *Poller
	history   *History
	metrics   *Metrics
	tokens    *TokenService
	passwords *PasswordService
	config    APIConfig
	started   time.Time

	router *mux.Router
	server *http.Server
	logger zerolog.Logger
}

// NewAPIServer builds the router. poller, history and metrics may be nil.
func NewAPIServer(config APIConfig, hubID string, manager *DeviceManager, poller *Poller, history *History, metrics *Metrics) *APIServer {
	s := &APIServer{
		hubID:     hubID,
		manager:   manager,
		poller:    poller,
		history:   history,
		metrics:   metrics,
		tokens:    NewTokenService(config.JWTSecret, config.JWTIssuer),
		passwords: NewPasswordService(),
		config:    config,
		started:   time.Now(),
		logger:    logger.Component("api"),
	}

	router := mux.NewRouter()
	router.Use(s.observe)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix(apiPrefix).Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(s.tokens.RequireAuth(s.sendError))
	protected.HandleFunc("/receivers", s.handleReceivers).Methods(http.MethodGet)
	protected.HandleFunc("/receivers/{id}", s.handleReceiver).Methods(http.MethodGet)
	protected.HandleFunc("/receivers/{id}/status", s.handleStatus).Methods(http.MethodGet)
	protected.HandleFunc("/receivers/{id}/state", s.handleState).Methods(http.MethodGet)
	protected.HandleFunc("/receivers/{id}/tuned", s.handleTuned).Methods(http.MethodGet)
	protected.HandleFunc("/receivers/{id}/tune", s.handleTune).Methods(http.MethodPost)
	protected.HandleFunc("/receivers/{id}/remote", s.handleRemote).Methods(http.MethodPost)
	protected.HandleFunc("/receivers/{id}/action", s.handleAction).Methods(http.MethodPost)
	protected.HandleFunc("/receivers/{id}/history", s.handleHistory).Methods(http.MethodGet)

	s.router = router
	s.server = &http.Server{
		Addr:              config.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the router for embedding and tests
func (s *APIServer) Handler() http.Handler {
	return s.router
}

// Tokens returns the token service guarding the API
func (s *APIServer) Tokens() *TokenService {
	return s.tokens
}

// Start serves the API in the background
func (s *APIServer) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Bool("auth", s.tokens.Enabled()).
		Msg("Starting hub API server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop shuts the server down, waiting briefly for in-flight requests
func (s *APIServer) Stop() error {
	s.logger.Info().Msg("Stopping hub API server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// observe records request metrics keyed by route template
func (s *APIServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		s.metrics.ObserveRequest(route, recorder.status, time.Since(start))

		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, "Hub is healthy", map[string]interface{}{
		"status":         "healthy",
		"hub_id":         s.hubID,
		"receiver_count": s.manager.Count(),
		"uptime":         time.Since(s.started).Round(time.Second).String(),
		"version":        directv.Version,
		"nonce_cache":    s.manager.NonceStats(),
	})
}

func (s *APIServer) handleReceivers(w http.ResponseWriter, r *http.Request) {
	receivers := s.manager.Snapshot()
	s.sendSuccess(w, "Receivers retrieved successfully", map[string]interface{}{
		"receivers": receivers,
		"count":     len(receivers),
	})
}

// handleReceiver returns the cached summary; refresh=true forces a device update first
func (s *APIServer) handleReceiver(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if _, err := s.manager.Update(r.Context(), id, true); err != nil {
			s.sendReceiverError(w, "Failed to update receiver", err)
			return
		}
	}

	summary, err := s.manager.Summary(id)
	if err != nil {
		s.sendReceiverError(w, "Failed to get receiver", err)
		return
	}

	data := map[string]interface{}{"receiver": summary}
	if s.poller != nil {
		data["states"] = s.poller.Latest(id)
	}
	s.sendSuccess(w, "Receiver retrieved successfully", data)
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	client := clientParam(r)

	status, err := s.manager.Status(r.Context(), id, client)
	if err != nil {
		s.sendReceiverError(w, "Failed to get status", err)
		return
	}

	s.sendSuccess(w, "Status retrieved successfully", map[string]interface{}{
		"client": client,
		"status": status,
	})
}

func (s *APIServer) handleState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	state, err := s.manager.State(r.Context(), id, clientParam(r))
	if err != nil {
		s.sendReceiverError(w, "Failed to get state", err)
		return
	}

	s.sendSuccess(w, "State retrieved successfully", state)
}

func (s *APIServer) handleTuned(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	program, err := s.manager.Tuned(r.Context(), id, clientParam(r))
	if err != nil {
		s.sendReceiverError(w, "Failed to get tuned program", err)
		return
	}

	s.sendSuccess(w, "Tuned program retrieved successfully", program)
}

func (s *APIServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.tokens.Enabled() {
		s.sendError(w, http.StatusNotFound, "Authentication is disabled", nil)
		return
	}

	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid JSON format", err)
		return
	}

	user, ok := s.config.User(req.Username)
	if !ok {
		s.sendError(w, http.StatusUnauthorized, "Invalid username or password", nil)
		return
	}

	valid, err := s.passwords.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to verify password", err)
		return
	}
	if !valid {
		s.sendError(w, http.StatusUnauthorized, "Invalid username or password", nil)
		return
	}

	expiresAt := time.Now().Add(LoginTokenExpiry)
	token, err := s.tokens.IssueToken(user.Username, LoginTokenExpiry)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	s.logger.Info().Str("username", user.Username).Msg("API user logged in")
	s.sendSuccess(w, "Login successful", LoginResponse{Token: token, ExpiresAt: expiresAt.UTC()})
}

func (s *APIServer) handleTune(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req TuneRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid JSON format", err)
		return
	}
	if req.Channel == "" {
		s.sendError(w, http.StatusBadRequest, "channel is required", nil)
		return
	}

	if err := s.manager.Tune(r.Context(), id, req.Channel, req.Client); err != nil {
		s.sendReceiverError(w, "Failed to tune channel", err)
		return
	}

	s.sendSuccess(w, "Channel tuned successfully", req)
}

func (s *APIServer) handleRemote(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req RemoteRequest
	if err := decodeBody(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid JSON format", err)
		return
	}
	if _, err := directv.ParseRemoteKey(req.Key); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid remote key", err)
		return
	}

	if err := s.manager.Remote(r.Context(), id, req.Key, req.Client); err != nil {
		s.sendReceiverError(w, "Failed to send remote key", err)
		return
	}

	s.sendSuccess(w, "Remote key sent successfully", req)
}

// handleAction runs a JSON action; the nonce header makes retries idempotent
func (s *APIServer) handleAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	response, err := s.manager.ProcessAction(r.Context(), id, r.Header.Get(nonceHeader), body)
	if err != nil {
		s.sendReceiverError(w, "Failed to process action", err)
		return
	}

	status := http.StatusOK
	if !response.Success {
		status = http.StatusUnprocessableEntity
	}
	s.sendJSON(w, status, APIResponse{
		Success: response.Success,
		Message: "Action processed",
		Data:    response.Data,
		Error:   response.Error,
	})
}

func (s *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.manager.ReceiverConfig(id); err != nil {
		s.sendReceiverError(w, "Failed to get history", err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.sendError(w, http.StatusBadRequest, "limit must be a non-negative integer", err)
			return
		}
		limit = parsed
	}

	entries := []HistoryEntry{}
	if s.history != nil {
		var err error
		entries, err = s.history.List(r.Context(), id, r.URL.Query().Get("client"), limit)
		if err != nil {
			s.sendError(w, http.StatusInternalServerError, "Failed to read history", err)
			return
		}
	}

	s.sendSuccess(w, "History retrieved successfully", map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func clientParam(r *http.Request) string {
	if client := r.URL.Query().Get("client"); client != "" {
		return client
	}
	return directv.HostClientAddr
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
}

// statusFor maps receiver and hub errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrReceiverNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidNonce):
		return http.StatusBadRequest
	case errors.Is(err, directv.ErrAccessRestricted):
		return http.StatusForbidden
	case errors.Is(err, directv.ErrConnection), errors.Is(err, directv.ErrDirecTV):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *APIServer) sendReceiverError(w http.ResponseWriter, message string, err error) {
	s.sendError(w, statusFor(err), message, err)
}

func (s *APIServer) sendSuccess(w http.ResponseWriter, message string, data interface{}) {
	s.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func (s *APIServer) sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	response := APIResponse{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
		s.logger.Error().Err(err).Str("message", message).Msg("API error")
	} else {
		s.logger.Warn().Str("message", message).Msg("API client error")
	}

	s.sendJSON(w, statusCode, response)
}

func (s *APIServer) sendJSON(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode API response")
	}
}
