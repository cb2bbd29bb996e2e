// Package api exposes the scoring service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"credit-scorer/internal/common"
	"credit-scorer/internal/metrics"
	"credit-scorer/internal/scoring"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Config holds the HTTP server settings.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the scoring API.
type Server struct {
	svc      *scoring.Service
	metrics  *metrics.Metrics
	validate *validator.Validate
	server   *http.Server
}

// ClientRequest is the body of every per-client endpoint.
type ClientRequest struct {
	ClientID *int64 `json:"client_id" validate:"required"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// NewServer creates the API server. m may be nil.
func NewServer(svc *scoring.Service, m *metrics.Metrics, cfg Config) *Server {
	s := &Server{
		svc:      svc,
		metrics:  m,
		validate: validator.New(),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, s.accessLogMiddleware)

	r.HandleFunc("/", s.handleWelcome).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/model/info", s.handleModelInfo).Methods(http.MethodGet)
	r.HandleFunc("/clients", s.handleClients).Methods(http.MethodGet)
	r.HandleFunc("/all_data", s.handleAllData).Methods(http.MethodGet)
	r.HandleFunc("/mean_class_1", s.handleCohortMean).Methods(http.MethodGet)

	r.HandleFunc("/predict", s.clientHandler(s.predict)).Methods(http.MethodPost)
	r.HandleFunc("/client_data", s.clientHandler(s.clientData)).Methods(http.MethodPost)
	r.HandleFunc("/explain", s.clientHandler(s.explain)).Methods(http.MethodPost)
	r.HandleFunc("/explain_full", s.clientHandler(s.explainFull)).Methods(http.MethodPost)
	r.HandleFunc("/compare_client_group_class_1", s.clientHandler(s.compare)).Methods(http.MethodPost)
	r.HandleFunc("/class_profile", s.clientHandler(s.classProfile)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

// Start serves until Shutdown is called. It returns nil after a graceful
// shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting scoring API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// clientHandler decodes and validates a ClientRequest before calling fn.
func (s *Server) clientHandler(fn func(id int64) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClientRequest
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if err := s.validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, "client_id is required")
			return
		}

		resp, err := fn(*req.ClientID)
		if err != nil {
			s.writeServiceError(w, r, *req.ClientID, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, id int64, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		if s.metrics != nil {
			s.metrics.NotFoundTotal.Inc()
		}
		writeError(w, http.StatusNotFound, "Client ID not found")
	case errors.Is(err, common.ErrOutcomeUnavailable):
		writeError(w, http.StatusUnprocessableEntity, "Outcome column not available in the feature table")
	default:
		log.Error().Err(err).Int64("client_id", id).Str("request_id", RequestID(r.Context())).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
