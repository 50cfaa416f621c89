/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api provides the HTTP API server for the poller coordinator.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/probemesh/pkg/core"
	"github.com/carverauto/probemesh/pkg/logger"
)

const (
	// EnvEnablePollers gates the whole remote poller subsystem.
	EnvEnablePollers = "PROBEMESH_ENABLE_POLLERS"
	// EnvEnablePollersAlias is honored for compatibility.
	EnvEnablePollersAlias = "ENABLE_REMOTE_POLLERS"

	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Server exposes the coordinator's poller-facing HTTP/JSON API.
type Server struct {
	service  *core.Service
	router   *mux.Router
	hub      *StreamHub
	logger   logger.Logger
	addr     string
	adminKey string
	env      func(string) string

	httpServer *http.Server
}

// NewServer builds the API server and its routes.
func NewServer(service *core.Service, options ...func(*Server)) *Server {
	s := &Server{
		service: service,
		router:  mux.NewRouter(),
		logger:  logger.NewTestLogger(),
		addr:    ":8090",
		env:     os.Getenv,
	}

	for _, o := range options {
		o(s)
	}

	s.hub = NewStreamHub(s.logger)
	s.setupRoutes()

	return s
}

// WithListenAddr sets the listen address.
func WithListenAddr(addr string) func(*Server) {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = log
	}
}

// WithAdminKey enables the administrative routes, guarded by a shared key.
func WithAdminKey(key string) func(*Server) {
	return func(s *Server) {
		s.adminKey = key
	}
}

// Hub returns the websocket broadcast hub. It satisfies
// core.HeartbeatPublisher so the reconciler can feed it directly.
func (s *Server) Hub() *StreamHub {
	return s.hub
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	poller := s.router.PathPrefix("/api/poller").Subrouter()
	poller.Use(s.featureGateMiddleware)

	poller.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	poller.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	authed := poller.NewRoute().Subrouter()
	authed.Use(s.pollerAuthMiddleware)
	authed.HandleFunc("/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	authed.HandleFunc("/assignments", s.handleGetAssignments).Methods(http.MethodGet)
	authed.HandleFunc("/results", s.handleSubmitResults).Methods(http.MethodPost)

	if s.adminKey != "" {
		admin := s.router.PathPrefix("/api/admin").Subrouter()
		admin.Use(s.featureGateMiddleware, s.adminAuthMiddleware)
		admin.HandleFunc("/pollers", s.handleListPollers).Methods(http.MethodGet)
		admin.HandleFunc("/pollers/{id}", s.handleUpdatePoller).Methods(http.MethodPatch)
		admin.HandleFunc("/pollers/{id}/rotate-token", s.handleRotateToken).Methods(http.MethodPost)
		admin.HandleFunc("/pollers/{id}/tokens", s.handleRevokeTokens).Methods(http.MethodDelete)
		admin.HandleFunc("/registration-token", s.handleGenerateRegistrationToken).Methods(http.MethodPost)
	}
}

// Start begins serving. It satisfies lifecycle.Service.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Starting poller API server")

	errCh := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// pollersEnabled reports whether the remote poller feature flag is on.
func (s *Server) pollersEnabled() bool {
	for _, key := range []string{EnvEnablePollers, EnvEnablePollersAlias} {
		switch strings.ToLower(s.env(key)) {
		case "1", "true", "yes", "on":
			return true
		}
	}

	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]interface{}{"ok": false, "msg": msg})
}
