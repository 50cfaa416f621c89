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

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/probemesh/pkg/core"
	"github.com/carverauto/probemesh/pkg/models"
)

type registerResponse struct {
	OK          bool   `json:"ok"`
	PollerID    string `json:"poller_id"`
	AccessToken string `json:"access_token"`
}

type heartbeatResponse struct {
	OK                bool  `json:"ok"`
	AssignmentVersion int64 `json:"assignment_version"`
}

type assignmentsResponse struct {
	OK                bool                `json:"ok"`
	AssignmentVersion int64               `json:"assignment_version"`
	Assignments       []models.Assignment `json:"assignments"`
}

type resultsRequest struct {
	Results []models.PollerResult `json:"results"`
}

type resultsResponse struct {
	OK       bool                 `json:"ok"`
	Accepted int                  `json:"accepted"`
	Errors   []models.ResultError `json:"errors"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload models.RegistrationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Header takes precedence over the body field.
	if token := r.Header.Get(headerRegistrationToken); token != "" {
		payload.RegistrationToken = token
	}

	result, err := s.service.Registry.Register(r.Context(), clientIP(r), &payload)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrRegistrationDisabled):
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, core.ErrForbidden):
			s.writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, core.ErrRateLimited):
			s.writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			s.logger.Error().Err(err).Msg("Poller registration failed")
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}

		return
	}

	s.writeJSON(w, http.StatusOK, registerResponse{
		OK:          true,
		PollerID:    result.PollerID,
		AccessToken: result.AccessToken,
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	poller := pollerFromContext(r.Context())

	var payload models.HeartbeatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	version, err := s.service.HeartbeatVersion(r.Context(), poller, &payload)
	if err != nil {
		s.logger.Error().Err(err).Str("poller_id", poller.ID).Msg("Heartbeat failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	s.writeJSON(w, http.StatusOK, heartbeatResponse{OK: true, AssignmentVersion: version})
}

func (s *Server) handleGetAssignments(w http.ResponseWriter, r *http.Request) {
	poller := pollerFromContext(r.Context())

	var sinceVersion int64

	if raw := r.URL.Query().Get("since_version"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since_version")
			return
		}

		sinceVersion = parsed
	}

	version, assignments, err := s.service.PullAssignments(r.Context(), poller, sinceVersion)
	if err != nil {
		s.logger.Error().Err(err).Str("poller_id", poller.ID).Msg("Assignment pull failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	s.writeJSON(w, http.StatusOK, assignmentsResponse{
		OK:                true,
		AssignmentVersion: version,
		Assignments:       assignments,
	})
}

func (s *Server) handleSubmitResults(w http.ResponseWriter, r *http.Request) {
	poller := pollerFromContext(r.Context())

	var req resultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accepted, itemErrors := s.service.Reconciler.SubmitResults(r.Context(), poller, req.Results)
	if itemErrors == nil {
		itemErrors = []models.ResultError{}
	}

	s.writeJSON(w, http.StatusOK, resultsResponse{
		OK:       true,
		Accepted: accepted,
		Errors:   itemErrors,
	})
}

func (s *Server) handleListPollers(w http.ResponseWriter, r *http.Request) {
	pollers, err := s.service.Registry.ListPollers(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list pollers")
		s.writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "pollers": pollers})
}

type updatePollerRequest struct {
	Weight       *int            `json:"weight,omitempty"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
}

func (s *Server) handleUpdatePoller(w http.ResponseWriter, r *http.Request) {
	var req updatePollerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	poller, err := s.service.Registry.UpdatePoller(r.Context(), mux.Vars(r)["id"], req.Weight, req.Capabilities)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "poller": poller})
}

func (s *Server) handleRotateToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.service.Registry.RotateToken(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "access_token": token})
}

func (s *Server) handleRevokeTokens(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Registry.RevokeTokens(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

type generateTokenRequest struct {
	TTL models.Duration `json:"ttl,omitempty"`
}

func (s *Server) handleGenerateRegistrationToken(w http.ResponseWriter, r *http.Request) {
	var req generateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.service.Registry.GenerateRegistrationToken(r.Context(), time.Duration(req.TTL))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate registration token")
		s.writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "registration_token": token})
}
