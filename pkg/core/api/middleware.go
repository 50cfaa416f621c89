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
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/carverauto/probemesh/pkg/core"
	"github.com/carverauto/probemesh/pkg/models"
)

type contextKey string

const pollerContextKey contextKey = "poller"

const (
	headerPollerToken       = "x-poller-token"
	headerRegistrationToken = "x-poller-registration-token"
	headerAdminKey          = "x-api-key"
)

// featureGateMiddleware hides the whole subsystem when the feature flag is
// off. The response deliberately looks like an unknown route.
func (s *Server) featureGateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.pollersEnabled() {
			s.writeJSON(w, http.StatusNotFound, map[string]interface{}{"ok": false})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// pollerAuthMiddleware resolves the presented token to a poller and stores
// it on the request context.
func (s *Server) pollerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		poller, err := s.service.Registry.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			if errors.Is(err, core.ErrUnauthorized) || errors.Is(err, core.ErrTokenExpired) {
				s.writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			s.logger.Error().Err(err).Msg("Poller authentication failed")
			s.writeError(w, http.StatusInternalServerError, "internal error")

			return
		}

		ctx := context.WithValue(r.Context(), pollerContextKey, poller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(headerAdminKey)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.adminKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// pollerFromContext returns the authenticated poller, nil if absent.
func pollerFromContext(ctx context.Context) *models.Poller {
	poller, _ := ctx.Value(pollerContextKey).(*models.Poller)
	return poller
}

// bearerToken extracts the poller token from Authorization: Bearer or the
// x-poller-token header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}

	return r.Header.Get(headerPollerToken)
}

// clientIP returns the remote address without the port, used as the
// registration rate limit key.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
