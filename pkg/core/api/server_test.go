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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/probemesh/pkg/core"
	"github.com/carverauto/probemesh/pkg/db"
	"github.com/carverauto/probemesh/pkg/logger"
	"github.com/carverauto/probemesh/pkg/models"
)

func newTestServer(t *testing.T, store *db.MemStore, options ...func(*Server)) *Server {
	t.Helper()
	t.Setenv(EnvEnablePollers, "true")
	t.Setenv(core.EnvRegistrationToken, "reg-secret")

	log := logger.NewTestLogger()
	registry := core.NewRegistry(store, nil, log)
	reconciler := core.NewReconciler(store, nil, nil, nil, nil, log)
	service := core.NewService(store, registry, reconciler, log)

	return NewServer(service, append([]func(*Server){WithLogger(log)}, options...)...)
}

func doJSON(t *testing.T, server *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:54321"

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	return rec
}

func registerPoller(t *testing.T, server *Server) registerResponse {
	t.Helper()

	rec := doJSON(t, server, http.MethodPost, "/api/poller/register", "", models.RegistrationPayload{
		Name:              "edge-1",
		Region:            "us-east",
		RegistrationToken: "reg-secret",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp registerResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.OK)

	return resp
}

func TestFeatureGateOffHidesRoutes(t *testing.T) {
	server := newTestServer(t, db.NewMemStore())
	t.Setenv(EnvEnablePollers, "")
	t.Setenv(EnvEnablePollersAlias, "")

	rec := doJSON(t, server, http.MethodPost, "/api/poller/register", "", models.RegistrationPayload{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, false, resp["ok"])
}

func TestFeatureGateAlias(t *testing.T) {
	server := newTestServer(t, db.NewMemStore())
	t.Setenv(EnvEnablePollers, "")
	t.Setenv(EnvEnablePollersAlias, "1")

	registerPoller(t, server)
}

func TestRegisterEndpoint(t *testing.T) {
	server := newTestServer(t, db.NewMemStore())

	resp := registerPoller(t, server)
	assert.NotEmpty(t, resp.PollerID)
	assert.Len(t, resp.AccessToken, 64)
}

func TestRegisterWrongTokenForbidden(t *testing.T) {
	server := newTestServer(t, db.NewMemStore())

	rec := doJSON(t, server, http.MethodPost, "/api/poller/register", "", models.RegistrationPayload{
		RegistrationToken: "wrong",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterDisabledWithoutSecret(t *testing.T) {
	server := newTestServer(t, db.NewMemStore())
	t.Setenv(core.EnvRegistrationToken, "")

	rec := doJSON(t, server, http.MethodPost, "/api/poller/register", "", models.RegistrationPayload{
		RegistrationToken: "anything",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegistrationTokenHeaderWins(t *testing.T) {
	server := newTestServer(t, db.NewMemStore())

	req := httptest.NewRequest(http.MethodPost, "/api/poller/register",
		bytes.NewBufferString(`{"name":"edge-1","registration_token":"wrong"}`))
	req.RemoteAddr = "10.0.0.1:54321"
	req.Header.Set(headerRegistrationToken, "reg-secret")

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHeartbeatRequiresAuth(t *testing.T) {
	server := newTestServer(t, db.NewMemStore())

	rec := doJSON(t, server, http.MethodPost, "/api/poller/heartbeat", "", models.HeartbeatPayload{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/poller/heartbeat", "bogus", models.HeartbeatPayload{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHeartbeatReturnsAssignmentVersion(t *testing.T) {
	store := db.NewMemStore()
	server := newTestServer(t, store)
	creds := registerPoller(t, server)

	rec := doJSON(t, server, http.MethodPost, "/api/poller/heartbeat", creds.AccessToken,
		models.HeartbeatPayload{Status: "online", QueueDepth: 3})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp heartbeatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.OK)
	assert.Positive(t, resp.AssignmentVersion)
}

func TestAssignmentsPull(t *testing.T) {
	store := db.NewMemStore()
	server := newTestServer(t, store)
	creds := registerPoller(t, server)

	// Poller must be online to receive weighted work.
	rec := doJSON(t, server, http.MethodPost, "/api/poller/heartbeat", creds.AccessToken,
		models.HeartbeatPayload{Status: "online"})
	require.Equal(t, http.StatusOK, rec.Code)

	store.PutMonitor(&models.Monitor{
		ID:              1,
		Type:            "http",
		Active:          true,
		IntervalSeconds: 60,
		PollerMode:      models.PollerModeWeighted,
	})

	rec = doJSON(t, server, http.MethodGet, "/api/poller/assignments", creds.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp assignmentsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Assignments, 1)
	assert.Equal(t, int64(1), resp.Assignments[0].MonitorID)

	// Conditional pull with the same version elides the list.
	path := "/api/poller/assignments?since_version=" + strconv.FormatInt(resp.AssignmentVersion, 10)
	rec = doJSON(t, server, http.MethodGet, path, creds.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var second assignmentsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&second))
	assert.Equal(t, resp.AssignmentVersion, second.AssignmentVersion)
	assert.Empty(t, second.Assignments)
	assert.NotNil(t, second.Assignments)
}

func TestSubmitResultsPartial(t *testing.T) {
	store := db.NewMemStore()
	server := newTestServer(t, store)
	creds := registerPoller(t, server)

	store.PutMonitor(&models.Monitor{
		ID:         1,
		Type:       "http",
		Active:     true,
		PollerMode: models.PollerModeWeighted,
	})

	rec := doJSON(t, server, http.MethodPost, "/api/poller/results", creds.AccessToken, resultsRequest{
		Results: []models.PollerResult{
			{MonitorID: 1, Status: models.StatusUp, ClientID: 7},
			{MonitorID: 404, Status: models.StatusUp, ClientID: 8},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp resultsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 1, resp.Accepted)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, int64(404), resp.Errors[0].MonitorID)
	assert.Equal(t, int64(8), resp.Errors[0].ClientID)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	store := db.NewMemStore()
	server := newTestServer(t, store, WithAdminKey("admin-key"))

	rec := doJSON(t, server, http.MethodGet, "/api/admin/pollers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/pollers", nil)
	req.Header.Set(headerAdminKey, "admin-key")
	ok := httptest.NewRecorder()
	server.Router().ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)
}

func TestAdminRotateToken(t *testing.T) {
	store := db.NewMemStore()
	server := newTestServer(t, store, WithAdminKey("admin-key"))
	creds := registerPoller(t, server)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/pollers/"+creds.PollerID+"/rotate-token", nil)
	req.Header.Set(headerAdminKey, "admin-key")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	newToken, _ := resp["access_token"].(string)
	require.Len(t, newToken, 64)

	// Old token no longer authenticates, the new one does.
	old := doJSON(t, server, http.MethodPost, "/api/poller/heartbeat", creds.AccessToken, models.HeartbeatPayload{})
	assert.Equal(t, http.StatusUnauthorized, old.Code)

	fresh := doJSON(t, server, http.MethodPost, "/api/poller/heartbeat", newToken, models.HeartbeatPayload{})
	assert.Equal(t, http.StatusOK, fresh.Code)
}
