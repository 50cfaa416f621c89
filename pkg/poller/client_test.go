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

package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/probemesh/pkg/models"
)

func TestClientRegister(t *testing.T) {
	var got models.RegistrationPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/poller/register", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":           true,
			"poller_id":    "p-123",
			"access_token": "tok-abc",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	resp, err := client.Register(context.Background(), &models.RegistrationPayload{
		Name:              "edge-1",
		Region:            "eu-west",
		RegistrationToken: "reg-secret",
	})
	require.NoError(t, err)

	assert.Equal(t, "p-123", resp.PollerID)
	assert.Equal(t, "tok-abc", resp.AccessToken)
	assert.Equal(t, "edge-1", got.Name)
	assert.Equal(t, "reg-secret", got.RegistrationToken)
}

func TestClientSendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":                 true,
			"assignment_version": 77,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.SetToken("tok-abc")

	resp, err := client.Heartbeat(context.Background(), &models.HeartbeatPayload{
		Status: "online",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), resp.AssignmentVersion)
}

func TestClientFetchAssignmentsSinceVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "42", r.URL.Query().Get("since_version"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":                 true,
			"assignment_version": 43,
			"assignments": []map[string]interface{}{
				{"monitor_id": 9, "interval": 30, "type": "http"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	resp, err := client.FetchAssignments(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(43), resp.AssignmentVersion)
	require.Len(t, resp.Assignments, 1)
	assert.Equal(t, int64(9), resp.Assignments[0].MonitorID)
}

func TestClientSubmitResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Results []models.PollerResult `json:"results"`
		}

		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Results, 2)
		assert.Equal(t, int64(5), body.Results[0].MonitorID)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":       true,
			"accepted": 1,
			"errors": []map[string]interface{}{
				{"monitor_id": 6, "client_id": 2, "msg": "unknown monitor"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	resp, err := client.SubmitResults(context.Background(), []models.PollerResult{
		{MonitorID: 5, ClientID: 1, Status: models.StatusUp},
		{MonitorID: 6, ClientID: 2, Status: models.StatusDown},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Accepted)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, int64(2), resp.Errors[0].ClientID)
}

func TestClientSurfacesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":  false,
			"msg": "invalid registration token",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	_, err := client.Register(context.Background(), &models.RegistrationPayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server returned 403")
	assert.Contains(t, err.Error(), "invalid registration token")
}
