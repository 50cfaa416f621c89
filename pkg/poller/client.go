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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/probemesh/pkg/models"
)

const clientTimeout = 30 * time.Second

// Client talks to the coordinator's poller API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient builds a client for the coordinator at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// SetToken updates the bearer token used on authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.token
}

// RegisterResponse mirrors the coordinator's registration reply.
type RegisterResponse struct {
	OK          bool   `json:"ok"`
	PollerID    string `json:"poller_id"`
	AccessToken string `json:"access_token"`
}

// HeartbeatResponse mirrors the heartbeat reply.
type HeartbeatResponse struct {
	OK                bool  `json:"ok"`
	AssignmentVersion int64 `json:"assignment_version"`
}

// AssignmentsResponse mirrors the assignment pull reply.
type AssignmentsResponse struct {
	OK                bool                `json:"ok"`
	AssignmentVersion int64               `json:"assignment_version"`
	Assignments       []models.Assignment `json:"assignments"`
}

// ResultsResponse mirrors the batch upload reply.
type ResultsResponse struct {
	OK       bool                 `json:"ok"`
	Accepted int                  `json:"accepted"`
	Errors   []models.ResultError `json:"errors"`
}

// Register performs initial registration with the registration secret.
func (c *Client) Register(ctx context.Context, payload *models.RegistrationPayload) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.post(ctx, "/api/poller/register", payload, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Heartbeat reports the agent's current state.
func (c *Client) Heartbeat(ctx context.Context, payload *models.HeartbeatPayload) (*HeartbeatResponse, error) {
	var resp HeartbeatResponse
	if err := c.post(ctx, "/api/poller/heartbeat", payload, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// FetchAssignments pulls assignments conditioned on the last-known version.
func (c *Client) FetchAssignments(ctx context.Context, sinceVersion int64) (*AssignmentsResponse, error) {
	path := "/api/poller/assignments?since_version=" + strconv.FormatInt(sinceVersion, 10)

	var resp AssignmentsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// SubmitResults uploads one batch of queued results.
func (c *Client) SubmitResults(ctx context.Context, results []models.PollerResult) (*ResultsResponse, error) {
	body := map[string]interface{}{"results": results}

	var resp ResultsResponse
	if err := c.post(ctx, "/api/poller/results", body, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, serverMessage(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func serverMessage(body []byte) string {
	var parsed struct {
		Msg string `json:"msg"`
	}

	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Msg != "" {
		return parsed.Msg
	}

	return strings.TrimSpace(string(body))
}
