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

package models

import "time"

// PollerState describes the health a poller last reported for itself.
type PollerState string

const (
	PollerOnline   PollerState = "online"
	PollerDegraded PollerState = "degraded"
	PollerOffline  PollerState = "offline"
)

// Valid reports whether s is one of the known poller states.
func (s PollerState) Valid() bool {
	switch s {
	case PollerOnline, PollerDegraded, PollerOffline:
		return true
	default:
		return false
	}
}

// DefaultPollerWeight is the selection weight assigned at registration.
const DefaultPollerWeight = 100

// Poller is the coordinator-owned identity record for one remote poller.
// Created at registration, mutated on every heartbeat/pull/result upload.
type Poller struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Region              string          `json:"region"`
	Datacenter          string          `json:"datacenter"`
	Capabilities        map[string]bool `json:"capabilities"`
	Version             string          `json:"version"`
	Status              PollerState     `json:"status"`
	QueueDepth          int             `json:"queue_depth"`
	Weight              int             `json:"weight"`
	AssignmentVersion   int64           `json:"assignment_version"`
	LastHeartbeatAt     *time.Time      `json:"last_heartbeat_at,omitempty"`
	LastAssignmentPullAt *time.Time     `json:"last_assignment_pull_at,omitempty"`
	LastResultsAt       *time.Time      `json:"last_results_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// HasCapability reports whether the poller declares the required capability
// as truthy. An empty requirement always matches.
func (p *Poller) HasCapability(required string) bool {
	if required == "" {
		return true
	}

	return p.Capabilities[required]
}

// PollerToken is one credential for a poller. Rotation keeps old tokens
// until explicitly revoked; only the SHA-256 hash is ever persisted.
type PollerToken struct {
	ID          string     `json:"id"`
	PollerID    string     `json:"poller_id"`
	HashedToken string     `json:"-"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// Expired reports whether the token carries an expiry in the past.
func (t *PollerToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// HeartbeatPayload is what a poller reports on each heartbeat.
type HeartbeatPayload struct {
	Status       string          `json:"status"`
	QueueDepth   int             `json:"queue_depth"`
	Version      string          `json:"version"`
	Region       string          `json:"region"`
	Datacenter   string          `json:"datacenter"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
}

// RegistrationPayload is the body of a poller registration request.
type RegistrationPayload struct {
	Name              string          `json:"name"`
	Region            string          `json:"region"`
	Datacenter        string          `json:"datacenter"`
	Capabilities      map[string]bool `json:"capabilities,omitempty"`
	Version           string          `json:"version"`
	RegistrationToken string          `json:"registration_token,omitempty"`
}
