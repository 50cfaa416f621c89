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

import (
	"strings"
	"time"
)

// HeartbeatStatus is one observed health state for a monitor.
type HeartbeatStatus int

const (
	StatusDown        HeartbeatStatus = 0
	StatusUp          HeartbeatStatus = 1
	StatusPending     HeartbeatStatus = 2
	StatusMaintenance HeartbeatStatus = 3
)

func (s HeartbeatStatus) String() string {
	switch s {
	case StatusUp:
		return "up"
	case StatusDown:
		return "down"
	case StatusPending:
		return "pending"
	case StatusMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// Flip inverts UP and DOWN for upside-down monitors; other states pass
// through unchanged.
func (s HeartbeatStatus) Flip() HeartbeatStatus {
	switch s {
	case StatusUp:
		return StatusDown
	case StatusDown:
		return StatusUp
	default:
		return s
	}
}

// ParseHeartbeatStatus accepts both the numeric enum and the string form.
func ParseHeartbeatStatus(value string) (HeartbeatStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "up", "1":
		return StatusUp, true
	case "down", "0":
		return StatusDown, true
	case "pending", "2":
		return StatusPending, true
	case "maintenance", "3":
		return StatusMaintenance, true
	default:
		return StatusDown, false
	}
}

// Heartbeat is one timestamped health observation for a monitor, with the
// retry bookkeeping the reconciler state machine maintains.
type Heartbeat struct {
	ID              int64           `json:"id,omitempty"`
	MonitorID       int64           `json:"monitor_id"`
	Time            time.Time       `json:"time"`
	EndTime         time.Time       `json:"end_time"`
	Status          HeartbeatStatus `json:"status"`
	Ping            *float64        `json:"ping,omitempty"`
	Msg             string          `json:"msg"`
	Retries         int             `json:"retries"`
	DownCount       int             `json:"down_count"`
	DurationSeconds int64           `json:"duration"`
	Important       bool            `json:"important"`
}

// PollerResult is one check outcome uploaded by a poller. ClientID is the
// poller-local queue row id, echoed back on per-item errors so the poller
// can retry just the failed rows.
type PollerResult struct {
	MonitorID int64           `json:"monitor_id"`
	ClientID  int64           `json:"client_id,omitempty"`
	TS        int64           `json:"ts,omitempty"`
	Status    HeartbeatStatus `json:"status"`
	LatencyMs *int64          `json:"latency_ms,omitempty"`
	Msg       string          `json:"msg,omitempty"`
	Meta      string          `json:"meta,omitempty"`
}

// ResultError identifies one rejected result in a batch.
type ResultError struct {
	MonitorID int64  `json:"monitor_id"`
	ClientID  int64  `json:"client_id,omitempty"`
	Msg       string `json:"msg"`
}
