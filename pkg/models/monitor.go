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

// PollerMode is the per-monitor ownership policy.
type PollerMode string

const (
	// PollerModeLocal monitors are checked by the coordinator itself and
	// never handed to remote pollers.
	PollerModeLocal PollerMode = "local"
	// PollerModePinned monitors run on exactly the configured poller.
	PollerModePinned PollerMode = "pinned"
	// PollerModeGrouped monitors are resolved within a region/datacenter
	// scoped candidate pool.
	PollerModeGrouped PollerMode = "grouped"
	// PollerModeWeighted is the default: resolved across all online,
	// capability-matching pollers.
	PollerModeWeighted PollerMode = "weighted"
)

// NormalizePollerMode maps an empty or unknown mode to local, and the empty
// "default" marker used by older rows to weighted.
func NormalizePollerMode(mode string) PollerMode {
	switch PollerMode(mode) {
	case PollerModePinned:
		return PollerModePinned
	case PollerModeGrouped:
		return PollerModeGrouped
	case PollerModeWeighted:
		return PollerModeWeighted
	case PollerModeLocal:
		return PollerModeLocal
	default:
		if mode == "" {
			return PollerModeLocal
		}

		return PollerModeWeighted
	}
}

// ProbeConfig carries the type-specific probe configuration for a monitor.
// Only the fields relevant to the monitor's type are populated.
type ProbeConfig struct {
	URL      string `json:"url,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Port     int    `json:"port,omitempty"`

	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	Keyword       string `json:"keyword,omitempty"`
	InvertKeyword bool   `json:"invert_keyword,omitempty"`

	JSONPath         string `json:"json_path,omitempty"`
	JSONPathOperator string `json:"json_path_operator,omitempty"`
	ExpectedValue    string `json:"expected_value,omitempty"`

	AcceptedStatusCodes []string `json:"accepted_statuscodes,omitempty"`
	IgnoreTLS           bool     `json:"ignore_tls,omitempty"`

	DNSResolveType   string `json:"dns_resolve_type,omitempty"`
	DNSResolveServer string `json:"dns_resolve_server,omitempty"`

	PacketSize            int `json:"packet_size,omitempty"`
	PingCount             int `json:"ping_count,omitempty"`
	PingPerRequestTimeout int `json:"ping_per_request_timeout,omitempty"`

	SNMPOid       string `json:"snmp_oid,omitempty"`
	SNMPVersion   string `json:"snmp_version,omitempty"`
	SNMPCommunity string `json:"snmp_community,omitempty"`

	DatabaseConnectionString string `json:"database_connection_string,omitempty"`
	DatabaseQuery            string `json:"database_query,omitempty"`

	// TimeoutSeconds bounds one probe attempt. Zero means the type default.
	TimeoutSeconds int `json:"timeout,omitempty"`

	MaxRetries     int  `json:"maxretries,omitempty"`
	ResendInterval int  `json:"resend_interval,omitempty"`
	UpsideDown     bool `json:"upside_down,omitempty"`
}

// Monitor is the external monitor entity, read-mostly from this subsystem's
// point of view. The probe configuration travels inside assignments.
type Monitor struct {
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	Active           bool        `json:"active"`
	Type             string      `json:"type"`
	IntervalSeconds  int         `json:"interval"`
	MaxRetries       int         `json:"maxretries"`
	ResendInterval   int         `json:"resend_interval"`
	UpsideDown       bool        `json:"upside_down"`
	UnderMaintenance bool        `json:"under_maintenance"`
	UserID           int64       `json:"user_id"`
	PollerMode       PollerMode  `json:"poller_mode"`
	PollerID         *string     `json:"poller_id,omitempty"`
	PollerRegion     string      `json:"poller_region,omitempty"`
	PollerDatacenter string      `json:"poller_datacenter,omitempty"`
	PollerCapability string      `json:"poller_capability,omitempty"`
	Config           ProbeConfig `json:"config"`
}

// Assignment is the derived unit of work handed to a poller: monitor,
// check type, probe config, and cadence. Never stored server-side.
type Assignment struct {
	MonitorID int64       `json:"monitor_id"`
	Interval  int         `json:"interval"`
	Type      string      `json:"type"`
	Config    ProbeConfig `json:"config"`
}
