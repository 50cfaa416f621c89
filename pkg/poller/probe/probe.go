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

// Package probe executes monitor checks. A failing target is a DOWN result,
// never a Go error: the outcome is the monitoring signal itself.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/carverauto/probemesh/pkg/models"
)

// Kind is the closed set of supported probe types. Dispatch is a single
// exhaustive switch; unknown strings are rejected at parse time.
type Kind int

const (
	KindHTTP Kind = iota
	KindKeyword
	KindJSONQuery
	KindPing
	KindTCP
	KindDNS
	KindSNMP
	KindPostgres
)

// ParseKind maps a monitor type string to its Kind.
func ParseKind(monitorType string) (Kind, error) {
	switch monitorType {
	case "http":
		return KindHTTP, nil
	case "keyword":
		return KindKeyword, nil
	case "json-query":
		return KindJSONQuery, nil
	case "ping":
		return KindPing, nil
	case "port", "tcp":
		return KindTCP, nil
	case "dns":
		return KindDNS, nil
	case "snmp":
		return KindSNMP, nil
	case "postgres":
		return KindPostgres, nil
	default:
		return 0, fmt.Errorf("unsupported monitor type: %s", monitorType)
	}
}

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindKeyword:
		return "keyword"
	case KindJSONQuery:
		return "json-query"
	case KindPing:
		return "ping"
	case KindTCP:
		return "tcp"
	case KindDNS:
		return "dns"
	case KindSNMP:
		return "snmp"
	case KindPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// Result is one check outcome.
type Result struct {
	Status    models.HeartbeatStatus
	Msg       string
	LatencyMs *int64
}

func up(msg string, latency time.Duration) Result {
	ms := latency.Milliseconds()
	return Result{Status: models.StatusUp, Msg: msg, LatencyMs: &ms}
}

func down(msg string) Result {
	return Result{Status: models.StatusDown, Msg: msg}
}

const defaultTimeout = 10 * time.Second

func timeoutFor(config *models.ProbeConfig) time.Duration {
	if config.TimeoutSeconds > 0 {
		return time.Duration(config.TimeoutSeconds) * time.Second
	}

	return defaultTimeout
}

// Execute runs one check of the given kind.
func Execute(ctx context.Context, kind Kind, config *models.ProbeConfig) Result {
	switch kind {
	case KindHTTP:
		return probeHTTP(ctx, config, nil)
	case KindKeyword:
		return probeKeyword(ctx, config)
	case KindJSONQuery:
		return probeJSONQuery(ctx, config)
	case KindPing:
		return probePing(ctx, config)
	case KindTCP:
		return probeTCP(ctx, config)
	case KindDNS:
		return probeDNS(ctx, config)
	case KindSNMP:
		return probeSNMP(ctx, config)
	case KindPostgres:
		return probePostgres(ctx, config)
	default:
		return down(fmt.Sprintf("unsupported monitor type: %s", kind))
	}
}
