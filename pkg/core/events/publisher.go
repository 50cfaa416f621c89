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

// Package events publishes coordinator domain events over NATS. The
// coordinator runs fine without a broker: a nil publisher drops events.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/probemesh/pkg/logger"
	"github.com/carverauto/probemesh/pkg/models"
)

// SubjectMonitorHeartbeat carries reconciled heartbeats.
const SubjectMonitorHeartbeat = "events.monitor.heartbeat"

// Publisher emits heartbeat events to NATS.
type Publisher struct {
	conn   *nats.Conn
	logger logger.Logger
}

// Connect dials the NATS server and returns a publisher. An empty URL
// returns a nil publisher, which is safe to use and publishes nothing.
func Connect(url, name string, log logger.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{conn: conn, logger: log}, nil
}

// PublishHeartbeat sends one heartbeat event. Failures are logged, never
// propagated; live event delivery is best-effort.
func (p *Publisher) PublishHeartbeat(_ context.Context, hb *models.Heartbeat) error {
	if p == nil || p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(hb)
	if err != nil {
		p.logger.Warn().Err(err).Int64("monitor_id", hb.MonitorID).Msg("Failed to encode heartbeat event")
		return nil
	}

	if err := p.conn.Publish(SubjectMonitorHeartbeat, payload); err != nil {
		p.logger.Warn().Err(err).Int64("monitor_id", hb.MonitorID).Msg("Failed to publish heartbeat event")
	}

	return nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}

	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to drain NATS connection")
	}
}
