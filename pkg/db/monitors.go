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

package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/probemesh/pkg/models"
)

const monitorColumns = `id, name, active, type, interval_seconds, maxretries, resend_interval,
	upside_down, under_maintenance, user_id, poller_mode, poller_id, poller_region,
	poller_datacenter, poller_capability, config`

// GetMonitor fetches a single monitor by id.
func (db *DB) GetMonitor(ctx context.Context, monitorID int64) (*models.Monitor, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, monitorID)

	monitor, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMonitorNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get monitor: %w", err)
	}

	return monitor, nil
}

// ListRemoteMonitors returns every active monitor eligible for remote
// execution. Monitors in local mode never leave the coordinator.
func (db *DB) ListRemoteMonitors(ctx context.Context) ([]*models.Monitor, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+monitorColumns+` FROM monitors
		 WHERE active AND poller_mode != 'local'
		 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote monitors: %w", err)
	}
	defer rows.Close()

	var monitors []*models.Monitor

	for rows.Next() {
		monitor, scanErr := scanMonitor(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan monitor: %w", scanErr)
		}

		monitors = append(monitors, monitor)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate monitors: %w", err)
	}

	return monitors, nil
}

func scanMonitor(row rowScanner) (*models.Monitor, error) {
	var (
		monitor    models.Monitor
		pollerMode string
		rawConfig  []byte
	)

	err := row.Scan(&monitor.ID, &monitor.Name, &monitor.Active, &monitor.Type,
		&monitor.IntervalSeconds, &monitor.MaxRetries, &monitor.ResendInterval,
		&monitor.UpsideDown, &monitor.UnderMaintenance, &monitor.UserID,
		&pollerMode, &monitor.PollerID, &monitor.PollerRegion,
		&monitor.PollerDatacenter, &monitor.PollerCapability, &rawConfig)
	if err != nil {
		return nil, err
	}

	monitor.PollerMode = models.NormalizePollerMode(pollerMode)

	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &monitor.Config); err != nil {
			return nil, fmt.Errorf("failed to decode monitor config: %w", err)
		}
	}

	return &monitor, nil
}
