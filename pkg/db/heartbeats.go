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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/probemesh/pkg/models"
)

// GetPreviousHeartbeat returns the most recent heartbeat for a monitor by
// observation time, or nil when the monitor has none yet.
func (db *DB) GetPreviousHeartbeat(ctx context.Context, monitorID int64) (*models.Heartbeat, error) {
	row := db.pool.QueryRow(ctx, `
		SELECT id, monitor_id, time, end_time, status, ping, msg, retries, down_count, duration, important
		FROM heartbeats
		WHERE monitor_id = $1
		ORDER BY time DESC
		LIMIT 1`, monitorID)

	var (
		hb      models.Heartbeat
		status  int16
		endTime *time.Time
	)

	err := row.Scan(&hb.ID, &hb.MonitorID, &hb.Time, &endTime, &status, &hb.Ping,
		&hb.Msg, &hb.Retries, &hb.DownCount, &hb.DurationSeconds, &hb.Important)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get previous heartbeat: %w", err)
	}

	hb.Status = models.HeartbeatStatus(status)
	if endTime != nil {
		hb.EndTime = *endTime
	}

	return &hb, nil
}

// InsertHeartbeat persists a reconciled heartbeat and fills in its row id.
func (db *DB) InsertHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	var endTime *time.Time
	if !hb.EndTime.IsZero() {
		endTime = &hb.EndTime
	}

	err := db.pool.QueryRow(ctx, `
		INSERT INTO heartbeats (monitor_id, time, end_time, status, ping, msg, retries, down_count, duration, important)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		hb.MonitorID, hb.Time, endTime, int16(hb.Status), hb.Ping, hb.Msg,
		hb.Retries, hb.DownCount, hb.DurationSeconds, hb.Important).Scan(&hb.ID)
	if err != nil {
		return fmt.Errorf("failed to insert heartbeat: %w", err)
	}

	return nil
}
