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

const pollerColumns = `id, name, region, datacenter, capabilities, version, status, queue_depth,
	weight, assignment_version, last_heartbeat_at, last_assignment_pull_at, last_results_at,
	created_at, updated_at`

// CreatePoller inserts a freshly registered poller.
func (db *DB) CreatePoller(ctx context.Context, poller *models.Poller) error {
	caps, err := json.Marshal(poller.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	_, err = db.pool.Exec(ctx, `
		INSERT INTO pollers (`+pollerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		poller.ID, poller.Name, poller.Region, poller.Datacenter, caps, poller.Version,
		poller.Status, poller.QueueDepth, poller.Weight, poller.AssignmentVersion,
		poller.LastHeartbeatAt, poller.LastAssignmentPullAt, poller.LastResultsAt,
		poller.CreatedAt, poller.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	return nil
}

// GetPoller retrieves a poller by id.
func (db *DB) GetPoller(ctx context.Context, id string) (*models.Poller, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+pollerColumns+` FROM pollers WHERE id = $1`, id)

	poller, err := scanPoller(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPollerNotFound
	}

	return poller, err
}

// ListPollers retrieves every registered poller.
func (db *DB) ListPollers(ctx context.Context) ([]*models.Poller, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+pollerColumns+` FROM pollers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pollers: %w", err)
	}
	defer rows.Close()

	var pollers []*models.Poller

	for rows.Next() {
		poller, err := scanPoller(rows)
		if err != nil {
			return nil, err
		}

		pollers = append(pollers, poller)
	}

	return pollers, rows.Err()
}

// UpdatePoller persists the full mutable state of a poller row.
func (db *DB) UpdatePoller(ctx context.Context, poller *models.Poller) error {
	caps, err := json.Marshal(poller.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	tag, err := db.pool.Exec(ctx, `
		UPDATE pollers SET
			name = $2, region = $3, datacenter = $4, capabilities = $5, version = $6,
			status = $7, queue_depth = $8, weight = $9, assignment_version = $10,
			last_heartbeat_at = $11, last_assignment_pull_at = $12, last_results_at = $13,
			updated_at = $14
		WHERE id = $1`,
		poller.ID, poller.Name, poller.Region, poller.Datacenter, caps, poller.Version,
		poller.Status, poller.QueueDepth, poller.Weight, poller.AssignmentVersion,
		poller.LastHeartbeatAt, poller.LastAssignmentPullAt, poller.LastResultsAt,
		poller.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update poller: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrPollerNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoller(row rowScanner) (*models.Poller, error) {
	var (
		poller models.Poller
		caps   []byte
	)

	err := row.Scan(&poller.ID, &poller.Name, &poller.Region, &poller.Datacenter, &caps,
		&poller.Version, &poller.Status, &poller.QueueDepth, &poller.Weight,
		&poller.AssignmentVersion, &poller.LastHeartbeatAt, &poller.LastAssignmentPullAt,
		&poller.LastResultsAt, &poller.CreatedAt, &poller.UpdatedAt)
	if err != nil {
		return nil, err
	}

	// A poller row with undecodable capabilities degrades to "no
	// capabilities" rather than failing the read.
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &poller.Capabilities); err != nil {
			poller.Capabilities = map[string]bool{}
		}
	} else {
		poller.Capabilities = map[string]bool{}
	}

	return &poller, nil
}
