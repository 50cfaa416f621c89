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
	"time"

	"github.com/carverauto/probemesh/pkg/models"
)

// Store is the narrow read/write contract the coordinator consumes. The
// concrete *DB satisfies it; tests substitute in-memory fakes.
type Store interface {
	// Pollers.
	CreatePoller(ctx context.Context, poller *models.Poller) error
	GetPoller(ctx context.Context, id string) (*models.Poller, error)
	ListPollers(ctx context.Context) ([]*models.Poller, error)
	UpdatePoller(ctx context.Context, poller *models.Poller) error

	// Tokens.
	CreatePollerToken(ctx context.Context, token *models.PollerToken) error
	GetActiveTokenByHash(ctx context.Context, hashedToken string) (*models.PollerToken, error)
	TouchTokenUsed(ctx context.Context, tokenID string, usedAt time.Time) error
	DeactivatePollerTokens(ctx context.Context, pollerID string) error

	// Monitors.
	GetMonitor(ctx context.Context, id int64) (*models.Monitor, error)
	ListRemoteMonitors(ctx context.Context) ([]*models.Monitor, error)

	// Heartbeats.
	GetPreviousHeartbeat(ctx context.Context, monitorID int64) (*models.Heartbeat, error)
	InsertHeartbeat(ctx context.Context, hb *models.Heartbeat) error

	// Settings.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string, expiresAt *time.Time) error
}

var _ Store = (*DB)(nil)
