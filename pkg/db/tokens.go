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

// CreatePollerToken inserts a new credential row. Only the hash is stored.
func (db *DB) CreatePollerToken(ctx context.Context, token *models.PollerToken) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO poller_tokens (id, poller_id, hashed_token, active, created_at, expires_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.PollerID, token.HashedToken, token.Active,
		token.CreatedAt, token.ExpiresAt, token.LastUsedAt)
	if err != nil {
		return fmt.Errorf("failed to create poller token: %w", err)
	}

	return nil
}

// GetActiveTokenByHash looks up the single active token matching a hash.
// Expiry is checked by the caller so the error can distinguish the cases.
func (db *DB) GetActiveTokenByHash(ctx context.Context, hashedToken string) (*models.PollerToken, error) {
	row := db.pool.QueryRow(ctx, `
		SELECT id, poller_id, hashed_token, active, created_at, expires_at, last_used_at
		FROM poller_tokens
		WHERE hashed_token = $1 AND active`, hashedToken)

	var token models.PollerToken

	err := row.Scan(&token.ID, &token.PollerID, &token.HashedToken, &token.Active,
		&token.CreatedAt, &token.ExpiresAt, &token.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to look up poller token: %w", err)
	}

	return &token, nil
}

// TouchTokenUsed records when a token last authenticated a request.
func (db *DB) TouchTokenUsed(ctx context.Context, tokenID string, usedAt time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE poller_tokens SET last_used_at = $2 WHERE id = $1`, tokenID, usedAt)
	if err != nil {
		return fmt.Errorf("failed to touch poller token: %w", err)
	}

	return nil
}

// DeactivatePollerTokens revokes every token for a poller.
func (db *DB) DeactivatePollerTokens(ctx context.Context, pollerID string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE poller_tokens SET active = FALSE WHERE poller_id = $1`, pollerID)
	if err != nil {
		return fmt.Errorf("failed to deactivate poller tokens: %w", err)
	}

	return nil
}
