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
)

// GetSetting reads one key from the settings table. A row past its
// expires_at is treated as absent.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM settings WHERE key = $1`, key)

	var (
		value     string
		expiresAt *time.Time
	)

	err := row.Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSettingNotFound
	}

	if err != nil {
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}

	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return "", ErrSettingNotFound
	}

	return value, nil
}

// SetSetting upserts one key. A nil expiresAt means the value never expires.
func (db *DB) SetSetting(ctx context.Context, key, value string, expiresAt *time.Time) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO settings (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}

	return nil
}
