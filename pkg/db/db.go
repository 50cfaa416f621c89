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

// Package db implements the coordinator store on PostgreSQL via pgx.
package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/probemesh/pkg/logger"
)

const defaultPostgresPort = 5432

// Config describes the PostgreSQL connection for the coordinator store.
type Config struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Database        string `json:"database"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	SSLMode         string `json:"ssl_mode"`
	ApplicationName string `json:"application_name"`
	MaxConns        int32  `json:"max_conns"`
}

// DB wraps the pgx pool with the coordinator's read/write contracts.
type DB struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// New dials the configured cluster and returns a store handle.
func New(ctx context.Context, cfg *Config, log logger.Logger) (*DB, error) {
	if cfg.Port == 0 {
		cfg.Port = defaultPostgresPort
	}

	connURL := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}

	if cfg.Username != "" {
		if cfg.Password != "" {
			connURL.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			connURL.User = url.User(cfg.Username)
		}
	}

	query := connURL.Query()

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	query.Set("sslmode", sslMode)

	if cfg.ApplicationName != "" {
		query.Set("application_name", cfg.ApplicationName)
	}

	connURL.RawQuery = query.Encode()

	poolCfg, err := pgxpool.ParseConfig(connURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	poolCfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{pool: pool, logger: log}

	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return db, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS pollers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		region TEXT NOT NULL DEFAULT 'local',
		datacenter TEXT NOT NULL DEFAULT '',
		capabilities JSONB NOT NULL DEFAULT '{}',
		version TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'offline',
		queue_depth INTEGER NOT NULL DEFAULT 0,
		weight INTEGER NOT NULL DEFAULT 100,
		assignment_version BIGINT NOT NULL DEFAULT 0,
		last_heartbeat_at TIMESTAMPTZ,
		last_assignment_pull_at TIMESTAMPTZ,
		last_results_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS poller_tokens (
		id TEXT PRIMARY KEY,
		poller_id TEXT NOT NULL REFERENCES pollers(id) ON DELETE CASCADE,
		hashed_token TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ,
		last_used_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_poller_tokens_hash ON poller_tokens(hashed_token) WHERE active;

	CREATE TABLE IF NOT EXISTS monitors (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		type TEXT NOT NULL,
		interval_seconds INTEGER NOT NULL DEFAULT 60,
		maxretries INTEGER NOT NULL DEFAULT 0,
		resend_interval INTEGER NOT NULL DEFAULT 0,
		upside_down BOOLEAN NOT NULL DEFAULT FALSE,
		under_maintenance BOOLEAN NOT NULL DEFAULT FALSE,
		user_id BIGINT NOT NULL DEFAULT 0,
		poller_mode TEXT NOT NULL DEFAULT 'local',
		poller_id TEXT,
		poller_region TEXT NOT NULL DEFAULT '',
		poller_datacenter TEXT NOT NULL DEFAULT '',
		poller_capability TEXT NOT NULL DEFAULT '',
		config JSONB NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_monitors_remote ON monitors(poller_mode) WHERE active AND poller_mode != 'local';

	CREATE TABLE IF NOT EXISTS heartbeats (
		id BIGSERIAL PRIMARY KEY,
		monitor_id BIGINT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		status SMALLINT NOT NULL,
		ping DOUBLE PRECISION,
		msg TEXT NOT NULL DEFAULT '',
		retries INTEGER NOT NULL DEFAULT 0,
		down_count INTEGER NOT NULL DEFAULT 0,
		duration BIGINT NOT NULL DEFAULT 0,
		important BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_heartbeats_monitor_time ON heartbeats(monitor_id, time DESC);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at TIMESTAMPTZ
	);
	`

	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	return nil
}
