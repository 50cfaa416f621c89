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

// Package queue is the poller's local durable store: the result queue that
// survives coordinator outages, the single-row assignment snapshot, and a
// small key-value state table for issued credentials.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/carverauto/probemesh/pkg/models"
)

// ErrStateNotFound is returned for an absent state key.
var ErrStateNotFound = errors.New("state key not found")

// Row is one queued check result awaiting delivery.
type Row struct {
	ID          int64
	MonitorID   int64
	TS          int64 // unix milliseconds
	Status      models.HeartbeatStatus
	LatencyMs   *int64
	Msg         string
	Meta        string
	Attempts    int
	NextRetryAt *int64 // unix milliseconds
}

// Snapshot is the persisted assignment set.
type Snapshot struct {
	AssignmentVersion int64               `json:"assignment_version"`
	Assignments       []models.Assignment `json:"assignments"`
}

// Store wraps the embedded database. All methods are safe for use from the
// agent's loops; sqlite serializes concurrent writers.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the store at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue store: %w", err)
	}

	// WAL keeps readers from blocking the write path between loops.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS poller_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		monitor_id INTEGER NOT NULL,
		ts INTEGER NOT NULL,
		status INTEGER NOT NULL,
		latency_ms INTEGER,
		msg TEXT NOT NULL DEFAULT '',
		meta TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_poller_queue_ts ON poller_queue(ts);

	CREATE TABLE IF NOT EXISTS poller_assignments (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		assignment_version INTEGER NOT NULL,
		snapshot_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS poller_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply queue schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue appends one result row with no retry bookkeeping.
func (s *Store) Enqueue(ctx context.Context, row *Row) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO poller_queue (monitor_id, ts, status, latency_ms, msg, meta, attempts, next_retry_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL)`,
		row.MonitorID, row.TS, int(row.Status), row.LatencyMs, row.Msg, row.Meta)
	if err != nil {
		return fmt.Errorf("failed to enqueue result: %w", err)
	}

	row.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read enqueued row id: %w", err)
	}

	return nil
}

// DequeueBatch returns up to limit rows that are due now, oldest first.
// Rows under retry backoff are excluded until their next_retry_at passes.
func (s *Store) DequeueBatch(ctx context.Context, limit int) ([]*Row, error) {
	nowMs := s.now().UnixMilli()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, monitor_id, ts, status, latency_ms, msg, meta, attempts, next_retry_at
		FROM poller_queue
		WHERE next_retry_at IS NULL OR next_retry_at <= ?
		ORDER BY ts ASC
		LIMIT ?`, nowMs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue batch: %w", err)
	}
	defer rows.Close()

	var batch []*Row

	for rows.Next() {
		var (
			row    Row
			status int
		)

		if err := rows.Scan(&row.ID, &row.MonitorID, &row.TS, &status,
			&row.LatencyMs, &row.Msg, &row.Meta, &row.Attempts, &row.NextRetryAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}

		row.Status = models.HeartbeatStatus(status)
		batch = append(batch, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue rows: %w", err)
	}

	return batch, nil
}

// MarkDelivered removes the given rows. Delivery and retention pruning are
// the only deletion paths.
func (s *Store) MarkDelivered(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))

	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM poller_queue WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to mark rows delivered: %w", err)
	}

	return nil
}

// UpdateRetry records a failed delivery attempt.
func (s *Store) UpdateRetry(ctx context.Context, id int64, attempts int, nextRetryAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE poller_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`,
		attempts, nextRetryAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update retry state: %w", err)
	}

	return nil
}

// PruneExpired deletes rows older than the retention window regardless of
// delivery state. Bounded loss beats unbounded growth during an outage.
func (s *Store) PruneExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention).UnixMilli()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM poller_queue WHERE ts <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune queue: %w", err)
	}

	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}

	return pruned, nil
}

// Depth returns the number of rows still queued.
func (s *Store) Depth(ctx context.Context) (int, error) {
	var depth int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM poller_queue`).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}

	return depth, nil
}

// SaveAssignments replaces the single snapshot row transactionally.
func (s *Store) SaveAssignments(ctx context.Context, version int64, assignments []models.Assignment) error {
	payload, err := json.Marshal(assignments)
	if err != nil {
		return fmt.Errorf("failed to encode assignment snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM poller_assignments`); err != nil {
		return fmt.Errorf("failed to clear assignment snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO poller_assignments (id, assignment_version, snapshot_json, updated_at)
		VALUES (1, ?, ?, ?)`,
		version, string(payload), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write assignment snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignment snapshot: %w", err)
	}

	return nil
}

// LoadAssignments reads the snapshot, or nil when none has been saved yet.
func (s *Store) LoadAssignments(ctx context.Context) (*Snapshot, error) {
	var (
		version int64
		payload string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT assignment_version, snapshot_json FROM poller_assignments WHERE id = 1`).
		Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load assignment snapshot: %w", err)
	}

	snapshot := &Snapshot{AssignmentVersion: version}

	if err := json.Unmarshal([]byte(payload), &snapshot.Assignments); err != nil {
		return nil, fmt.Errorf("failed to decode assignment snapshot: %w", err)
	}

	return snapshot, nil
}

// GetState reads one key from the state table.
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	var value string

	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM poller_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrStateNotFound
	}

	if err != nil {
		return "", fmt.Errorf("failed to read state %q: %w", key, err)
	}

	return value, nil
}

// SetState upserts one key.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poller_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write state %q: %w", key, err)
	}

	return nil
}
