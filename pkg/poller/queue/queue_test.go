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

package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/probemesh/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "poller.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func enqueueN(t *testing.T, store *Store, n int) []int64 {
	t.Helper()

	base := time.Now().UnixMilli()
	ids := make([]int64, 0, n)

	for i := 0; i < n; i++ {
		row := &Row{
			MonitorID: int64(i + 1),
			TS:        base + int64(i),
			Status:    models.StatusUp,
			Msg:       "ok",
		}
		require.NoError(t, store.Enqueue(context.Background(), row))
		ids = append(ids, row.ID)
	}

	return ids
}

func TestQueueRoundTrip(t *testing.T) {
	store := openTestStore(t)
	enqueueN(t, store, 5)

	batch, err := store.DequeueBatch(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	// Oldest first.
	assert.Equal(t, int64(1), batch[0].MonitorID)
	assert.Equal(t, int64(2), batch[1].MonitorID)

	delivered := []int64{batch[0].ID, batch[1].ID}
	require.NoError(t, store.MarkDelivered(context.Background(), delivered))

	depth, err := store.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestQueueRowMetaRoundTrip(t *testing.T) {
	store := openTestStore(t)

	latency := int64(12)
	row := &Row{
		MonitorID: 7,
		TS:        time.Now().UnixMilli(),
		Status:    models.StatusUp,
		LatencyMs: &latency,
		Msg:       "200 - OK",
		Meta:      `{"resolved":"192.0.2.1"}`,
	}
	require.NoError(t, store.Enqueue(context.Background(), row))

	batch, err := store.DequeueBatch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	assert.Equal(t, `{"resolved":"192.0.2.1"}`, batch[0].Meta)
	assert.Equal(t, "200 - OK", batch[0].Msg)
	require.NotNil(t, batch[0].LatencyMs)
	assert.Equal(t, latency, *batch[0].LatencyMs)
}

func TestDequeueExcludesBackedOffRows(t *testing.T) {
	store := openTestStore(t)
	ids := enqueueN(t, store, 2)

	require.NoError(t, store.UpdateRetry(context.Background(), ids[0], 1, time.Now().Add(time.Hour)))

	batch, err := store.DequeueBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, ids[1], batch[0].ID)

	// Once the retry deadline passes the row is visible again.
	require.NoError(t, store.UpdateRetry(context.Background(), ids[0], 2, time.Now().Add(-time.Second)))

	batch, err = store.DequeueBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	for _, row := range batch {
		if row.ID == ids[0] {
			assert.Equal(t, 2, row.Attempts)
		}
	}
}

func TestPruneExpired(t *testing.T) {
	store := openTestStore(t)
	ids := enqueueN(t, store, 4)

	// A row under retry backoff is still pruned.
	require.NoError(t, store.UpdateRetry(context.Background(), ids[0], 3, time.Now().Add(time.Hour)))

	pruned, err := store.PruneExpired(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pruned)

	depth, err := store.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestPruneKeepsRecentRows(t *testing.T) {
	store := openTestStore(t)
	enqueueN(t, store, 3)

	pruned, err := store.PruneExpired(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, pruned)

	depth, err := store.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestAssignmentSnapshotReplace(t *testing.T) {
	store := openTestStore(t)

	loaded, err := store.LoadAssignments(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)

	first := []models.Assignment{
		{MonitorID: 1, Interval: 60, Type: "http"},
		{MonitorID: 2, Interval: 30, Type: "tcp"},
	}
	require.NoError(t, store.SaveAssignments(context.Background(), 42, first))

	loaded, err = store.LoadAssignments(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(42), loaded.AssignmentVersion)
	assert.Equal(t, first, loaded.Assignments)

	// A second save fully replaces the single row.
	second := []models.Assignment{{MonitorID: 9, Interval: 10, Type: "dns"}}
	require.NoError(t, store.SaveAssignments(context.Background(), 43, second))

	loaded, err = store.LoadAssignments(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(43), loaded.AssignmentVersion)
	assert.Equal(t, second, loaded.Assignments)
}

func TestStateRoundTrip(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetState(context.Background(), "poller_id")
	assert.ErrorIs(t, err, ErrStateNotFound)

	require.NoError(t, store.SetState(context.Background(), "poller_id", "abc"))
	require.NoError(t, store.SetState(context.Background(), "poller_id", "def"))

	value, err := store.GetState(context.Background(), "poller_id")
	require.NoError(t, err)
	assert.Equal(t, "def", value)
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "poller.db")

	store, err := Open(path)
	require.NoError(t, err)

	row := &Row{MonitorID: 1, TS: time.Now().UnixMilli(), Status: models.StatusDown, Msg: "timeout"}
	require.NoError(t, store.Enqueue(context.Background(), row))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)

	defer reopened.Close()

	batch, err := reopened.DequeueBatch(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "timeout", batch[0].Msg)
	assert.Equal(t, models.StatusDown, batch[0].Status)
}
