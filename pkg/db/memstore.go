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
	"sort"
	"sync"
	"time"

	"github.com/carverauto/probemesh/pkg/models"
)

type memSetting struct {
	value     string
	expiresAt *time.Time
}

// MemStore is an in-memory Store used by tests across packages. It mirrors
// the semantics of the Postgres implementation, including expiry handling
// on settings and not-found sentinels.
type MemStore struct {
	mu         sync.Mutex
	pollers    map[string]*models.Poller
	tokens     map[string]*models.PollerToken
	monitors   map[int64]*models.Monitor
	heartbeats map[int64][]*models.Heartbeat
	settings   map[string]memSetting
	nextHBID   int64
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		pollers:    make(map[string]*models.Poller),
		tokens:     make(map[string]*models.PollerToken),
		monitors:   make(map[int64]*models.Monitor),
		heartbeats: make(map[int64][]*models.Heartbeat),
		settings:   make(map[string]memSetting),
	}
}

func (m *MemStore) CreatePoller(_ context.Context, poller *models.Poller) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *poller
	m.pollers[poller.ID] = &clone

	return nil
}

func (m *MemStore) GetPoller(_ context.Context, id string) (*models.Poller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	poller, ok := m.pollers[id]
	if !ok {
		return nil, ErrPollerNotFound
	}

	clone := *poller

	return &clone, nil
}

func (m *MemStore) ListPollers(_ context.Context) ([]*models.Poller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Poller, 0, len(m.pollers))
	for _, poller := range m.pollers {
		clone := *poller
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *MemStore) UpdatePoller(_ context.Context, poller *models.Poller) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pollers[poller.ID]; !ok {
		return ErrPollerNotFound
	}

	clone := *poller
	m.pollers[poller.ID] = &clone

	return nil
}

func (m *MemStore) CreatePollerToken(_ context.Context, token *models.PollerToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *token
	m.tokens[token.ID] = &clone

	return nil
}

func (m *MemStore) GetActiveTokenByHash(_ context.Context, hashedToken string) (*models.PollerToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, token := range m.tokens {
		if token.Active && token.HashedToken == hashedToken {
			clone := *token
			return &clone, nil
		}
	}

	return nil, ErrTokenNotFound
}

func (m *MemStore) TouchTokenUsed(_ context.Context, tokenID string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenID]
	if !ok {
		return ErrTokenNotFound
	}

	token.LastUsedAt = &usedAt

	return nil
}

func (m *MemStore) DeactivatePollerTokens(_ context.Context, pollerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, token := range m.tokens {
		if token.PollerID == pollerID {
			token.Active = false
		}
	}

	return nil
}

func (m *MemStore) GetMonitor(_ context.Context, id int64) (*models.Monitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	monitor, ok := m.monitors[id]
	if !ok {
		return nil, ErrMonitorNotFound
	}

	clone := *monitor

	return &clone, nil
}

func (m *MemStore) ListRemoteMonitors(_ context.Context) ([]*models.Monitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Monitor, 0, len(m.monitors))

	for _, monitor := range m.monitors {
		if !monitor.Active || monitor.PollerMode == models.PollerModeLocal {
			continue
		}

		clone := *monitor
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// PutMonitor seeds a monitor row.
func (m *MemStore) PutMonitor(monitor *models.Monitor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *monitor
	clone.PollerMode = models.NormalizePollerMode(string(monitor.PollerMode))
	m.monitors[monitor.ID] = &clone
}

func (m *MemStore) GetPreviousHeartbeat(_ context.Context, monitorID int64) (*models.Heartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	beats := m.heartbeats[monitorID]
	if len(beats) == 0 {
		return nil, nil
	}

	var latest *models.Heartbeat

	for _, hb := range beats {
		if latest == nil || hb.Time.After(latest.Time) {
			latest = hb
		}
	}

	clone := *latest

	return &clone, nil
}

func (m *MemStore) InsertHeartbeat(_ context.Context, hb *models.Heartbeat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextHBID++
	hb.ID = m.nextHBID

	clone := *hb
	m.heartbeats[hb.MonitorID] = append(m.heartbeats[hb.MonitorID], &clone)

	return nil
}

// Heartbeats returns all stored heartbeats for a monitor in insert order.
func (m *MemStore) Heartbeats(monitorID int64) []*models.Heartbeat {
	m.mu.Lock()
	defer m.mu.Unlock()

	beats := m.heartbeats[monitorID]
	out := make([]*models.Heartbeat, 0, len(beats))

	for _, hb := range beats {
		clone := *hb
		out = append(out, &clone)
	}

	return out
}

func (m *MemStore) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	setting, ok := m.settings[key]
	if !ok {
		return "", ErrSettingNotFound
	}

	if setting.expiresAt != nil && !setting.expiresAt.After(time.Now()) {
		return "", ErrSettingNotFound
	}

	return setting.value, nil
}

func (m *MemStore) SetSetting(_ context.Context, key, value string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[key] = memSetting{value: value, expiresAt: expiresAt}

	return nil
}

var _ Store = (*MemStore)(nil)
