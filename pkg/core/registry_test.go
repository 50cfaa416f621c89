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

package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/probemesh/pkg/db"
	"github.com/carverauto/probemesh/pkg/logger"
	"github.com/carverauto/probemesh/pkg/models"
)

func newTestRegistry(store db.Store, secret string) *Registry {
	registry := NewRegistry(store, nil, logger.NewTestLogger())
	registry.env = func(string) string { return secret }

	return registry
}

func registerTestPoller(t *testing.T, registry *Registry) *RegistrationResult {
	t.Helper()

	result, err := registry.Register(context.Background(), "10.0.0.1", &models.RegistrationPayload{
		Name:              "edge-1",
		Region:            "us-east",
		Datacenter:        "dc1",
		Capabilities:      map[string]bool{"ipv6": true},
		Version:           "1.2.3",
		RegistrationToken: "secret",
	})
	require.NoError(t, err)

	return result
}

func TestRegisterIssuesCredentials(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "secret")

	result := registerTestPoller(t, registry)

	assert.NotEmpty(t, result.PollerID)
	assert.Len(t, result.AccessToken, 64)

	poller, err := store.GetPoller(context.Background(), result.PollerID)
	require.NoError(t, err)
	assert.Equal(t, models.PollerOffline, poller.Status)
	assert.Equal(t, models.DefaultPollerWeight, poller.Weight)
	assert.Equal(t, "us-east", poller.Region)

	// Only the hash is stored; the cleartext must not authenticate by hash.
	_, err = store.GetActiveTokenByHash(context.Background(), result.AccessToken)
	assert.ErrorIs(t, err, db.ErrTokenNotFound)

	_, err = store.GetActiveTokenByHash(context.Background(), hashToken(result.AccessToken))
	assert.NoError(t, err)
}

func TestRegisterDefaultsEmptyName(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "secret")
	registry.now = func() time.Time { return time.UnixMilli(1700000000000) }

	result, err := registry.Register(context.Background(), "10.0.0.1", &models.RegistrationPayload{
		RegistrationToken: "secret",
	})
	require.NoError(t, err)

	poller, err := store.GetPoller(context.Background(), result.PollerID)
	require.NoError(t, err)
	assert.Equal(t, "poller-1700000000000", poller.Name)
}

func TestRegisterWrongToken(t *testing.T) {
	registry := newTestRegistry(db.NewMemStore(), "secret")

	_, err := registry.Register(context.Background(), "10.0.0.1", &models.RegistrationPayload{
		RegistrationToken: "wrong",
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRegisterNoSecretConfigured(t *testing.T) {
	registry := newTestRegistry(db.NewMemStore(), "")

	_, err := registry.Register(context.Background(), "10.0.0.1", &models.RegistrationPayload{
		RegistrationToken: "anything",
	})
	assert.ErrorIs(t, err, ErrRegistrationDisabled)
}

func TestRegisterStoredSecretFallback(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "")

	expiresAt := time.Now().Add(time.Hour)
	require.NoError(t, store.SetSetting(context.Background(), registrationTokenSetting, "stored-secret", &expiresAt))

	_, err := registry.Register(context.Background(), "10.0.0.1", &models.RegistrationPayload{
		RegistrationToken: "stored-secret",
	})
	assert.NoError(t, err)
}

func TestRegisterStoredSecretExpired(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "")

	expiresAt := time.Now().Add(-time.Minute)
	require.NoError(t, store.SetSetting(context.Background(), registrationTokenSetting, "stored-secret", &expiresAt))

	_, err := registry.Register(context.Background(), "10.0.0.1", &models.RegistrationPayload{
		RegistrationToken: "stored-secret",
	})
	assert.ErrorIs(t, err, ErrRegistrationDisabled)
}

func TestRegisterEnvOverridesStoredSecret(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "env-secret")

	require.NoError(t, store.SetSetting(context.Background(), registrationTokenSetting, "stored-secret", nil))

	_, err := registry.Register(context.Background(), "10.0.0.1", &models.RegistrationPayload{
		RegistrationToken: "stored-secret",
	})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = registry.Register(context.Background(), "10.0.0.1", &models.RegistrationPayload{
		RegistrationToken: "env-secret",
	})
	assert.NoError(t, err)
}

func TestRegisterRateLimited(t *testing.T) {
	registry := newTestRegistry(db.NewMemStore(), "secret")
	registry.limiter = NewKeyedRateLimiter(0, 2, 0)

	payload := &models.RegistrationPayload{RegistrationToken: "secret"}

	_, err := registry.Register(context.Background(), "10.0.0.1", payload)
	require.NoError(t, err)
	_, err = registry.Register(context.Background(), "10.0.0.1", payload)
	require.NoError(t, err)

	_, err = registry.Register(context.Background(), "10.0.0.1", payload)
	assert.ErrorIs(t, err, ErrRateLimited)

	// Other clients still get through.
	_, err = registry.Register(context.Background(), "10.0.0.2", payload)
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "secret")

	result := registerTestPoller(t, registry)

	poller, err := registry.Authenticate(context.Background(), result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.PollerID, poller.ID)
}

func TestAuthenticateRejectsUnknownToken(t *testing.T) {
	registry := newTestRegistry(db.NewMemStore(), "secret")

	_, err := registry.Authenticate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = registry.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "secret")

	result := registerTestPoller(t, registry)

	// Move the registry clock a day past the token's implicit issue time
	// and expire the token at issue time plus a minute.
	issued := time.Now()
	registry.now = func() time.Time { return issued.Add(24 * time.Hour) }

	token, err := store.GetActiveTokenByHash(context.Background(), hashToken(result.AccessToken))
	require.NoError(t, err)

	expiresAt := issued.Add(time.Minute)
	token.ExpiresAt = &expiresAt
	require.NoError(t, store.CreatePollerToken(context.Background(), token))

	_, err = registry.Authenticate(context.Background(), result.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestHeartbeatUpdatesPoller(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "secret")

	result := registerTestPoller(t, registry)

	poller, err := store.GetPoller(context.Background(), result.PollerID)
	require.NoError(t, err)

	err = registry.Heartbeat(context.Background(), poller, &models.HeartbeatPayload{
		Status:       "online",
		QueueDepth:   7,
		Version:      "1.2.4",
		Capabilities: map[string]bool{"snmp": true},
	})
	require.NoError(t, err)

	updated, err := store.GetPoller(context.Background(), result.PollerID)
	require.NoError(t, err)
	assert.Equal(t, models.PollerOnline, updated.Status)
	assert.Equal(t, 7, updated.QueueDepth)
	assert.Equal(t, "1.2.4", updated.Version)
	assert.True(t, updated.Capabilities["snmp"])
	assert.NotNil(t, updated.LastHeartbeatAt)
}

func TestHeartbeatUnknownStatusFallsBackToOnline(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "secret")

	result := registerTestPoller(t, registry)

	poller, err := store.GetPoller(context.Background(), result.PollerID)
	require.NoError(t, err)

	err = registry.Heartbeat(context.Background(), poller, &models.HeartbeatPayload{Status: "sideways"})
	require.NoError(t, err)

	updated, err := store.GetPoller(context.Background(), result.PollerID)
	require.NoError(t, err)
	assert.Equal(t, models.PollerOnline, updated.Status)
}

func TestRotateToken(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "secret")

	result := registerTestPoller(t, registry)

	newToken, err := registry.RotateToken(context.Background(), result.PollerID)
	require.NoError(t, err)
	assert.NotEqual(t, result.AccessToken, newToken)

	_, err = registry.Authenticate(context.Background(), result.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	poller, err := registry.Authenticate(context.Background(), newToken)
	require.NoError(t, err)
	assert.Equal(t, result.PollerID, poller.ID)
}

func TestRevokeTokens(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "secret")

	result := registerTestPoller(t, registry)

	require.NoError(t, registry.RevokeTokens(context.Background(), result.PollerID))

	_, err := registry.Authenticate(context.Background(), result.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdatePollerWeightValidation(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "secret")

	result := registerTestPoller(t, registry)

	bad := -1
	_, err := registry.UpdatePoller(context.Background(), result.PollerID, &bad, nil)
	assert.Error(t, err)

	good := 250
	poller, err := registry.UpdatePoller(context.Background(), result.PollerID, &good, map[string]bool{"dns": true})
	require.NoError(t, err)
	assert.Equal(t, 250, poller.Weight)
	assert.True(t, poller.Capabilities["dns"])
}

func TestGenerateRegistrationToken(t *testing.T) {
	store := db.NewMemStore()
	registry := newTestRegistry(store, "")

	token, err := registry.GenerateRegistrationToken(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Len(t, token, 64)

	_, err = registry.Register(context.Background(), "10.0.0.1", &models.RegistrationPayload{
		RegistrationToken: token,
	})
	assert.NoError(t, err)
}
