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
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/probemesh/pkg/db"
	"github.com/carverauto/probemesh/pkg/logger"
	"github.com/carverauto/probemesh/pkg/models"
)

const (
	// EnvRegistrationToken overrides the stored registration secret when set.
	EnvRegistrationToken = "POLLER_REGISTRATION_TOKEN"

	registrationTokenSetting  = "pollerRegistrationToken"
	defaultRegistrationTTL    = time.Hour
	rawTokenBytes             = 32
	defaultRegistrationRegion = "local"
)

// RegistrationResult carries the one-time credentials handed back to a
// freshly registered poller. AccessToken is never shown again.
type RegistrationResult struct {
	PollerID    string `json:"poller_id"`
	AccessToken string `json:"access_token"`
}

// Registry owns poller identity: registration, token authentication,
// heartbeat bookkeeping, and token lifecycle.
type Registry struct {
	store   db.Store
	limiter *KeyedRateLimiter
	logger  logger.Logger
	now     func() time.Time
	env     func(string) string
}

// NewRegistry builds a registry over the given store. The rate limiter
// throttles registration attempts per client IP.
func NewRegistry(store db.Store, limiter *KeyedRateLimiter, log logger.Logger) *Registry {
	return &Registry{
		store:   store,
		limiter: limiter,
		logger:  log,
		now:     time.Now,
		env:     os.Getenv,
	}
}

// Register validates the registration secret and mints a new poller
// identity plus its first access token. The cleartext token is returned
// exactly once; only its hash is stored.
func (r *Registry) Register(ctx context.Context, clientIP string, payload *models.RegistrationPayload) (*RegistrationResult, error) {
	if r.limiter != nil && !r.limiter.Allow(clientIP) {
		return nil, ErrRateLimited
	}

	secret, err := r.registrationSecret(ctx)
	if err != nil {
		return nil, err
	}

	presented := payload.RegistrationToken
	if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
		return nil, ErrForbidden
	}

	now := r.now()

	name := payload.Name
	if name == "" {
		name = "poller-" + strconv.FormatInt(now.UnixMilli(), 10)
	}

	region := payload.Region
	if region == "" {
		region = defaultRegistrationRegion
	}

	capabilities := payload.Capabilities
	if capabilities == nil {
		capabilities = map[string]bool{}
	}

	poller := &models.Poller{
		ID:           uuid.New().String(),
		Name:         name,
		Region:       region,
		Datacenter:   payload.Datacenter,
		Capabilities: capabilities,
		Version:      payload.Version,
		Status:       models.PollerOffline,
		Weight:       models.DefaultPollerWeight,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := r.store.CreatePoller(ctx, poller); err != nil {
		return nil, fmt.Errorf("failed to register poller: %w", err)
	}

	rawToken, err := r.issueToken(ctx, poller.ID)
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("poller_id", poller.ID).
		Str("name", poller.Name).
		Str("region", poller.Region).
		Msg("Registered new poller")

	return &RegistrationResult{PollerID: poller.ID, AccessToken: rawToken}, nil
}

// Authenticate resolves a presented bearer token to its poller and touches
// the token's last-used timestamp.
func (r *Registry) Authenticate(ctx context.Context, rawToken string) (*models.Poller, error) {
	if rawToken == "" {
		return nil, ErrUnauthorized
	}

	token, err := r.store.GetActiveTokenByHash(ctx, hashToken(rawToken))
	if errors.Is(err, db.ErrTokenNotFound) {
		return nil, ErrUnauthorized
	}

	if err != nil {
		return nil, fmt.Errorf("failed to authenticate poller: %w", err)
	}

	now := r.now()
	if token.Expired(now) {
		return nil, ErrTokenExpired
	}

	if err := r.store.TouchTokenUsed(ctx, token.ID, now); err != nil {
		r.logger.Warn().Err(err).Str("token_id", token.ID).Msg("Failed to touch poller token")
	}

	poller, err := r.store.GetPoller(ctx, token.PollerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load poller for token: %w", err)
	}

	return poller, nil
}

// Heartbeat applies a poller's self-report. A well-formed payload is never
// rejected; an unknown status string falls back to online.
func (r *Registry) Heartbeat(ctx context.Context, poller *models.Poller, payload *models.HeartbeatPayload) error {
	now := r.now()

	status := models.PollerState(payload.Status)
	if !status.Valid() {
		status = models.PollerOnline
	}

	poller.Status = status
	poller.QueueDepth = payload.QueueDepth

	if payload.Version != "" {
		poller.Version = payload.Version
	}

	if payload.Region != "" {
		poller.Region = payload.Region
	}

	if payload.Datacenter != "" {
		poller.Datacenter = payload.Datacenter
	}

	if payload.Capabilities != nil {
		poller.Capabilities = payload.Capabilities
	}

	poller.LastHeartbeatAt = &now
	poller.UpdatedAt = now

	if err := r.store.UpdatePoller(ctx, poller); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}

	return nil
}

// RotateToken revokes every existing token for a poller and issues one
// replacement, returned in cleartext once.
func (r *Registry) RotateToken(ctx context.Context, pollerID string) (string, error) {
	if _, err := r.store.GetPoller(ctx, pollerID); err != nil {
		return "", fmt.Errorf("failed to rotate token: %w", err)
	}

	if err := r.store.DeactivatePollerTokens(ctx, pollerID); err != nil {
		return "", fmt.Errorf("failed to revoke tokens during rotation: %w", err)
	}

	return r.issueToken(ctx, pollerID)
}

// RevokeTokens deactivates all tokens for a poller with no replacement.
// The poller must re-register to come back.
func (r *Registry) RevokeTokens(ctx context.Context, pollerID string) error {
	if err := r.store.DeactivatePollerTokens(ctx, pollerID); err != nil {
		return fmt.Errorf("failed to revoke poller tokens: %w", err)
	}

	return nil
}

// UpdatePoller applies an administrative edit to weight and capabilities.
func (r *Registry) UpdatePoller(ctx context.Context, pollerID string, weight *int, capabilities map[string]bool) (*models.Poller, error) {
	if weight != nil && *weight <= 0 {
		return nil, fmt.Errorf("poller weight must be positive, got %d", *weight)
	}

	poller, err := r.store.GetPoller(ctx, pollerID)
	if err != nil {
		return nil, fmt.Errorf("failed to update poller: %w", err)
	}

	if weight != nil {
		poller.Weight = *weight
	}

	if capabilities != nil {
		poller.Capabilities = capabilities
	}

	poller.UpdatedAt = r.now()

	if err := r.store.UpdatePoller(ctx, poller); err != nil {
		return nil, fmt.Errorf("failed to update poller: %w", err)
	}

	return poller, nil
}

// ListPollers returns every known poller.
func (r *Registry) ListPollers(ctx context.Context) ([]*models.Poller, error) {
	return r.store.ListPollers(ctx)
}

// GenerateRegistrationToken mints a fresh registration secret, stores it
// with a TTL, and returns it. It is superseded by the env override when
// that is set.
func (r *Registry) GenerateRegistrationToken(ctx context.Context, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultRegistrationTTL
	}

	raw, err := randomToken()
	if err != nil {
		return "", err
	}

	expiresAt := r.now().Add(ttl)

	if err := r.store.SetSetting(ctx, registrationTokenSetting, raw, &expiresAt); err != nil {
		return "", fmt.Errorf("failed to store registration token: %w", err)
	}

	return raw, nil
}

// registrationSecret resolves the active registration secret. The env
// override wins; otherwise the stored, TTL-bound setting is used.
func (r *Registry) registrationSecret(ctx context.Context) (string, error) {
	if secret := r.env(EnvRegistrationToken); secret != "" {
		return secret, nil
	}

	secret, err := r.store.GetSetting(ctx, registrationTokenSetting)
	if errors.Is(err, db.ErrSettingNotFound) {
		return "", ErrRegistrationDisabled
	}

	if err != nil {
		return "", fmt.Errorf("failed to resolve registration secret: %w", err)
	}

	if secret == "" {
		return "", ErrRegistrationDisabled
	}

	return secret, nil
}

func (r *Registry) issueToken(ctx context.Context, pollerID string) (string, error) {
	raw, err := randomToken()
	if err != nil {
		return "", err
	}

	now := r.now()
	token := &models.PollerToken{
		ID:          uuid.New().String(),
		PollerID:    pollerID,
		HashedToken: hashToken(raw),
		Active:      true,
		CreatedAt:   now,
	}

	if err := r.store.CreatePollerToken(ctx, token); err != nil {
		return "", fmt.Errorf("failed to issue poller token: %w", err)
	}

	return raw, nil
}

func randomToken() (string, error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
