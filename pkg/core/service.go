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
	"fmt"
	"time"

	"github.com/carverauto/probemesh/pkg/db"
	"github.com/carverauto/probemesh/pkg/logger"
	"github.com/carverauto/probemesh/pkg/models"
)

// Service is the coordinator facade the HTTP layer consumes: registry,
// reconciler, and the assignment pull flow in one place.
type Service struct {
	Store      db.Store
	Registry   *Registry
	Reconciler *Reconciler

	logger logger.Logger
	now    func() time.Time
}

// NewService composes the coordinator from its parts.
func NewService(store db.Store, registry *Registry, reconciler *Reconciler, log logger.Logger) *Service {
	return &Service{
		Store:      store,
		Registry:   registry,
		Reconciler: reconciler,
		logger:     log,
		now:        time.Now,
	}
}

// CurrentAssignments computes the poller's assignment list and its version
// from the live poller/monitor state.
func (s *Service) CurrentAssignments(ctx context.Context, poller *models.Poller) ([]models.Assignment, int64, error) {
	pollers, err := s.Store.ListPollers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pollers: %w", err)
	}

	monitors, err := s.Store.ListRemoteMonitors(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list monitors: %w", err)
	}

	assignments := BuildAssignments(poller, pollers, monitors)

	version, err := ComputeAssignmentVersion(assignments)
	if err != nil {
		return nil, 0, err
	}

	return assignments, version, nil
}

// PullAssignments serves one conditional assignment pull. The computed
// version is persisted on the poller row; when sinceVersion already matches
// it the assignment list is elided.
func (s *Service) PullAssignments(ctx context.Context, poller *models.Poller, sinceVersion int64) (int64, []models.Assignment, error) {
	assignments, version, err := s.CurrentAssignments(ctx, poller)
	if err != nil {
		return 0, nil, err
	}

	now := s.now()
	poller.AssignmentVersion = version
	poller.LastAssignmentPullAt = &now
	poller.UpdatedAt = now

	if err := s.Store.UpdatePoller(ctx, poller); err != nil {
		s.logger.Warn().Err(err).Str("poller_id", poller.ID).Msg("Failed to record assignment pull")
	}

	if sinceVersion == version {
		return version, []models.Assignment{}, nil
	}

	return version, assignments, nil
}

// HeartbeatVersion applies a heartbeat and returns the poller's current
// assignment version so the agent knows whether a pull is worthwhile.
func (s *Service) HeartbeatVersion(ctx context.Context, poller *models.Poller, payload *models.HeartbeatPayload) (int64, error) {
	if err := s.Registry.Heartbeat(ctx, poller, payload); err != nil {
		return 0, err
	}

	_, version, err := s.CurrentAssignments(ctx, poller)
	if err != nil {
		return 0, err
	}

	return version, nil
}
