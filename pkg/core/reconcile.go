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
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/carverauto/probemesh/pkg/db"
	"github.com/carverauto/probemesh/pkg/logger"
	"github.com/carverauto/probemesh/pkg/models"
)

// UptimeTracker accumulates latency/uptime statistics per monitor. Its
// return value supplies the heartbeat's end time.
type UptimeTracker interface {
	Observe(ctx context.Context, monitorID int64, status models.HeartbeatStatus, ping *float64, at time.Time) time.Time
}

// Notifier delivers notification-worthy heartbeats to the monitor's owner.
type Notifier interface {
	Notify(ctx context.Context, monitor *models.Monitor, hb *models.Heartbeat) error
}

// HeartbeatPublisher fans a reconciled heartbeat out to live consumers.
type HeartbeatPublisher interface {
	PublishHeartbeat(ctx context.Context, hb *models.Heartbeat) error
}

// Reconciler turns raw poller results into heartbeat rows, applying the
// retry/flapping state machine per monitor. Collaborator failures are
// logged and never propagated; only store failures reject a result.
type Reconciler struct {
	store     db.Store
	uptime    UptimeTracker
	notifier  Notifier
	publisher HeartbeatPublisher
	logger    logger.Logger
	now       func() time.Time

	acceptedCounter metric.Int64Counter
	rejectedCounter metric.Int64Counter
}

// NewReconciler wires a reconciler. uptime, notifier, and publisher may be
// nil; meter may be nil to disable counters.
func NewReconciler(store db.Store, uptime UptimeTracker, notifier Notifier, publisher HeartbeatPublisher, meter metric.Meter, log logger.Logger) *Reconciler {
	r := &Reconciler{
		store:     store,
		uptime:    uptime,
		notifier:  notifier,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}

	if meter != nil {
		var err error

		r.acceptedCounter, err = meter.Int64Counter("poller_results_accepted_total")
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create accepted results counter")
		}

		r.rejectedCounter, err = meter.Int64Counter("poller_results_rejected_total")
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create rejected results counter")
		}
	}

	return r
}

// SubmitResults applies a batch. Partial success is normal: each rejected
// result becomes one itemized error and never affects its siblings.
func (r *Reconciler) SubmitResults(ctx context.Context, poller *models.Poller, results []models.PollerResult) (int, []models.ResultError) {
	accepted := 0

	var itemErrors []models.ResultError

	for i := range results {
		result := &results[i]

		if err := r.ProcessResult(ctx, poller, result); err != nil {
			itemErrors = append(itemErrors, models.ResultError{
				MonitorID: result.MonitorID,
				ClientID:  result.ClientID,
				Msg:       err.Error(),
			})

			if r.rejectedCounter != nil {
				r.rejectedCounter.Add(ctx, 1)
			}

			continue
		}

		accepted++

		if r.acceptedCounter != nil {
			r.acceptedCounter.Add(ctx, 1)
		}
	}

	now := r.now()
	poller.LastResultsAt = &now
	poller.UpdatedAt = now

	if err := r.store.UpdatePoller(ctx, poller); err != nil {
		r.logger.Warn().Err(err).Str("poller_id", poller.ID).Msg("Failed to update poller after result upload")
	}

	return accepted, itemErrors
}

// ProcessResult reconciles one uploaded result into a heartbeat row.
func (r *Reconciler) ProcessResult(ctx context.Context, poller *models.Poller, result *models.PollerResult) error {
	if result.Status < models.StatusDown || result.Status > models.StatusMaintenance {
		return ErrInvalidStatus
	}

	monitor, err := r.store.GetMonitor(ctx, result.MonitorID)
	if errors.Is(err, db.ErrMonitorNotFound) {
		return ErrUnknownMonitor
	}

	if err != nil {
		return fmt.Errorf("failed to load monitor: %w", err)
	}

	if err := validateOwnership(poller, monitor); err != nil {
		return err
	}

	previous, err := r.store.GetPreviousHeartbeat(ctx, monitor.ID)
	if err != nil {
		return fmt.Errorf("failed to load previous heartbeat: %w", err)
	}

	hb := r.buildHeartbeat(ctx, monitor, previous, result)

	if err := r.store.InsertHeartbeat(ctx, hb); err != nil {
		return fmt.Errorf("failed to persist heartbeat: %w", err)
	}

	r.emit(ctx, monitor, hb)

	return nil
}

func (r *Reconciler) buildHeartbeat(ctx context.Context, monitor *models.Monitor, previous *models.Heartbeat, result *models.PollerResult) *models.Heartbeat {
	at := r.now()
	if result.TS > 0 {
		at = time.UnixMilli(result.TS)
	}

	var ping *float64

	if result.LatencyMs != nil {
		v := float64(*result.LatencyMs)
		ping = &v
	}

	hb := &models.Heartbeat{
		MonitorID: monitor.ID,
		Time:      at,
		Ping:      ping,
		Msg:       result.Msg,
	}

	hb.Status, hb.Retries = determineStatus(monitor, previous, result.Status)

	if monitor.UnderMaintenance {
		hb.Msg = "Monitor under maintenance"
	}

	if previous != nil {
		hb.DurationSeconds = int64(at.Sub(previous.Time) / time.Second)
	}

	hb.Important = previous == nil || previous.Status != hb.Status

	if hb.Status == models.StatusDown && monitor.ResendInterval > 0 {
		prevDown := 0
		if previous != nil {
			prevDown = previous.DownCount
		}

		hb.DownCount = prevDown + 1
		if hb.DownCount >= monitor.ResendInterval {
			// Re-notify and restart the resend countdown.
			hb.Important = true
			hb.DownCount = 0
		}
	}

	if r.uptime != nil {
		hb.EndTime = r.uptime.Observe(ctx, monitor.ID, hb.Status, hb.Ping, at)
	}

	return hb
}

// determineStatus runs the per-monitor state machine given the previous
// heartbeat and the reported status.
func determineStatus(monitor *models.Monitor, previous *models.Heartbeat, reported models.HeartbeatStatus) (models.HeartbeatStatus, int) {
	if monitor.UnderMaintenance {
		return models.StatusMaintenance, prevRetries(previous)
	}

	if reported == models.StatusMaintenance || reported == models.StatusPending {
		return reported, prevRetries(previous)
	}

	status := reported
	if monitor.UpsideDown {
		status = status.Flip()
	}

	if status == models.StatusUp {
		return models.StatusUp, 0
	}

	// Status is DOWN from here on.
	if previous == nil {
		if monitor.MaxRetries > 0 {
			return models.StatusPending, 1
		}

		return models.StatusDown, 0
	}

	retries := previous.Retries + 1

	wasHealthy := previous.Status == models.StatusUp || previous.Status == models.StatusPending
	if wasHealthy && retries < monitor.MaxRetries {
		return models.StatusPending, retries
	}

	return models.StatusDown, retries
}

func prevRetries(previous *models.Heartbeat) int {
	if previous == nil {
		return 0
	}

	return previous.Retries
}

// validateOwnership checks that the uploading poller is a legitimate owner
// for the monitor's mode. Weighted monitors only require capability match;
// transient double-ownership during pool changes is resolved by the next
// assignment pull, not rejected here.
func validateOwnership(poller *models.Poller, monitor *models.Monitor) error {
	if monitor.PollerMode == models.PollerModeLocal {
		return ErrOwnershipMismatch
	}

	if !poller.HasCapability(monitor.PollerCapability) {
		return ErrOwnershipMismatch
	}

	switch monitor.PollerMode {
	case models.PollerModePinned:
		if monitor.PollerID == nil || *monitor.PollerID != poller.ID {
			return ErrOwnershipMismatch
		}
	case models.PollerModeGrouped:
		if monitor.PollerRegion != "" && poller.Region != monitor.PollerRegion {
			return ErrOwnershipMismatch
		}

		if monitor.PollerDatacenter != "" && poller.Datacenter != monitor.PollerDatacenter {
			return ErrOwnershipMismatch
		}
	}

	return nil
}

func (r *Reconciler) emit(ctx context.Context, monitor *models.Monitor, hb *models.Heartbeat) {
	if r.notifier != nil && hb.Important {
		if err := r.notifier.Notify(ctx, monitor, hb); err != nil {
			r.logger.Warn().Err(err).Int64("monitor_id", monitor.ID).Msg("Failed to send notification")
		}
	}

	if r.publisher != nil {
		if err := r.publisher.PublishHeartbeat(ctx, hb); err != nil {
			r.logger.Warn().Err(err).Int64("monitor_id", monitor.ID).Msg("Failed to publish heartbeat event")
		}
	}
}
