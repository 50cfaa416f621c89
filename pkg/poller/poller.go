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

// Package poller implements the agent runtime: four independent loops for
// heartbeat, assignment refresh, result upload, and queue maintenance, plus
// the probe scheduler. A slow call in one loop never stalls another.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carverauto/probemesh/pkg/logger"
	"github.com/carverauto/probemesh/pkg/models"
	"github.com/carverauto/probemesh/pkg/poller/queue"
)

const (
	statePollerID    = "poller_id"
	statePollerToken = "poller_token"
)

// retryBackoff is the fixed delivery retry schedule, indexed by attempts.
var retryBackoff = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
}

func backoffFor(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}

	if idx >= len(retryBackoff) {
		idx = len(retryBackoff) - 1
	}

	return retryBackoff[idx]
}

// Poller is the agent runtime. It satisfies lifecycle.Service.
type Poller struct {
	config    *Config
	client    *Client
	store     *queue.Store
	scheduler *Scheduler
	clock     Clock
	logger    logger.Logger

	mu                sync.Mutex
	pollerID          string
	token             string
	assignmentVersion int64

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds the agent from its validated config. Credentials issued at a
// previous registration are restored from the local state table.
func New(ctx context.Context, config *Config, log logger.Logger) (*Poller, error) {
	store, err := queue.Open(config.DBPath)
	if err != nil {
		return nil, err
	}

	p := &Poller{
		config: config,
		client: NewClient(config.ServerURL),
		store:  store,
		clock:  realClock{},
		logger: log,
		done:   make(chan struct{}),
	}

	p.scheduler = NewScheduler(store, p.clock, log)

	p.pollerID = config.PollerID
	p.token = config.Token
	p.restoreCredentials(ctx)

	if p.token != "" {
		p.client.SetToken(p.token)
	}

	return p, nil
}

// Start loads the cached assignment snapshot, launches the loops, and
// blocks until the context is canceled or Stop is called. It satisfies
// lifecycle.Service.
func (p *Poller) Start(ctx context.Context) error {
	// Resume scheduling before the first network round-trip.
	snapshot, err := p.store.LoadAssignments(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to load cached assignments")
	} else if snapshot != nil {
		p.scheduler.UpdateAssignments(snapshot.Assignments)

		p.mu.Lock()
		p.assignmentVersion = snapshot.AssignmentVersion
		p.mu.Unlock()

		p.logger.Info().
			Int64("assignment_version", snapshot.AssignmentVersion).
			Int("assignments", len(snapshot.Assignments)).
			Msg("Resumed from cached assignment snapshot")
	}

	loops := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"heartbeat", time.Duration(p.config.HeartbeatInterval), p.heartbeat},
		{"assignments", time.Duration(p.config.AssignmentInterval), p.refreshAssignments},
		{"upload", time.Duration(p.config.UploadInterval), p.uploadQueue},
		{"maintenance", p.config.MaintenanceInterval(), p.maintain},
		{"scheduler", time.Duration(p.config.SchedulerInterval), p.scheduler.Tick},
	}

	for _, loop := range loops {
		p.wg.Add(1)

		go p.runLoop(ctx, loop.name, loop.interval, loop.run)
	}

	p.logger.Info().Str("server_url", p.config.ServerURL).Msg("Poller agent started")

	select {
	case <-ctx.Done():
		return nil
	case <-p.done:
		return nil
	}
}

// Stop signals the loops and waits for them before closing the store.
func (p *Poller) Stop(_ context.Context) error {
	p.closeOnce.Do(func() {
		close(p.done)
	})

	p.wg.Wait()

	return p.store.Close()
}

// runLoop drives one action on its own ticker. Actions are fire-and-log:
// a failure is retried on the next scheduled tick, never immediately.
func (p *Poller) runLoop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	defer p.wg.Done()

	ticker := p.clock.Ticker(interval)
	defer ticker.Stop()

	// Run once at startup instead of waiting a full interval.
	run(ctx)

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			run(ctx)
		}
	}
}

func (p *Poller) credentials() (id, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.pollerID, p.token
}

func (p *Poller) registered() bool {
	id, token := p.credentials()
	return id != "" && token != ""
}

func (p *Poller) restoreCredentials(ctx context.Context) {
	if p.pollerID == "" {
		if id, err := p.store.GetState(ctx, statePollerID); err == nil {
			p.pollerID = id
		} else if !errors.Is(err, queue.ErrStateNotFound) {
			p.logger.Warn().Err(err).Msg("Failed to read stored poller id")
		}
	}

	if p.token == "" {
		if token, err := p.store.GetState(ctx, statePollerToken); err == nil {
			p.token = token
		} else if !errors.Is(err, queue.ErrStateNotFound) {
			p.logger.Warn().Err(err).Msg("Failed to read stored poller token")
		}
	}
}

// register attempts first-time registration using the registration token.
func (p *Poller) register(ctx context.Context) {
	if p.config.RegistrationToken == "" {
		p.logger.Warn().Msg("Not registered and no registration token configured")
		return
	}

	resp, err := p.client.Register(ctx, &models.RegistrationPayload{
		Name:              p.config.Name,
		Region:            p.config.Region,
		Datacenter:        p.config.Datacenter,
		Capabilities:      p.config.Capabilities,
		Version:           p.config.Version,
		RegistrationToken: p.config.RegistrationToken,
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("Registration failed")
		return
	}

	p.mu.Lock()
	p.pollerID = resp.PollerID
	p.token = resp.AccessToken
	p.mu.Unlock()

	p.client.SetToken(resp.AccessToken)

	// Persist so a restart does not need to re-register.
	if err := p.store.SetState(ctx, statePollerID, resp.PollerID); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to persist poller id")
	}

	if err := p.store.SetState(ctx, statePollerToken, resp.AccessToken); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to persist poller token")
	}

	p.logger.Info().Str("poller_id", resp.PollerID).Msg("Registered with coordinator")
}

func (p *Poller) heartbeat(ctx context.Context) {
	if !p.registered() {
		p.register(ctx)
		return
	}

	depth, err := p.store.Depth(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to read queue depth")
	}

	resp, err := p.client.Heartbeat(ctx, &models.HeartbeatPayload{
		Status:       string(models.PollerOnline),
		QueueDepth:   depth,
		Version:      p.config.Version,
		Region:       p.config.Region,
		Datacenter:   p.config.Datacenter,
		Capabilities: p.config.Capabilities,
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("Heartbeat failed")
		return
	}

	p.mu.Lock()
	stale := resp.AssignmentVersion != p.assignmentVersion
	p.mu.Unlock()

	if stale {
		p.logger.Debug().
			Int64("server_version", resp.AssignmentVersion).
			Msg("Assignment version changed, refresh pending")
	}
}

func (p *Poller) refreshAssignments(ctx context.Context) {
	if !p.registered() {
		return
	}

	p.mu.Lock()
	since := p.assignmentVersion
	p.mu.Unlock()

	resp, err := p.client.FetchAssignments(ctx, since)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Assignment refresh failed")
		return
	}

	if resp.AssignmentVersion == since {
		return
	}

	p.scheduler.UpdateAssignments(resp.Assignments)

	if err := p.store.SaveAssignments(ctx, resp.AssignmentVersion, resp.Assignments); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to persist assignment snapshot")
	}

	p.mu.Lock()
	p.assignmentVersion = resp.AssignmentVersion
	p.mu.Unlock()

	p.logger.Info().
		Int64("assignment_version", resp.AssignmentVersion).
		Int("assignments", len(resp.Assignments)).
		Msg("Applied new assignments")
}

func (p *Poller) uploadQueue(ctx context.Context) {
	if !p.registered() {
		return
	}

	batch, err := p.store.DequeueBatch(ctx, p.config.UploadBatchSize)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to dequeue upload batch")
		return
	}

	if len(batch) == 0 {
		return
	}

	results := make([]models.PollerResult, 0, len(batch))
	for _, row := range batch {
		results = append(results, models.PollerResult{
			MonitorID: row.MonitorID,
			ClientID:  row.ID,
			TS:        row.TS,
			Status:    row.Status,
			LatencyMs: row.LatencyMs,
			Msg:       row.Msg,
			Meta:      row.Meta,
		})
	}

	resp, err := p.client.SubmitResults(ctx, results)
	if err != nil {
		// Transport failure: back off the whole batch.
		p.logger.Warn().Err(err).Int("batch", len(batch)).Msg("Result upload failed")
		p.retryRows(ctx, batch)

		return
	}

	failed := make(map[int64]struct{}, len(resp.Errors))
	for _, itemErr := range resp.Errors {
		failed[itemErr.ClientID] = struct{}{}

		p.logger.Warn().
			Int64("monitor_id", itemErr.MonitorID).
			Str("msg", itemErr.Msg).
			Msg("Result rejected by coordinator")
	}

	delivered := make([]int64, 0, len(batch))

	var retry []*queue.Row

	for _, row := range batch {
		if _, ok := failed[row.ID]; ok {
			retry = append(retry, row)
			continue
		}

		delivered = append(delivered, row.ID)
	}

	if err := p.store.MarkDelivered(ctx, delivered); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to mark rows delivered")
	}

	p.retryRows(ctx, retry)
}

func (p *Poller) retryRows(ctx context.Context, rows []*queue.Row) {
	for _, row := range rows {
		attempts := row.Attempts + 1
		nextRetryAt := p.clock.Now().Add(backoffFor(attempts))

		if err := p.store.UpdateRetry(ctx, row.ID, attempts, nextRetryAt); err != nil {
			p.logger.Warn().Err(err).Int64("row_id", row.ID).Msg("Failed to schedule retry")
		}
	}
}

func (p *Poller) maintain(ctx context.Context) {
	pruned, err := p.store.PruneExpired(ctx, time.Duration(p.config.Retention))
	if err != nil {
		p.logger.Warn().Err(err).Msg("Queue pruning failed")
		return
	}

	if pruned > 0 {
		p.logger.Info().Int64("pruned", pruned).Msg("Pruned expired queue rows")
	}
}
