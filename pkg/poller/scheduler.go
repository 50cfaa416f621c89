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

package poller

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/probemesh/pkg/logger"
	"github.com/carverauto/probemesh/pkg/models"
	"github.com/carverauto/probemesh/pkg/poller/probe"
	"github.com/carverauto/probemesh/pkg/poller/queue"
)

const defaultMonitorInterval = 60 * time.Second

// resultSink receives completed check outcomes. Satisfied by the durable
// queue store.
type resultSink interface {
	Enqueue(ctx context.Context, row *queue.Row) error
}

// Scheduler drives probe execution for the current assignment set. A tick
// is a no-op while the previous generation's probes are still in flight.
type Scheduler struct {
	mu          sync.Mutex
	assignments []models.Assignment
	lastRun     map[int64]time.Time
	running     bool

	sink   resultSink
	clock  Clock
	logger logger.Logger
}

// NewScheduler builds a scheduler delivering results to the sink.
func NewScheduler(sink resultSink, clock Clock, log logger.Logger) *Scheduler {
	return &Scheduler{
		lastRun: make(map[int64]time.Time),
		sink:    sink,
		clock:   clock,
		logger:  log,
	}
}

// UpdateAssignments replaces the assignment list and prunes the last-run
// bookkeeping of monitors no longer assigned here.
func (s *Scheduler) UpdateAssignments(assignments []models.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignments = assignments

	keep := make(map[int64]struct{}, len(assignments))
	for _, assignment := range assignments {
		keep[assignment.MonitorID] = struct{}{}
	}

	for monitorID := range s.lastRun {
		if _, ok := keep[monitorID]; !ok {
			delete(s.lastRun, monitorID)
		}
	}
}

// Tick executes every due assignment. Probes within a generation run
// concurrently; Tick returns once all have finished. The last-run time of a
// due monitor advances regardless of outcome so a persistently failing
// check cannot hot-loop.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()

	if s.running {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	due := make([]models.Assignment, 0)

	for _, assignment := range s.assignments {
		interval := time.Duration(assignment.Interval) * time.Second
		if interval <= 0 {
			interval = defaultMonitorInterval
		}

		lastRun, ran := s.lastRun[assignment.MonitorID]
		if ran && now.Sub(lastRun) < interval {
			continue
		}

		s.lastRun[assignment.MonitorID] = now
		due = append(due, assignment)
	}

	if len(due) == 0 {
		s.mu.Unlock()
		return
	}

	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var wg sync.WaitGroup

	for i := range due {
		assignment := due[i]

		wg.Add(1)

		go func() {
			defer wg.Done()
			s.runOne(ctx, &assignment)
		}()
	}

	wg.Wait()
}

func (s *Scheduler) runOne(ctx context.Context, assignment *models.Assignment) {
	at := s.clock.Now()

	var result probe.Result

	kind, err := probe.ParseKind(assignment.Type)
	if err != nil {
		result = probe.Result{Status: models.StatusDown, Msg: err.Error()}
	} else {
		result = probe.Execute(ctx, kind, &assignment.Config)
	}

	row := &queue.Row{
		MonitorID: assignment.MonitorID,
		TS:        at.UnixMilli(),
		Status:    result.Status,
		LatencyMs: result.LatencyMs,
		Msg:       result.Msg,
	}

	if err := s.sink.Enqueue(ctx, row); err != nil {
		s.logger.Error().Err(err).Int64("monitor_id", assignment.MonitorID).Msg("Failed to enqueue check result")
		return
	}

	s.logger.Debug().
		Int64("monitor_id", assignment.MonitorID).
		Str("status", result.Status.String()).
		Msg("Check completed")
}
