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
	"crypto/sha1" //nolint:gosec // change-detection fingerprint, not authentication
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/carverauto/probemesh/pkg/models"
)

const minPollerWeight = 0.05

// hashToUnit maps a key deterministically into [0, 1]. Every coordinator
// replica computes the same value for the same key, which is what makes
// weighted assignment reproducible without shared state.
func hashToUnit(key string) float64 {
	sum := sha1.Sum([]byte(key)) //nolint:gosec
	n := binary.BigEndian.Uint32(sum[:4])

	return float64(n) / float64(0xffffffff)
}

// pollerWeight converts a poller's configured weight plus its live health
// into a score multiplier. Degraded pollers count half, backlogged pollers
// are biased against proportionally to their queue depth.
func pollerWeight(p *models.Poller) float64 {
	w := float64(p.Weight) / 100.0
	if w < minPollerWeight {
		w = minPollerWeight
	}

	if p.Status == models.PollerDegraded {
		w *= 0.5
	}

	depth := p.QueueDepth
	if depth < 0 {
		depth = 0
	}

	w /= float64(1 + depth)
	if w < minPollerWeight {
		w = minPollerWeight
	}

	return w
}

// resolveOwner picks the winning poller for a monitor out of a candidate
// pool using weighted rendezvous hashing. Ties fall to the lexicographically
// lowest poller id so every node agrees.
func resolveOwner(monitorID int64, candidates []*models.Poller) *models.Poller {
	var (
		winner    *models.Poller
		bestScore float64
	)

	for _, candidate := range candidates {
		key := strconv.FormatInt(monitorID, 10) + ":" + candidate.ID
		score := hashToUnit(key) * pollerWeight(candidate)

		if winner == nil || score > bestScore ||
			(score == bestScore && candidate.ID < winner.ID) {
			winner = candidate
			bestScore = score
		}
	}

	return winner
}

// BuildAssignments computes the assignment list for one poller, pure over
// the given snapshot of all pollers and all remotely-executable monitors.
// An empty result is a valid answer, never an error.
func BuildAssignments(poller *models.Poller, pollers []*models.Poller, monitors []*models.Monitor) []models.Assignment {
	online := make([]*models.Poller, 0, len(pollers))

	for _, p := range pollers {
		if p.Status == models.PollerOnline || p.Status == models.PollerDegraded {
			online = append(online, p)
		}
	}

	assignments := make([]models.Assignment, 0)

	for _, monitor := range monitors {
		if !ownsMonitor(poller, online, monitor) {
			continue
		}

		assignments = append(assignments, models.Assignment{
			MonitorID: monitor.ID,
			Interval:  monitor.IntervalSeconds,
			Type:      monitor.Type,
			Config:    monitor.Config,
		})
	}

	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].MonitorID < assignments[j].MonitorID
	})

	return assignments
}

func ownsMonitor(poller *models.Poller, online []*models.Poller, monitor *models.Monitor) bool {
	switch monitor.PollerMode {
	case models.PollerModeLocal:
		return false
	case models.PollerModePinned:
		if monitor.PollerID == nil || *monitor.PollerID != poller.ID {
			return false
		}

		return poller.HasCapability(monitor.PollerCapability)
	case models.PollerModeGrouped:
		candidates := filterCandidates(online, monitor, true)
		owner := resolveOwner(monitor.ID, candidates)

		return owner != nil && owner.ID == poller.ID
	default:
		candidates := filterCandidates(online, monitor, false)
		owner := resolveOwner(monitor.ID, candidates)

		return owner != nil && owner.ID == poller.ID
	}
}

// filterCandidates narrows the online pool to capability matches, and for
// grouped monitors additionally to the configured region and datacenter.
func filterCandidates(online []*models.Poller, monitor *models.Monitor, scoped bool) []*models.Poller {
	candidates := make([]*models.Poller, 0, len(online))

	for _, p := range online {
		if !p.HasCapability(monitor.PollerCapability) {
			continue
		}

		if scoped {
			if monitor.PollerRegion != "" && p.Region != monitor.PollerRegion {
				continue
			}

			if monitor.PollerDatacenter != "" && p.Datacenter != monitor.PollerDatacenter {
				continue
			}
		}

		candidates = append(candidates, p)
	}

	return candidates
}

// ComputeAssignmentVersion fingerprints an assignment list. The list is
// canonically sorted before hashing, so equal content always yields an
// equal version regardless of input order and pollers can skip unchanged
// pulls.
func ComputeAssignmentVersion(assignments []models.Assignment) (int64, error) {
	canonical := make([]models.Assignment, len(assignments))
	copy(canonical, assignments)

	sort.Slice(canonical, func(i, j int) bool {
		return canonical[i].MonitorID < canonical[j].MonitorID
	})

	payload, err := json.Marshal(canonical)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize assignments: %w", err)
	}

	sum := sha1.Sum(payload) //nolint:gosec
	version, err := strconv.ParseInt(fmt.Sprintf("%x", sum[:4]), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to derive assignment version: %w", err)
	}

	return version, nil
}
