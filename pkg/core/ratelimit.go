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
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRateLimit    = rate.Limit(10.0 / 60.0)
	defaultRateBurst    = 10
	defaultLimiterTTL   = 10 * time.Minute
	limiterSweepEntries = 64
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter owns one token bucket per client key with TTL-based
// eviction of idle entries. Instances are injected where throttling is
// needed, never shared through package globals.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewKeyedRateLimiter builds a limiter allowing limit events/sec with the
// given burst per key. Zero values fall back to the registration defaults
// of 10 per minute.
func NewKeyedRateLimiter(limit rate.Limit, burst int, ttl time.Duration) *KeyedRateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}

	if burst <= 0 {
		burst = defaultRateBurst
	}

	if ttl <= 0 {
		ttl = defaultLimiterTTL
	}

	return &KeyedRateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow reports whether one event for key may proceed now.
func (k *KeyedRateLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()

	entry, ok := k.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = entry
	}

	entry.lastSeen = now

	if len(k.entries) > limiterSweepEntries {
		k.evictLocked(now)
	}

	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (k *KeyedRateLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.entries)
}

func (k *KeyedRateLimiter) evictLocked(now time.Time) {
	for key, entry := range k.entries {
		if now.Sub(entry.lastSeen) > k.ttl {
			delete(k.entries, key)
		}
	}
}
