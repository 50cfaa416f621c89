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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedRateLimiterAllowsBurstThenDenies(t *testing.T) {
	limiter := NewKeyedRateLimiter(0, 0, 0)

	for i := 0; i < defaultRateBurst; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"), "attempt %d within burst", i)
	}

	assert.False(t, limiter.Allow("10.0.0.1"))
}

func TestKeyedRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewKeyedRateLimiter(0, 0, 0)

	for i := 0; i < defaultRateBurst; i++ {
		limiter.Allow("10.0.0.1")
	}

	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestKeyedRateLimiterRefillsOverTime(t *testing.T) {
	limiter := NewKeyedRateLimiter(0, 0, 0)

	now := time.Now()
	limiter.now = func() time.Time { return now }

	for i := 0; i < defaultRateBurst; i++ {
		limiter.Allow("10.0.0.1")
	}

	assert.False(t, limiter.Allow("10.0.0.1"))

	// One token refills every six seconds at 10/min.
	now = now.Add(7 * time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
}

func TestKeyedRateLimiterEvictsIdleKeys(t *testing.T) {
	limiter := NewKeyedRateLimiter(0, 0, time.Minute)

	now := time.Now()
	limiter.now = func() time.Time { return now }

	for i := 0; i < limiterSweepEntries; i++ {
		limiter.Allow(fmt.Sprintf("10.0.0.%d", i))
	}

	assert.Equal(t, limiterSweepEntries, limiter.Len())

	// Everything above is now idle past the TTL; the next insert sweeps.
	now = now.Add(2 * time.Minute)
	limiter.Allow("10.0.1.1")

	assert.Equal(t, 1, limiter.Len())
}
