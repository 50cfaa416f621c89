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

import "errors"

var (
	// ErrRegistrationDisabled is returned when no registration secret is
	// configured, so no new poller can ever validate.
	ErrRegistrationDisabled = errors.New("poller registration is disabled")

	// ErrForbidden is returned on a registration token mismatch.
	ErrForbidden = errors.New("invalid registration token")

	// ErrRateLimited is returned when a client exceeds the registration
	// rate limit.
	ErrRateLimited = errors.New("too many registration attempts")

	// ErrUnauthorized is returned for a missing, unknown, or revoked
	// poller token.
	ErrUnauthorized = errors.New("invalid poller token")

	// ErrTokenExpired is returned when a known token is past its expiry.
	ErrTokenExpired = errors.New("poller token expired")

	// ErrUnknownMonitor marks a result referencing a monitor that does
	// not exist.
	ErrUnknownMonitor = errors.New("unknown monitor")

	// ErrOwnershipMismatch marks a result uploaded by a poller that does
	// not currently own the monitor.
	ErrOwnershipMismatch = errors.New("monitor not assigned to poller")

	// ErrInvalidStatus marks a result with a status outside the enum.
	ErrInvalidStatus = errors.New("invalid heartbeat status")
)
