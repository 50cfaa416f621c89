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

package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/carverauto/probemesh/pkg/models"
)

func probeTCP(ctx context.Context, config *models.ProbeConfig) Result {
	address := net.JoinHostPort(config.Hostname, strconv.Itoa(config.Port))

	dialer := net.Dialer{Timeout: timeoutFor(config)}
	start := time.Now()

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return down(err.Error())
	}

	latency := time.Since(start)
	_ = conn.Close()

	return up(fmt.Sprintf("connected to %s", address), latency)
}
