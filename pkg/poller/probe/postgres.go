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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/probemesh/pkg/models"
)

const defaultPostgresQuery = "SELECT 1"

func probePostgres(ctx context.Context, config *models.ProbeConfig) Result {
	query := config.DatabaseQuery
	if query == "" {
		query = defaultPostgresQuery
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeoutFor(config))
	defer cancel()

	start := time.Now()

	conn, err := pgx.Connect(probeCtx, config.DatabaseConnectionString)
	if err != nil {
		return down(err.Error())
	}

	defer func() {
		_ = conn.Close(context.Background())
	}()

	rows, err := conn.Query(probeCtx, query)
	if err != nil {
		return down(err.Error())
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}

	if err := rows.Err(); err != nil {
		return down(err.Error())
	}

	return up(fmt.Sprintf("Rows: %d", count), time.Since(start))
}
