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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/carverauto/probemesh/pkg/config"
	"github.com/carverauto/probemesh/pkg/core"
	"github.com/carverauto/probemesh/pkg/core/api"
	"github.com/carverauto/probemesh/pkg/core/events"
	"github.com/carverauto/probemesh/pkg/db"
	"github.com/carverauto/probemesh/pkg/lifecycle"
	"github.com/carverauto/probemesh/pkg/models"
)

// fanout forwards each heartbeat to every configured publisher. Publisher
// failures are swallowed upstream; reconciliation never depends on them.
type fanout struct {
	publishers []core.HeartbeatPublisher
}

func (f *fanout) PublishHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	for _, p := range f.publishers {
		if err := p.PublishHeartbeat(ctx, hb); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	configPath := flag.String("config", "/etc/probemesh/core.json", "Path to core config file")
	flag.Parse()

	if err := run(context.Background(), *configPath); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	var cfg core.Config

	loader := config.NewLoader(nil)
	if err := loader.LoadAndValidate(ctx, configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logInstance, err := lifecycle.CreateComponentLogger("core", cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	database, err := db.New(ctx, &cfg.Database, logInstance)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	publisher, err := events.Connect(cfg.NATSURL, "probemesh-core", logInstance)
	if err != nil {
		return fmt.Errorf("failed to connect to event bus: %w", err)
	}

	if publisher != nil {
		defer publisher.Close()
	}

	limiter := core.NewKeyedRateLimiter(0, 0, 0)
	registry := core.NewRegistry(database, limiter, logInstance)

	sink := &fanout{}
	meter := otel.GetMeterProvider().Meter("probemesh-core")
	reconciler := core.NewReconciler(database, nil, nil, sink, meter, logInstance)

	service := core.NewService(database, registry, reconciler, logInstance)

	server := api.NewServer(service,
		api.WithListenAddr(cfg.ListenAddr),
		api.WithLogger(logInstance),
		api.WithAdminKey(cfg.AdminKey),
	)

	// The hub only exists once the server does; bind the fanout before any
	// traffic is served.
	sink.publishers = append(sink.publishers, server.Hub())

	if publisher != nil {
		sink.publishers = append(sink.publishers, publisher)
	}

	return lifecycle.Run(ctx, server, logInstance)
}
