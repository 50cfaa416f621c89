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

	"github.com/carverauto/probemesh/pkg/config"
	"github.com/carverauto/probemesh/pkg/lifecycle"
	"github.com/carverauto/probemesh/pkg/poller"
)

func main() {
	configPath := flag.String("config", "/etc/probemesh/poller.json", "Path to poller config file")
	flag.Parse()

	if err := run(context.Background(), *configPath); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	var cfg poller.Config

	if _, err := os.Stat(configPath); err == nil {
		loader := config.NewLoader(nil)
		if err := loader.LoadAndValidate(ctx, configPath, &cfg); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		// Containerized agents configure themselves from the environment.
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logInstance, err := lifecycle.CreateComponentLogger("poller", nil)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	agent, err := poller.New(ctx, &cfg, logInstance)
	if err != nil {
		return fmt.Errorf("failed to initialize poller: %w", err)
	}

	return lifecycle.Run(ctx, agent, logInstance)
}
