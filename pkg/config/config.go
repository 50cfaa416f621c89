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

// Package config loads service configuration from JSON files.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/carverauto/probemesh/pkg/logger"
)

var errLoadConfigFailed = errors.New("failed to load configuration")

// Validator is implemented by config structs that can check and default
// themselves after loading.
type Validator interface {
	Validate() error
}

// Loader holds the configuration loading dependencies.
type Loader struct {
	fileLoader *FileConfigLoader
	logger     logger.Logger
}

// NewLoader initializes a Loader. A nil logger falls back to a no-op one.
func NewLoader(log logger.Logger) *Loader {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Loader{
		fileLoader: &FileConfigLoader{},
		logger:     log,
	}
}

// LoadAndValidate reads the JSON file at path into dst and runs its
// Validate hook if it has one.
func (l *Loader) LoadAndValidate(ctx context.Context, path string, dst interface{}) error {
	if err := l.fileLoader.Load(ctx, path, dst); err != nil {
		return fmt.Errorf("%w: %w", errLoadConfigFailed, err)
	}

	if v, ok := dst.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %w", errLoadConfigFailed, err)
		}
	}

	l.logger.Debug().Str("path", path).Msg("Loaded configuration")

	return nil
}

// EnvString returns the environment value for key, or fallback when unset.
func EnvString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

// EnvInt parses an integer environment value, returning fallback when the
// variable is unset or malformed.
func EnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return parsed
}
