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
	"os"

	"github.com/carverauto/probemesh/pkg/db"
	"github.com/carverauto/probemesh/pkg/logger"
)

const defaultListenAddr = ":8090"

// Config is the coordinator configuration. Environment variables override
// file-provided values.
type Config struct {
	ListenAddr string         `json:"listen_addr,omitempty"`
	Database   db.Config      `json:"database"`
	NATSURL    string         `json:"nats_url,omitempty"`
	AdminKey   string         `json:"admin_key,omitempty"`
	Logging    *logger.Config `json:"logging,omitempty"`
}

// Validate applies environment overrides and defaults. It satisfies
// config.Validator.
func (c *Config) Validate() error {
	overrides := map[string]*string{
		"CORE_LISTEN_ADDR": &c.ListenAddr,
		"CORE_ADMIN_KEY":   &c.AdminKey,
		"NATS_URL":         &c.NATSURL,
		"DB_HOST":          &c.Database.Host,
		"DB_NAME":          &c.Database.Database,
		"DB_USER":          &c.Database.Username,
		"DB_PASSWORD":      &c.Database.Password,
	}

	for key, dst := range overrides {
		if value := os.Getenv(key); value != "" {
			*dst = value
		}
	}

	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	return nil
}
