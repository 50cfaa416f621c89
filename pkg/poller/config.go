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

package poller

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/carverauto/probemesh/pkg/config"
	"github.com/carverauto/probemesh/pkg/models"
)

const (
	defaultHeartbeatInterval  = 15 * time.Second
	defaultAssignmentInterval = 30 * time.Second
	defaultUploadInterval     = 10 * time.Second
	defaultSchedulerInterval  = 5 * time.Second
	defaultMaintenanceFloor   = 10 * time.Second
	defaultRetention          = 24 * time.Hour
	defaultUploadBatchSize    = 50
	defaultDBPath             = "poller.db"
)

var errServerURLRequired = errors.New("server_url is required")

// Config is the poller agent configuration. Environment variables override
// the file-provided values so containerized agents can run without one.
type Config struct {
	ServerURL         string          `json:"server_url"`
	PollerID          string          `json:"poller_id,omitempty"`
	Token             string          `json:"token,omitempty"`
	RegistrationToken string          `json:"registration_token,omitempty"`
	Name              string          `json:"name,omitempty"`
	Region            string          `json:"region,omitempty"`
	Datacenter        string          `json:"datacenter,omitempty"`
	Capabilities      map[string]bool `json:"capabilities,omitempty"`
	Version           string          `json:"version,omitempty"`
	DBPath            string          `json:"db_path,omitempty"`

	HeartbeatInterval  models.Duration `json:"heartbeat_interval,omitempty"`
	AssignmentInterval models.Duration `json:"assignment_interval,omitempty"`
	UploadInterval     models.Duration `json:"upload_interval,omitempty"`
	SchedulerInterval  models.Duration `json:"scheduler_interval,omitempty"`
	Retention          models.Duration `json:"retention,omitempty"`
	UploadBatchSize    int             `json:"upload_batch_size,omitempty"`
}

// Validate applies environment overrides and defaults, then checks the
// result. It satisfies config.Validator.
func (c *Config) Validate() error {
	c.applyEnv()

	if c.ServerURL == "" {
		return errServerURLRequired
	}

	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}

	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = models.Duration(defaultHeartbeatInterval)
	}

	if c.AssignmentInterval <= 0 {
		c.AssignmentInterval = models.Duration(defaultAssignmentInterval)
	}

	if c.UploadInterval <= 0 {
		c.UploadInterval = models.Duration(defaultUploadInterval)
	}

	if c.SchedulerInterval <= 0 {
		c.SchedulerInterval = models.Duration(defaultSchedulerInterval)
	}

	if c.Retention <= 0 {
		c.Retention = models.Duration(defaultRetention)
	}

	if c.UploadBatchSize <= 0 {
		c.UploadBatchSize = defaultUploadBatchSize
	}

	return nil
}

// MaintenanceInterval is tied to the upload cadence with a 10s floor.
func (c *Config) MaintenanceInterval() time.Duration {
	interval := time.Duration(c.UploadInterval)
	if interval < defaultMaintenanceFloor {
		return defaultMaintenanceFloor
	}

	return interval
}

func (c *Config) applyEnv() {
	c.ServerURL = config.EnvString("POLLER_SERVER_URL", c.ServerURL)
	c.PollerID = config.EnvString("POLLER_ID", c.PollerID)
	c.Token = config.EnvString("POLLER_TOKEN", c.Token)
	c.RegistrationToken = config.EnvString("POLLER_REGISTRATION_TOKEN", c.RegistrationToken)
	c.Name = config.EnvString("POLLER_NAME", c.Name)
	c.Region = config.EnvString("POLLER_REGION", c.Region)
	c.Datacenter = config.EnvString("POLLER_DATACENTER", c.Datacenter)
	c.DBPath = config.EnvString("POLLER_DB_PATH", c.DBPath)

	if raw := os.Getenv("POLLER_CAPABILITIES_JSON"); raw != "" {
		var capabilities map[string]bool
		if err := json.Unmarshal([]byte(raw), &capabilities); err == nil {
			c.Capabilities = capabilities
		}
	}

	seconds := map[string]*models.Duration{
		"POLLER_HEARTBEAT_INTERVAL_SECONDS":   &c.HeartbeatInterval,
		"POLLER_ASSIGNMENTS_INTERVAL_SECONDS": &c.AssignmentInterval,
		"POLLER_UPLOAD_INTERVAL_SECONDS":      &c.UploadInterval,
		"POLLER_SCHEDULER_INTERVAL_SECONDS":   &c.SchedulerInterval,
		"POLLER_QUEUE_RETENTION_SECONDS":      &c.Retention,
	}

	for key, dst := range seconds {
		if v := config.EnvInt(key, 0); v > 0 {
			*dst = models.Duration(time.Duration(v) * time.Second)
		}
	}

	if v := config.EnvInt("POLLER_UPLOAD_BATCH_SIZE", 0); v > 0 {
		c.UploadBatchSize = v
	}
}
