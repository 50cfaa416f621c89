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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/probemesh/pkg/models"
)

func TestConfigValidateRequiresServerURL(t *testing.T) {
	config := &Config{}

	err := config.Validate()
	require.ErrorIs(t, err, errServerURLRequired)
}

func TestConfigValidateAppliesDefaults(t *testing.T) {
	config := &Config{ServerURL: "http://localhost:8090"}

	require.NoError(t, config.Validate())

	assert.Equal(t, models.Duration(15*time.Second), config.HeartbeatInterval)
	assert.Equal(t, models.Duration(30*time.Second), config.AssignmentInterval)
	assert.Equal(t, models.Duration(10*time.Second), config.UploadInterval)
	assert.Equal(t, models.Duration(5*time.Second), config.SchedulerInterval)
	assert.Equal(t, models.Duration(24*time.Hour), config.Retention)
	assert.Equal(t, 50, config.UploadBatchSize)
	assert.Equal(t, "poller.db", config.DBPath)
}

func TestConfigValidateKeepsExplicitValues(t *testing.T) {
	config := &Config{
		ServerURL:         "http://localhost:8090",
		HeartbeatInterval: models.Duration(5 * time.Second),
		UploadBatchSize:   10,
		DBPath:            "/var/lib/probemesh/agent.db",
	}

	require.NoError(t, config.Validate())

	assert.Equal(t, models.Duration(5*time.Second), config.HeartbeatInterval)
	assert.Equal(t, 10, config.UploadBatchSize)
	assert.Equal(t, "/var/lib/probemesh/agent.db", config.DBPath)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("POLLER_SERVER_URL", "http://coordinator:8090")
	t.Setenv("POLLER_ID", "env-poller")
	t.Setenv("POLLER_TOKEN", "env-token")
	t.Setenv("POLLER_REGISTRATION_TOKEN", "env-reg")
	t.Setenv("POLLER_REGION", "eu-west")
	t.Setenv("POLLER_CAPABILITIES_JSON", `{"icmp": true, "snmp": false}`)

	config := &Config{ServerURL: "http://file-provided:1234", Region: "us-east"}

	require.NoError(t, config.Validate())

	assert.Equal(t, "http://coordinator:8090", config.ServerURL)
	assert.Equal(t, "env-poller", config.PollerID)
	assert.Equal(t, "env-token", config.Token)
	assert.Equal(t, "env-reg", config.RegistrationToken)
	assert.Equal(t, "eu-west", config.Region)
	assert.Equal(t, map[string]bool{"icmp": true, "snmp": false}, config.Capabilities)
}

func TestConfigEnvTunableOverrides(t *testing.T) {
	t.Setenv("POLLER_HEARTBEAT_INTERVAL_SECONDS", "3")
	t.Setenv("POLLER_ASSIGNMENTS_INTERVAL_SECONDS", "7")
	t.Setenv("POLLER_UPLOAD_INTERVAL_SECONDS", "4")
	t.Setenv("POLLER_SCHEDULER_INTERVAL_SECONDS", "2")
	t.Setenv("POLLER_QUEUE_RETENTION_SECONDS", "60")
	t.Setenv("POLLER_UPLOAD_BATCH_SIZE", "5")

	config := &Config{ServerURL: "http://localhost:8090"}

	require.NoError(t, config.Validate())

	assert.Equal(t, models.Duration(3*time.Second), config.HeartbeatInterval)
	assert.Equal(t, models.Duration(7*time.Second), config.AssignmentInterval)
	assert.Equal(t, models.Duration(4*time.Second), config.UploadInterval)
	assert.Equal(t, models.Duration(2*time.Second), config.SchedulerInterval)
	assert.Equal(t, models.Duration(60*time.Second), config.Retention)
	assert.Equal(t, 5, config.UploadBatchSize)
}

func TestConfigEnvTunableMalformedIgnored(t *testing.T) {
	t.Setenv("POLLER_HEARTBEAT_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("POLLER_UPLOAD_BATCH_SIZE", "-1")

	config := &Config{ServerURL: "http://localhost:8090"}

	require.NoError(t, config.Validate())

	assert.Equal(t, models.Duration(15*time.Second), config.HeartbeatInterval)
	assert.Equal(t, 50, config.UploadBatchSize)
}

func TestConfigMaintenanceIntervalFloor(t *testing.T) {
	config := &Config{
		ServerURL:      "http://localhost:8090",
		UploadInterval: models.Duration(2 * time.Second),
	}
	require.NoError(t, config.Validate())

	// Maintenance never runs more often than every 10 seconds.
	assert.Equal(t, 10*time.Second, config.MaintenanceInterval())

	config.UploadInterval = models.Duration(30 * time.Second)
	assert.Equal(t, 30*time.Second, config.MaintenanceInterval())
}
