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

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/probemesh/pkg/models"
)

const (
	defaultSNMPPort      = 161
	defaultSNMPCommunity = "public"
)

func probeSNMP(ctx context.Context, config *models.ProbeConfig) Result {
	port := config.Port
	if port <= 0 {
		port = defaultSNMPPort
	}

	community := config.SNMPCommunity
	if community == "" {
		community = defaultSNMPCommunity
	}

	version := gosnmp.Version2c
	if config.SNMPVersion == "1" || config.SNMPVersion == "v1" {
		version = gosnmp.Version1
	}

	client := &gosnmp.GoSNMP{
		Target:    config.Hostname,
		Port:      uint16(port),
		Community: community,
		Version:   version,
		Timeout:   timeoutFor(config),
		Retries:   1,
		Context:   ctx,
	}

	start := time.Now()

	if err := client.Connect(); err != nil {
		return down(err.Error())
	}
	defer client.Conn.Close()

	packet, err := client.Get([]string{config.SNMPOid})
	if err != nil {
		return down(err.Error())
	}

	latency := time.Since(start)

	if len(packet.Variables) == 0 {
		return down(fmt.Sprintf("no value for OID %s", config.SNMPOid))
	}

	variable := packet.Variables[0]
	if variable.Type == gosnmp.NoSuchObject || variable.Type == gosnmp.NoSuchInstance {
		return down(fmt.Sprintf("OID %s not found", config.SNMPOid))
	}

	return up(fmt.Sprintf("%s = %v", config.SNMPOid, variable.Value), latency)
}
