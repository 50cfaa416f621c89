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
	"strings"
	"time"

	"github.com/carverauto/probemesh/pkg/models"
)

const defaultDNSPort = "53"

func probeDNS(ctx context.Context, config *models.ProbeConfig) Result {
	resolver := net.DefaultResolver

	if config.DNSResolveServer != "" {
		server := config.DNSResolveServer
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, defaultDNSPort)
		}

		resolver = &net.Resolver{
			PreferGo: true,
			Dial: func(dialCtx context.Context, network, _ string) (net.Conn, error) {
				d := net.Dialer{Timeout: timeoutFor(config)}
				return d.DialContext(dialCtx, network, server)
			},
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, timeoutFor(config))
	defer cancel()

	resolveType := strings.ToUpper(config.DNSResolveType)
	if resolveType == "" {
		resolveType = "A"
	}

	start := time.Now()

	records, err := resolveRecords(queryCtx, resolver, resolveType, config.Hostname)
	if err != nil {
		return down(err.Error())
	}

	latency := time.Since(start)

	if len(records) == 0 {
		return down(fmt.Sprintf("no %s records for %s", resolveType, config.Hostname))
	}

	return up(fmt.Sprintf("%s: %s", resolveType, strings.Join(records, ", ")), latency)
}

func resolveRecords(ctx context.Context, resolver *net.Resolver, resolveType, hostname string) ([]string, error) {
	switch resolveType {
	case "A", "AAAA":
		network := "ip4"
		if resolveType == "AAAA" {
			network = "ip6"
		}

		addrs, err := resolver.LookupIP(ctx, network, hostname)
		if err != nil {
			return nil, err
		}

		records := make([]string, 0, len(addrs))
		for _, addr := range addrs {
			records = append(records, addr.String())
		}

		return records, nil
	case "CNAME":
		cname, err := resolver.LookupCNAME(ctx, hostname)
		if err != nil {
			return nil, err
		}

		return []string{cname}, nil
	case "MX":
		mxs, err := resolver.LookupMX(ctx, hostname)
		if err != nil {
			return nil, err
		}

		records := make([]string, 0, len(mxs))
		for _, mx := range mxs {
			records = append(records, fmt.Sprintf("%s (pref %d)", mx.Host, mx.Pref))
		}

		return records, nil
	case "NS":
		nss, err := resolver.LookupNS(ctx, hostname)
		if err != nil {
			return nil, err
		}

		records := make([]string, 0, len(nss))
		for _, ns := range nss {
			records = append(records, ns.Host)
		}

		return records, nil
	case "TXT":
		return resolver.LookupTXT(ctx, hostname)
	default:
		return nil, fmt.Errorf("unsupported dns resolve type: %s", resolveType)
	}
}
