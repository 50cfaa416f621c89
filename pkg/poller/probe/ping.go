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
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/carverauto/probemesh/pkg/models"
)

const (
	defaultPingPacketSize = 56
	defaultPingTimeout    = 2 * time.Second
	icmpProtocolNumber    = 1
)

// probePing sends one ICMP echo per configured count and reports the last
// round-trip time. Raw sockets need privilege; the udp4 fallback covers
// unprivileged Linux hosts with ping_group_range configured.
func probePing(ctx context.Context, config *models.ProbeConfig) Result {
	packetSize := config.PacketSize
	if packetSize <= 0 {
		packetSize = defaultPingPacketSize
	}

	perRequestTimeout := defaultPingTimeout
	if config.PingPerRequestTimeout > 0 {
		perRequestTimeout = time.Duration(config.PingPerRequestTimeout) * time.Second
	}

	count := config.PingCount
	if count <= 0 {
		count = 1
	}

	addr, err := net.ResolveIPAddr("ip4", config.Hostname)
	if err != nil {
		return down(err.Error())
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		conn, err = icmp.ListenPacket("udp4", "0.0.0.0")
		if err != nil {
			return down(fmt.Sprintf("icmp socket unavailable: %v", err))
		}
	}
	defer conn.Close()

	var dst net.Addr = addr
	if _, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		dst = &net.UDPAddr{IP: addr.IP}
	}

	var lastRTT time.Duration

	for seq := 0; seq < count; seq++ {
		if err := ctx.Err(); err != nil {
			return down(err.Error())
		}

		rtt, err := pingOnce(conn, dst, seq, packetSize, perRequestTimeout)
		if err != nil {
			return down(err.Error())
		}

		lastRTT = rtt
	}

	return up(fmt.Sprintf("%d/%d replies", count, count), lastRTT)
}

func pingOnce(conn *icmp.PacketConn, dst net.Addr, seq, packetSize int, timeout time.Duration) (time.Duration, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: make([]byte, packetSize),
		},
	}

	payload, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()

	if _, err := conn.WriteTo(payload, dst); err != nil {
		return 0, err
	}

	if err := conn.SetReadDeadline(start.Add(timeout)); err != nil {
		return 0, err
	}

	reply := make([]byte, 1500)

	for {
		n, _, err := conn.ReadFrom(reply)
		if err != nil {
			return 0, err
		}

		parsed, err := icmp.ParseMessage(icmpProtocolNumber, reply[:n])
		if err != nil {
			continue
		}

		if parsed.Type == ipv4.ICMPTypeEchoReply {
			return time.Since(start), nil
		}
	}
}
