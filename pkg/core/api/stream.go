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

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/probemesh/pkg/logger"
	"github.com/carverauto/probemesh/pkg/models"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamSendBuffer   = 16
)

// StreamMessage is one frame pushed to websocket subscribers.
type StreamMessage struct {
	Type      string            `json:"type"`
	Heartbeat *models.Heartbeat `json:"heartbeat,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan StreamMessage
}

// StreamHub broadcasts reconciled heartbeats to live websocket clients.
// It satisfies core.HeartbeatPublisher; a slow client's frames are dropped
// rather than blocking the reconciler.
type StreamHub struct {
	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan StreamMessage
	logger     logger.Logger
}

// NewStreamHub returns an idle hub; call Run to start it.
func NewStreamHub(log logger.Logger) *StreamHub {
	return &StreamHub{
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan StreamMessage, streamSendBuffer),
		logger:     log,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *StreamHub) Run(ctx context.Context) {
	clients := make(map[*streamClient]struct{})

	defer func() {
		for client := range clients {
			close(client.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := clients[client]; ok {
				delete(clients, client)
				close(client.send)
			}
		case msg := <-h.broadcast:
			for client := range clients {
				select {
				case client.send <- msg:
				default:
					// Slow consumer; drop the frame.
				}
			}
		}
	}
}

// PublishHeartbeat queues one heartbeat for broadcast.
func (h *StreamHub) PublishHeartbeat(_ context.Context, hb *models.Heartbeat) error {
	msg := StreamMessage{Type: "heartbeat", Heartbeat: hb, Timestamp: time.Now()}

	select {
	case h.broadcast <- msg:
	default:
		// Nobody draining fast enough; live updates are best-effort.
	}

	return nil
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade to WebSocket")
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan StreamMessage, streamSendBuffer),
	}

	s.hub.register <- client

	go s.writeStream(client)
	s.readStream(client)
}

// readStream drains incoming frames until the peer goes away, then
// unregisters the client.
func (s *Server) readStream(client *streamClient) {
	defer func() {
		s.hub.unregister <- client
		client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeStream(client *streamClient) {
	defer client.conn.Close()

	for msg := range client.send {
		if err := client.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			return
		}

		if err := client.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
