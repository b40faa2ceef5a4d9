// Copyright 2023 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/abcxyz/pkg/healthcheck"
	"github.com/abcxyz/pkg/logging"

	"github.com/alexjg/radicle-client-services/pkg/version"
)

// clientBuffer is the per-client outbound buffer. A client that cannot keep
// up loses events rather than stalling the hub.
const clientBuffer = 32

type client struct {
	id   string
	send chan Event
}

// Hub consumes the feed and forwards every event to all subscribed clients.
type Hub struct {
	feed *Feed

	mu      sync.Mutex
	clients map[string]*client
}

// NewHub creates a hub reading from feed.
func NewHub(feed *Feed) *Hub {
	return &Hub{
		feed:    feed,
		clients: make(map[string]*client),
	}
}

// Run forwards feed events to clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck // Want passthrough
		case e := <-h.feed.Events():
			h.mu.Lock()
			for _, c := range h.clients {
				select {
				case c.send <- e:
				default:
					logger.ErrorContext(ctx, "dashboard client lagging, dropping event",
						"task", "dashboard",
						"client", c.id,
						"kind", string(e.Kind))
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) subscribe() *client {
	c := &client{
		id:   uuid.New().String(),
		send: make(chan Event, clientBuffer),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
}

// Server admits dashboard clients and pushes hub events to them.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer creates the dashboard HTTP surface around the given hub.
func NewServer(hub *Hub) *Server {
	return &Server{
		hub: hub,
		// The zero upgrader rejects cross-origin pages; the dashboard is
		// same-host tooling.
		upgrader: websocket.Upgrader{},
	}
}

// Routes builds the ServeMux of all routes this server supports.
func (s *Server) Routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", healthcheck.HandleHTTPHealthCheck())
	mux.Handle("/events", s.handleEvents(ctx))
	mux.Handle("/version", s.handleVersion())
	return mux
}

// handleVersion responds with version information for the server.
func (s *Server) handleVersion() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"version":%q}`+"\n", version.HumanVersion)
	})
}

// handleEvents upgrades the connection and streams hub events until the
// client disconnects.
func (s *Server) handleEvents(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.FromContext(ctx)

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.ErrorContext(ctx, "websocket upgrade failed",
				"task", "dashboard",
				"error", err)
			return
		}
		defer conn.Close()

		c := s.hub.subscribe()
		defer s.hub.unsubscribe(c)

		logger.InfoContext(ctx, "dashboard client connected",
			"task", "dashboard",
			"client", c.id)

		// Reader goroutine: we never expect payloads, but reading is how
		// the close handshake is observed.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				logger.InfoContext(ctx, "dashboard client disconnected",
					"task", "dashboard",
					"client", c.id)
				return
			case e := <-c.send:
				if err := conn.WriteJSON(e); err != nil {
					logger.ErrorContext(ctx, "dashboard write failed",
						"task", "dashboard",
						"client", c.id,
						"error", err)
					return
				}
			}
		}
	})
}
