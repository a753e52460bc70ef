// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package bridge

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"

	"github.com/fwioo/me4l/pkg/rcr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub maintains connected WebSocket clients, broadcasts driver events to
// them and applies their commands to the controller.
type Hub struct {
	ctrl   Controller
	logger *zap.Logger

	// Registered clients
	clients map[uuid.UUID]*client
	mu      sync.RWMutex

	register   chan *client
	unregister chan *client
	done       chan struct{}

	username string
	password string
}

// NewHub creates a hub driving ctrl.
func NewHub(ctrl Controller, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		ctrl:       ctrl,
		logger:     logger,
		clients:    make(map[uuid.UUID]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// SetBasicAuth requires HTTP Basic credentials on upgrade. An empty
// username disables the check.
func (h *Hub) SetBasicAuth(username, password string) {
	h.username = username
	h.password = password
}

// Run registers clients and broadcasts events until ctx is done. All
// clients are disconnected on return.
func (h *Hub) Run(ctx context.Context, events <-chan rcr.Event) {
	h.logger.Info("Bridge hub started")
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Bridge client registered",
				zap.String("client_id", c.id.String()),
				zap.String("remote_addr", c.conn.RemoteAddr().String()),
				zap.Int("total_clients", total))

		case c := <-h.unregister:
			h.drop(c, "disconnected")

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			frame, ok := FrameFromEvent(ev)
			if !ok {
				continue
			}
			h.Broadcast(frame)
		}
	}
}

// Broadcast sends a frame to every client. Clients whose send buffer is
// full are dropped.
func (h *Hub) Broadcast(f Frame) {
	data, err := EncodeFrame(f)
	if err != nil {
		h.logger.Error("Failed to encode frame", zap.String("kind", f.Kind), zap.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.drop(c, "send buffer full")
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) drop(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Info("Bridge client unregistered",
			zap.String("client_id", c.id.String()),
			zap.String("reason", reason),
			zap.Int("total_clients", total))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.logger.Info("Bridge hub stopped")
}

// reply queues a frame for one client. It gives up if the client is gone
// or its buffer is full.
func (h *Hub) reply(c *client, f Frame) {
	data, err := EncodeFrame(f)
	if err != nil {
		h.logger.Error("Failed to encode reply", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("Reply dropped", zap.String("client_id", c.id.String()))
	}
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.password)) == 1
	return userOK && passOK
}
