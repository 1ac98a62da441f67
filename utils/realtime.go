package utils

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// WSConn is the subset of a websocket connection the hub needs. Satisfied by
// *websocket.Conn from gofiber/websocket/v2.
type WSConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub fans out realtime events to websocket subscribers, keyed by tenant.
// Writes to one connection are serialized: concurrent broadcasts (worker
// cycle plus a manual sync) must never interleave on the same conn.
// Connections that fail a write are dropped.
type Hub struct {
	mu    sync.RWMutex
	conns map[uint]map[WSConn]*sync.Mutex
}

func NewHub() *Hub {
	return &Hub{conns: make(map[uint]map[WSConn]*sync.Mutex)}
}

func (h *Hub) Register(tenantID uint, c WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[tenantID] == nil {
		h.conns[tenantID] = make(map[WSConn]*sync.Mutex)
	}
	h.conns[tenantID][c] = &sync.Mutex{}
}

func (h *Hub) Unregister(tenantID uint, c WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[tenantID], c)
	if len(h.conns[tenantID]) == 0 {
		delete(h.conns, tenantID)
	}
}

// Broadcast sends payload to every subscriber of the tenant
func (h *Hub) Broadcast(tenantID uint, payload interface{}) {
	h.mu.RLock()
	subscribers := make(map[WSConn]*sync.Mutex, len(h.conns[tenantID]))
	for c, wl := range h.conns[tenantID] {
		subscribers[c] = wl
	}
	h.mu.RUnlock()

	for c, wl := range subscribers {
		wl.Lock()
		err := c.WriteJSON(payload)
		wl.Unlock()

		if err != nil {
			logrus.WithError(err).Debug("dropping stale websocket subscriber")
			h.Unregister(tenantID, c)
			_ = c.Close()
		}
	}
}
