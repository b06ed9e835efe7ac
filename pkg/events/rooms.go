// Package events holds the real-time fan-out surfaces: per-call monitor
// rooms and the per-user notification bus. Both broadcast over WebSocket
// and treat send failures as log-only; a slow or dead monitor never stalls
// the call path.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// MonitorConn is one operator console attached to a call.
type MonitorConn struct {
	ID     string
	Conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// RoomManager tracks monitor rooms keyed by call_id. A room is created on
// first attach and destroyed when its last monitor detaches.
type RoomManager struct {
	mu           sync.RWMutex
	rooms        map[string]map[string]*MonitorConn
	writeTimeout time.Duration
}

// NewRoomManager creates an empty room manager with the given per-send
// write timeout.
func NewRoomManager(writeTimeout time.Duration) *RoomManager {
	return &RoomManager{
		rooms:        make(map[string]map[string]*MonitorConn),
		writeTimeout: writeTimeout,
	}
}

// Attach registers a monitor connection in the call's room, creating the
// room if this is the first monitor. The returned handle must be passed to
// Detach when the connection closes.
func (m *RoomManager) Attach(parentCtx context.Context, callID string, ws *websocket.Conn) *MonitorConn {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &MonitorConn{
		ID:     uuid.New().String(),
		Conn:   ws,
		ctx:    ctx,
		cancel: cancel,
	}

	m.mu.Lock()
	room, ok := m.rooms[callID]
	if !ok {
		room = make(map[string]*MonitorConn)
		m.rooms[callID] = room
	}
	room[c.ID] = c
	m.mu.Unlock()

	slog.Debug("Monitor attached", "call_id", callID, "connection_id", c.ID)
	return c
}

// Detach removes a monitor from the call's room and deletes the room when
// it becomes empty. Closing the underlying socket is left to the read loop
// that owns it.
func (m *RoomManager) Detach(callID string, c *MonitorConn) {
	m.mu.Lock()
	if room, ok := m.rooms[callID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(m.rooms, callID)
		}
	}
	m.mu.Unlock()

	c.cancel()
	slog.Debug("Monitor detached", "call_id", callID, "connection_id", c.ID)
}

// Broadcast sends a JSON payload to every monitor in the call's room.
// The subscriber list is snapshotted under the lock before sending so a
// concurrent attach/detach cannot corrupt the iteration, and slow writes
// (up to writeTimeout per connection) never hold the lock. Send failures
// only log; the failed monitor is reaped by its own read loop.
func (m *RoomManager) Broadcast(callID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal monitor payload", "call_id", callID, "error", err)
		return
	}

	m.mu.RLock()
	room := m.rooms[callID]
	conns := make([]*MonitorConn, 0, len(room))
	for _, c := range room {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := m.send(c, data); err != nil {
			slog.Warn("Failed to send to monitor",
				"call_id", callID, "connection_id", c.ID, "error", err)
		}
	}
}

// RoomSize returns the number of monitors attached to a call.
func (m *RoomManager) RoomSize(callID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[callID])
}

// ActiveRooms returns the number of calls with at least one monitor.
func (m *RoomManager) ActiveRooms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *RoomManager) send(c *MonitorConn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
