package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/csnavigator/callcopilot/pkg/models"
)

// Notification types pushed to operator consoles.
const (
	NotificationCallStarted = "CALL_STARTED"
	NotificationCallUpdated = "CALL_UPDATED"
	NotificationCallEnded   = "CALL_ENDED"
)

// WildcardUser subscribes a connection to every user's notifications.
const WildcardUser = "*"

// Notification is the payload sent on the notification bus.
type Notification struct {
	Type         string               `json:"type"`
	CallID       string               `json:"callId"`
	CustomerInfo *models.CustomerInfo `json:"customer_info,omitempty"`
}

// Notifier is the global per-user notification bus. Connections register
// under a user id (or the wildcard) and receive call lifecycle events.
type Notifier struct {
	mu           sync.RWMutex
	users        map[string]map[string]*MonitorConn
	writeTimeout time.Duration
}

// NewNotifier creates an empty notification bus.
func NewNotifier(writeTimeout time.Duration) *Notifier {
	return &Notifier{
		users:        make(map[string]map[string]*MonitorConn),
		writeTimeout: writeTimeout,
	}
}

// Subscribe registers a connection for a user's notifications.
func (n *Notifier) Subscribe(parentCtx context.Context, userID string, ws *websocket.Conn) *MonitorConn {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &MonitorConn{
		ID:     uuid.New().String(),
		Conn:   ws,
		ctx:    ctx,
		cancel: cancel,
	}

	n.mu.Lock()
	conns, ok := n.users[userID]
	if !ok {
		conns = make(map[string]*MonitorConn)
		n.users[userID] = conns
	}
	conns[c.ID] = c
	n.mu.Unlock()

	slog.Debug("Notification subscriber added", "user_id", userID, "connection_id", c.ID)
	return c
}

// Unsubscribe removes a connection from a user's set.
func (n *Notifier) Unsubscribe(userID string, c *MonitorConn) {
	n.mu.Lock()
	if conns, ok := n.users[userID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(n.users, userID)
		}
	}
	n.mu.Unlock()
	c.cancel()
}

// Notify sends a notification to one user's connections plus all wildcard
// subscribers. Send failures only log.
func (n *Notifier) Notify(userID string, notification Notification) {
	data, err := json.Marshal(notification)
	if err != nil {
		slog.Warn("Failed to marshal notification", "type", notification.Type, "error", err)
		return
	}
	n.deliver(n.snapshot(userID, WildcardUser), data)
}

// NotifyAll sends a notification to every subscribed connection. Used for
// call lifecycle events that are not addressed to a specific operator.
func (n *Notifier) NotifyAll(notification Notification) {
	data, err := json.Marshal(notification)
	if err != nil {
		slog.Warn("Failed to marshal notification", "type", notification.Type, "error", err)
		return
	}

	n.mu.RLock()
	var conns []*MonitorConn
	for _, set := range n.users {
		for _, c := range set {
			conns = append(conns, c)
		}
	}
	n.mu.RUnlock()

	n.deliver(conns, data)
}

// Forward pushes an externally supplied JSON body onto the bus unchanged.
// Used by the broadcast HTTP endpoint for ring-event triggers.
func (n *Notifier) Forward(body []byte) {
	n.mu.RLock()
	var conns []*MonitorConn
	for _, set := range n.users {
		for _, c := range set {
			conns = append(conns, c)
		}
	}
	n.mu.RUnlock()

	n.deliver(conns, body)
}

// Subscribers returns the connection count for a user.
func (n *Notifier) Subscribers(userID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.users[userID])
}

func (n *Notifier) snapshot(userIDs ...string) []*MonitorConn {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var conns []*MonitorConn
	for _, id := range userIDs {
		for _, c := range n.users[id] {
			conns = append(conns, c)
		}
	}
	return conns
}

func (n *Notifier) deliver(conns []*MonitorConn, data []byte) {
	for _, c := range conns {
		writeCtx, cancel := context.WithTimeout(c.ctx, n.writeTimeout)
		err := c.Conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Warn("Failed to send notification", "connection_id", c.ID, "error", err)
		}
	}
}
