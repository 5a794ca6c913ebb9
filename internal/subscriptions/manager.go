// Package subscriptions accepts long-lived WebSocket subscriptions and pipes
// matching event bus notifications to each client in publish order.
package subscriptions

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskgate/internal/eventbus"
	"taskgate/internal/proxy"
)

const (
	// operationNotificationAdded is the only subscribe operation clients
	// may request.
	operationNotificationAdded = "notificationAdded"

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
	pongTimeout      = 60 * time.Second
)

// subscribeRequest is the first frame a client must send after the upgrade.
type subscribeRequest struct {
	Type          string `json:"type,omitempty"`
	OperationName string `json:"operationName"`
	Variables     struct {
		TeamID string `json:"teamId"`
	} `json:"variables"`
}

// controlFrame covers server-to-client signalling around the event stream.
type controlFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// event is the delivered notification shape.
type event struct {
	ID      string            `json:"id"`
	Message string            `json:"message"`
	Task    *eventbus.TaskRef `json:"task"`
}

// Manager upgrades streaming requests and manages subscription lifecycles.
type Manager struct {
	bus      *eventbus.Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewManager creates a Manager fanning out from bus.
func NewManager(bus *eventbus.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
			// Cross-origin policy is enforced at the gateway; this service
			// is never exposed directly.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
}

// Close releases every active subscription. Used on shutdown: WebSocket
// connections are hijacked and invisible to http.Server.Shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

// ServeHTTP upgrades the connection, waits for the subscribe frame, and
// streams matching notifications until the client goes away.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client; a failed handshake is a
		// connection-level error, not an HTTP body.
		m.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	teamID, ok := m.awaitSubscribe(conn, r)
	if !ok {
		return
	}

	sub := m.bus.Subscribe(teamID)
	defer sub.Close()

	m.logger.Info("subscription opened", "team_id", teamID)
	defer m.logger.Info("subscription closed", "team_id", teamID)

	// Read pump: surfaces client disconnects and explicit completes.
	clientGone := make(chan struct{})
	go m.readPump(conn, clientGone)

	m.writePump(conn, sub, clientGone)
}

// awaitSubscribe reads and validates the handshake frame. A mismatch
// between the client-requested team and the gateway-verified team header is
// rejected before any subscription is registered.
func (m *Manager) awaitSubscribe(conn *websocket.Conn, r *http.Request) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	var req subscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		m.closeWithError(conn, "expected a subscribe message")
		return "", false
	}
	if req.OperationName != operationNotificationAdded {
		m.closeWithError(conn, "unsupported operation")
		return "", false
	}
	teamID := req.Variables.TeamID
	if teamID == "" {
		m.closeWithError(conn, "teamId is required")
		return "", false
	}

	if th, ok := proxy.ParseTrustedHeaders(r.Header); ok && th.TeamID != "" && th.TeamID != teamID {
		m.logger.Warn("subscription team mismatch",
			"requested_team", teamID,
			"verified_team", th.TeamID,
			"user_id", th.UserID,
		)
		m.closeWithError(conn, "not authorized to subscribe to this team")
		return "", false
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(controlFrame{Type: "subscription_ack"}); err != nil {
		return "", false
	}
	return teamID, true
}

// readPump drains client frames until the connection dies or the client
// sends a complete. Closing clientGone tears the subscription down promptly.
func (m *Manager) readPump(conn *websocket.Conn, clientGone chan<- struct{}) {
	defer close(clientGone)

	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var frame controlFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Type == "complete" {
			return
		}
	}
}

// writePump streams notifications and keepalive pings until the client is
// gone or the manager shuts down.
func (m *Manager) writePump(conn *websocket.Conn, sub *eventbus.Subscription, clientGone <-chan struct{}) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case n := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event{ID: n.ID, Message: n.Message, Task: n.Task}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-m.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// closeWithError sends a terminal error frame before dropping the connection.
func (m *Manager) closeWithError(conn *websocket.Conn, message string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteJSON(controlFrame{Type: "error", Message: message})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
