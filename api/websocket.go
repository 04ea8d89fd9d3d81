package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/filecollab/filecollab/internal/slogging"
)

// Close codes sent when a websocket handshake is rejected
const (
	CloseMissingToken  = 4001
	CloseInvalidToken  = 4003
	CloseInternalError = websocket.CloseInternalServerErr // 1011
)

// Defaults applied when the hub is constructed with a zero config
const (
	defaultSendBufferSize    = 64
	defaultMaxMessageBytes   = 1024 * 1024
	defaultInactivityTimeout = 120 * time.Second
)

// pingInterval must be shorter than the inactivity timeout so an idle but
// healthy connection keeps refreshing its read deadline via pong frames.
func pingInterval(inactivity time.Duration) time.Duration {
	return inactivity * 8 / 10
}

// TokenValidator checks an access token and returns the user it belongs to
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// WebSocketClient is one active editing connection to a file
type WebSocketClient struct {
	Hub    *WebSocketHub
	Conn   *websocket.Conn
	FileID string
	UserID string

	// Send carries serialized frames to the write pump. The write pump is
	// the only goroutine that writes to Conn. Send is never closed; done
	// signals shutdown instead, so concurrent broadcasters can never hit a
	// closed channel.
	Send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// signalDone marks the client as shut down, releasing the write pump
func (c *WebSocketClient) signalDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// closed reports whether the client has been shut down
func (c *WebSocketClient) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// WebSocketHubConfig tunes per-connection buffering and timeouts
type WebSocketHubConfig struct {
	SendBufferSize    int
	MaxMessageBytes   int64
	InactivityTimeout time.Duration
}

// WebSocketHub tracks which connections are editing which file and relays
// messages between them. One hub instance serves the whole process; handlers
// receive it explicitly rather than through package state.
type WebSocketHub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*WebSocketClient]bool
	sessions map[*WebSocketClient]string // client -> file ID it is attached to

	auth     TokenValidator
	config   WebSocketHubConfig
	upgrader websocket.Upgrader
	metrics  *RelayMetrics
}

// NewWebSocketHub creates a hub using the given validator for handshakes
func NewWebSocketHub(auth TokenValidator, config WebSocketHubConfig, metrics *RelayMetrics) *WebSocketHub {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = defaultSendBufferSize
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = defaultMaxMessageBytes
	}
	if config.InactivityTimeout <= 0 {
		config.InactivityTimeout = defaultInactivityTimeout
	}
	if metrics == nil {
		metrics = NewRelayMetrics(nil)
	}
	return &WebSocketHub{
		rooms:    make(map[string]map[*WebSocketClient]bool),
		sessions: make(map[*WebSocketClient]string),
		auth:     auth,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from the frontend origin; access
			// control happens via the token, not the Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: metrics,
	}
}

// Attach registers a client in the room for its file. Attaching an already
// attached client is a no-op.
func (h *WebSocketHub) Attach(client *WebSocketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[client]; ok {
		return
	}
	room := h.rooms[client.FileID]
	if room == nil {
		room = make(map[*WebSocketClient]bool)
		h.rooms[client.FileID] = room
		h.metrics.ActiveRooms.Inc()
	}
	room[client] = true
	h.sessions[client] = client.FileID
	h.metrics.ActiveConnections.Inc()
}

// Detach removes a client from its room, dropping the room when it empties.
// It reports whether the client was attached, so callers can gate leave
// notifications on the first detach only.
func (h *WebSocketHub) Detach(client *WebSocketClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	fileID, ok := h.sessions[client]
	if !ok {
		return false
	}
	delete(h.sessions, client)
	if room, ok := h.rooms[fileID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, fileID)
			h.metrics.ActiveRooms.Dec()
		}
	}
	h.metrics.ActiveConnections.Dec()
	return true
}

// ListUsers returns the user IDs currently connected to a file, deduplicated.
// A user with two tabs open appears once.
func (h *WebSocketHub) ListUsers(fileID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	users := make([]string, 0)
	for client := range h.rooms[fileID] {
		if !seen[client.UserID] {
			seen[client.UserID] = true
			users = append(users, client.UserID)
		}
	}
	return users
}

// ConnectionCount returns the number of connections in a file's room
func (h *WebSocketHub) ConnectionCount(fileID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[fileID])
}

// snapshot copies the room membership so delivery happens outside the lock
func (h *WebSocketHub) snapshot(fileID string) []*WebSocketClient {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[fileID]
	clients := make([]*WebSocketClient, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	return clients
}

// BroadcastToFile delivers a frame to every connection in a file's room,
// optionally excluding the sender. A client whose send buffer is full is
// disconnected rather than allowed to stall delivery to the others.
func (h *WebSocketHub) BroadcastToFile(fileID string, message []byte, exclude *WebSocketClient) {
	logger := slogging.Get()
	h.metrics.BroadcastsTotal.Inc()

	for _, client := range h.snapshot(fileID) {
		if client == exclude || client.closed() {
			continue
		}
		select {
		case client.Send <- message:
		default:
			logger.Warn("Dropping slow websocket client for file %s (user %s)", fileID, client.UserID)
			h.metrics.DeliveryFailures.Inc()
			client.detachAndNotify()
		}
	}
}

// detachAndNotify tears a client down exactly once: registry removal first,
// then a best-effort leave broadcast to whoever is still in the room.
func (c *WebSocketClient) detachAndNotify() {
	if !c.Hub.Detach(c) {
		return
	}
	c.signalDone()
	go c.Hub.notifyLeave(c.FileID, c.UserID)
}

// notifyJoin announces a new participant to the rest of the room
func (h *WebSocketHub) notifyJoin(fileID, userID string, joined *WebSocketClient) {
	frame, err := EncodeMessage(PresenceMessage{
		Type:      MessageTypeUserJoined,
		FileID:    fileID,
		UserID:    userID,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		slogging.Get().Error("Failed to encode join notification: %v", err)
		return
	}
	h.BroadcastToFile(fileID, frame, joined)
}

// notifyLeave announces a departure. Best effort: by the time this runs the
// room may already be empty.
func (h *WebSocketHub) notifyLeave(fileID, userID string) {
	frame, err := EncodeMessage(PresenceMessage{
		Type:      MessageTypeUserLeft,
		FileID:    fileID,
		UserID:    userID,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		slogging.Get().Error("Failed to encode leave notification: %v", err)
		return
	}
	h.BroadcastToFile(fileID, frame, nil)
}

// HandleWS upgrades a request to a websocket session for a file.
// Authentication uses a token query parameter because browsers cannot set
// headers on websocket handshakes. Failures are reported as close codes on
// the upgraded socket so the client can distinguish them.
func (h *WebSocketHub) HandleWS(c *gin.Context) {
	logger := slogging.Get()

	fileID, err := ParseUUID(c.Param("file_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_id",
			Message: fmt.Sprintf("Invalid file ID: %s", c.Param("file_id")),
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed for file %s: %v", fileID, err)
		return
	}

	token := c.Query("token")
	if token == "" {
		h.closeWithCode(conn, CloseMissingToken, "missing token")
		return
	}
	userID, err := h.auth.ValidateToken(token)
	if err != nil {
		logger.Debug("Rejected websocket token for file %s: %v", fileID, err)
		h.closeWithCode(conn, CloseInvalidToken, "invalid token")
		return
	}

	client := &WebSocketClient{
		Hub:    h,
		Conn:   conn,
		FileID: fileID,
		UserID: userID,
		Send:   make(chan []byte, h.config.SendBufferSize),
		done:   make(chan struct{}),
	}

	// Register and announce before the read loop starts, so no frame this
	// client relays can reach the room ahead of its join notification.
	h.Attach(client)
	h.notifyJoin(fileID, userID, client)

	ack, err := EncodeMessage(PresenceMessage{
		Type:   MessageTypeConnected,
		FileID: fileID,
		UserID: userID,
	})
	if err == nil {
		client.Send <- ack
	}

	logger.Info("WebSocket connected: user %s on file %s", userID, fileID)

	go client.writePump()
	go client.readPump()
}

// closeWithCode sends a close frame and drops the connection
func (h *WebSocketHub) closeWithCode(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(5 * time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		slogging.Get().Debug("Failed to write close frame: %v", err)
	}
	if err := conn.Close(); err != nil {
		slogging.Get().Debug("Failed to close websocket: %v", err)
	}
}

// readPump consumes inbound frames until the connection dies, routing each
// through the message dispatcher. It owns connection teardown.
func (c *WebSocketClient) readPump() {
	logger := slogging.Get()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in websocket read loop for file %s: %v", c.FileID, r)
			c.Hub.closeWithCode(c.Conn, CloseInternalError, "internal error")
		}
		c.detachAndNotify()
		if err := c.Conn.Close(); err != nil {
			logger.Debug("Error closing websocket connection: %v", err)
		}
		logger.Info("WebSocket disconnected: user %s on file %s", c.UserID, c.FileID)
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageBytes)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.InactivityTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.InactivityTimeout))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read error for file %s: %v", c.FileID, err)
			}
			return
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.InactivityTimeout))
		c.Hub.routeMessage(c, raw)
	}
}

// writePump drains the send channel to the connection and keeps the peer
// alive with pings. It exits when the client is shut down or a write fails.
func (c *WebSocketClient) writePump() {
	interval := pingInterval(c.Hub.config.InactivityTimeout)
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		if err := c.Conn.Close(); err != nil {
			slogging.Get().Debug("Error closing websocket connection: %v", err)
		}
	}()

	for {
		select {
		case message := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
