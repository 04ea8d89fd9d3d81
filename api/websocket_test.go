package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubValidator maps tokens to user IDs without real JWT verification
type stubValidator struct {
	tokens map[string]string
}

func (v *stubValidator) ValidateToken(token string) (string, error) {
	if userID, ok := v.tokens[token]; ok {
		return userID, nil
	}
	return "", errors.New("invalid or expired token")
}

func newTestHub() *WebSocketHub {
	return NewWebSocketHub(&stubValidator{tokens: map[string]string{
		"alice-token": "user-alice",
		"bob-token":   "user-bob",
		"carol-token": "user-carol",
	}}, WebSocketHubConfig{}, NewRelayMetrics(nil))
}

func newTestClient(hub *WebSocketHub, fileID, userID string, buffer int) *WebSocketClient {
	return &WebSocketClient{
		Hub:    hub,
		FileID: fileID,
		UserID: userID,
		Send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// recvFrame reads one frame off a client's send channel or fails the test
func recvFrame(t *testing.T, c *WebSocketClient) []byte {
	t.Helper()
	select {
	case frame := <-c.Send:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func assertNoFrame(t *testing.T, c *WebSocketClient) {
	t.Helper()
	select {
	case frame := <-c.Send:
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubAttachDetach(t *testing.T) {
	hub := newTestHub()
	fileID := uuid.New().String()
	client := newTestClient(hub, fileID, "user-alice", 8)

	hub.Attach(client)
	assert.Equal(t, 1, hub.ConnectionCount(fileID))
	assert.Equal(t, []string{"user-alice"}, hub.ListUsers(fileID))

	// Second attach of the same client is a no-op
	hub.Attach(client)
	assert.Equal(t, 1, hub.ConnectionCount(fileID))

	assert.True(t, hub.Detach(client))
	assert.Equal(t, 0, hub.ConnectionCount(fileID))
	assert.Empty(t, hub.ListUsers(fileID))

	// Detach after detach reports not-attached
	assert.False(t, hub.Detach(client))
}

func TestHubEmptyRoomIsRemoved(t *testing.T) {
	hub := newTestHub()
	fileID := uuid.New().String()
	client := newTestClient(hub, fileID, "user-alice", 8)

	hub.Attach(client)
	hub.Detach(client)

	hub.mu.RLock()
	_, exists := hub.rooms[fileID]
	hub.mu.RUnlock()
	assert.False(t, exists, "empty room should be garbage collected")
}

func TestHubListUsersDeduplicates(t *testing.T) {
	hub := newTestHub()
	fileID := uuid.New().String()

	// Same user with two tabs open, plus one other user
	tab1 := newTestClient(hub, fileID, "user-alice", 8)
	tab2 := newTestClient(hub, fileID, "user-alice", 8)
	other := newTestClient(hub, fileID, "user-bob", 8)
	hub.Attach(tab1)
	hub.Attach(tab2)
	hub.Attach(other)

	users := hub.ListUsers(fileID)
	assert.Len(t, users, 2)
	assert.ElementsMatch(t, []string{"user-alice", "user-bob"}, users)
	assert.Equal(t, 3, hub.ConnectionCount(fileID))
}

func TestHubRoomsAreIsolated(t *testing.T) {
	hub := newTestHub()
	fileA := uuid.New().String()
	fileB := uuid.New().String()

	inA := newTestClient(hub, fileA, "user-alice", 8)
	inB := newTestClient(hub, fileB, "user-bob", 8)
	hub.Attach(inA)
	hub.Attach(inB)

	hub.BroadcastToFile(fileA, []byte(`{"type":"file_update"}`), nil)

	recvFrame(t, inA)
	assertNoFrame(t, inB)
}

func TestBroadcastExcludesSender(t *testing.T) {
	hub := newTestHub()
	fileID := uuid.New().String()

	sender := newTestClient(hub, fileID, "user-alice", 8)
	peer := newTestClient(hub, fileID, "user-bob", 8)
	hub.Attach(sender)
	hub.Attach(peer)

	payload := []byte(`{"type":"file_update","content":"<p>x</p>"}`)
	hub.BroadcastToFile(fileID, payload, sender)

	assert.Equal(t, payload, recvFrame(t, peer))
	assertNoFrame(t, sender)
}

func TestBroadcastDropsSlowClientOnly(t *testing.T) {
	hub := newTestHub()
	fileID := uuid.New().String()

	slow := newTestClient(hub, fileID, "user-alice", 1)
	healthy := newTestClient(hub, fileID, "user-bob", 8)
	hub.Attach(slow)
	hub.Attach(healthy)

	// Fill the slow client's buffer so the next delivery cannot be queued
	slow.Send <- []byte(`{"type":"cursor_move"}`)

	hub.BroadcastToFile(fileID, []byte(`{"type":"file_update"}`), nil)

	// Slow client was detached; the healthy one remains
	require.Eventually(t, func() bool {
		return hub.ConnectionCount(fileID) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"user-bob"}, hub.ListUsers(fileID))

	// The healthy client got the frame plus a leave notice for the slow one.
	// The leave broadcast runs on its own goroutine, so arrival order is
	// not fixed.
	types := make(map[string]PresenceMessage, 2)
	for i := 0; i < 2; i++ {
		var msg PresenceMessage
		require.NoError(t, json.Unmarshal(recvFrame(t, healthy), &msg))
		types[msg.Type] = msg
	}
	assert.Contains(t, types, MessageTypeFileUpdate)
	require.Contains(t, types, MessageTypeUserLeft)
	assert.Equal(t, "user-alice", types[MessageTypeUserLeft].UserID)
	assert.NotZero(t, types[MessageTypeUserLeft].Timestamp)
}

func TestRouteMessage(t *testing.T) {
	t.Run("FileUpdateRelayedVerbatim", func(t *testing.T) {
		hub := newTestHub()
		fileID := uuid.New().String()
		sender := newTestClient(hub, fileID, "user-alice", 8)
		peer := newTestClient(hub, fileID, "user-bob", 8)
		hub.Attach(sender)
		hub.Attach(peer)

		raw := []byte(`{"type":"file_update","content":"<p>hello</p>","extra":{"a":1}}`)
		hub.routeMessage(sender, raw)

		assert.Equal(t, raw, recvFrame(t, peer))
		assertNoFrame(t, sender)
	})

	t.Run("CursorMoveRelayed", func(t *testing.T) {
		hub := newTestHub()
		fileID := uuid.New().String()
		sender := newTestClient(hub, fileID, "user-alice", 8)
		peer := newTestClient(hub, fileID, "user-bob", 8)
		hub.Attach(sender)
		hub.Attach(peer)

		raw := []byte(`{"type":"cursor_move","position":42}`)
		hub.routeMessage(sender, raw)
		assert.Equal(t, raw, recvFrame(t, peer))
	})

	t.Run("PingAnsweredWithPong", func(t *testing.T) {
		hub := newTestHub()
		fileID := uuid.New().String()
		sender := newTestClient(hub, fileID, "user-alice", 8)
		peer := newTestClient(hub, fileID, "user-bob", 8)
		hub.Attach(sender)
		hub.Attach(peer)

		hub.routeMessage(sender, []byte(`{"type":"ping"}`))

		var msg PongMessage
		require.NoError(t, json.Unmarshal(recvFrame(t, sender), &msg))
		assert.Equal(t, MessageTypePong, msg.Type)
		assertNoFrame(t, peer)
	})

	t.Run("UnknownTypeGetsErrorReply", func(t *testing.T) {
		hub := newTestHub()
		fileID := uuid.New().String()
		sender := newTestClient(hub, fileID, "user-alice", 8)
		hub.Attach(sender)

		hub.routeMessage(sender, []byte(`{"type":"teleport"}`))

		var msg ErrorMessage
		require.NoError(t, json.Unmarshal(recvFrame(t, sender), &msg))
		assert.Equal(t, MessageTypeError, msg.Type)
		assert.Contains(t, msg.Message, "teleport")

		// Still attached
		assert.Equal(t, 1, hub.ConnectionCount(fileID))
	})

	t.Run("MalformedJSONGetsErrorReply", func(t *testing.T) {
		hub := newTestHub()
		fileID := uuid.New().String()
		sender := newTestClient(hub, fileID, "user-alice", 8)
		hub.Attach(sender)

		hub.routeMessage(sender, []byte(`{not json`))

		var msg ErrorMessage
		require.NoError(t, json.Unmarshal(recvFrame(t, sender), &msg))
		assert.Equal(t, MessageTypeError, msg.Type)
		assert.Equal(t, 1, hub.ConnectionCount(fileID))
	})
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := newTestHub()
	fileID := uuid.New().String()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			client := newTestClient(hub, fileID, fmt.Sprintf("user-%d", n), 64)
			hub.Attach(client)
			hub.BroadcastToFile(fileID, []byte(`{"type":"cursor_move"}`), client)
			hub.ListUsers(fileID)
			hub.Detach(client)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.ConnectionCount(fileID))
}

// --- end-to-end tests over a real websocket connection ---

type wsTestServer struct {
	hub    *WebSocketHub
	server *httptest.Server
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := newTestHub()
	router := gin.New()
	router.GET("/api/v1/ws/:file_id", hub.HandleWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &wsTestServer{hub: hub, server: server}
}

func (s *wsTestServer) dial(t *testing.T, fileID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/v1/ws/" + fileID
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readJSON reads the next frame with a deadline and decodes it
func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

// expectClose asserts the next read fails with the given close code
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, code, closeErr.Code)
}

func TestWSConnectAndAck(t *testing.T) {
	ts := newWSTestServer(t)
	fileID := uuid.New().String()

	conn := ts.dial(t, fileID, "alice-token")

	msg := readJSON(t, conn)
	assert.Equal(t, MessageTypeConnected, msg["type"])
	assert.Equal(t, fileID, msg["file_id"])
	assert.Equal(t, "user-alice", msg["user_id"])
	assert.NotContains(t, msg, "timestamp")

	require.Eventually(t, func() bool {
		return ts.hub.ConnectionCount(fileID) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWSRejectsMissingToken(t *testing.T) {
	ts := newWSTestServer(t)
	conn := ts.dial(t, uuid.New().String(), "")
	expectClose(t, conn, CloseMissingToken)
}

func TestWSRejectsInvalidToken(t *testing.T) {
	ts := newWSTestServer(t)
	conn := ts.dial(t, uuid.New().String(), "forged-token")
	expectClose(t, conn, CloseInvalidToken)
}

func TestWSJoinNotification(t *testing.T) {
	ts := newWSTestServer(t)
	fileID := uuid.New().String()

	alice := ts.dial(t, fileID, "alice-token")
	ack := readJSON(t, alice)
	require.Equal(t, MessageTypeConnected, ack["type"])

	bob := ts.dial(t, fileID, "bob-token")
	bobAck := readJSON(t, bob)
	assert.Equal(t, MessageTypeConnected, bobAck["type"])
	assert.Equal(t, "user-bob", bobAck["user_id"])

	// Alice hears about Bob; Bob does not hear about himself
	joined := readJSON(t, alice)
	assert.Equal(t, MessageTypeUserJoined, joined["type"])
	assert.Equal(t, "user-bob", joined["user_id"])
	assert.Equal(t, fileID, joined["file_id"])

	// Join notifications carry the time of the event
	timestamp, ok := joined["timestamp"].(float64)
	require.True(t, ok, "user_joined must carry a timestamp")
	assert.InDelta(t, time.Now().Unix(), int64(timestamp), 5)
}

func TestWSRelayBetweenClients(t *testing.T) {
	ts := newWSTestServer(t)
	fileID := uuid.New().String()

	alice := ts.dial(t, fileID, "alice-token")
	require.Equal(t, MessageTypeConnected, readJSON(t, alice)["type"])

	bob := ts.dial(t, fileID, "bob-token")
	require.Equal(t, MessageTypeConnected, readJSON(t, bob)["type"])
	require.Equal(t, MessageTypeUserJoined, readJSON(t, alice)["type"])

	update := `{"type":"file_update","content":"<p>edit from alice</p>"}`
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(update)))

	// Bob receives the exact frame Alice sent
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := bob.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, update, string(raw))

	// Alice does not receive her own update: the next frame she gets is
	// the pong for a ping sent after the update
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	pong := readJSON(t, alice)
	assert.Equal(t, MessageTypePong, pong["type"])
}

func TestWSLeaveNotification(t *testing.T) {
	ts := newWSTestServer(t)
	fileID := uuid.New().String()

	alice := ts.dial(t, fileID, "alice-token")
	require.Equal(t, MessageTypeConnected, readJSON(t, alice)["type"])

	bob := ts.dial(t, fileID, "bob-token")
	require.Equal(t, MessageTypeConnected, readJSON(t, bob)["type"])
	require.Equal(t, MessageTypeUserJoined, readJSON(t, alice)["type"])

	require.NoError(t, bob.Close())

	left := readJSON(t, alice)
	assert.Equal(t, MessageTypeUserLeft, left["type"])
	assert.Equal(t, "user-bob", left["user_id"])

	timestamp, ok := left["timestamp"].(float64)
	require.True(t, ok, "user_left must carry a timestamp")
	assert.InDelta(t, time.Now().Unix(), int64(timestamp), 5)

	require.Eventually(t, func() bool {
		return ts.hub.ConnectionCount(fileID) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWSErrorKeepsConnectionOpen(t *testing.T) {
	ts := newWSTestServer(t)
	fileID := uuid.New().String()

	conn := ts.dial(t, fileID, "alice-token")
	require.Equal(t, MessageTypeConnected, readJSON(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"warp-drive"}`)))
	errMsg := readJSON(t, conn)
	assert.Equal(t, MessageTypeError, errMsg["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`)))
	errMsg = readJSON(t, conn)
	assert.Equal(t, MessageTypeError, errMsg["type"])

	// Still connected and functional
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, MessageTypePong, readJSON(t, conn)["type"])
}
