package api

import (
	"encoding/json"

	"github.com/filecollab/filecollab/internal/slogging"
)

// Message types exchanged over the collaboration socket
const (
	MessageTypeConnected  = "connected"
	MessageTypeUserJoined = "user_joined"
	MessageTypeUserLeft   = "user_left"
	MessageTypeFileUpdate = "file_update"
	MessageTypeCursorMove = "cursor_move"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
	MessageTypeError      = "error"
)

// PresenceMessage is the server-originated envelope for connection lifecycle
// events (connected, user_joined, user_left). Timestamp is set on join and
// leave broadcasts; the connected ack does not carry one.
type PresenceMessage struct {
	Type      string `json:"type"`
	FileID    string `json:"file_id"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ErrorMessage is sent back to a client whose frame could not be handled.
// The connection stays open.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PongMessage answers a client-level ping
type PongMessage struct {
	Type string `json:"type"`
}

// messageEnvelope extracts only the type tag; the rest of a client frame is
// relayed verbatim and never re-serialized.
type messageEnvelope struct {
	Type string `json:"type"`
}

// EncodeMessage serializes a server-originated frame
func EncodeMessage(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// routeMessage dispatches one inbound frame from a client. Content frames
// are fanned out to the rest of the room untouched, so collaborating editors
// see exactly the bytes their peer sent.
func (h *WebSocketHub) routeMessage(sender *WebSocketClient, raw []byte) {
	var envelope messageEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		slogging.Get().Debug("Malformed websocket frame from user %s: %v", sender.UserID, err)
		h.replyError(sender, "invalid JSON")
		return
	}

	switch envelope.Type {
	case MessageTypeFileUpdate, MessageTypeCursorMove:
		h.metrics.MessagesRouted.WithLabelValues(envelope.Type).Inc()
		h.BroadcastToFile(sender.FileID, raw, sender)
	case MessageTypePing:
		h.metrics.MessagesRouted.WithLabelValues(envelope.Type).Inc()
		h.replyTo(sender, PongMessage{Type: MessageTypePong})
	default:
		slogging.Get().Debug("Unknown websocket message type %q from user %s", envelope.Type, sender.UserID)
		h.replyError(sender, "unknown message type: "+envelope.Type)
	}
}

// replyTo sends a frame to a single client, disconnecting it if its buffer
// is full
func (h *WebSocketHub) replyTo(client *WebSocketClient, v interface{}) {
	frame, err := EncodeMessage(v)
	if err != nil {
		slogging.Get().Error("Failed to encode websocket reply: %v", err)
		return
	}
	if client.closed() {
		return
	}
	select {
	case client.Send <- frame:
	default:
		h.metrics.DeliveryFailures.Inc()
		client.detachAndNotify()
	}
}

func (h *WebSocketHub) replyError(client *WebSocketClient, message string) {
	h.replyTo(client, ErrorMessage{Type: MessageTypeError, Message: message})
}
